// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCredentialEncryptorRoundTrip(t *testing.T) {
	enc, err := NewCredentialEncryptor("test-secret")
	if err != nil {
		t.Fatalf("NewCredentialEncryptor() error: %v", err)
	}

	ciphertext, err := enc.Encrypt("bearer-token-value")
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if ciphertext == "bearer-token-value" {
		t.Fatal("ciphertext equals plaintext")
	}

	plaintext, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if plaintext != "bearer-token-value" {
		t.Errorf("Decrypt() = %q, want original", plaintext)
	}
}

func TestCredentialEncryptorErrors(t *testing.T) {
	if _, err := NewCredentialEncryptor(""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("empty secret error = %v, want ErrEmptySecret", err)
	}

	enc, err := NewCredentialEncryptor("s")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := enc.Encrypt(""); !errors.Is(err, ErrEmptyPlaintext) {
		t.Errorf("empty plaintext error = %v", err)
	}
	if _, err := enc.Decrypt(""); !errors.Is(err, ErrEmptyCiphertext) {
		t.Errorf("empty ciphertext error = %v", err)
	}
	if _, err := enc.Decrypt("not-base64!!"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("bad base64 error = %v", err)
	}
	if _, err := enc.Decrypt("c2hvcnQ="); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("short ciphertext error = %v", err)
	}
}

func TestCredentialEncryptorTamperDetection(t *testing.T) {
	enc, err := NewCredentialEncryptor("test-secret")
	if err != nil {
		t.Fatal(err)
	}

	other, err := NewCredentialEncryptor("different-secret")
	if err != nil {
		t.Fatal(err)
	}

	ciphertext, err := enc.Encrypt("token")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Decrypt(ciphertext); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("cross-key decrypt error = %v, want ErrDecryptionFailed", err)
	}
}

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"ab", "****"},
		{"abcd", "****"},
		{"secret-token-abc1", "****...abc1"},
	}
	for _, tt := range tests {
		if got := MaskCredential(tt.in); got != tt.want {
			t.Errorf("MaskCredential(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCredentialStoreSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	enc, err := NewCredentialEncryptor("store-secret")
	if err != nil {
		t.Fatal(err)
	}

	store := NewCredentialStore(path, enc)
	creds := FeedCredentials{
		BearerToken: "tok-123456",
		Cookies:     map[string]string{"session": "sess-abc"},
		RefreshedAt: time.Now().UTC(),
	}
	if err := store.Save(creds); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	// On-disk form must not contain the plaintext token.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "tok-123456") {
		t.Error("plaintext token written to disk despite encryptor")
	}

	fresh := NewCredentialStore(path, enc)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got := fresh.Current()
	if got.BearerToken != "tok-123456" {
		t.Errorf("bearer token = %q, want decrypted original", got.BearerToken)
	}
	if got.Cookies["session"] != "sess-abc" {
		t.Errorf("cookie = %q, want decrypted original", got.Cookies["session"])
	}
	if fresh.Masked() != "****...3456" {
		t.Errorf("Masked() = %q", fresh.Masked())
	}
}

func TestCredentialStorePlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	content := []byte(`{"bearer_token":"plain-token","cookies":{"a":"b"}}`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	store := NewCredentialStore(path, nil)
	if err := store.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if store.Current().BearerToken != "plain-token" {
		t.Error("plaintext load failed")
	}
}

func TestCredentialStoreReloadIfChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, []byte(`{"bearer_token":"first"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	store := NewCredentialStore(path, nil)
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}

	changed, err := store.ReloadIfChanged()
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("reload reported for unchanged file")
	}

	// Rewrite with a future mtime so the change is observable regardless
	// of filesystem timestamp granularity.
	if err := os.WriteFile(path, []byte(`{"bearer_token":"second"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	changed, err = store.ReloadIfChanged()
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("reload not reported for rewritten file")
	}
	if store.Current().BearerToken != "second" {
		t.Errorf("token = %q, want second", store.Current().BearerToken)
	}
}

func TestCredentialStoreLoadErrors(t *testing.T) {
	store := NewCredentialStore(filepath.Join(t.TempDir(), "missing.json"), nil)
	if err := store.Load(); err == nil {
		t.Error("Load() of missing file should fail")
	}

	path := filepath.Join(t.TempDir(), "creds.json")
	if err := os.WriteFile(path, []byte(`{"bearer_token":"x","encrypted":true}`), 0o600); err != nil {
		t.Fatal(err)
	}
	plain := NewCredentialStore(path, nil)
	if err := plain.Load(); err == nil {
		t.Error("Load() of encrypted file without encryptor should fail")
	}
}
