// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/crypto/hkdf"
)

const (
	// credentialEncryptionSalt binds derived keys to this application's
	// credential encryption use case.
	credentialEncryptionSalt = "sorafeed-feed-credentials"

	// credentialEncryptionInfo is the HKDF info parameter.
	credentialEncryptionInfo = "credential-encryption-v1"

	aesKeySize   = 32
	gcmNonceSize = 12
)

var (
	// ErrEmptySecret is returned when an empty secret is provided.
	ErrEmptySecret = errors.New("secret cannot be empty")

	// ErrEmptyPlaintext is returned when attempting to encrypt empty data.
	ErrEmptyPlaintext = errors.New("plaintext cannot be empty")

	// ErrEmptyCiphertext is returned when attempting to decrypt empty data.
	ErrEmptyCiphertext = errors.New("ciphertext cannot be empty")

	// ErrDecryptionFailed is returned when decryption fails.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")

	// ErrInvalidCiphertext is returned when the ciphertext format is invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")

	// ErrCiphertextTooShort is returned when the ciphertext is shorter than
	// nonce + tag.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// CredentialEncryptor provides AES-256-GCM encryption for the feed
// credentials file. The key is derived from the application secret with
// HKDF-SHA256, so encrypted credentials are bound to the deployment.
type CredentialEncryptor struct {
	cipher cipher.AEAD
}

// NewCredentialEncryptor derives a 256-bit AES key from secret and returns
// an encryptor ready for use.
func NewCredentialEncryptor(secret string) (*CredentialEncryptor, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key, err := deriveKey(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &CredentialEncryptor{cipher: gcm}, nil
}

// Encrypt returns base64(nonce || ciphertext || tag) for plaintext.
func (e *CredentialEncryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := e.cipher.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt.
func (e *CredentialEncryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed: %s", ErrInvalidCiphertext, err.Error())
	}

	minLength := gcmNonceSize + 1 + e.cipher.Overhead()
	if len(data) < minLength {
		return "", ErrCiphertextTooShort
	}

	nonce := data[:gcmNonceSize]
	plaintext, err := e.cipher.Open(nil, nonce, data[gcmNonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// MaskCredential returns a display-safe version of a credential showing
// only the last 4 characters.
func MaskCredential(credential string) string {
	if credential == "" {
		return ""
	}
	if len(credential) <= 4 {
		return "****"
	}
	return "****..." + credential[len(credential)-4:]
}

// deriveKey derives a 256-bit AES key from secret using HKDF-SHA256.
func deriveKey(secret string) ([]byte, error) {
	hkdfReader := hkdf.New(
		sha256.New,
		[]byte(secret),
		[]byte(credentialEncryptionSalt),
		[]byte(credentialEncryptionInfo),
	)

	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("failed to read HKDF output: %w", err)
	}
	return key, nil
}

// FeedCredentials is the upstream feed authentication material: a bearer
// token plus the cookie jar captured from an authenticated browser
// session. Encrypted files additionally carry the Encrypted flag with the
// token/cookie fields holding ciphertext.
type FeedCredentials struct {
	BearerToken string            `json:"bearer_token"`
	Cookies     map[string]string `json:"cookies,omitempty"`
	Encrypted   bool              `json:"encrypted,omitempty"`
	RefreshedAt time.Time         `json:"refreshed_at,omitempty"`
}

// CredentialStore loads the feed credentials file and hands out the
// current credentials. The refresher rewrites the file in place and the
// store picks up the change via ReloadIfChanged; concurrent readers see a
// consistent snapshot.
type CredentialStore struct {
	path      string
	encryptor *CredentialEncryptor // nil means plaintext files only

	mu      sync.RWMutex
	current FeedCredentials
	modTime time.Time
}

// NewCredentialStore creates a store for the credentials file at path.
// A nil encryptor is allowed and restricts the store to plaintext files.
func NewCredentialStore(path string, encryptor *CredentialEncryptor) *CredentialStore {
	return &CredentialStore{path: path, encryptor: encryptor}
}

// Load reads and decrypts the credentials file. It replaces the cached
// snapshot on success and leaves it untouched on failure.
func (s *CredentialStore) Load() error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("failed to stat credentials file: %w", err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds FeedCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}

	if creds.Encrypted {
		if s.encryptor == nil {
			return errors.New("credentials file is encrypted but no encryption secret is configured")
		}
		if err := s.decryptInPlace(&creds); err != nil {
			return err
		}
	}

	if creds.BearerToken == "" {
		return errors.New("credentials file has no bearer token")
	}

	s.mu.Lock()
	s.current = creds
	s.modTime = info.ModTime()
	s.mu.Unlock()
	return nil
}

// ReloadIfChanged re-reads the file when its mtime moved past the cached
// snapshot. It reports whether a reload happened.
func (s *CredentialStore) ReloadIfChanged() (bool, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return false, fmt.Errorf("failed to stat credentials file: %w", err)
	}

	s.mu.RLock()
	unchanged := !info.ModTime().After(s.modTime)
	s.mu.RUnlock()
	if unchanged {
		return false, nil
	}

	if err := s.Load(); err != nil {
		return false, err
	}
	return true, nil
}

// Save writes credentials to the file, encrypting the token and cookie
// values when an encryptor is configured. The file is written atomically
// via a temp file rename with 0600 permissions.
func (s *CredentialStore) Save(creds FeedCredentials) error {
	out := creds
	out.Encrypted = false

	if s.encryptor != nil {
		token, err := s.encryptor.Encrypt(creds.BearerToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt bearer token: %w", err)
		}
		out.BearerToken = token
		if len(creds.Cookies) > 0 {
			cookies := make(map[string]string, len(creds.Cookies))
			for k, v := range creds.Cookies {
				enc, err := s.encryptor.Encrypt(v)
				if err != nil {
					return fmt.Errorf("failed to encrypt cookie %s: %w", k, err)
				}
				cookies[k] = enc
			}
			out.Cookies = cookies
		}
		out.Encrypted = true
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}

	s.mu.Lock()
	s.current = creds
	if info, statErr := os.Stat(s.path); statErr == nil {
		s.modTime = info.ModTime()
	}
	s.mu.Unlock()
	return nil
}

// Current returns the cached credentials snapshot.
func (s *CredentialStore) Current() FeedCredentials {
	s.mu.RLock()
	defer s.mu.RUnlock()

	creds := s.current
	if len(s.current.Cookies) > 0 {
		creds.Cookies = make(map[string]string, len(s.current.Cookies))
		for k, v := range s.current.Cookies {
			creds.Cookies[k] = v
		}
	}
	return creds
}

// Masked returns the cached bearer token in display-safe form.
func (s *CredentialStore) Masked() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return MaskCredential(s.current.BearerToken)
}

func (s *CredentialStore) decryptInPlace(creds *FeedCredentials) error {
	token, err := s.encryptor.Decrypt(creds.BearerToken)
	if err != nil {
		return fmt.Errorf("failed to decrypt bearer token: %w", err)
	}
	creds.BearerToken = token

	for k, v := range creds.Cookies {
		plain, err := s.encryptor.Decrypt(v)
		if err != nil {
			return fmt.Errorf("failed to decrypt cookie %s: %w", k, err)
		}
		creds.Cookies[k] = plain
	}
	creds.Encrypted = false
	return nil
}
