// SoraFeed - Multi-Display Video Playlist Orchestrator
// Copyright 2026 fourtytwo42
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fourtytwo42/soraFeed-sub001

package feed

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fourtytwo42/soraFeed-sub001/internal/apperr"
	"github.com/fourtytwo42/soraFeed-sub001/internal/config"
	"github.com/fourtytwo42/soraFeed-sub001/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

const samplePage = `{
	"items": [
		{
			"post": {
				"id": "post-1",
				"text": "golden hour over the bay",
				"posted_at": 1756000000,
				"permalink": "https://sora.example/p/post-1",
				"attachments": [
					{
						"width": 1920,
						"height": 1080,
						"encodings": {
							"source": {"path": "https://cdn.example/post-1.mp4"},
							"md": {"path": "https://cdn.example/post-1-md.mp4"},
							"thumbnail": {"path": "https://cdn.example/post-1.jpg"},
							"gif": {"path": "https://cdn.example/post-1.gif"}
						}
					}
				]
			},
			"profile": {
				"id": "user-1",
				"username": "maya",
				"url": "https://sora.example/u/maya",
				"followers": 1200,
				"posts": 88,
				"verified": true
			}
		}
	],
	"cursor": "next-token"
}`

// newTestStore seeds a credential store with a known token and cookie.
func newTestStore(t *testing.T) *config.CredentialStore {
	t.Helper()
	store := config.NewCredentialStore(filepath.Join(t.TempDir(), "credentials.json"), nil)
	err := store.Save(config.FeedCredentials{
		BearerToken: "test-token",
		Cookies:     map[string]string{"session": "abc", "csrf": "xyz"},
	})
	if err != nil {
		t.Fatalf("failed to seed credentials: %v", err)
	}
	return store
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c := NewClient(&config.FeedConfig{
		BaseURL:   url,
		UserAgent: "sorafeed-test/1.0",
		Timeout:   5 * time.Second,
	}, newTestStore(t))
	c.retryBaseDelay = time.Millisecond
	return c
}

func TestFetchPage(t *testing.T) {
	var gotAuth, gotCookie, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCookie = r.Header.Get("Cookie")
		gotUA = r.Header.Get("User-Agent")
		if r.URL.Query().Get("limit") != "200" {
			t.Errorf("limit = %s, want 200", r.URL.Query().Get("limit"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	page, err := c.FetchPage(context.Background(), 200, "")
	if err != nil {
		t.Fatalf("FetchPage() error: %v", err)
	}

	if len(page.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(page.Items))
	}
	if page.Cursor == nil || *page.Cursor != "next-token" {
		t.Errorf("cursor = %v, want next-token", page.Cursor)
	}
	if page.Items[0].Post.ID != "post-1" || page.Items[0].Profile.Username != "maya" {
		t.Errorf("item = %+v", page.Items[0])
	}

	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	// Cookies in sorted key order.
	if gotCookie != "csrf=xyz; session=abc" {
		t.Errorf("Cookie = %q", gotCookie)
	}
	if gotUA != "sorafeed-test/1.0" {
		t.Errorf("User-Agent = %q", gotUA)
	}
}

func TestFetchPageErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind apperr.Kind
		authLike bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"expired"}`, apperr.KindCredentials, true},
		{"forbidden", http.StatusForbidden, ``, apperr.KindCredentials, true},
		{"server error", http.StatusBadGateway, `upstream sad`, apperr.KindUpstream, false},
		{"html challenge", http.StatusOK, `<html><body>Verify you are human</body></html>`, apperr.KindUpstream, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).FetchPage(context.Background(), 200, "")
			if apperr.KindOf(err) != tt.wantKind {
				t.Errorf("kind = %v, want %v (err: %v)", apperr.KindOf(err), tt.wantKind, err)
			}
			if IsAuthLike(err) != tt.authLike {
				t.Errorf("IsAuthLike = %v, want %v", IsAuthLike(err), tt.authLike)
			}
		})
	}
}

func TestFetchPageRateLimitRetry(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	page, err := newTestClient(t, srv.URL).FetchPage(context.Background(), 200, "")
	if err != nil {
		t.Fatalf("FetchPage() error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if len(page.Items) != 0 {
		t.Errorf("items = %d, want 0", len(page.Items))
	}
}

func TestFetchPageRateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).FetchPage(context.Background(), 200, "")
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Errorf("kind = %v, want Upstream (err: %v)", apperr.KindOf(err), err)
	}
}

func TestFetchPageCursorParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") != "abc123" {
			t.Errorf("cursor = %s, want abc123", r.URL.Query().Get("cursor"))
		}
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv.URL).FetchPage(context.Background(), 50, "abc123"); err != nil {
		t.Fatalf("FetchPage() error: %v", err)
	}
}

func TestRefresher(t *testing.T) {
	dir := t.TempDir()
	credsPath := filepath.Join(dir, "credentials.json")
	nextPath := filepath.Join(dir, "next.json")

	store := config.NewCredentialStore(credsPath, nil)
	if err := store.Save(config.FeedCredentials{BearerToken: "token-a"}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(nextPath, []byte(`{"bearer_token":"token-b"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewRefresher(&config.FeedConfig{
		RefreshCommand: "cp " + nextPath + " " + credsPath,
		RefreshTimeout: 10 * time.Second,
	}, store)

	if !r.Due(12 * time.Hour) {
		t.Error("never-run refresher should be due")
	}
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if got := store.Current().BearerToken; got != "token-b" {
		t.Errorf("token after refresh = %q, want token-b", got)
	}
	if r.Due(12 * time.Hour) {
		t.Error("freshly-run refresher should not be due")
	}
	if r.LastRefresh().IsZero() {
		t.Error("LastRefresh not recorded")
	}
}

func TestRefresherCommandFailure(t *testing.T) {
	store := config.NewCredentialStore(filepath.Join(t.TempDir(), "credentials.json"), nil)
	r := NewRefresher(&config.FeedConfig{
		RefreshCommand: "false",
		RefreshTimeout: 10 * time.Second,
	}, store)

	err := r.Refresh(context.Background())
	if apperr.KindOf(err) != apperr.KindCredentials {
		t.Errorf("kind = %v, want Credentials (err: %v)", apperr.KindOf(err), err)
	}
}

func TestRefresherNoCommand(t *testing.T) {
	store := config.NewCredentialStore(filepath.Join(t.TempDir(), "credentials.json"), nil)
	r := NewRefresher(&config.FeedConfig{}, store)
	if err := r.Refresh(context.Background()); err != nil {
		t.Errorf("no-op refresh error: %v", err)
	}
	if !r.LastRefresh().IsZero() {
		t.Error("no-op refresh should not count as a refresh")
	}
}
