package youtube

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/titlepulse/titlepulse-api/internal/domain/account"
	"github.com/titlepulse/titlepulse-api/internal/domain/quota"
	"github.com/titlepulse/titlepulse-api/internal/pkg/metrics"
	"github.com/titlepulse/titlepulse-api/internal/pkg/tokencipher"
)

type accountStoreStub struct {
	acc *account.Account

	updatedToken  string
	updatedExpiry time.Time
	markedInvalid bool
}

func (s *accountStoreStub) GetByID(context.Context, uuid.UUID) (*account.Account, error) {
	if s.acc == nil {
		return nil, account.ErrAccountNotFound
	}
	return s.acc, nil
}

func (s *accountStoreStub) UpdateAccessToken(_ context.Context, _ uuid.UUID, encryptedToken string, expiry time.Time) error {
	s.updatedToken = encryptedToken
	s.updatedExpiry = expiry
	s.acc.AccessToken = sql.NullString{String: encryptedToken, Valid: true}
	s.acc.TokenExpiry = sql.NullTime{Time: expiry, Valid: true}
	return nil
}

func (s *accountStoreStub) MarkConnectionInvalid(context.Context, uuid.UUID) error {
	s.markedInvalid = true
	s.acc.ConnectionValid = false
	return nil
}

type ledgerStub struct {
	denied bool

	recorded []quota.Operation
}

func (l *ledgerStub) CheckQuota(_ context.Context, op quota.Operation) *quota.CheckResult {
	return &quota.CheckResult{Allowed: !l.denied, RemainingQuota: 500}
}

func (l *ledgerStub) RecordUsage(_ context.Context, op quota.Operation) error {
	l.recorded = append(l.recorded, op)
	return nil
}

func testCipher(t *testing.T) *tokencipher.Cipher {
	t.Helper()
	c, err := tokencipher.New("test-secret")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	return c
}

// freshAccount has a valid encrypted access token that is nowhere near expiry
func freshAccount(t *testing.T, cipher *tokencipher.Cipher) *account.Account {
	t.Helper()
	access, err := cipher.Encrypt("live-access-token")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	refresh, _ := cipher.Encrypt("long-lived-refresh-token")

	return &account.Account{
		ID:              uuid.New(),
		Email:           "creator@example.com",
		AccessToken:     sql.NullString{String: access, Valid: true},
		RefreshToken:    sql.NullString{String: refresh, Valid: true},
		TokenExpiry:     sql.NullTime{Time: time.Now().Add(time.Hour), Valid: true},
		ConnectionValid: true,
	}
}

func newTestClient(t *testing.T, apiURL, tokenURL string, store *accountStoreStub, ledger *ledgerStub) *Client {
	t.Helper()
	return NewClient(Config{
		APIBaseURL:   apiURL,
		TokenURL:     tokenURL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Timeout:      5 * time.Second,
	}, testCipher(t), store, ledger, metrics.New())
}

func TestGetVideoViewCount(t *testing.T) {
	cipher := testCipher(t)
	store := &accountStoreStub{acc: freshAccount(t, cipher)}
	ledger := &ledgerStub{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer live-access-token" {
			t.Errorf("unexpected auth header %q", got)
		}
		if r.URL.Path != "/videos" || r.URL.Query().Get("part") != "statistics" {
			t.Errorf("unexpected request %s %s", r.URL.Path, r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":"vid","statistics":{"viewCount":"12345"}}]}`))
	}))
	defer srv.Close()

	// store's cipher and client's must share the secret
	c := newTestClient(t, srv.URL, "http://unused", store, ledger)

	views, err := c.GetVideoViewCount(context.Background(), store.acc.ID, "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if views != 12345 {
		t.Fatalf("expected 12345 views, got %d", views)
	}
	if len(ledger.recorded) != 1 || ledger.recorded[0] != quota.OpVideosList {
		t.Fatalf("expected one videos.list charge, got %v", ledger.recorded)
	}
}

func TestGetVideoViewCountNotFound(t *testing.T) {
	cipher := testCipher(t)
	store := &accountStoreStub{acc: freshAccount(t, cipher)}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "http://unused", store, &ledgerStub{})

	_, err := c.GetVideoViewCount(context.Background(), store.acc.ID, "missing12345")
	if !errors.Is(err, ErrVideoNotFound) {
		t.Fatalf("expected ErrVideoNotFound, got %v", err)
	}
}

func TestUpdateVideoTitlePreservesSnippet(t *testing.T) {
	cipher := testCipher(t)
	store := &accountStoreStub{acc: freshAccount(t, cipher)}
	ledger := &ledgerStub{}

	var putBody struct {
		ID      string                 `json:"id"`
		Snippet map[string]interface{} `json:"snippet"`
	}
	puts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`{"items":[{"id":"vid","snippet":{
				"title":"Old title",
				"description":"Keep this description",
				"tags":["one","two"],
				"defaultLanguage":"en"
			}}]}`))
		case http.MethodPut:
			puts++
			if err := json.NewDecoder(r.Body).Decode(&putBody); err != nil {
				t.Errorf("decode put body: %v", err)
			}
			w.Write([]byte(`{}`))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "http://unused", store, ledger)

	if err := c.UpdateVideoTitle(context.Background(), store.acc.ID, "dQw4w9WgXcQ", "New title"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if puts != 1 {
		t.Fatalf("expected one PUT, got %d", puts)
	}
	if putBody.Snippet["title"] != "New title" {
		t.Fatalf("expected new title, got %v", putBody.Snippet["title"])
	}
	if putBody.Snippet["description"] != "Keep this description" {
		t.Fatal("expected description preserved in read-modify-write")
	}
	if putBody.Snippet["defaultLanguage"] != "en" {
		t.Fatal("expected unknown snippet fields round-tripped")
	}
	if putBody.Snippet["categoryId"] != "22" {
		t.Fatalf("expected default categoryId 22, got %v", putBody.Snippet["categoryId"])
	}
	if len(ledger.recorded) != 1 || ledger.recorded[0] != quota.OpVideosUpdate {
		t.Fatalf("expected a single videos.update charge, got %v", ledger.recorded)
	}
}

func TestQuotaDenialShortCircuits(t *testing.T) {
	cipher := testCipher(t)
	store := &accountStoreStub{acc: freshAccount(t, cipher)}

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls++
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "http://unused", store, &ledgerStub{denied: true})

	err := c.UpdateVideoTitle(context.Background(), store.acc.ID, "dQw4w9WgXcQ", "New title")
	if !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no API calls after quota denial, got %d", calls)
	}
}

func TestExpiredTokenIsRefreshed(t *testing.T) {
	cipher := testCipher(t)
	acc := freshAccount(t, cipher)
	acc.TokenExpiry = sql.NullTime{Time: time.Now().Add(time.Minute), Valid: true} // inside safety margin
	store := &accountStoreStub{acc: acc}

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "refresh_token" {
			t.Errorf("unexpected grant type %q", r.Form.Get("grant_type"))
		}
		if r.Form.Get("refresh_token") != "long-lived-refresh-token" {
			t.Errorf("refresh token not decrypted before exchange")
		}
		w.Write([]byte(`{"access_token":"fresh-access-token","expires_in":3600,"token_type":"Bearer"}`))
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer fresh-access-token" {
			t.Errorf("expected refreshed token in use, got %q", got)
		}
		w.Write([]byte(`{"items":[{"id":"vid","statistics":{"viewCount":"7"}}]}`))
	}))
	defer apiSrv.Close()

	c := newTestClient(t, apiSrv.URL, tokenSrv.URL, store, &ledgerStub{})

	if _, err := c.GetVideoViewCount(context.Background(), acc.ID, "dQw4w9WgXcQ"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if store.updatedToken == "" {
		t.Fatal("expected refreshed token persisted")
	}
	plain, err := cipher.Decrypt(store.updatedToken)
	if err != nil || plain != "fresh-access-token" {
		t.Fatalf("expected token stored encrypted, got decrypt=%q err=%v", plain, err)
	}
}

func TestRefreshFailureInvalidatesConnection(t *testing.T) {
	cipher := testCipher(t)
	acc := freshAccount(t, cipher)
	acc.TokenExpiry = sql.NullTime{} // force refresh
	store := &accountStoreStub{acc: acc}

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer tokenSrv.Close()

	c := newTestClient(t, "http://unused", tokenSrv.URL, store, &ledgerStub{})

	_, err := c.GetVideoViewCount(context.Background(), acc.ID, "dQw4w9WgXcQ")
	if !errors.Is(err, ErrReconnectRequired) {
		t.Fatalf("expected ErrReconnectRequired, got %v", err)
	}
	if !store.markedInvalid {
		t.Fatal("expected connection marked invalid after failed refresh")
	}
}

func TestDisconnectedAccount(t *testing.T) {
	cipher := testCipher(t)
	acc := freshAccount(t, cipher)
	acc.ConnectionValid = false
	store := &accountStoreStub{acc: acc}

	c := newTestClient(t, "http://unused", "http://unused", store, &ledgerStub{})

	_, err := c.GetVideoViewCount(context.Background(), acc.ID, "dQw4w9WgXcQ")
	if !errors.Is(err, ErrReconnectRequired) {
		t.Fatalf("expected ErrReconnectRequired, got %v", err)
	}
}

func TestGetChannelVideos(t *testing.T) {
	cipher := testCipher(t)
	store := &accountStoreStub{acc: freshAccount(t, cipher)}
	ledger := &ledgerStub{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" || r.URL.Query().Get("forMine") != "true" {
			t.Errorf("unexpected request %s %s", r.URL.Path, r.URL.RawQuery)
		}
		w.Write([]byte(`{"items":[
			{"id":{"videoId":"abc"},"snippet":{"title":"First","publishedAt":"2025-06-01T00:00:00Z",
				"thumbnails":{"medium":{"url":"https://i/m.jpg"},"default":{"url":"https://i/d.jpg"}}}},
			{"id":{"videoId":"def"},"snippet":{"title":"Second","publishedAt":"2025-05-01T00:00:00Z",
				"thumbnails":{"default":{"url":"https://i/d2.jpg"}}}}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, "http://unused", store, ledger)

	videos, err := c.GetChannelVideos(context.Background(), store.acc.ID, 10)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("expected 2 videos, got %d", len(videos))
	}
	if videos[0].Thumbnail != "https://i/m.jpg" {
		t.Fatalf("expected medium thumbnail preferred, got %q", videos[0].Thumbnail)
	}
	if videos[1].Thumbnail != "https://i/d2.jpg" {
		t.Fatalf("expected default thumbnail fallback, got %q", videos[1].Thumbnail)
	}
	if len(ledger.recorded) != 1 || ledger.recorded[0] != quota.OpSearchList {
		t.Fatalf("expected one search.list charge, got %v", ledger.recorded)
	}
}
