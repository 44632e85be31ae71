package tvdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/metachan/internal/fetch"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	f := fetch.NewClient(server.Client(), logger, nil, fetch.Config{Provider: "tvdb", MaxAttempts: 1, InitialDelay: time.Millisecond})
	c := NewClient(f, logger, "test-key", NewTokenCache())
	c.baseURL = server.URL
	return c
}

// fakeTVDB はログインとBearer検証を行うテスト用サーバー。
type fakeTVDB struct {
	logins   atomic.Int32
	validTok atomic.Value
	mux      *http.ServeMux
}

func newFakeTVDB(t *testing.T) *fakeTVDB {
	f := &fakeTVDB{mux: http.NewServeMux()}
	f.validTok.Store("")
	f.mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["apikey"] != "test-key" {
			t.Errorf("login body = %v (err %v), want apikey test-key", body, err)
		}
		n := f.logins.Add(1)
		token := fmt.Sprintf("token-%d", n)
		f.validTok.Store(token)
		fmt.Fprintf(w, `{"data":{"token":%q}}`, token)
	})
	return f
}

func (f *fakeTVDB) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.validTok.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func TestGetSeries_LogsInOnceAndReusesToken(t *testing.T) {
	f := newFakeTVDB(t)
	f.mux.HandleFunc("/series/81797/extended", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":81797,"name":"One Piece","seasons":[{"id":1,"number":1,"type":{"type":"official"}}]}}`))
	}))
	c := newTestClient(t, f.mux)

	for i := 0; i < 2; i++ {
		series, err := c.GetSeries(context.Background(), 81797)
		if err != nil {
			t.Fatalf("GetSeries returned error: %v", err)
		}
		if !series.HasSeasons() {
			t.Error("HasSeasons = false, want true")
		}
	}

	if got := f.logins.Load(); got != 1 {
		t.Errorf("logins = %d, want 1", got)
	}
}

// TestGetSeries_ReauthenticatesOn401 はトークンが拒否された場合に再ログインして1回だけ再試行することを検証する。
func TestGetSeries_ReauthenticatesOn401(t *testing.T) {
	f := newFakeTVDB(t)
	f.mux.HandleFunc("/series/1/extended", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":1,"name":"x"}}`))
	}))
	c := newTestClient(t, f.mux)
	c.tokens.Set("stale-token", time.Now().Add(time.Hour))

	if _, err := c.GetSeries(context.Background(), 1); err != nil {
		t.Fatalf("GetSeries returned error: %v", err)
	}
	if got := f.logins.Load(); got != 1 {
		t.Errorf("logins = %d, want 1", got)
	}
	if tok, _ := c.tokens.Get(); tok != "token-1" {
		t.Errorf("cached token = %q, want token-1", tok)
	}
}

func TestGetSeries_PersistentUnauthorizedFails(t *testing.T) {
	f := newFakeTVDB(t)
	var calls atomic.Int32
	f.mux.HandleFunc("/series/1/extended", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	c := newTestClient(t, f.mux)

	if _, err := c.GetSeries(context.Background(), 1); err == nil {
		t.Fatal("expected error for persistent 401")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("series calls = %d, want 2 (original + one retry)", got)
	}
}

func TestGetEpisodes_PaginatesAndTranslates(t *testing.T) {
	f := newFakeTVDB(t)
	f.mux.HandleFunc("/series/5/episodes/official", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "0":
			w.Write([]byte(`{"data":{"episodes":[{"id":101,"seasonNumber":1,"number":1,"runtime":24,"overview":"raw one"}]},"links":{"next":"page=1"}}`))
		case "1":
			w.Write([]byte(`{"data":{"episodes":[{"id":102,"seasonNumber":1,"number":2,"overview":"raw two"}]},"links":{"next":null}}`))
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	f.mux.HandleFunc("/episodes/", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/101/translations/eng"):
			w.Write([]byte(`{"data":{"overview":"English one"}}`))
		case strings.HasSuffix(r.URL.Path, "/101/translations/jpn"):
			w.Write([]byte(`{"data":{"overview":"日本語その1"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	c := newTestClient(t, f.mux)

	episodes, err := c.GetEpisodes(context.Background(), 5, 1)
	if err != nil {
		t.Fatalf("GetEpisodes returned error: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("len(episodes) = %d, want 2", len(episodes))
	}
	if episodes[0].EnglishOverview != "English one" || episodes[0].JapaneseOverview != "日本語その1" {
		t.Errorf("episode 101 translations = %q / %q", episodes[0].EnglishOverview, episodes[0].JapaneseOverview)
	}
	if episodes[0].Runtime == nil || *episodes[0].Runtime != 24 {
		t.Errorf("episode 101 runtime = %v, want 24", episodes[0].Runtime)
	}
	if episodes[1].EnglishOverview != "" {
		t.Errorf("episode 102 English = %q, want empty when translation missing", episodes[1].EnglishOverview)
	}
}

func TestGetEpisodes_TranslatesRequestedSeasonOnly(t *testing.T) {
	f := newFakeTVDB(t)
	f.mux.HandleFunc("/series/7/episodes/official", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"episodes":[
			{"id":201,"seasonNumber":1,"number":1},
			{"id":202,"seasonNumber":1,"number":2},
			{"id":301,"seasonNumber":2,"number":1},
			{"id":302,"seasonNumber":2,"number":2},
			{"id":401,"seasonNumber":3,"number":1},
			{"id":402,"seasonNumber":3,"number":2}
		]},"links":{"next":null}}`))
	}))
	var translations atomic.Int32
	f.mux.HandleFunc("/episodes/", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		translations.Add(1)
		if !strings.Contains(r.URL.Path, "/20") {
			t.Errorf("translation requested for %s, want season 1 only", r.URL.Path)
		}
		w.Write([]byte(`{"data":{"overview":"text"}}`))
	}))
	c := newTestClient(t, f.mux)

	episodes, err := c.GetEpisodes(context.Background(), 7, 1)
	if err != nil {
		t.Fatalf("GetEpisodes returned error: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("len(episodes) = %d, want 2", len(episodes))
	}
	for _, ep := range episodes {
		if ep.SeasonNumber != 1 {
			t.Errorf("episode %d season = %d, want 1", ep.ID, ep.SeasonNumber)
		}
	}
	if got := translations.Load(); got != 4 {
		t.Errorf("translation requests = %d, want 4", got)
	}
}

func TestEnabled(t *testing.T) {
	if NewClient(nil, nil, "", nil).Enabled() {
		t.Error("Enabled = true, want false without API key")
	}
	if !NewClient(nil, nil, "k", nil).Enabled() {
		t.Error("Enabled = false, want true with API key")
	}
}

func TestTokenCache_Expiry(t *testing.T) {
	c := NewTokenCache()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if _, ok := c.Get(); ok {
		t.Error("empty cache should miss")
	}

	c.Set("abc", now.Add(time.Hour))
	if tok, ok := c.Get(); !ok || tok != "abc" {
		t.Errorf("Get = (%q, %v), want (abc, true)", tok, ok)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(); ok {
		t.Error("expired token should miss")
	}

	c.Set("def", now.Add(time.Hour))
	c.Invalidate()
	if _, ok := c.Get(); ok {
		t.Error("invalidated token should miss")
	}
}
