package jikan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/metachan/internal/fetch"
	"github.com/hitoshi/metachan/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	f := fetch.NewClient(server.Client(), logger, nil, fetch.Config{
		Provider:     "jikan",
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
	})
	c := NewClient(f, logger)
	c.baseURL = server.URL
	return c, server
}

func TestGetFull_DecodesAnime(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/anime/5114/full" {
			t.Errorf("path = %q, want /anime/5114/full", r.URL.Path)
		}
		w.Write([]byte(`{"data":{
			"mal_id":5114,"title":"Hagane no Renkinjutsushi: Fullmetal Alchemist",
			"title_english":"Fullmetal Alchemist: Brotherhood","type":"TV","episodes":64,
			"status":"Finished Airing","aired":{"from":"2009-04-05T00:00:00+00:00","to":null},
			"score":9.1,"genres":[{"mal_id":1,"name":"Action"}],
			"explicit_genres":[],"streaming":[{"name":"Crunchyroll","url":"https://www.crunchyroll.com/series/GRGGPG93R"}]
		}}`))
	})

	anime, err := c.GetFull(context.Background(), 5114)
	if err != nil {
		t.Fatalf("GetFull returned error: %v", err)
	}
	if anime.Episodes != 64 {
		t.Errorf("Episodes = %d, want 64", anime.Episodes)
	}
	if !anime.IsFinished() {
		t.Error("IsFinished = false, want true")
	}
	if anime.Aired.To != "" {
		t.Errorf("Aired.To = %q, want empty for null", anime.Aired.To)
	}
	if len(anime.Streaming) != 1 || anime.Streaming[0].Name != "Crunchyroll" {
		t.Errorf("Streaming = %+v, want one Crunchyroll link", anime.Streaming)
	}
}

func TestGetFull_NotFound(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"404", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) }},
		{"dataなし", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"data":null}`)) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.handler)
			_, err := c.GetFull(context.Background(), 1)
			if !errors.Is(err, model.ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestGetFull_ServerErrorIsUnavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.GetFull(context.Background(), 1)
	if !errors.Is(err, model.ErrUpstreamUnavailable) {
		t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

// TestGetEpisodes_FollowsPagination はhas_next_pageがfalseになるまで全ページを連結することを検証する。
func TestGetEpisodes_FollowsPagination(t *testing.T) {
	var pages []int
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pages = append(pages, page)
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Errorf("limit = %q, want 100", got)
		}
		hasNext := page < 3
		fmt.Fprintf(w, `{"data":[{"mal_id":%d,"title":"Ep %d"},{"mal_id":%d}],"pagination":{"has_next_page":%t}}`,
			page*2-1, page*2-1, page*2, hasNext)
	})

	episodes, err := c.GetEpisodes(context.Background(), 21)
	if err != nil {
		t.Fatalf("GetEpisodes returned error: %v", err)
	}
	if len(episodes) != 6 {
		t.Fatalf("len(episodes) = %d, want 6", len(episodes))
	}
	for i, ep := range episodes {
		if ep.MalID != i+1 {
			t.Errorf("episodes[%d].MalID = %d, want %d", i, ep.MalID, i+1)
		}
	}
	if len(pages) != 3 || pages[0] != 1 || pages[2] != 3 {
		t.Errorf("requested pages = %v, want [1 2 3]", pages)
	}
}

func TestGetEpisodes_NotFoundIsEmpty(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	episodes, err := c.GetEpisodes(context.Background(), 21)
	if err != nil {
		t.Fatalf("GetEpisodes returned error: %v", err)
	}
	if len(episodes) != 0 {
		t.Errorf("len(episodes) = %d, want 0", len(episodes))
	}
}

func TestGetCharacters_ToModel(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{
			"character":{"mal_id":11,"name":"Elric, Edward","images":{"jpg":{"image_url":"https://cdn.example/ed.jpg"}}},
			"role":"Main",
			"voice_actors":[{"person":{"name":"Park, Romi","images":{"jpg":{"image_url":"https://cdn.example/park.jpg"}}},"language":"Japanese"}]
		}]}`))
	})

	chars, err := c.GetCharacters(context.Background(), 5114)
	if err != nil {
		t.Fatalf("GetCharacters returned error: %v", err)
	}
	if len(chars) != 1 {
		t.Fatalf("len(chars) = %d, want 1", len(chars))
	}

	got := chars[0].ToModel()
	if got.Name != "Elric, Edward" || got.Role != "Main" {
		t.Errorf("character = %+v", got)
	}
	if len(got.VoiceActors) != 1 || got.VoiceActors[0].Language != "Japanese" {
		t.Errorf("voice actors = %+v", got.VoiceActors)
	}
}

func TestSearch_PassesParameters(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		want := map[string]string{"q": "frieren", "page": "2", "limit": "10", "type": "tv", "order_by": "score", "sort": "desc", "sfw": "true"}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("query %s = %q, want %q", k, got, v)
			}
		}
		w.Write([]byte(`{"data":[{"mal_id":52991,"title":"Sousou no Frieren","type":"TV","score":9.3}],
			"pagination":{"last_visible_page":4,"has_next_page":true,"current_page":2,"items":{"count":1,"total":31,"per_page":10}}}`))
	})

	result, err := c.Search(context.Background(), model.SearchParams{
		Query: "frieren", Page: 2, Limit: 10, Type: "tv", OrderBy: "score", Sort: "desc", SFW: true,
	})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(result.Results) != 1 || result.Results[0].MalID != 52991 {
		t.Errorf("results = %+v", result.Results)
	}
	if result.Pagination.TotalResults != 31 || !result.Pagination.HasNextPage {
		t.Errorf("pagination = %+v", result.Pagination)
	}
}

func TestSearch_RejectsInvalidLimit(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})

	_, err := c.Search(context.Background(), model.SearchParams{Query: "x", Limit: 100})
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestSeasonSummary(t *testing.T) {
	a := &Anime{MalID: 9, Title: "Romaji", TitleEnglish: "English", Type: "Movie", Aired: Aired{From: "2011-04-23T00:00:00+00:00"}}
	a.Images.JPG.LargeImageURL = "https://cdn.example/l.jpg"

	got := a.SeasonSummary(true)
	if !got.Current || got.MalID != 9 || got.AiredFrom != a.Aired.From || got.Image != "https://cdn.example/l.jpg" {
		t.Errorf("SeasonSummary = %+v", got)
	}
}
