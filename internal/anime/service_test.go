package anime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/hitoshi/metachan/internal/cache"
	"github.com/hitoshi/metachan/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// memCache はJSONで保存するインメモリのRecordCache。
type memCache struct {
	docs map[model.CacheKey][]byte
	ttls map[model.CacheKey]int
	err  error
}

func newMemCache() *memCache {
	return &memCache{docs: map[model.CacheKey][]byte{}, ttls: map[model.CacheKey]int{}}
}

func (c *memCache) Get(_ context.Context, key model.CacheKey, out any) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	raw, ok := c.docs[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, out)
}

func (c *memCache) Put(_ context.Context, key model.CacheKey, payload any, ttlDays int) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.docs[key] = raw
	c.ttls[key] = ttlDays
	return nil
}

type mockResolver struct {
	resolveFn func(ctx context.Context, malID int) (*model.IdentityMapping, error)
}

func (m *mockResolver) Resolve(ctx context.Context, malID int) (*model.IdentityMapping, error) {
	return m.resolveFn(ctx, malID)
}

type mockBuilder struct {
	calls   int
	buildFn func(ctx context.Context, mapping *model.IdentityMapping) (*model.AnimeRecord, error)
}

func (m *mockBuilder) Build(ctx context.Context, mapping *model.IdentityMapping) (*model.AnimeRecord, error) {
	m.calls++
	return m.buildFn(ctx, mapping)
}

type mockStreams struct {
	calls    int
	gotTitle string
	linksFn  func(episode int) (*model.StreamLinks, error)
}

func (m *mockStreams) GetEpisodeLinks(_ context.Context, title string, episode int) (*model.StreamLinks, error) {
	m.calls++
	m.gotTitle = title
	return m.linksFn(episode)
}

type mockSearcher struct {
	searchFn func(ctx context.Context, params model.SearchParams) (*model.SearchResult, error)
}

func (m *mockSearcher) Search(ctx context.Context, params model.SearchParams) (*model.SearchResult, error) {
	return m.searchFn(ctx, params)
}

func foundResolver() *mockResolver {
	return &mockResolver{resolveFn: func(_ context.Context, malID int) (*model.IdentityMapping, error) {
		return &model.IdentityMapping{ProviderIDs: model.ProviderIDs{MalID: malID, KitsuID: 1}}, nil
	}}
}

func recordBuilder(status string) *mockBuilder {
	return &mockBuilder{buildFn: func(_ context.Context, m *model.IdentityMapping) (*model.AnimeRecord, error) {
		return &model.AnimeRecord{
			ID:     m.MalID,
			Titles: model.Titles{Romaji: "Sousou no Frieren", English: "Frieren"},
			Status: status,
			Episodes: model.EpisodeList{
				Episodes: []model.EpisodeRecord{{ID: 1, Number: 1}},
			},
		}, nil
	}}
}

func TestGetFullRecord_MissBuildsAndCaches(t *testing.T) {
	var buf bytes.Buffer
	c := newMemCache()
	builder := recordBuilder(model.StatusFinishedAiring)
	s := NewService(c, foundResolver(), builder, nil, nil, newTestLogger(&buf))

	record, err := s.GetFullRecord(context.Background(), 52991)
	if err != nil {
		t.Fatalf("GetFullRecord returned error: %v", err)
	}
	if record.ID != 52991 {
		t.Errorf("ID = %d, want 52991", record.ID)
	}
	if got := c.ttls[cache.RecordKey(52991)]; got != cache.FinishedRecordTTLDays {
		t.Errorf("ttl = %d, want %d", got, cache.FinishedRecordTTLDays)
	}

	// 2回目はキャッシュから返る
	if _, err := s.GetFullRecord(context.Background(), 52991); err != nil {
		t.Fatalf("second GetFullRecord returned error: %v", err)
	}
	if builder.calls != 1 {
		t.Errorf("build calls = %d, want 1", builder.calls)
	}
}

func TestGetFullRecord_AiringUsesShortTTL(t *testing.T) {
	var buf bytes.Buffer
	c := newMemCache()
	s := NewService(c, foundResolver(), recordBuilder(model.StatusCurrentlyAiring), nil, nil, newTestLogger(&buf))

	if _, err := s.GetFullRecord(context.Background(), 1); err != nil {
		t.Fatalf("GetFullRecord returned error: %v", err)
	}
	if got := c.ttls[cache.RecordKey(1)]; got != cache.AiringRecordTTLDays {
		t.Errorf("ttl = %d, want %d", got, cache.AiringRecordTTLDays)
	}
}

func TestGetFullRecord_NoMappingIsNotFound(t *testing.T) {
	var buf bytes.Buffer
	resolver := &mockResolver{resolveFn: func(context.Context, int) (*model.IdentityMapping, error) {
		return nil, model.ErrNotFound
	}}
	builder := recordBuilder(model.StatusFinishedAiring)
	s := NewService(newMemCache(), resolver, builder, nil, nil, newTestLogger(&buf))

	_, err := s.GetFullRecord(context.Background(), 1)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if builder.calls != 0 {
		t.Errorf("build calls = %d, want 0", builder.calls)
	}
}

func TestGetFullRecord_CacheFailureFallsThrough(t *testing.T) {
	var buf bytes.Buffer
	c := newMemCache()
	c.err = errors.New("db down")
	s := NewService(c, foundResolver(), recordBuilder(model.StatusFinishedAiring), nil, nil, newTestLogger(&buf))

	if _, err := s.GetFullRecord(context.Background(), 1); err != nil {
		t.Fatalf("GetFullRecord returned error: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("cache lookup failed")) {
		t.Error("cache failure should be logged")
	}
}

func TestGetFullRecord_InvalidID(t *testing.T) {
	var buf bytes.Buffer
	s := NewService(newMemCache(), foundResolver(), recordBuilder(""), nil, nil, newTestLogger(&buf))

	_, err := s.GetFullRecord(context.Background(), -1)
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestGetEpisodes(t *testing.T) {
	var buf bytes.Buffer
	s := NewService(newMemCache(), foundResolver(), recordBuilder(""), nil, nil, newTestLogger(&buf))

	list, err := s.GetEpisodes(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetEpisodes returned error: %v", err)
	}
	if len(list.Episodes) != 1 {
		t.Errorf("len(episodes) = %d, want 1", len(list.Episodes))
	}
}

func TestGetEpisodeStreamLinks_CachesNonEmpty(t *testing.T) {
	var buf bytes.Buffer
	c := newMemCache()
	streams := &mockStreams{linksFn: func(int) (*model.StreamLinks, error) {
		return &model.StreamLinks{Sub: []model.StreamLink{{URL: "https://cdn.example/a.m3u8", Server: "Eren"}}}, nil
	}}
	s := NewService(c, foundResolver(), recordBuilder(""), streams, nil, newTestLogger(&buf))

	links, err := s.GetEpisodeStreamLinks(context.Background(), 52991, 3)
	if err != nil {
		t.Fatalf("GetEpisodeStreamLinks returned error: %v", err)
	}
	if len(links.Sub) != 1 {
		t.Errorf("sub = %+v", links.Sub)
	}
	if streams.gotTitle != "Sousou no Frieren" {
		t.Errorf("title = %q, want romaji title", streams.gotTitle)
	}
	if got := c.ttls[cache.StreamKey(52991, 3)]; got != cache.StreamTTLDays {
		t.Errorf("ttl = %d, want %d", got, cache.StreamTTLDays)
	}

	if _, err := s.GetEpisodeStreamLinks(context.Background(), 52991, 3); err != nil {
		t.Fatalf("second call returned error: %v", err)
	}
	if streams.calls != 1 {
		t.Errorf("stream calls = %d, want 1", streams.calls)
	}
}

func TestGetEpisodeStreamLinks_EmptyIsNotCached(t *testing.T) {
	var buf bytes.Buffer
	c := newMemCache()
	streams := &mockStreams{linksFn: func(int) (*model.StreamLinks, error) {
		return &model.StreamLinks{}, nil
	}}
	s := NewService(c, foundResolver(), recordBuilder(""), streams, nil, newTestLogger(&buf))

	if _, err := s.GetEpisodeStreamLinks(context.Background(), 1, 1); err != nil {
		t.Fatalf("GetEpisodeStreamLinks returned error: %v", err)
	}
	if _, ok := c.docs[cache.StreamKey(1, 1)]; ok {
		t.Error("empty links should not be cached")
	}
}

func TestGetEpisodeStreamLinks_UpstreamFailureReturnsEmpty(t *testing.T) {
	var buf bytes.Buffer
	c := newMemCache()
	streams := &mockStreams{linksFn: func(int) (*model.StreamLinks, error) {
		return nil, fmt.Errorf("search: %w", model.ErrUpstreamUnavailable)
	}}
	s := NewService(c, foundResolver(), recordBuilder(""), streams, nil, newTestLogger(&buf))

	links, err := s.GetEpisodeStreamLinks(context.Background(), 52991, 3)
	if err != nil {
		t.Fatalf("GetEpisodeStreamLinks returned error: %v", err)
	}
	if links.Sub == nil || links.Dub == nil || !links.IsEmpty() {
		t.Errorf("links = %+v, want empty sub and dub", links)
	}
	if _, ok := c.docs[cache.StreamKey(52991, 3)]; ok {
		t.Error("failed lookup should not be cached")
	}
	if !strings.Contains(buf.String(), `"level":"WARN"`) || !strings.Contains(buf.String(), "stream links unavailable") {
		t.Errorf("upstream failure should be logged at WARN: %s", buf.String())
	}
}

func TestGetEpisodeStreamLinks_InvalidEpisode(t *testing.T) {
	var buf bytes.Buffer
	s := NewService(newMemCache(), foundResolver(), recordBuilder(""), nil, nil, newTestLogger(&buf))

	_, err := s.GetEpisodeStreamLinks(context.Background(), 1, 0)
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestSearchRecords_Delegates(t *testing.T) {
	var buf bytes.Buffer
	searcher := &mockSearcher{searchFn: func(_ context.Context, p model.SearchParams) (*model.SearchResult, error) {
		if p.Query != "frieren" {
			t.Errorf("query = %q, want frieren", p.Query)
		}
		return &model.SearchResult{Results: []model.SearchEntry{{MalID: 52991}}}, nil
	}}
	s := NewService(newMemCache(), foundResolver(), recordBuilder(""), nil, searcher, newTestLogger(&buf))

	result, err := s.SearchRecords(context.Background(), model.SearchParams{Query: "frieren"})
	if err != nil {
		t.Fatalf("SearchRecords returned error: %v", err)
	}
	if len(result.Results) != 1 {
		t.Errorf("results = %+v", result.Results)
	}
}
