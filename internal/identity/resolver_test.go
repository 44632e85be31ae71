package identity

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hitoshi/metachan/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// mockMappingRepo はMappingRepositoryのモック。
type mockMappingRepo struct {
	findByMalIDFn  func(ctx context.Context, malID int) (*model.IdentityMapping, error)
	findByTVDBIDFn func(ctx context.Context, tvdbID int) ([]*model.IdentityMapping, error)
}

func (m *mockMappingRepo) FindByMalID(ctx context.Context, malID int) (*model.IdentityMapping, error) {
	return m.findByMalIDFn(ctx, malID)
}

func (m *mockMappingRepo) FindByTVDBID(ctx context.Context, tvdbID int) ([]*model.IdentityMapping, error) {
	return m.findByTVDBIDFn(ctx, tvdbID)
}

func (m *mockMappingRepo) UpsertBatch(context.Context, []*model.IdentityMapping) (int, error) {
	return 0, nil
}

func (m *mockMappingRepo) Search(context.Context, model.MappingFilter) ([]*model.IdentityMapping, error) {
	return nil, nil
}

func (m *mockMappingRepo) Count(context.Context) (int, error) {
	return 0, nil
}

func TestResolve_Found(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockMappingRepo{
		findByMalIDFn: func(_ context.Context, malID int) (*model.IdentityMapping, error) {
			return &model.IdentityMapping{ProviderIDs: model.ProviderIDs{MalID: malID, KitsuID: 46474}}, nil
		},
	}
	r := NewResolver(repo, newTestLogger(&buf))

	m, err := r.Resolve(context.Background(), 52991)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if m.KitsuID != 46474 {
		t.Errorf("KitsuID = %d, want 46474", m.KitsuID)
	}
}

func TestResolve_MissingIsNotFound(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockMappingRepo{
		findByMalIDFn: func(context.Context, int) (*model.IdentityMapping, error) { return nil, nil },
	}
	r := NewResolver(repo, newTestLogger(&buf))

	_, err := r.Resolve(context.Background(), 1)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolve_InvalidID(t *testing.T) {
	var buf bytes.Buffer
	r := NewResolver(&mockMappingRepo{}, newTestLogger(&buf))

	_, err := r.Resolve(context.Background(), 0)
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestResolve_RepoErrorWrapped(t *testing.T) {
	var buf bytes.Buffer
	dbErr := errors.New("connection refused")
	repo := &mockMappingRepo{
		findByMalIDFn: func(context.Context, int) (*model.IdentityMapping, error) { return nil, dbErr },
	}
	r := NewResolver(repo, newTestLogger(&buf))

	_, err := r.Resolve(context.Background(), 1)
	if !errors.Is(err, dbErr) {
		t.Errorf("err = %v, want wrapped %v", err, dbErr)
	}
}

func TestSiblings_DeduplicatesAndSkipsZero(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockMappingRepo{
		findByTVDBIDFn: func(_ context.Context, tvdbID int) ([]*model.IdentityMapping, error) {
			if tvdbID != 424536 {
				t.Errorf("tvdbID = %d, want 424536", tvdbID)
			}
			return []*model.IdentityMapping{
				{ProviderIDs: model.ProviderIDs{MalID: 52991}},
				{ProviderIDs: model.ProviderIDs{MalID: 52991}},
				{ProviderIDs: model.ProviderIDs{MalID: 0}},
				{ProviderIDs: model.ProviderIDs{MalID: 59978}},
			}, nil
		},
	}
	r := NewResolver(repo, newTestLogger(&buf))

	ids, err := r.Siblings(context.Background(), 424536)
	if err != nil {
		t.Fatalf("Siblings returned error: %v", err)
	}
	if len(ids) != 2 || ids[0] != 52991 || ids[1] != 59978 {
		t.Errorf("ids = %v, want [52991 59978]", ids)
	}
}

func TestSiblings_ZeroTVDBID(t *testing.T) {
	var buf bytes.Buffer
	r := NewResolver(&mockMappingRepo{}, newTestLogger(&buf))

	ids, err := r.Siblings(context.Background(), 0)
	if err != nil || len(ids) != 0 {
		t.Errorf("ids = %v, err = %v, want empty", ids, err)
	}
}
