package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review_pulse/internal/app"
	"review_pulse/internal/domain"
)

type fakeExport struct {
	pages map[int][]map[string]any
	err   error
	asked []int
}

func (f *fakeExport) ListReviews(ctx context.Context, brand string, page, limit int) ([]map[string]any, error) {
	f.asked = append(f.asked, page)
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[page], nil
}

type miss struct {
	brand  string
	status int
	reason string
}

type fakeStore struct {
	rows   []domain.StagedRow
	misses []miss
	err    error
}

func (s *fakeStore) UpsertRows(ctx context.Context, rows []domain.StagedRow) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *fakeStore) LogMiss(ctx context.Context, brand string, status int, reason string) error {
	s.misses = append(s.misses, miss{brand, status, reason})
	return nil
}

func reviewItems(n, from int) []map[string]any {
	out := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, map[string]any{
			"reviewId": fmt.Sprintf("rv-%d", from+i),
			"score":    4,
			"at":       "2024-05-01T10:00:00Z",
			"content":  "ok",
		})
	}
	return out
}

func TestIngestBrand_PagesUntilShortPage(t *testing.T) {
	exp := &fakeExport{pages: map[int][]map[string]any{
		1: reviewItems(3, 0),
		2: reviewItems(3, 3),
		3: reviewItems(1, 6),
	}}
	store := &fakeStore{}
	cache := &fakeCache{}
	svc := app.NewIngestionService(exp, store, cache, app.DatasetCacheKey("mysql"), 3)

	n, err := svc.IngestBrand(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, []int{1, 2, 3}, exp.asked)
	require.Len(t, store.rows, 7)

	first := store.rows[0]
	assert.Equal(t, "rv-0", first.ReviewID)
	assert.Equal(t, "Acme", first.Brand)
	require.NotNil(t, first.ReviewedAt)
	assert.Equal(t, 2024, first.ReviewedAt.Year())

	// the brand is backfilled into the raw payload
	var raw map[string]any
	require.NoError(t, json.Unmarshal(first.Raw, &raw))
	assert.Equal(t, "Acme", raw["brand"])

	assert.Equal(t, []string{app.DatasetCacheKey("mysql")}, cache.dels)
}

func TestIngestBrand_EmptyPageStops(t *testing.T) {
	exp := &fakeExport{pages: map[int][]map[string]any{1: reviewItems(2, 0)}}
	store := &fakeStore{}
	cache := &fakeCache{}
	svc := app.NewIngestionService(exp, store, cache, "k", 2)

	n, err := svc.IngestBrand(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1, 2}, exp.asked)
}

func TestIngestBrand_NothingNewKeepsCache(t *testing.T) {
	cache := &fakeCache{}
	svc := app.NewIngestionService(&fakeExport{}, &fakeStore{}, cache, "k", 10)

	n, err := svc.IngestBrand(context.Background(), "Acme")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, cache.dels)
}

func TestIngestBrand_MissesAreLogged(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("brand x: %w", domain.ErrNotFound), 404},
		{errors.New("export: 401 unauthorized"), 401},
		{errors.New("export: 403 forbidden"), 403},
	}
	for _, c := range cases {
		store := &fakeStore{}
		svc := app.NewIngestionService(&fakeExport{err: c.err}, store, nil, "", 10)

		n, err := svc.IngestBrand(context.Background(), "Acme")
		require.NoError(t, err)
		assert.Zero(t, n)
		require.Len(t, store.misses, 1)
		assert.Equal(t, c.status, store.misses[0].status)
		assert.Equal(t, "Acme", store.misses[0].brand)
	}
}

func TestIngestBrand_Errors(t *testing.T) {
	svc := app.NewIngestionService(&fakeExport{err: errors.New("export: status 500")}, &fakeStore{}, nil, "", 10)
	_, err := svc.IngestBrand(context.Background(), "Acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 1")

	exp := &fakeExport{pages: map[int][]map[string]any{1: reviewItems(1, 0)}}
	svc = app.NewIngestionService(exp, &fakeStore{err: errors.New("deadlock")}, nil, "", 10)
	_, err = svc.IngestBrand(context.Background(), "Acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert")
}

func TestIngestBrand_SyntheticIDs(t *testing.T) {
	item := func() map[string]any {
		return map[string]any{"score": 2, "at": "2024-05-01T10:00:00Z", "content": "slow app"}
	}
	exp := &fakeExport{pages: map[int][]map[string]any{1: {item(), item()}}}
	store := &fakeStore{}
	svc := app.NewIngestionService(exp, store, nil, "", 10)

	_, err := svc.IngestBrand(context.Background(), "Acme")
	require.NoError(t, err)
	require.Len(t, store.rows, 2)
	assert.Len(t, store.rows[0].ReviewID, 40)
	// identical reviews collapse onto one staged key
	assert.Equal(t, store.rows[0].ReviewID, store.rows[1].ReviewID)
}
