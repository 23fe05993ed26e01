package app_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"review_pulse/internal/app"
	"review_pulse/internal/domain"
)

// ---- fixtures ----

// scenario is the five-review example: brands A,A,B,B,A; ratings 5,1,4,2,5;
// speed 1,0,1,0,1.
func scenarioTable() domain.RawTable {
	brands := []string{"A", "A", "B", "B", "A"}
	ratings := []any{5, 1, 4, 2, 5}
	speed := []any{1, 0, 1, 0, 1}
	dates := []string{"2024-01-05", "2024-01-20", "2024-02-03", "2024-02-10", "2024-02-28"}

	t := domain.RawTable{Columns: []string{"review_id", "brand_name", "rating", "date", "speed"}}
	for i := range brands {
		t.Rows = append(t.Rows, domain.RawRow{
			"review_id":  fmt.Sprintf("r%d", i+1),
			"brand_name": brands[i],
			"rating":     ratings[i],
			"date":       dates[i],
			"speed":      speed[i],
		})
	}
	return t
}

func loadRecords(t domain.RawTable) ([]domain.ReviewRecord, domain.ThemeSchema) {
	fields, err := app.ResolveFields(t.Columns)
	if err != nil {
		panic(err)
	}
	schema := app.DetectThemes(t)
	n := app.Normalizer{Fields: fields, Themes: schema.StatColumns(), Loc: time.UTC, Policy: domain.DefaultPolicy()}
	var out []domain.ReviewRecord
	for _, r := range t.Rows {
		rec, err := n.Normalize(r)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, schema
}

func ptr[T any](v T) *T { return &v }

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

// ---- fakes ----

type fakeSource struct {
	table domain.RawTable
	err   error
	calls int32
	delay time.Duration
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context) (domain.RawTable, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.RawTable{}, ctx.Err()
		}
	}
	return f.table, f.err
}

type fakeCache struct {
	mu    sync.Mutex
	store map[string]any
	dels  []string
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	switch d := dst.(type) {
	case *domain.Dataset:
		*d = *(v.(*domain.Dataset))
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	c.dels = append(c.dels, key)
	return nil
}
