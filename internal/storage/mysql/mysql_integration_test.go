//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review_pulse/internal/domain"
	mysqlrepo "review_pulse/internal/storage/mysql"
)

func migrationsDir() string {
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		return v
	}
	return filepath.Join("..", "..", "..", "migrations")
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir()

	ents, err := os.ReadDir(dir)
	require.NoError(t, err, "read migrations dir %s", dir)
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	require.NotEmpty(t, files, "no .sql files in %s", dir)
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		require.NoError(t, err)
		_, err = db.Exec(string(sqlBytes))
		require.NoError(t, err, "exec %s", f)
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("dockertest: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker not reachable: %v", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=reviews",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "run mysql")
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/reviews?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		resource.GetPort("3306/tcp"))

	var db *sql.DB
	require.NoError(t, pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}), "connect mysql")
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

func TestRepo_MySQL_UpsertAndFetch(t *testing.T) {
	db := startMySQL(t)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := []domain.StagedRow{
		{ReviewID: "r1", Brand: "Acme", ReviewedAt: &ts, Raw: []byte(`{"review_id":"r1","brand_name":"Acme","rating":5,"date":"2024-03-01T10:00:00Z","speed":1}`)},
		{ReviewID: "r2", Brand: "Acme", ReviewedAt: nil, Raw: []byte(`{"review_id":"r2","brand_name":"Acme","rating":2,"date":"bad","speed":0}`)},
	}
	require.NoError(t, repo.UpsertRows(ctx, rows))

	// re-upsert with a changed payload: same primary key, no duplicate
	rows[0].Raw = []byte(`{"review_id":"r1","brand_name":"Acme","rating":4,"date":"2024-03-01T10:00:00Z","speed":1}`)
	require.NoError(t, repo.UpsertRows(ctx, rows[:1]))
	require.NoError(t, repo.LogMiss(ctx, "Ghost", 404, "not found"))
	require.NoError(t, repo.LogMiss(ctx, "Ghost", 404, "not found"))

	table, err := repo.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)

	byID := map[string]domain.RawRow{}
	for _, r := range table.Rows {
		byID[fmt.Sprint(r["review_id"])] = r
	}
	assert.Equal(t, "4", fmt.Sprint(byID["r1"]["rating"]))
	assert.Equal(t, "Acme", byID["r2"]["brand_name"])

	var misses int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM ingest_misses`).Scan(&misses))
	assert.Equal(t, 1, misses)
}
