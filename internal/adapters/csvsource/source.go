// Package csvsource reads a review export from a CSV file on disk or in GCS.
package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"review_pulse/internal/domain"
)

type Source struct {
	path string
	opts []option.ClientOption
}

// New reads path on every Fetch. gs://bucket/object paths go through
// Cloud Storage with opts.
func New(path string, opts ...option.ClientOption) (*Source, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("csv path is required")
	}
	if strings.HasPrefix(path, "gs://") {
		if _, _, err := splitGCS(path); err != nil {
			return nil, err
		}
	}
	return &Source{path: path, opts: opts}, nil
}

func (s *Source) Name() string { return "csv" }

func (s *Source) Fetch(ctx context.Context) (domain.RawTable, error) {
	rc, err := s.open(ctx)
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnavailable, s.path, err)
	}
	defer rc.Close()

	t, err := Parse(rc)
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnavailable, s.path, err)
	}
	return t, nil
}

func (s *Source) open(ctx context.Context) (io.ReadCloser, error) {
	if !strings.HasPrefix(s.path, "gs://") {
		return os.Open(s.path)
	}
	bucket, object, err := splitGCS(s.path)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &gcsReader{Reader: r, client: client}, nil
}

// gcsReader closes the object reader and its client together.
type gcsReader struct {
	*storage.Reader
	client *storage.Client
}

func (g *gcsReader) Close() error {
	err := g.Reader.Close()
	if cerr := g.client.Close(); err == nil {
		err = cerr
	}
	return err
}

func splitGCS(p string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(p, "gs://")
	i := strings.Index(rest, "/")
	if i <= 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("invalid gcs path %q, want gs://bucket/object", p)
	}
	return rest[:i], rest[i+1:], nil
}

// Parse reads a header row followed by data rows. Cells stay strings; empty
// cells become nil. Malformed rows are skipped; a failing reader aborts the parse.
func Parse(r io.Reader) (domain.RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return domain.RawTable{}, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	cols := make([]string, len(headers))
	for i, h := range headers {
		cols[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	out := domain.RawTable{Columns: cols}
	skipped := 0
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return domain.RawTable{}, fmt.Errorf("read csv row: %w", err)
			}
			skipped++
			continue
		}
		if len(rec) != len(cols) {
			skipped++
			continue
		}
		row := make(domain.RawRow, len(cols))
		for i, val := range rec {
			val = strings.TrimSpace(val)
			if val == "" {
				row[cols[i]] = nil
				continue
			}
			row[cols[i]] = val
		}
		out.Rows = append(out.Rows, row)
	}
	if skipped > 0 {
		log.Warn().Int("rows", skipped).Msg("malformed csv rows skipped")
	}
	return out, nil
}
