// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"review_pulse/internal/app"
	"review_pulse/internal/domain"
)

type Handlers struct{ Q *app.QueryService }

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/schema", h.schema)
		r.Get("/filters", h.filters)
		r.Get("/themes/impact", h.themeImpact)
		r.Get("/themes/nets", h.netImpact)
		r.Get("/themes/split", h.split)
		r.Get("/themes/matrix", h.matrix)
		r.Get("/overview", h.overview)
		r.Get("/trend", h.trend)
		r.Get("/brands", h.brands)
		r.Get("/products", h.products)
		r.Get("/risk", h.risk)
		r.Get("/reviews", h.reviews)
		r.Post("/dataset/refresh", h.refresh)
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps load failures onto problem responses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSchemaMismatch):
		writeProblem(w, http.StatusInternalServerError, "Configuration Error", err.Error())
	case errors.Is(err, domain.ErrSourceUnavailable):
		writeProblem(w, http.StatusServiceUnavailable, "Source Unavailable", "review data could not be loaded")
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		log.Error().Err(err).Msg("unhandled query error")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "response encoding failed")
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

/********** query parsing **********/

type badParam struct{ name, detail string }

func (e *badParam) Error() string { return e.name + ": " + e.detail }

func parseDate(q url.Values, name string) (*time.Time, error) {
	s := strings.TrimSpace(q.Get(name))
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return nil, &badParam{name, "must be a date in YYYY-MM-DD form"}
	}
	return &t, nil
}

// listParam accepts both repeated keys and comma separated values.
func listParam(q url.Values, name string) []string {
	var out []string
	for _, v := range q[name] {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// parseFilters reads from, to, brand, rating and product.
func parseFilters(q url.Values) (domain.FilterSpec, error) {
	var f domain.FilterSpec
	var err error
	if f.From, err = parseDate(q, "from"); err != nil {
		return f, err
	}
	if f.To, err = parseDate(q, "to"); err != nil {
		return f, err
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, &badParam{"to", "must not be before from"}
	}
	f.Brands = listParam(q, "brand")
	f.Products = listParam(q, "product")
	for _, s := range listParam(q, "rating") {
		n, err := strconv.Atoi(s)
		if err != nil || n < domain.MinRating || n > domain.MaxRating {
			return f, &badParam{"rating", fmt.Sprintf("must be an integer between %d and %d", domain.MinRating, domain.MaxRating)}
		}
		f.Ratings = append(f.Ratings, n)
	}
	return f, nil
}

func intParam(q url.Values, name string, def, min, max int) (int, error) {
	s := strings.TrimSpace(q.Get(name))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, &badParam{name, fmt.Sprintf("must be an integer between %d and %d", min, max)}
	}
	return n, nil
}

func granularityParam(q url.Values, def domain.Granularity) (domain.Granularity, error) {
	s := strings.ToLower(strings.TrimSpace(q.Get("granularity")))
	if s == "" {
		return def, nil
	}
	g, ok := domain.ParseGranularity(s)
	if !ok {
		return "", &badParam{"granularity", "must be one of week, month, quarter, year"}
	}
	return g, nil
}

// params wraps parse failures into a 400 and reports whether to continue.
func params(w http.ResponseWriter, err error) bool {
	if err == nil {
		return true
	}
	var bp *badParam
	if errors.As(err, &bp) {
		writeProblem(w, http.StatusBadRequest, "Invalid "+bp.name, bp.detail)
		return false
	}
	writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error())
	return false
}

/********** handlers **********/

func (h *Handlers) schema(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.Schema(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) filters(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.FilterOptions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) themeImpact(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if !params(w, err) {
		return
	}
	out, err := h.Q.ThemeImpact(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) netImpact(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if !params(w, err) {
		return
	}
	out, err := h.Q.NetImpact(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) split(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilters(q)
	if !params(w, err) {
		return
	}
	k, err := intParam(q, "k", 0, 1, 100)
	if !params(w, err) {
		return
	}
	out, err := h.Q.Split(r.Context(), f, k)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) matrix(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilters(q)
	if !params(w, err) {
		return
	}
	g, err := granularityParam(q, domain.Month)
	if !params(w, err) {
		return
	}
	k, err := intParam(q, "k", 0, 1, 200)
	if !params(w, err) {
		return
	}
	bandName := strings.ToLower(strings.TrimSpace(q.Get("band")))
	if bandName == "" {
		bandName = "drivers"
	}
	band, ok := h.Q.Policy().Band(bandName)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid band", "band must be drivers or barriers")
		return
	}
	order := domain.MatrixOrder(strings.ToLower(strings.TrimSpace(q.Get("order"))))
	switch order {
	case "":
		order = domain.OrderByCount
	case domain.OrderByCount, domain.OrderByLatest:
	default:
		writeProblem(w, http.StatusBadRequest, "Invalid order", "order must be count or latest")
		return
	}

	out, err := h.Q.Matrix(r.Context(), f, domain.MatrixRequest{
		Granularity: g,
		Band:        band,
		K:           k,
		Brands:      f.Brands,
		Pin:         strings.TrimSpace(q.Get("pin")),
		Order:       order,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) overview(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if !params(w, err) {
		return
	}
	out, err := h.Q.Overview(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) trend(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilters(q)
	if !params(w, err) {
		return
	}
	g, err := granularityParam(q, domain.Month)
	if !params(w, err) {
		return
	}
	out, err := h.Q.Trend(r.Context(), f, g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) brands(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilters(r.URL.Query())
	if !params(w, err) {
		return
	}
	out, err := h.Q.Brands(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) products(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilters(q)
	if !params(w, err) {
		return
	}
	limit, err := intParam(q, "limit", app.DefaultProductLimit, 1, 500)
	if !params(w, err) {
		return
	}
	out, err := h.Q.Products(r.Context(), f, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) risk(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilters(q)
	if !params(w, err) {
		return
	}
	g, err := granularityParam(q, domain.Week)
	if !params(w, err) {
		return
	}
	out, err := h.Q.Risk(r.Context(), f, g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) reviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, err := parseFilters(q)
	if !params(w, err) {
		return
	}
	limit, err := intParam(q, "limit", 50, 1, 200)
	if !params(w, err) {
		return
	}
	offset, err := intParam(q, "offset", 0, 0, 1<<30)
	if !params(w, err) {
		return
	}
	out, err := h.Q.Reviews(r.Context(), f, offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}

// refresh drops the cached dataset and loads it again.
func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.Q.Invalidate(r.Context()); err != nil {
		log.Warn().Err(err).Msg("dataset cache eviction failed")
	}
	out, err := h.Q.Schema(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, r, out)
}
