package app

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"review_pulse/internal/domain"
)

/********** alias registries (single source of truth) **********/

// Candidates are tried in order; the first column present wins.
var fieldAliases = map[string][]string{
	"id":        {"review_id", "id", "reviewId", "review_uuid"},
	"brand":     {"brand_name", "brand", "app_name", "app", "appName"},
	"rating":    {"rating", "score", "stars", "rating_value", "ratingValue"},
	"timestamp": {"date", "at", "timestamp", "review_date", "created_at", "reviewCreatedVersionDate"},
	"products":  {"products", "product_list", "product"},
	"content":   {"content", "text", "review_text", "body", "review"},
}

var requiredFields = []string{"brand", "rating", "timestamp"}

// Never themes, on top of every alias above. Derived period and sentiment
// columns show up when a source was exported from an earlier dashboard run.
var reservedExtra = []string{
	"app_id", "title", "sentiment", "themes", "sentiment_label",
	"month", "week", "quarter", "year",
	"thumbs_up", "thumbsupcount", "reply_content", "replied_at",
	"user_name", "username", "user_image", "review_created_version", "app_version",
}

var reservedNames = func() map[string]struct{} {
	set := make(map[string]struct{}, 64)
	for _, aliases := range fieldAliases {
		for _, a := range aliases {
			set[strings.ToLower(a)] = struct{}{}
		}
	}
	for _, n := range reservedExtra {
		set[n] = struct{}{}
	}
	return set
}()

func isReserved(col string) bool {
	_, ok := reservedNames[canonicalName(col)]
	return ok
}

func canonicalName(col string) string { return strings.ToLower(strings.TrimSpace(col)) }

/********** field resolution **********/

// ResolveFields maps canonical fields onto the given columns. Missing
// required fields fail the whole load with ErrSchemaMismatch.
func ResolveFields(columns []string) (domain.FieldMap, error) {
	byName := make(map[string]string, len(columns))
	for _, c := range columns {
		k := canonicalName(c)
		if _, dup := byName[k]; !dup {
			byName[k] = c
		}
	}
	pick := func(field string) string {
		for _, a := range fieldAliases[field] {
			if col, ok := byName[strings.ToLower(a)]; ok {
				return col
			}
		}
		return ""
	}

	fm := domain.FieldMap{
		ID:        pick("id"),
		Brand:     pick("brand"),
		Rating:    pick("rating"),
		Timestamp: pick("timestamp"),
		Products:  pick("products"),
		Content:   pick("content"),
	}

	var missing []string
	for _, f := range requiredFields {
		var got string
		switch f {
		case "brand":
			got = fm.Brand
		case "rating":
			got = fm.Rating
		case "timestamp":
			got = fm.Timestamp
		}
		if got == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fm, fmt.Errorf("%w: no column for %s", domain.ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return fm, nil
}

// tableColumns returns the declared column order, or the sorted union of row keys.
func tableColumns(t domain.RawTable) []string {
	if len(t.Columns) > 0 {
		return t.Columns
	}
	seen := make(map[string]struct{}, 32)
	for _, r := range t.Rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

/********** tiny helpers **********/

type valueKind int

const (
	kindNull valueKind = iota
	kindNumber
	kindOther
)

var nullStrings = map[string]struct{}{
	"": {}, "null": {}, "none": {}, "nan": {}, "n/a": {}, "na": {},
}

// coerceNumber mirrors a lenient numeric cast: numbers, numeric strings and
// booleans convert; nulls and NaN are null; anything else is kindOther.
func coerceNumber(v any) (float64, valueKind) {
	switch t := v.(type) {
	case nil:
		return 0, kindNull
	case float64:
		if math.IsNaN(t) {
			return 0, kindNull
		}
		return t, kindNumber
	case float32:
		if math.IsNaN(float64(t)) {
			return 0, kindNull
		}
		return float64(t), kindNumber
	case int:
		return float64(t), kindNumber
	case int8:
		return float64(t), kindNumber
	case int16:
		return float64(t), kindNumber
	case int32:
		return float64(t), kindNumber
	case int64:
		return float64(t), kindNumber
	case uint:
		return float64(t), kindNumber
	case uint8:
		return float64(t), kindNumber
	case uint16:
		return float64(t), kindNumber
	case uint32:
		return float64(t), kindNumber
	case uint64:
		return float64(t), kindNumber
	case bool:
		if t {
			return 1, kindNumber
		}
		return 0, kindNumber
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, kindOther
		}
		return f, kindNumber
	case string:
		s := strings.TrimSpace(t)
		if _, ok := nullStrings[strings.ToLower(s)]; ok {
			return 0, kindNull
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		if err != nil || math.IsNaN(f) {
			return 0, kindOther
		}
		return f, kindNumber
	}
	return 0, kindOther
}

// scalarString renders ids and labels; numbers lose a trailing ".0".
func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	}
	if f, k := coerceNumber(v); k == kindNumber {
		if _, isBool := v.(bool); !isBool {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// parseRating returns nil unless the value is an integral star in [1,5].
func parseRating(v any) *int {
	f, k := coerceNumber(v)
	if k != kindNumber {
		return nil
	}
	if f != math.Trunc(f) || f < domain.MinRating || f > domain.MaxRating {
		return nil
	}
	r := int(f)
	return &r
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700 MST",
	"2006-01-02 15:04:05 MST",
}

var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
}

// parseTimestamp accepts time values, common string layouts and unix
// seconds/milliseconds. Values without a zone are taken as UTC.
func parseTimestamp(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, fmt.Errorf("zero time")
		}
		return t, nil
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, fmt.Errorf("zero time")
		}
		return *t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, fmt.Errorf("empty timestamp")
		}
		for _, l := range zonedLayouts {
			if ts, err := time.Parse(l, s); err == nil {
				return ts, nil
			}
		}
		for _, l := range naiveLayouts {
			if ts, err := time.ParseInLocation(l, s, time.UTC); err == nil {
				return ts, nil
			}
		}
		if f, k := coerceNumber(s); k == kindNumber {
			return unixTime(f), nil
		}
		return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
	}
	if f, k := coerceNumber(v); k == kindNumber {
		if _, isBool := v.(bool); !isBool {
			return unixTime(f), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
}

func unixTime(f float64) time.Time {
	if math.Abs(f) >= 1e11 {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// wallClock converts t into loc and keeps only the clock reading.
func wallClock(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), l.Hour(), l.Minute(), l.Second(), l.Nanosecond(), time.UTC)
}

func periodsFor(t time.Time) domain.Periods {
	y, w := t.ISOWeek()
	return domain.Periods{
		Week:    fmt.Sprintf("%04d-W%02d", y, w),
		Month:   fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())),
		Quarter: fmt.Sprintf("%04d-Q%d", t.Year(), (int(t.Month())-1)/3+1),
		Year:    fmt.Sprintf("%04d", t.Year()),
	}
}

// parseProducts accepts []any, []string or a JSON array string; anything else is empty.
func parseProducts(v any) []string {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []string:
		items = make([]any, len(t))
		for i, s := range t {
			items[i] = s
		}
	case string:
		s := strings.TrimSpace(t)
		if !strings.HasPrefix(s, "[") {
			return []string{}
		}
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return []string{}
		}
	default:
		return []string{}
	}

	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		var name string
		switch p := it.(type) {
		case string:
			name = strings.TrimSpace(p)
		case map[string]any:
			if n, ok := p["name"].(string); ok {
				name = strings.TrimSpace(n)
			}
		}
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// syntheticID builds a stable id for sources without one.
func syntheticID(brand string, ts time.Time, rating *int, content string) string {
	r := ""
	if rating != nil {
		r = strconv.Itoa(*rating)
	}
	sig := strings.Join([]string{brand, ts.Format(time.RFC3339Nano), r, content}, "|")
	sum := sha1.Sum([]byte(sig))
	return hex.EncodeToString(sum[:])
}

/********** record mapper **********/

// Normalizer turns raw rows into records for one load.
type Normalizer struct {
	Fields domain.FieldMap
	Themes []domain.ThemeDefinition // stat-eligible columns only
	Loc    *time.Location
	Policy domain.Policy
}

// Normalize maps one row. Only an unusable timestamp is fatal for the row;
// every other field degrades to its empty value.
func (n Normalizer) Normalize(row domain.RawRow) (domain.ReviewRecord, error) {
	var rec domain.ReviewRecord

	if n.Fields.ID != "" {
		rec.ID = scalarString(row[n.Fields.ID])
	}
	rec.Brand = scalarString(row[n.Fields.Brand])
	rec.Rating = parseRating(row[n.Fields.Rating])
	rec.Sentiment = n.Policy.SentimentFor(rec.Rating)
	if n.Fields.Content != "" {
		if s, ok := row[n.Fields.Content].(string); ok {
			rec.Content = s
		}
	}
	rec.Products = []string{}
	if n.Fields.Products != "" {
		rec.Products = parseProducts(row[n.Fields.Products])
	}

	ts, err := parseTimestamp(row[n.Fields.Timestamp])
	if err != nil {
		return domain.ReviewRecord{}, &domain.MalformedRecordError{ID: rec.ID, Reason: domain.ReasonBadTimestamp, Err: err}
	}
	rec.Timestamp = wallClock(ts, n.Loc)
	rec.Periods = periodsFor(rec.Timestamp)

	if rec.ID == "" {
		rec.ID = syntheticID(rec.Brand, rec.Timestamp, rec.Rating, rec.Content)
	}

	if len(n.Themes) > 0 {
		rec.Themes = make(map[string]bool, len(n.Themes))
		for _, t := range n.Themes {
			f, k := coerceNumber(row[t.Name])
			rec.Themes[t.Name] = k == kindNumber && f == 1
		}
	}
	return rec, nil
}
