package domain

import "time"

type Sentiment string

const (
	SentimentNegative Sentiment = "Negative"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentPositive Sentiment = "Positive"
)

// Granularity names a period key precomputed on every record.
type Granularity string

const (
	Week    Granularity = "week"
	Month   Granularity = "month"
	Quarter Granularity = "quarter"
	Year    Granularity = "year"
)

func ParseGranularity(s string) (Granularity, bool) {
	switch g := Granularity(s); g {
	case Week, Month, Quarter, Year:
		return g, true
	}
	return "", false
}

// Periods holds the period keys of a record. Keys sort chronologically as strings.
type Periods struct {
	Week    string `json:"week"`
	Month   string `json:"month"`
	Quarter string `json:"quarter"`
	Year    string `json:"year"`
}

func (p Periods) Key(g Granularity) string {
	switch g {
	case Week:
		return p.Week
	case Quarter:
		return p.Quarter
	case Year:
		return p.Year
	default:
		return p.Month
	}
}

// ReviewRecord is one normalized review. Timestamp carries local wall-clock
// values in the UTC location; it is not an offset-aware instant.
type ReviewRecord struct {
	ID        string          `json:"id"`
	Brand     string          `json:"brand"`
	Rating    *int            `json:"rating,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Products  []string        `json:"products"`
	Content   string          `json:"content,omitempty"`
	Themes    map[string]bool `json:"themes,omitempty"`
	Sentiment Sentiment       `json:"sentiment,omitempty"`
	Periods   Periods         `json:"periods"`
}

func (r ReviewRecord) HasTheme(name string) bool { return r.Themes[name] }

// RatingIn reports whether the record has a rating within [min,max].
func (r ReviewRecord) RatingIn(b RatingBand) bool {
	return r.Rating != nil && *r.Rating >= b.Min && *r.Rating <= b.Max
}

// RawRow is one source row: column name -> scalar or []any.
type RawRow map[string]any

// RawTable is what a source adapter hands to the loader.
type RawTable struct {
	Columns []string // declared order; empty means "derive from rows"
	Rows    []RawRow
}
