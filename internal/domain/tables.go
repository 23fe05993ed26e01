package domain

// ---- theme statistics ----

type ImpactRow struct {
	Theme        string   `json:"theme"`
	Net          string   `json:"net,omitempty"`
	Count        int      `json:"count"`
	FrequencyPct float64  `json:"frequencyPct"`
	AvgRating    *float64 `json:"avgRating,omitempty"`
	Impact       *float64 `json:"impact,omitempty"`
}

type PartitionRow struct {
	Theme string  `json:"theme"`
	Net   string  `json:"net,omitempty"`
	Count int     `json:"count"`
	Pct   float64 `json:"pct"`
}

type Partition struct {
	Band   RatingBand     `json:"band"`
	Base   int            `json:"base"`
	Themes []PartitionRow `json:"themes"`
}

type Split struct {
	Drivers  Partition `json:"drivers"`
	Barriers Partition `json:"barriers"`
}

// ---- pivot matrix ----

const BaseRowLabel = "Base (N)"

type RowKind string

const (
	RowBase  RowKind = "base"
	RowTheme RowKind = "theme"
)

type MatrixColumn struct {
	Period string `json:"period"`
	Brand  string `json:"brand"`
}

type MatrixRow struct {
	Label  string    `json:"label"`
	Kind   RowKind   `json:"kind"`
	Values []float64 `json:"values"`
}

type Matrix struct {
	Granularity Granularity    `json:"granularity"`
	Band        RatingBand     `json:"band"`
	Periods     []string       `json:"periods"`
	Brands      []string       `json:"brands"`
	Columns     []MatrixColumn `json:"columns"`
	Rows        []MatrixRow    `json:"rows"`
}

type MatrixOrder string

const (
	OrderByCount  MatrixOrder = "count"
	OrderByLatest MatrixOrder = "latest"
)

type MatrixRequest struct {
	Granularity Granularity
	Band        RatingBand
	K           int
	Brands      []string // column order; empty -> brands present, sorted
	Pin         string   // reference brand pinned first
	Order       MatrixOrder
}

// ---- dashboard tables ----

// Averages are nil when no record in the group has a rating.
type Overview struct {
	Reviews   int      `json:"reviews"`
	Rated     int      `json:"rated"`
	AvgRating *float64 `json:"avgRating,omitempty"`
	Median    *float64 `json:"median,omitempty"`
	StdDev    *float64 `json:"stdDev,omitempty"`
	Brands    int      `json:"brands"`
}

type RatingBucket struct {
	Rating int     `json:"rating"`
	Count  int     `json:"count"`
	Pct    float64 `json:"pct"`
}

type SentimentBucket struct {
	Sentiment Sentiment `json:"sentiment"`
	Count     int       `json:"count"`
	Pct       float64   `json:"pct"`
}

type TrendPoint struct {
	Period    string   `json:"period"`
	Reviews   int      `json:"reviews"`
	AvgRating *float64 `json:"avgRating,omitempty"`
}

type BrandRow struct {
	Brand       string   `json:"brand"`
	Reviews     int      `json:"reviews"`
	AvgRating   *float64 `json:"avgRating,omitempty"`
	NegativePct float64  `json:"negativePct"`
}

type ProductRow struct {
	Product   string   `json:"product"`
	Reviews   int      `json:"reviews"`
	AvgRating *float64 `json:"avgRating,omitempty"`
}

type PeriodPct struct {
	Period string  `json:"period"`
	Pct    float64 `json:"pct"`
}

type Risk struct {
	OneStarPct  float64     `json:"oneStarPct"`
	NegativePct float64     `json:"negativePct"`
	Negative    []PeriodPct `json:"negativeTrend"`
}
