package domain

// RatingBand is an inclusive star range.
type RatingBand struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

// Policy holds the product-policy thresholds. Variants of the dashboard
// disagreed on them, so none is hardcoded in the engine.
type Policy struct {
	NegativeMax int        // rating <= NegativeMax is Negative
	NeutralMax  int        // NegativeMax < rating <= NeutralMax is Neutral
	Drivers     RatingBand // default 4-5
	Barriers    RatingBand // default 1-3
	SplitTopK   int
	MatrixTopK  int
}

const (
	DefaultNegativeMax = 2
	DefaultNeutralMax  = 3
	DefaultDriverMin   = 4
	DefaultBarrierMax  = 3
	DefaultSplitTopK   = 10
	DefaultMatrixTopK  = 20
	MinRating          = 1
	MaxRating          = 5
)

func DefaultPolicy() Policy {
	return NewPolicy(DefaultNegativeMax, DefaultNeutralMax, DefaultDriverMin, DefaultBarrierMax)
}

func NewPolicy(negMax, neuMax, driverMin, barrierMax int) Policy {
	return Policy{
		NegativeMax: negMax,
		NeutralMax:  neuMax,
		Drivers:     RatingBand{Label: "drivers", Min: driverMin, Max: MaxRating},
		Barriers:    RatingBand{Label: "barriers", Min: MinRating, Max: barrierMax},
		SplitTopK:   DefaultSplitTopK,
		MatrixTopK:  DefaultMatrixTopK,
	}
}

// SentimentFor buckets a rating; nil rating leaves the bucket unset.
func (p Policy) SentimentFor(rating *int) Sentiment {
	if rating == nil {
		return ""
	}
	switch r := *rating; {
	case r <= p.NegativeMax:
		return SentimentNegative
	case r <= p.NeutralMax:
		return SentimentNeutral
	default:
		return SentimentPositive
	}
}

// Band resolves "drivers"/"barriers" to the configured range.
func (p Policy) Band(name string) (RatingBand, bool) {
	switch name {
	case "drivers", "driver", "pos", "positive":
		return p.Drivers, true
	case "barriers", "barrier", "neg", "negative":
		return p.Barriers, true
	}
	return RatingBand{}, false
}
