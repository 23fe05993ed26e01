package app

import (
	"math"
	"sort"

	"review_pulse/internal/domain"
)

// DefaultProductLimit caps the product table.
const DefaultProductLimit = 15

func OverviewOf(records []domain.ReviewRecord) domain.Overview {
	ov := domain.Overview{Reviews: len(records)}
	ratings := make([]float64, 0, len(records))
	brands := make(map[string]struct{})
	for i := range records {
		if records[i].Rating != nil {
			ratings = append(ratings, float64(*records[i].Rating))
		}
		if records[i].Brand != "" {
			brands[records[i].Brand] = struct{}{}
		}
	}
	ov.Brands = len(brands)
	ov.Rated = len(ratings)
	if len(ratings) == 0 {
		return ov
	}

	var sum float64
	for _, r := range ratings {
		sum += r
	}
	mean := sum / float64(len(ratings))
	ov.AvgRating = &mean

	sort.Float64s(ratings)
	mid := len(ratings) / 2
	median := ratings[mid]
	if len(ratings)%2 == 0 {
		median = (ratings[mid-1] + ratings[mid]) / 2
	}
	ov.Median = &median

	// sample standard deviation, undefined below two ratings
	if len(ratings) > 1 {
		var ss float64
		for _, r := range ratings {
			ss += (r - mean) * (r - mean)
		}
		sd := math.Sqrt(ss / float64(len(ratings)-1))
		ov.StdDev = &sd
	}
	return ov
}

// RatingDistribution counts every star 1..5 as a share of all records.
func RatingDistribution(records []domain.ReviewRecord) []domain.RatingBucket {
	var counts [domain.MaxRating + 1]int
	for i := range records {
		if r := records[i].Rating; r != nil {
			counts[*r]++
		}
	}
	out := make([]domain.RatingBucket, 0, domain.MaxRating)
	for star := domain.MinRating; star <= domain.MaxRating; star++ {
		out = append(out, domain.RatingBucket{Rating: star, Count: counts[star], Pct: pct(counts[star], len(records))})
	}
	return out
}

func SentimentDistribution(records []domain.ReviewRecord) []domain.SentimentBucket {
	counts := make(map[domain.Sentiment]int, 3)
	for i := range records {
		if s := records[i].Sentiment; s != "" {
			counts[s]++
		}
	}
	out := make([]domain.SentimentBucket, 0, 3)
	for _, s := range []domain.Sentiment{domain.SentimentNegative, domain.SentimentNeutral, domain.SentimentPositive} {
		out = append(out, domain.SentimentBucket{Sentiment: s, Count: counts[s], Pct: pct(counts[s], len(records))})
	}
	return out
}

type bucket struct {
	key            string
	n, sum, rated  int
	negative, star int
}

// groupBy buckets records by key, returning buckets in first-seen order.
func groupBy(records []domain.ReviewRecord, key func(r *domain.ReviewRecord) []string, p domain.Policy) []*bucket {
	idx := make(map[string]*bucket)
	var order []*bucket
	for i := range records {
		r := &records[i]
		for _, k := range key(r) {
			b, ok := idx[k]
			if !ok {
				b = &bucket{key: k}
				idx[k] = b
				order = append(order, b)
			}
			b.n++
			if r.Rating != nil {
				b.sum += *r.Rating
				b.rated++
				if *r.Rating <= p.NegativeMax {
					b.negative++
				}
				if *r.Rating == domain.MinRating {
					b.star++
				}
			}
		}
	}
	return order
}

func periodKey(g domain.Granularity) func(r *domain.ReviewRecord) []string {
	return func(r *domain.ReviewRecord) []string { return []string{r.Periods.Key(g)} }
}

func sortByKey(bs []*bucket) {
	sort.Slice(bs, func(i, j int) bool { return bs[i].key < bs[j].key })
}

// Trend reports review volume and mean rating per period, oldest first.
func Trend(records []domain.ReviewRecord, g domain.Granularity) []domain.TrendPoint {
	bs := groupBy(records, periodKey(g), domain.DefaultPolicy())
	sortByKey(bs)
	out := make([]domain.TrendPoint, 0, len(bs))
	for _, b := range bs {
		out = append(out, domain.TrendPoint{Period: b.key, Reviews: b.n, AvgRating: meanOf(b.sum, b.rated)})
	}
	return out
}

// BrandSummary is sorted by review volume, largest first.
func BrandSummary(records []domain.ReviewRecord, p domain.Policy) []domain.BrandRow {
	bs := groupBy(records, func(r *domain.ReviewRecord) []string { return []string{r.Brand} }, p)
	out := make([]domain.BrandRow, 0, len(bs))
	for _, b := range bs {
		out = append(out, domain.BrandRow{
			Brand:       b.key,
			Reviews:     b.n,
			AvgRating:   meanOf(b.sum, b.rated),
			NegativePct: pct(b.negative, b.n),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Reviews != out[j].Reviews {
			return out[i].Reviews > out[j].Reviews
		}
		return out[i].Brand < out[j].Brand
	})
	return out
}

// ProductStats explodes the product lists; a review counts once per product.
func ProductStats(records []domain.ReviewRecord, limit int) []domain.ProductRow {
	if limit <= 0 {
		limit = DefaultProductLimit
	}
	bs := groupBy(records, func(r *domain.ReviewRecord) []string { return r.Products }, domain.DefaultPolicy())
	out := make([]domain.ProductRow, 0, len(bs))
	for _, b := range bs {
		out = append(out, domain.ProductRow{Product: b.key, Reviews: b.n, AvgRating: meanOf(b.sum, b.rated)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Reviews != out[j].Reviews {
			return out[i].Reviews > out[j].Reviews
		}
		return out[i].Product < out[j].Product
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RiskOf reports the 1-star and negative shares overall and the negative
// share per period. Unrated records count in every denominator.
func RiskOf(records []domain.ReviewRecord, g domain.Granularity, p domain.Policy) domain.Risk {
	risk := domain.Risk{Negative: []domain.PeriodPct{}}
	if len(records) == 0 {
		return risk
	}
	var oneStar, negative int
	for i := range records {
		if r := records[i].Rating; r != nil {
			if *r == domain.MinRating {
				oneStar++
			}
			if *r <= p.NegativeMax {
				negative++
			}
		}
	}
	risk.OneStarPct = pct(oneStar, len(records))
	risk.NegativePct = pct(negative, len(records))

	bs := groupBy(records, periodKey(g), p)
	sortByKey(bs)
	for _, b := range bs {
		risk.Negative = append(risk.Negative, domain.PeriodPct{Period: b.key, Pct: pct(b.negative, b.n)})
	}
	return risk
}
