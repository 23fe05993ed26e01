package app

import (
	"sort"
	"time"

	"review_pulse/internal/domain"
)

// compiled filter: only the active dimensions, lookup sets prebuilt.
type filterSet struct {
	from, until *time.Time // until is exclusive (To + 1 day)
	brands      map[string]struct{}
	ratings     map[int]struct{}
	products    map[string]struct{}
}

func compileFilters(spec domain.FilterSpec) filterSet {
	var fs filterSet
	if spec.From != nil {
		d := dayStart(*spec.From)
		fs.from = &d
	}
	if spec.To != nil {
		d := dayStart(*spec.To).AddDate(0, 0, 1)
		fs.until = &d
	}
	if len(spec.Brands) > 0 {
		fs.brands = make(map[string]struct{}, len(spec.Brands))
		for _, b := range spec.Brands {
			fs.brands[b] = struct{}{}
		}
	}
	if len(spec.Ratings) > 0 {
		fs.ratings = make(map[int]struct{}, len(spec.Ratings))
		for _, r := range spec.Ratings {
			fs.ratings[r] = struct{}{}
		}
	}
	if len(spec.Products) > 0 {
		fs.products = make(map[string]struct{}, len(spec.Products))
		for _, p := range spec.Products {
			fs.products[p] = struct{}{}
		}
	}
	return fs
}

func (fs filterSet) empty() bool {
	return fs.from == nil && fs.until == nil && fs.brands == nil && fs.ratings == nil && fs.products == nil
}

func (fs filterSet) match(r *domain.ReviewRecord) bool {
	if fs.from != nil && r.Timestamp.Before(*fs.from) {
		return false
	}
	if fs.until != nil && !r.Timestamp.Before(*fs.until) {
		return false
	}
	if fs.brands != nil {
		if _, ok := fs.brands[r.Brand]; !ok {
			return false
		}
	}
	if fs.ratings != nil {
		if r.Rating == nil {
			return false
		}
		if _, ok := fs.ratings[*r.Rating]; !ok {
			return false
		}
	}
	if fs.products != nil {
		hit := false
		for _, p := range r.Products {
			if _, ok := fs.products[p]; ok {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// dayStart drops the clock part, keeping the wall-clock date in UTC.
func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Mask returns the inclusion mask of spec over records.
// Dimensions are AND-combined; values within a dimension are OR-combined.
// Empty brand and rating selections mean every value is selected.
func Mask(records []domain.ReviewRecord, spec domain.FilterSpec) []bool {
	fs := compileFilters(spec)
	mask := make([]bool, len(records))
	for i := range records {
		mask[i] = fs.empty() || fs.match(&records[i])
	}
	return mask
}

// ApplyFilters returns the records matching spec. Records are never modified;
// the result may share the input's backing array when nothing is filtered.
func ApplyFilters(records []domain.ReviewRecord, spec domain.FilterSpec) []domain.ReviewRecord {
	fs := compileFilters(spec)
	if fs.empty() {
		return records
	}
	out := make([]domain.ReviewRecord, 0, len(records))
	for i := range records {
		if fs.match(&records[i]) {
			out = append(out, records[i])
		}
	}
	return out
}

// Options lists the values each filter control can offer for records.
func Options(records []domain.ReviewRecord) domain.FilterOptions {
	opts := domain.FilterOptions{
		Brands:   []string{},
		Ratings:  []int{1, 2, 3, 4, 5},
		Products: []string{},
	}
	brands := make(map[string]struct{})
	products := make(map[string]struct{})
	for i := range records {
		r := &records[i]
		if r.Brand != "" {
			brands[r.Brand] = struct{}{}
		}
		for _, p := range r.Products {
			products[p] = struct{}{}
		}
		d := dayStart(r.Timestamp)
		if opts.MinDate == nil || d.Before(*opts.MinDate) {
			opts.MinDate = &d
		}
		if opts.MaxDate == nil || d.After(*opts.MaxDate) {
			dd := d
			opts.MaxDate = &dd
		}
	}
	for b := range brands {
		opts.Brands = append(opts.Brands, b)
	}
	for p := range products {
		opts.Products = append(opts.Products, p)
	}
	sort.Strings(opts.Brands)
	sort.Strings(opts.Products)
	return opts
}
