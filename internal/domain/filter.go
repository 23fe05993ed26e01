package domain

import "time"

// FilterSpec is the declarative filter shape shared with the presentation layer.
// From/To are local calendar dates (time part ignored); To is inclusive.
type FilterSpec struct {
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	Brands   []string   `json:"brands,omitempty"`
	Ratings  []int      `json:"ratings,omitempty"`
	Products []string   `json:"products,omitempty"`
}

// FilterOptions lists the values available to each filter control.
type FilterOptions struct {
	Brands   []string   `json:"brands"`
	Ratings  []int      `json:"ratings"`
	Products []string   `json:"products"`
	MinDate  *time.Time `json:"minDate,omitempty"`
	MaxDate  *time.Time `json:"maxDate,omitempty"`
}
