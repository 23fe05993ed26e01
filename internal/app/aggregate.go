package app

import (
	"sort"

	"review_pulse/internal/domain"
)

// pct is count/base*100, 0 for an empty base.
func pct(count, base int) float64 {
	if base == 0 {
		return 0
	}
	return float64(count) / float64(base) * 100
}

// ratingStats sums the non-nil ratings of records.
func ratingStats(records []domain.ReviewRecord) (sum, n int) {
	for i := range records {
		if r := records[i].Rating; r != nil {
			sum += *r
			n++
		}
	}
	return sum, n
}

func meanOf(sum, n int) *float64 {
	if n == 0 {
		return nil
	}
	m := float64(sum) / float64(n)
	return &m
}

/********** (a) theme impact **********/

type presence func(r *domain.ReviewRecord) bool

func impactRow(records []domain.ReviewRecord, overall *float64, theme, net string, has presence) (domain.ImpactRow, bool) {
	var count, sum, rated int
	for i := range records {
		r := &records[i]
		if !has(r) {
			continue
		}
		count++
		if r.Rating != nil {
			sum += *r.Rating
			rated++
		}
	}
	if count == 0 {
		return domain.ImpactRow{}, false
	}
	row := domain.ImpactRow{
		Theme:        theme,
		Net:          net,
		Count:        count,
		FrequencyPct: pct(count, len(records)),
		AvgRating:    meanOf(sum, rated),
	}
	if row.AvgRating != nil && overall != nil {
		imp := row.FrequencyPct * (*row.AvgRating - *overall)
		row.Impact = &imp
	}
	return row, true
}

func sortByFrequency(rows []domain.ImpactRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].FrequencyPct != rows[j].FrequencyPct {
			return rows[i].FrequencyPct > rows[j].FrequencyPct
		}
		return rows[i].Theme < rows[j].Theme
	})
}

// ThemeImpact computes frequency, average rating when present and impact per
// theme. Themes that never occur in records are omitted.
func ThemeImpact(records []domain.ReviewRecord, schema domain.ThemeSchema) []domain.ImpactRow {
	rows := []domain.ImpactRow{}
	if len(records) == 0 {
		return rows
	}
	overall := meanOf(ratingStats(records))
	for _, t := range schema.StatColumns() {
		name := t.Name
		if row, ok := impactRow(records, overall, name, t.Net, func(r *domain.ReviewRecord) bool { return r.Themes[name] }); ok {
			rows = append(rows, row)
		}
	}
	sortByFrequency(rows)
	return rows
}

// NetImpact is ThemeImpact rolled up per NET group: a record counts for a
// group when any of its stat-eligible members is set.
func NetImpact(records []domain.ReviewRecord, schema domain.ThemeSchema) []domain.ImpactRow {
	rows := []domain.ImpactRow{}
	if len(records) == 0 {
		return rows
	}
	eligible := make(map[string]bool, len(schema.Columns))
	for _, c := range schema.StatColumns() {
		eligible[c.Name] = true
	}
	overall := meanOf(ratingStats(records))
	for _, g := range schema.NetGroups {
		var members []string
		for _, m := range g.Members {
			if eligible[m] {
				members = append(members, m)
			}
		}
		if len(members) == 0 {
			continue
		}
		has := func(r *domain.ReviewRecord) bool {
			for _, m := range members {
				if r.Themes[m] {
					return true
				}
			}
			return false
		}
		if row, ok := impactRow(records, overall, g.Key, g.Key, has); ok {
			rows = append(rows, row)
		}
	}
	sortByFrequency(rows)
	return rows
}

/********** (b) driver / barrier split **********/

// DriverBarrierSplit reports the top-k themes of each rating band as a share
// of that band alone. The two partitions are never normalized against each other.
func DriverBarrierSplit(records []domain.ReviewRecord, schema domain.ThemeSchema, k int, drivers, barriers domain.RatingBand) domain.Split {
	return domain.Split{
		Drivers:  partition(records, schema, drivers, k),
		Barriers: partition(records, schema, barriers, k),
	}
}

func partition(records []domain.ReviewRecord, schema domain.ThemeSchema, band domain.RatingBand, k int) domain.Partition {
	if k <= 0 {
		k = domain.DefaultSplitTopK
	}
	in := inBand(records, band)
	p := domain.Partition{Band: band, Base: len(in), Themes: []domain.PartitionRow{}}
	if len(in) == 0 {
		return p
	}
	for _, t := range schema.StatColumns() {
		count := 0
		for i := range in {
			if in[i].Themes[t.Name] {
				count++
			}
		}
		if count == 0 {
			continue
		}
		p.Themes = append(p.Themes, domain.PartitionRow{Theme: t.Name, Net: t.Net, Count: count, Pct: pct(count, len(in))})
	}
	sort.SliceStable(p.Themes, func(i, j int) bool {
		if p.Themes[i].Pct != p.Themes[j].Pct {
			return p.Themes[i].Pct > p.Themes[j].Pct
		}
		return p.Themes[i].Theme < p.Themes[j].Theme
	})
	if len(p.Themes) > k {
		p.Themes = p.Themes[:k]
	}
	return p
}

func inBand(records []domain.ReviewRecord, band domain.RatingBand) []domain.ReviewRecord {
	out := make([]domain.ReviewRecord, 0, len(records))
	for i := range records {
		if records[i].RatingIn(band) {
			out = append(out, records[i])
		}
	}
	return out
}

/********** (c) period x brand pivot **********/

// PivotMatrix cross-tabulates the top-k themes of a rating band by period and
// brand. The first row holds the raw cohort size of every cell; theme cells
// are percentages of that base, 0 where the base is empty.
func PivotMatrix(records []domain.ReviewRecord, schema domain.ThemeSchema, req domain.MatrixRequest) domain.Matrix {
	if req.K <= 0 {
		req.K = domain.DefaultMatrixTopK
	}
	if req.Granularity == "" {
		req.Granularity = domain.Month
	}
	in := inBand(records, req.Band)

	periodSet := make(map[string]struct{})
	brandSet := make(map[string]struct{})
	for i := range in {
		periodSet[in[i].Periods.Key(req.Granularity)] = struct{}{}
		brandSet[in[i].Brand] = struct{}{}
	}
	periods := make([]string, 0, len(periodSet))
	for p := range periodSet {
		periods = append(periods, p)
	}
	sort.Strings(periods)
	brands := matrixBrands(req.Brands, req.Pin, brandSet)

	m := domain.Matrix{
		Granularity: req.Granularity,
		Band:        req.Band,
		Periods:     periods,
		Brands:      brands,
		Columns:     make([]domain.MatrixColumn, 0, len(periods)*len(brands)),
		Rows:        []domain.MatrixRow{},
	}
	colIdx := make(map[[2]string]int, len(periods)*len(brands))
	for _, p := range periods {
		for _, b := range brands {
			colIdx[[2]string{p, b}] = len(m.Columns)
			m.Columns = append(m.Columns, domain.MatrixColumn{Period: p, Brand: b})
		}
	}

	stat := schema.StatColumns()
	base := make([]int, len(m.Columns))
	counts := make([][]int, len(stat))
	totals := make([]int, len(stat))
	for t := range stat {
		counts[t] = make([]int, len(m.Columns))
	}
	for i := range in {
		r := &in[i]
		c, ok := colIdx[[2]string{r.Periods.Key(req.Granularity), r.Brand}]
		if !ok {
			continue
		}
		base[c]++
		for t, def := range stat {
			if r.Themes[def.Name] {
				counts[t][c]++
				totals[t]++
			}
		}
	}

	baseRow := domain.MatrixRow{Label: domain.BaseRowLabel, Kind: domain.RowBase, Values: make([]float64, len(base))}
	for c, n := range base {
		baseRow.Values[c] = float64(n)
	}
	m.Rows = append(m.Rows, baseRow)

	// top-k by total occurrences; ties keep schema order
	order := make([]int, 0, len(stat))
	for t := range stat {
		if totals[t] > 0 {
			order = append(order, t)
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return totals[order[i]] > totals[order[j]] })
	if len(order) > req.K {
		order = order[:req.K]
	}

	themeRows := make([]domain.MatrixRow, 0, len(order))
	for _, t := range order {
		row := domain.MatrixRow{Label: stat[t].Name, Kind: domain.RowTheme, Values: make([]float64, len(m.Columns))}
		for c := range m.Columns {
			row.Values[c] = pct(counts[t][c], base[c])
		}
		themeRows = append(themeRows, row)
	}

	if req.Order == domain.OrderByLatest && len(periods) > 0 && len(brands) > 0 {
		ref := colIdx[[2]string{periods[len(periods)-1], brands[0]}]
		sort.SliceStable(themeRows, func(i, j int) bool { return themeRows[i].Values[ref] > themeRows[j].Values[ref] })
	}
	m.Rows = append(m.Rows, themeRows...)
	return m
}

// matrixBrands fixes the brand column order: the caller's list (deduplicated)
// or the brands present, sorted; pin moves to the front when listed.
func matrixBrands(requested []string, pin string, present map[string]struct{}) []string {
	brands := make([]string, 0, len(present))
	if len(requested) > 0 {
		seen := make(map[string]struct{}, len(requested))
		for _, b := range requested {
			if _, dup := seen[b]; dup {
				continue
			}
			seen[b] = struct{}{}
			brands = append(brands, b)
		}
	} else {
		for b := range present {
			brands = append(brands, b)
		}
		sort.Strings(brands)
	}
	if pin == "" {
		return brands
	}
	for i, b := range brands {
		if b == pin {
			copy(brands[1:i+1], brands[:i])
			brands[0] = pin
			break
		}
	}
	return brands
}
