package app

import (
	"strings"

	"review_pulse/internal/domain"
)

// Skip reasons reported in ThemeSchema.Skipped.
const (
	skipReserved   = "reserved field"
	skipEmpty      = "all values are null"
	skipNonNumeric = "non-numeric values"
	skipNonBinary  = "values outside {0,1}"
)

type columnScan struct {
	name       string
	seen       int // non-null values
	nonNumeric bool
	nonBinary  bool
}

func (c *columnScan) add(v any) {
	f, kind := coerceNumber(v)
	switch kind {
	case kindNull:
		return
	case kindOther:
		c.nonNumeric = true
	case kindNumber:
		if f != 0 && f != 1 {
			c.nonBinary = true
		}
	}
	c.seen++
}

func (c *columnScan) binary() bool {
	return c.seen > 0 && !c.nonNumeric && !c.nonBinary
}

func (c *columnScan) reason() string {
	switch {
	case c.seen == 0:
		return skipEmpty
	case c.nonNumeric:
		return skipNonNumeric
	default:
		return skipNonBinary
	}
}

// DetectThemes classifies every column of a load. Order follows the table's
// column order, so the result does not depend on row order.
func DetectThemes(table domain.RawTable) domain.ThemeSchema {
	schema := domain.ThemeSchema{
		Columns:   []domain.ThemeDefinition{},
		NetGroups: []domain.NetGroup{},
	}

	var scans []*columnScan
	for _, col := range tableColumns(table) {
		if isReserved(col) {
			schema.Skipped = append(schema.Skipped, domain.SkippedColumn{Column: col, Reason: skipReserved})
			continue
		}
		scans = append(scans, &columnScan{name: col})
	}
	if len(scans) == 0 {
		return schema
	}

	for _, row := range table.Rows {
		for _, sc := range scans {
			if sc.nonNumeric {
				continue
			}
			if v, ok := row[sc.name]; ok {
				sc.add(v)
			}
		}
	}

	groupIdx := make(map[string]int)
	for _, sc := range scans {
		isNet := hasNetTag(sc.name)
		bin := sc.binary()
		if !bin && !isNet {
			schema.Skipped = append(schema.Skipped, domain.SkippedColumn{Column: sc.name, Reason: sc.reason()})
			continue
		}
		if !bin {
			schema.Flagged = append(schema.Flagged, sc.name)
		}

		key := NetKey(sc.name)
		schema.Columns = append(schema.Columns, domain.ThemeDefinition{Name: sc.name, Net: key, Binary: bin})

		i, ok := groupIdx[key]
		if !ok {
			i = len(schema.NetGroups)
			groupIdx[key] = i
			schema.NetGroups = append(schema.NetGroups, domain.NetGroup{Key: key})
		}
		g := &schema.NetGroups[i]
		g.Members = append(g.Members, sc.name)
		if isNet && g.Head == "" {
			g.Head = sc.name
		}
	}
	return schema
}

func hasNetTag(name string) bool {
	return strings.Contains(strings.ToUpper(name), "NET")
}

// NetKey derives the NET group of a theme column: a leading "[TAG]" is
// dropped, then everything from the first underscore on.
func NetKey(name string) string {
	s := strings.TrimSpace(name)
	if strings.HasPrefix(s, "[") {
		if i := strings.Index(s, "]"); i >= 0 {
			s = strings.TrimSpace(s[i+1:])
		}
	}
	if i := strings.Index(s, "_"); i > 0 {
		s = s[:i]
	}
	if s == "" {
		return name
	}
	return s
}
