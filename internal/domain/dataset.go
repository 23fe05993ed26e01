package domain

import "time"

// FieldMap records which source column backs each canonical field.
// Empty means the field is absent from the source.
type FieldMap struct {
	ID        string `json:"id,omitempty"`
	Brand     string `json:"brand"`
	Rating    string `json:"rating"`
	Timestamp string `json:"timestamp"`
	Products  string `json:"products,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Dataset is one load: normalized records plus the schema detected on them.
type Dataset struct {
	Source      string         `json:"source"`
	Fields      FieldMap       `json:"fields"`
	Schema      ThemeSchema    `json:"schema"`
	Records     []ReviewRecord `json:"records"`
	Dropped     map[string]int `json:"dropped,omitempty"`
	Fingerprint string         `json:"fingerprint"`
	LoadedAt    time.Time      `json:"loadedAt"`
}

// DatasetInfo is the record-free summary of a load.
type DatasetInfo struct {
	Source      string         `json:"source"`
	Fields      FieldMap       `json:"fields"`
	Schema      ThemeSchema    `json:"schema"`
	Records     int            `json:"records"`
	Dropped     map[string]int `json:"dropped,omitempty"`
	Fingerprint string         `json:"fingerprint"`
	LoadedAt    time.Time      `json:"loadedAt"`
}

func (d *Dataset) Info() DatasetInfo {
	return DatasetInfo{
		Source:      d.Source,
		Fields:      d.Fields,
		Schema:      d.Schema,
		Records:     len(d.Records),
		Dropped:     d.Dropped,
		Fingerprint: d.Fingerprint,
		LoadedAt:    d.LoadedAt,
	}
}
