package domain

// ThemeDefinition is discovered per load, never configured.
type ThemeDefinition struct {
	Name   string `json:"name"`
	Net    string `json:"net"`
	Binary bool   `json:"binary"` // false only for NET-named rollups with non 0/1 values
}

type NetGroup struct {
	Key     string   `json:"key"`
	Head    string   `json:"head,omitempty"` // NET-named column leading the group, if any
	Members []string `json:"members"`
}

type SkippedColumn struct {
	Column string `json:"column"`
	Reason string `json:"reason"`
}

type ThemeSchema struct {
	Columns   []ThemeDefinition `json:"columns"`
	NetGroups []NetGroup        `json:"netGroups"`
	Flagged   []string          `json:"flagged,omitempty"`
	Skipped   []SkippedColumn   `json:"skipped,omitempty"`
}

func (s ThemeSchema) Empty() bool { return len(s.Columns) == 0 }

// ThemeColumns returns every detected theme name in order.
func (s ThemeSchema) ThemeColumns() []string {
	out := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		out = append(out, c.Name)
	}
	return out
}

// StatColumns returns the themes that take part in statistics.
func (s ThemeSchema) StatColumns() []ThemeDefinition {
	out := make([]ThemeDefinition, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c.Binary {
			out = append(out, c)
		}
	}
	return out
}

// Groups returns net key -> members, the mapping form of NetGroups.
func (s ThemeSchema) Groups() map[string][]string {
	out := make(map[string][]string, len(s.NetGroups))
	for _, g := range s.NetGroups {
		out[g.Key] = append([]string(nil), g.Members...)
	}
	return out
}
