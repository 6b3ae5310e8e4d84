package enhance

import (
	"os"
	"slices"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Layout is the crop and line geometry for one report.
type Layout struct {
	// PageIndex overrides the caller's page when set.
	PageIndex    *int    `yaml:"page_index,omitempty"`
	MarginTop    int     `yaml:"margin_top"`
	MarginBottom int     `yaml:"margin_bottom"`
	LeftRatio    float64 `yaml:"left_ratio"`
	RightRatio   float64 `yaml:"right_ratio"`
	ExtendTop    int     `yaml:"extend_top"`
	ExtendBottom int     `yaml:"extend_bottom"`
}

// Rule patches the default layout for matching reports. Year "" matches every
// year; Weeks, MinWeek and MaxWeek narrow further when set.
type Rule struct {
	Year    string `yaml:"year"`
	Weeks   []int  `yaml:"weeks,omitempty"`
	MinWeek int    `yaml:"min_week,omitempty"`
	MaxWeek int    `yaml:"max_week,omitempty"`
	Note    string `yaml:"note,omitempty"`

	PageIndex    *int     `yaml:"page_index,omitempty"`
	MarginTop    *int     `yaml:"margin_top,omitempty"`
	MarginBottom *int     `yaml:"margin_bottom,omitempty"`
	LeftRatio    *float64 `yaml:"left_ratio,omitempty"`
	RightRatio   *float64 `yaml:"right_ratio,omitempty"`
	ExtendTop    *int     `yaml:"extend_top,omitempty"`
	ExtendBottom *int     `yaml:"extend_bottom,omitempty"`
}

func (r Rule) matches(year string, week int) bool {
	if r.Year != "" && r.Year != year {
		return false
	}
	if len(r.Weeks) > 0 && !slices.Contains(r.Weeks, week) {
		return false
	}
	if r.MinWeek > 0 && week < r.MinWeek {
		return false
	}
	if r.MaxWeek > 0 && week > r.MaxWeek {
		return false
	}
	return true
}

func (r Rule) apply(l *Layout) {
	if r.PageIndex != nil {
		v := *r.PageIndex
		l.PageIndex = &v
	}
	if r.MarginTop != nil {
		l.MarginTop = *r.MarginTop
	}
	if r.MarginBottom != nil {
		l.MarginBottom = *r.MarginBottom
	}
	if r.LeftRatio != nil {
		l.LeftRatio = *r.LeftRatio
	}
	if r.RightRatio != nil {
		l.RightRatio = *r.RightRatio
	}
	if r.ExtendTop != nil {
		l.ExtendTop = *r.ExtendTop
	}
	if r.ExtendBottom != nil {
		l.ExtendBottom = *r.ExtendBottom
	}
}

// Layouts is the table of known report layouts: a default plus ordered rules.
// Every matching rule is applied in order, later rules winning.
type Layouts struct {
	Default Layout `yaml:"default"`
	Rules   []Rule `yaml:"rules"`
}

// Lookup resolves the layout for a two-digit year and week.
func (t *Layouts) Lookup(year string, week int) Layout {
	l := t.Default
	for _, r := range t.Rules {
		if r.matches(year, week) {
			r.apply(&l)
		}
	}
	return l
}

func intp(v int) *int { return &v }
func floatp(v float64) *float64 { return &v }

// DefaultLayouts returns the layouts observed across report eras.
func DefaultLayouts() *Layouts {
	return &Layouts{
		Default: Layout{
			MarginTop:    360,
			MarginBottom: 20,
			LeftRatio:    0.07,
			RightRatio:   0.59,
			ExtendTop:    110,
			ExtendBottom: 10,
		},
		Rules: []Rule{
			{Year: "20", Note: "2020 reports carry a taller header and footnote", MarginTop: intp(390), MarginBottom: intp(120)},
			{Year: "20", Weeks: []int{6}, RightRatio: floatp(0.65)},
			{Year: "20", Weeks: []int{7, 8}, RightRatio: floatp(0.57)},
			{Year: "20", Weeks: []int{9, 22}, RightRatio: floatp(0.60)},
			{Year: "20", Weeks: []int{23}, Note: "table moved to the fifth page", PageIndex: intp(4)},
			{Year: "20", MinWeek: 25, RightRatio: floatp(0.56)},
			{Year: "21", Note: "2021 header row sits further above the banner", MarginBottom: intp(130), ExtendTop: intp(180), ExtendBottom: intp(95)},
		},
	}
}

// LoadLayouts reads a layout table from a YAML file.
func LoadLayouts(path string) (*Layouts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "enhance: read layouts %s", path)
	}
	var t Layouts
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrapf(err, "enhance: parse layouts %s", path)
	}
	if t.Default.RightRatio <= t.Default.LeftRatio {
		return nil, eris.Errorf("enhance: layouts %s: default right_ratio must exceed left_ratio", path)
	}
	return &t, nil
}
