package aggregate

import "elsa/internal/core"

// Chart is the JSON form of an aggregate served to clients.
type Chart struct {
	Empty      bool         `json:"empty"`
	Total      string       `json:"total"`
	TotalLabel string       `json:"total_label"`
	Slices     []ChartSlice `json:"slices"`
}

type ChartSlice struct {
	Category string  `json:"category"`
	Total    string  `json:"total"`
	Color    string  `json:"color"`
	Share    float64 `json:"share"`
	Percent  string  `json:"percent"`
	Label    string  `json:"label"`
}

// Chart renders a. An empty aggregate yields the placeholder form with no
// slice computation.
func (a Aggregate) Chart() Chart {
	if a.IsEmpty() {
		return Chart{Empty: true, Total: "0", TotalLabel: core.FormatRupiah(a.Total()), Slices: []ChartSlice{}}
	}
	total := a.Total()
	c := Chart{
		Total:      total.String(),
		TotalLabel: core.FormatRupiah(total),
		Slices:     make([]ChartSlice, 0, len(a.Entries)),
	}
	for _, s := range a.Slices() {
		c.Slices = append(c.Slices, ChartSlice{
			Category: s.Category,
			Total:    s.Total.String(),
			Color:    s.Color,
			Share:    s.Share,
			Percent:  s.Percent,
			Label:    s.Label,
		})
	}
	return c
}
