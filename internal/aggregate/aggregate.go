// Package aggregate folds expense transactions into per-category totals and
// keeps that fold current for one owner as changes are announced.
package aggregate

import (
	"hash/fnv"
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"elsa/internal/core"
)

// Palette is the fixed set of chart colours.
var Palette = []string{
	"#8B5CF6", "#EC4899", "#F59E0B", "#10B981", "#3B82F6",
	"#EF4444", "#6366F1", "#84CC16", "#F97316", "#06B6D4",
}

// ColorPicker assigns a colour to a category when it first enters a fold.
type ColorPicker interface {
	Pick(category string) string
}

// StableColors maps a category to the same palette entry on every rebuild
// (FNV-1a of the name, modulo the palette size).
type StableColors struct{}

func (StableColors) Pick(category string) string {
	h := fnv.New32a()
	h.Write([]byte(category))
	return Palette[h.Sum32()%uint32(len(Palette))]
}

// RandomColors draws uniformly from the palette on every pick, so a
// category may change colour between rebuilds.
type RandomColors struct{}

func (RandomColors) Pick(string) string {
	return Palette[rand.IntN(len(Palette))]
}

// ColorsByName returns the picker configured by name: "random" or anything
// else for stable.
func ColorsByName(name string) ColorPicker {
	if name == "random" {
		return RandomColors{}
	}
	return StableColors{}
}

// Entry is one category's running total.
type Entry struct {
	Category string
	Total    decimal.Decimal
	Color    string
}

// Aggregate is the per-category expense fold, in first-appearance order.
type Aggregate struct {
	Entries []Entry
}

// Build filters txs to expenses and folds them by category. It is pure
// apart from the colour picker.
func Build(txs []core.Transaction, colors ColorPicker) Aggregate {
	if colors == nil {
		colors = StableColors{}
	}
	index := map[string]int{}
	var entries []Entry
	for _, t := range txs {
		if t.Type != core.Expense {
			continue
		}
		if i, ok := index[t.Category]; ok {
			entries[i].Total = entries[i].Total.Add(t.Amount)
			continue
		}
		index[t.Category] = len(entries)
		entries = append(entries, Entry{Category: t.Category, Total: t.Amount, Color: colors.Pick(t.Category)})
	}
	return Aggregate{Entries: entries}
}

func (a Aggregate) IsEmpty() bool {
	return len(a.Entries) == 0
}

// Total is the sum over all entries.
func (a Aggregate) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range a.Entries {
		sum = sum.Add(e.Total)
	}
	return sum
}

func (a Aggregate) clone() Aggregate {
	return Aggregate{Entries: append([]Entry(nil), a.Entries...)}
}

// Slice is one chart segment.
type Slice struct {
	Category string
	Total    decimal.Decimal
	Color    string
	Share    float64
	Percent  string
	Label    string
}

// Slices sizes each entry against the current total. Percentages carry one
// decimal; a zero total renders every share as the progress fallback.
func (a Aggregate) Slices() []Slice {
	total := a.Total()
	out := make([]Slice, 0, len(a.Entries))
	for _, e := range a.Entries {
		s := Slice{
			Category: e.Category,
			Total:    e.Total,
			Color:    e.Color,
			Percent:  core.ProgressFallback,
			Label:    core.FormatRupiah(e.Total),
		}
		if pct, err := core.Ratio(e.Total, total); err == nil {
			s.Share = pct.Div(decimal.NewFromInt(100)).InexactFloat64()
			s.Percent = pct.StringFixed(1) + "%"
		}
		out = append(out, s)
	}
	return out
}
