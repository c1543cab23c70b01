package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrDegenerateRatio is returned when a ratio has a zero (or negative) denominator.
var ErrDegenerateRatio = errors.New("degenerate ratio")

// ProgressFallback is rendered in place of a percentage that cannot be computed.
const ProgressFallback = "0.0%"

var hundred = decimal.NewFromInt(100)

// Ratio returns part/whole*100. A non-positive whole yields ErrDegenerateRatio.
func Ratio(part, whole decimal.Decimal) (decimal.Decimal, error) {
	if whole.Sign() <= 0 {
		return decimal.Zero, ErrDegenerateRatio
	}
	return part.Div(whole).Mul(hundred), nil
}

// Progress renders how far a savings goal is, e.g. "45.5%".
func Progress(current, target decimal.Decimal) string {
	pct, err := Ratio(current, target)
	if err != nil {
		return ProgressFallback
	}
	return pct.StringFixed(1) + "%"
}

// Progress is the goal's completion percentage label.
func (g SavingsGoal) Progress() string {
	return Progress(g.CurrentAmount, g.TargetAmount)
}

// Summary is the one-row financial report computed at export time.
type Summary struct {
	ExportDate       time.Time
	TransactionCount int
	DebtCount        int
	GoalCount        int
	TotalIncome      decimal.Decimal
	TotalExpense     decimal.Decimal
	TotalSavings     decimal.Decimal
}

// Summarize counts each collection and sums transaction amounts per type.
func Summarize(at time.Time, txs []Transaction, debts []Debt, goals []SavingsGoal) Summary {
	s := Summary{
		ExportDate:       at,
		TransactionCount: len(txs),
		DebtCount:        len(debts),
		GoalCount:        len(goals),
		TotalIncome:      decimal.Zero,
		TotalExpense:     decimal.Zero,
		TotalSavings:     decimal.Zero,
	}
	for _, t := range txs {
		switch t.Type {
		case Income:
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
		case Expense:
			s.TotalExpense = s.TotalExpense.Add(t.Amount)
		case Savings:
			s.TotalSavings = s.TotalSavings.Add(t.Amount)
		}
	}
	return s
}

// FormatShortDate renders a date the way id-ID short dates read: D/M/YYYY.
func FormatShortDate(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d", t.Day(), int(t.Month()), t.Year())
}
