package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
	Savings TransactionType = "savings"
)

const (
	Owe  DebtType = "owe"  // I owe someone
	Owed DebtType = "owed" // someone owes me
)

const (
	VariantTransaction Variant = "transaction"
	VariantDebt        Variant = "debt"
	VariantGoal        Variant = "savings_goal"
)

type (
	TransactionType string
	DebtType        string

	// Variant tags which record collection a value belongs to.
	Variant string

	Date struct {
		time.Time
	}

	// Record is one persisted financial entry. The set of implementations is
	// closed: Transaction, Debt and SavingsGoal.
	Record interface {
		Variant() Variant
		Owner() string
		isRecord()
	}

	Transaction struct {
		ID          string
		UserID      string
		Type        TransactionType
		Category    string
		Description string
		Amount      decimal.Decimal
		Date        Date
		Note        *string
		CreatedAt   time.Time
	}

	Debt struct {
		ID          string
		UserID      string
		PersonName  string
		Type        DebtType
		Amount      decimal.Decimal
		Description *string
		DueDate     *Date
		IsPaid      bool
		CreatedAt   time.Time
	}

	SavingsGoal struct {
		ID            string
		UserID        string
		Title         string
		TargetAmount  decimal.Decimal
		CurrentAmount decimal.Decimal
		Deadline      *Date
		Description   *string
		IsCompleted   bool
		CreatedAt     time.Time
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidType       = errors.New("invalid type")
	ErrEmptyCategory     = errors.New("empty category")
	ErrEmptyDescription  = errors.New("empty description")
	ErrEmptyPersonName   = errors.New("empty person name")
	ErrEmptyTitle        = errors.New("empty title")
	ErrEmptyOwner        = errors.New("empty owner")
	ErrInvalidDate       = errors.New("invalid date")
	ErrDescriptionLength = errors.New("description too long (max 200 characters)")
)

const dateLayout = "2006-01-02"

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date in YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

// String renders the date as YYYY-MM-DD, or "" for the zero date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (t TransactionType) IsValid() bool {
	switch t {
	case Income, Expense, Savings:
		return true
	}
	return false
}

func (t DebtType) IsValid() bool {
	return t == Owe || t == Owed
}

func (Transaction) Variant() Variant { return VariantTransaction }
func (Debt) Variant() Variant { return VariantDebt }
func (SavingsGoal) Variant() Variant { return VariantGoal }
func (t Transaction) Owner() string { return t.UserID }
func (d Debt) Owner() string { return d.UserID }
func (g SavingsGoal) Owner() string { return g.UserID }
func (Transaction) isRecord() {}
func (Debt) isRecord() {}
func (SavingsGoal) isRecord() {}

func validatePositive(d decimal.Decimal) error {
	if d.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyOwner
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return ErrDescriptionLength
	}
	if err := validatePositive(t.Amount); err != nil {
		return err
	}
	return t.Date.Validate()
}

func (d Debt) Validate() error {
	if strings.TrimSpace(d.UserID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(d.PersonName) == "" {
		return ErrEmptyPersonName
	}
	if !d.Type.IsValid() {
		return ErrInvalidType
	}
	if d.Description != nil && len(*d.Description) > 200 {
		return ErrDescriptionLength
	}
	return validatePositive(d.Amount)
}

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.UserID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(g.Title) == "" {
		return ErrEmptyTitle
	}
	// A zero target is storable; progress falls back to 0.0% for it.
	if g.TargetAmount.Sign() < 0 || g.CurrentAmount.Sign() < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// DateString returns the YYYY-MM-DD form of an optional date.
func DateString(d *Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
