package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"elsa/internal/core"
)

const maxBodyBytes = 64 << 10

// RequestBodyParser reads a JSON or form-encoded body once and exposes its
// fields as trimmed strings.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]any
	formData    url.Values
	parsed      bool
	err         error
}

func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}
	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if p.body[0] == '{' || strings.HasPrefix(p.contentType, "application/json") {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a field from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Optional returns nil for an absent or blank field.
func (p *RequestBodyParser) Optional(key string) *string {
	v := p.Get(key)
	if v == "" {
		return nil
	}
	return &v
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput trims whitespace and drops control characters other than
// tab and line breaks.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// fieldError names the offending field for a 422 response.
type fieldError struct {
	field string
	err   error
}

func (e *fieldError) Error() string { return fmt.Sprintf("%s: %v", e.field, e.err) }
func (e *fieldError) Unwrap() error { return e.err }

func invalid(field string, err error) error {
	return &fieldError{field: field, err: err}
}

func parseOptionalDate(p *RequestBodyParser, key string) (*core.Date, error) {
	v := p.Get(key)
	if v == "" {
		return nil, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return nil, invalid(key, core.ErrInvalidDate)
	}
	return &d, nil
}

// parseTransaction builds a transaction from the body. A missing date
// means today.
func parseTransaction(p *RequestBodyParser, owner string, now time.Time) (core.Transaction, error) {
	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return core.Transaction{}, invalid("amount", err)
	}
	date := core.NewDate(now.Year(), int(now.Month()), now.Day())
	if d, err := parseOptionalDate(p, "date"); err != nil {
		return core.Transaction{}, err
	} else if d != nil {
		date = *d
	}
	return core.Transaction{
		UserID:      owner,
		Type:        core.TransactionType(strings.ToLower(p.Get("type"))),
		Category:    p.Get("category"),
		Description: p.Get("description"),
		Amount:      amount,
		Date:        date,
		Note:        p.Optional("note"),
	}, nil
}

func parseDebt(p *RequestBodyParser, owner string) (core.Debt, error) {
	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return core.Debt{}, invalid("amount", err)
	}
	due, err := parseOptionalDate(p, "due_date")
	if err != nil {
		return core.Debt{}, err
	}
	return core.Debt{
		UserID:      owner,
		PersonName:  p.Get("person_name"),
		Type:        core.DebtType(strings.ToLower(p.Get("type"))),
		Amount:      amount,
		Description: p.Optional("description"),
		DueDate:     due,
	}, nil
}

// parseGoal accepts an absent target; such goals render the fallback
// progress.
func parseGoal(p *RequestBodyParser, owner string) (core.SavingsGoal, error) {
	target := decimal.Zero
	if v := p.Get("target_amount"); v != "" {
		d, err := core.ParseAmount(v)
		if err != nil {
			return core.SavingsGoal{}, invalid("target_amount", err)
		}
		target = d
	}
	deadline, err := parseOptionalDate(p, "deadline")
	if err != nil {
		return core.SavingsGoal{}, err
	}
	return core.SavingsGoal{
		UserID:       owner,
		Title:        p.Get("title"),
		TargetAmount: target,
		Deadline:     deadline,
		Description:  p.Optional("description"),
	}, nil
}

func parseContribution(p *RequestBodyParser) (decimal.Decimal, error) {
	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return decimal.Zero, invalid("amount", err)
	}
	return amount, nil
}

var errMissingField = errors.New("required")

func parsePaid(p *RequestBodyParser) (bool, error) {
	v := p.Get("is_paid")
	if v == "" {
		return false, invalid("is_paid", errMissingField)
	}
	paid, err := strconv.ParseBool(v)
	if err != nil {
		return false, invalid("is_paid", err)
	}
	return paid, nil
}
