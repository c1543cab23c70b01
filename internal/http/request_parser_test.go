package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"elsa/internal/core"
)

func newParser(t *testing.T, body, contentType string) *RequestBodyParser {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	p := NewRequestBodyParser(httptest.NewRecorder(), req)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return p
}

func TestRequestBodyParser_JSON(t *testing.T) {
	p := newParser(t, `{"id": "123", "name": " test ", "amount": 42.5, "is_paid": true}`, "application/json")

	if !p.IsJSON() {
		t.Error("Expected IsJSON() to be true")
	}
	if id := p.Get("id"); id != "123" {
		t.Errorf("Get('id') = %q, want '123'", id)
	}
	if name := p.Get("name"); name != "test" {
		t.Errorf("Get('name') = %q, want 'test'", name)
	}
	if amount := p.Get("amount"); amount != "42.5" {
		t.Errorf("Get('amount') = %q, want '42.5'", amount)
	}
	if paid := p.Get("is_paid"); paid != "true" {
		t.Errorf("Get('is_paid') = %q, want 'true'", paid)
	}
	if p.Optional("missing") != nil {
		t.Error("Optional('missing') should be nil")
	}
}

func TestRequestBodyParser_FormData(t *testing.T) {
	p := newParser(t, "id=456&name=form+test&value=100", "application/x-www-form-urlencoded")

	if p.IsJSON() {
		t.Error("Expected IsJSON() to be false for form data")
	}
	if name := p.Get("name"); name != "form test" {
		t.Errorf("Get('name') = %q, want 'form test'", name)
	}
}

func TestRequestBodyParser_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"broken"`))
	p := NewRequestBodyParser(httptest.NewRecorder(), req)
	if err := p.Parse(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello  ", "hello"},
		{"a\x00b\x07c", "abc"},
		{"line\nbreak", "line\nbreak"},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseTransaction(t *testing.T) {
	now := time.Date(2025, 8, 17, 10, 0, 0, 0, time.UTC)

	p := newParser(t, `{"type":"Expense","category":"Food","description":"nasi","amount":"50000"}`, "")
	tx, err := parseTransaction(p, "u1", now)
	if err != nil {
		t.Fatalf("parseTransaction: %v", err)
	}
	if tx.UserID != "u1" || tx.Type != core.Expense || tx.Date.String() != "2025-08-17" || tx.Note != nil {
		t.Errorf("unexpected transaction %+v", tx)
	}

	p = newParser(t, `{"type":"expense","amount":"abc"}`, "")
	if _, err := parseTransaction(p, "u1", now); !errors.Is(err, core.ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}

	p = newParser(t, `{"type":"expense","amount":"1","date":"17/08/2025"}`, "")
	if _, err := parseTransaction(p, "u1", now); !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
}

func TestParseGoalWithoutTarget(t *testing.T) {
	p := newParser(t, "title=Darurat", "application/x-www-form-urlencoded")
	g, err := parseGoal(p, "u1")
	if err != nil {
		t.Fatalf("parseGoal: %v", err)
	}
	if !g.TargetAmount.IsZero() || g.Title != "Darurat" {
		t.Errorf("unexpected goal %+v", g)
	}
}

func TestParseDebt(t *testing.T) {
	p := newParser(t, `{"person_name":"Ani","type":"owed","amount":"75000","due_date":"2025-09-01"}`, "")
	d, err := parseDebt(p, "u1")
	if err != nil {
		t.Fatalf("parseDebt: %v", err)
	}
	if d.Type != core.Owed || core.DateString(d.DueDate) != "2025-09-01" || d.Description != nil {
		t.Errorf("unexpected debt %+v", d)
	}
}

func TestParsePaid(t *testing.T) {
	if _, err := parsePaid(newParser(t, `{}`, "")); err == nil {
		t.Error("expected error for missing is_paid")
	}
	paid, err := parsePaid(newParser(t, "is_paid=false", "application/x-www-form-urlencoded"))
	if err != nil || paid {
		t.Errorf("parsePaid = %v, %v", paid, err)
	}
}
