// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and rendering them in the Indonesian Rupiah display convention.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// rupiahPrefix is the id-ID currency symbol followed by a no-break space.
const rupiahPrefix = "Rp\u00a0"

// maxFractionDigits mirrors the IDR currency scale used for display.
const maxFractionDigits = 2

var idPrinter = message.NewPrinter(language.Indonesian)

// ParseAmount converts a decimal string to an amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Only
// positive values are accepted; zero, signs, grouping characters and
// anything non-numeric yield ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("50000")   -> 50000, nil
//	ParseAmount("12,5")    -> 12.5, nil
//	ParseAmount("-1")      -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if parts[0] == "" {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.Sign() <= 0 {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatRupiah renders an amount for on-screen labels following the id-ID
// currency convention: "Rp 1.234.567" with "." grouping, "," as decimal
// separator, no minimum fraction digits and at most two.
//
// Raw values, not this string, are what gets written into exports.
func FormatRupiah(amount decimal.Decimal) string {
	rounded := amount.Round(maxFractionDigits)
	neg := rounded.Sign() < 0
	abs := rounded.Abs()

	whole := abs.Truncate(0)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(rupiahPrefix)
	b.WriteString(idPrinter.Sprintf("%d", whole.IntPart()))

	frac := abs.Sub(whole)
	if !frac.IsZero() {
		digits := strings.TrimRight(strings.TrimPrefix(frac.StringFixed(maxFractionDigits), "0."), "0")
		if digits != "" {
			b.WriteByte(',')
			b.WriteString(digits)
		}
	}
	return b.String()
}
