package core

import (
	"fmt"
	"regexp"
	"strings"
)

var validSymbol = regexp.MustCompile(`^[A-Z0-9]{1,20}$`)

// NormalizeSymbol trims and upper-cases a ticker.
// Pair notations quoted in USD ("eth/usd", "ETH-USD") reduce to the base.
func NormalizeSymbol(input string) string {
	s := strings.ToUpper(strings.TrimSpace(input))
	for _, sep := range []string{"/", "-", "_"} {
		s = strings.TrimSuffix(s, sep+"USD")
	}
	return s
}

// ValidateSymbol checks that a normalized symbol has a valid format
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return WrapError(ErrInvalidSymbol, fmt.Errorf("symbol cannot be empty"))
	}
	if !validSymbol.MatchString(symbol) {
		return WrapError(ErrInvalidSymbol, fmt.Errorf("invalid symbol format: %s", symbol))
	}
	return nil
}

// ParseSymbolList splits a comma-separated list, normalizing each entry and
// dropping empty ones. Order is preserved.
func ParseSymbolList(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := NormalizeSymbol(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
