// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
}

// FormatMoney formats an amount with thousands separators and two decimals,
// prefixed by the currency symbol when one is known.
// e.g., -718 EUR -> "-€718.00", 1234.5 -> "€1,234.50"
func FormatMoney(d decimal.Decimal, currency string) string {
	sym, ok := currencySymbols[strings.ToUpper(currency)]
	if !ok && currency != "" {
		sym = strings.ToUpper(currency) + " "
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	fixed := d.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return sign + sym + fixed
	}
	return sign + sym + FormatNumber(n) + "." + frac
}

// FormatSignedMoney is FormatMoney with an explicit "+" for positive amounts.
func FormatSignedMoney(d decimal.Decimal, currency string) string {
	if d.IsPositive() {
		return "+" + FormatMoney(d, currency)
	}
	return FormatMoney(d, currency)
}

// FormatAge formats how long ago t was, relative to now.
// e.g., 3725s -> "1h 2m ago", 125s -> "2m ago", 45s -> "just now"
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	secs := int64(now.Sub(t).Seconds())
	if secs < 60 {
		return "just now"
	}

	hours := secs / 3600
	mins := (secs % 3600) / 60

	if hours >= 48 {
		return fmt.Sprintf("%dd ago", hours/24)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm ago", hours, mins)
	}
	return fmt.Sprintf("%dm ago", mins)
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatPercent formats a 0-1 float as a percentage string.
func FormatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

// FormatDays renders a day count, singular or plural.
func FormatDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}

// FormatDayOfWeek returns a 3-letter day abbreviation from a weekday number.
func FormatDayOfWeek(weekday int) string {
	days := []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	if weekday >= 0 && weekday < 7 {
		return days[weekday]
	}
	return "???"
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
