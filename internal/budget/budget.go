// Package budget derives the daily spending budget from an account's payment history.
//
// The budget model is simple: every day until the next salary (the reset day of
// the month) gets a fixed allowance. Whatever is left on the account after
// reserving the allowance for the remaining days is the spendable balance.
package budget

import (
	"time"

	"github.com/theirongolddev/bunqday/internal/model"

	"github.com/shopspring/decimal"
)

const (
	// DefaultDailyAllowance is the per-day spending budget in account currency.
	DefaultDailyAllowance = 73.0
	// DefaultResetDay is the day of month the budget cycle restarts (salary day).
	DefaultResetDay = 25
)

// Config parameterizes the calculation.
type Config struct {
	DailyAllowance decimal.Decimal
	ResetDay       int
}

// DefaultConfig returns the 73/day, reset-on-the-25th configuration.
func DefaultConfig() Config {
	return Config{
		DailyAllowance: decimal.NewFromFloat(DefaultDailyAllowance),
		ResetDay:       DefaultResetDay,
	}
}

// normalized clamps the reset day into 1..28 so every month has one.
func (c Config) normalized() Config {
	if c.ResetDay < 1 {
		c.ResetDay = 1
	}
	if c.ResetDay > 28 {
		c.ResetDay = 28
	}
	if c.DailyAllowance.IsNegative() {
		c.DailyAllowance = decimal.Zero
	}
	return c
}

// NextReset returns midnight of the next reset day in today's location.
// On or after the reset day it rolls to the following month.
func NextReset(today time.Time, resetDay int) time.Time {
	y, m, d := today.Date()
	if d >= resetDay {
		m++
	}
	return time.Date(y, m, resetDay, 0, 0, 0, 0, today.Location())
}

// DaysLeft counts the days from the start of today until the next reset,
// including today itself.
func DaysLeft(today time.Time, resetDay int) int {
	return calendarDays(today, NextReset(today, resetDay)) + 1
}

// Compute turns a payment history into today's budget state. It never fails:
// with no history it returns the full allowance for today and a zero balance.
func Compute(now time.Time, cfg Config, payments []model.Payment) model.Balance {
	cfg = cfg.normalized()
	allowance := cfg.DailyAllowance
	daysLeft := DaysLeft(now, cfg.ResetDay)

	out := model.Balance{
		ComputedAt: now,
		DaysLeft:   daysLeft,
	}

	if len(payments) == 0 {
		out.TodayLeft = allowance
		out.TodayLeftPercent = 1.0
		out.Balance = decimal.Zero
		return out
	}

	latest, previous := splitAtStartOfDay(now, payments)
	current := latest.BalanceAfterMutation

	spent := decimal.Zero
	if previous != nil && !latest.CreatedAt.Before(StartOfDay(now)) {
		spent = previous.BalanceAfterMutation.Sub(current)
	}

	todayLeft := clamp(allowance.Sub(spent), decimal.Zero, allowance)
	reserved := allowance.Mul(decimal.NewFromInt(int64(daysLeft - 1)))

	out.TodayLeft = todayLeft
	out.Balance = current.Sub(todayLeft).Sub(reserved)
	if allowance.IsPositive() {
		out.TodayLeftPercent = todayLeft.Div(allowance).InexactFloat64()
	}
	return out
}

// splitAtStartOfDay returns the most recent payment and the most recent one
// made strictly before today (nil if none). Selection does not depend on
// slice order.
func splitAtStartOfDay(now time.Time, payments []model.Payment) (model.Payment, *model.Payment) {
	midnight := StartOfDay(now)

	latest := payments[0]
	var previous *model.Payment
	for i := range payments {
		p := payments[i]
		if p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
		if p.CreatedAt.Before(midnight) && (previous == nil || p.CreatedAt.After(previous.CreatedAt)) {
			previous = &payments[i]
		}
	}
	return latest, previous
}

// StartOfDay returns midnight of t's date in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// calendarDays counts date boundaries between a and b, ignoring DST shifts.
func calendarDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}
