package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the derived daily budget state shown to the user.
type Balance struct {
	ComputedAt       time.Time       `json:"computed_at"`
	TodayLeftPercent float64         `json:"today_left_percent"` // 0.0-1.0
	TodayLeft        decimal.Decimal `json:"today_left"`
	Balance          decimal.Decimal `json:"balance"`
	DaysLeft         int             `json:"days_left"`
}

// Fresh reports whether b was computed within ttl of now, on the same
// calendar day in now's location. A balance from before midnight describes
// yesterday's allowance however recent it is.
func (b Balance) Fresh(now time.Time, ttl time.Duration) bool {
	if b.ComputedAt.IsZero() {
		return false
	}
	age := now.Sub(b.ComputedAt)
	if age < 0 || age >= ttl {
		return false
	}
	cy, cm, cd := b.ComputedAt.In(now.Location()).Date()
	ny, nm, nd := now.Date()
	return cy == ny && cm == nm && cd == nd
}
