// Package pipeline orchestrates onboarding, the refresh unit of work and
// payment aggregation on top of the bunq client and the credential store.
package pipeline

import (
	"sort"
	"strings"
	"time"

	"github.com/theirongolddev/bunqday/internal/model"

	"github.com/shopspring/decimal"
)

// AggregateDays buckets payments into calendar days in loc, newest day first.
// Every day in [since, until) appears, including days without payments.
func AggregateDays(payments []model.Payment, since, until time.Time, loc *time.Location) []model.DailySpend {
	filtered := FilterByTime(payments, since, until)

	// Oldest first so the last payment seen per day sets the closing balance.
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	dayMap := make(map[string]*model.DailySpend)
	for _, p := range filtered {
		local := p.CreatedAt.In(loc)
		key := local.Format("2006-01-02")

		ds, ok := dayMap[key]
		if !ok {
			y, m, d := local.Date()
			ds = &model.DailySpend{Date: time.Date(y, m, d, 0, 0, 0, 0, loc)}
			dayMap[key] = ds
		}
		ds.Payments++
		if p.Amount.IsNegative() {
			ds.Spent = ds.Spent.Add(p.Amount.Neg())
		} else {
			ds.Received = ds.Received.Add(p.Amount)
		}
		ds.ClosingBalance = p.BalanceAfterMutation
	}

	// Fill in every day in the range, including zero days
	startDate := since.In(loc)
	y, m, d := startDate.Date()
	cursor := time.Date(y, m, d, 0, 0, 0, 0, loc)
	end := until.In(loc)

	var days []model.DailySpend
	for cursor.Before(end) {
		key := cursor.Format("2006-01-02")
		if ds, ok := dayMap[key]; ok {
			days = append(days, *ds)
		} else {
			days = append(days, model.DailySpend{Date: cursor})
		}
		cursor = cursor.AddDate(0, 0, 1)
	}

	sort.Slice(days, func(i, j int) bool {
		return days[i].Date.After(days[j].Date)
	})
	return days
}

// TotalSpent sums the outgoing amounts of payments as a positive value.
func TotalSpent(payments []model.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Amount.IsNegative() {
			total = total.Add(p.Amount.Neg())
		}
	}
	return total
}

// FilterByTime returns payments created within [since, until).
func FilterByTime(payments []model.Payment, since, until time.Time) []model.Payment {
	var result []model.Payment
	for _, p := range payments {
		if !p.CreatedAt.Before(since) && p.CreatedAt.Before(until) {
			result = append(result, p)
		}
	}
	return result
}

// FilterByCounterparty returns payments whose counterparty or description
// contains substr, case-insensitively.
func FilterByCounterparty(payments []model.Payment, substr string) []model.Payment {
	if substr == "" {
		return payments
	}
	needle := strings.ToLower(substr)
	var result []model.Payment
	for _, p := range payments {
		if strings.Contains(strings.ToLower(p.CounterpartyName), needle) ||
			strings.Contains(strings.ToLower(p.Description), needle) {
			result = append(result, p)
		}
	}
	return result
}
