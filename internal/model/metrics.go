package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is one entry of an account's payment history. Amounts are signed:
// outgoing payments are negative.
type Payment struct {
	ID                   int64
	CreatedAt            time.Time // UTC
	Description          string
	Amount               decimal.Decimal
	BalanceAfterMutation decimal.Decimal
	Currency             string
	CounterpartyName     string
}

// Account is a bunq monetary account.
type Account struct {
	ID          int64
	Kind        string // MonetaryAccountBank, MonetaryAccountSavings, ...
	Description string
	Balance     decimal.Decimal
	Currency    string
	Status      string
}

// Active reports whether the account can be used.
func (a Account) Active() bool {
	return a.Status == "" || a.Status == "ACTIVE"
}

// DailySpend aggregates one calendar day of payments.
type DailySpend struct {
	Date           time.Time
	Payments       int
	Spent          decimal.Decimal // sum of outgoing amounts, positive
	Received       decimal.Decimal
	ClosingBalance decimal.Decimal // balance after the day's last payment
}
