package bunq

import (
	"encoding/json"
	"time"

	"github.com/theirongolddev/bunqday/internal/model"

	"github.com/shopspring/decimal"
)

// timeLayout is the format of every timestamp in bunq responses (UTC).
const timeLayout = "2006-01-02 15:04:05.999999"

// envelope is the top-level shape of every bunq response.
type envelope struct {
	Response   []json.RawMessage `json:"Response"`
	Error      []errorItem       `json:"Error"`
	Pagination *Pagination       `json:"Pagination"`
}

type errorItem struct {
	Description           string `json:"error_description"`
	DescriptionTranslated string `json:"error_description_translated"`
}

// Pagination holds the cursor URLs returned alongside a listing page.
// Each is a path relative to the API base, empty when absent.
type Pagination struct {
	FutureURL string `json:"future_url"`
	NewerURL  string `json:"newer_url"`
	OlderURL  string `json:"older_url"`
}

type idObject struct {
	ID int64 `json:"id"`
}

type tokenObject struct {
	ID    int64  `json:"id"`
	Token string `json:"token"`
}

type serverPublicKeyObject struct {
	ServerPublicKey string `json:"server_public_key"`
}

type userObject struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
}

// handshakeItem covers every wrapper object the installation, device-server
// and session-server endpoints return.
type handshakeItem struct {
	ID                         *idObject              `json:"Id"`
	Token                      *tokenObject           `json:"Token"`
	ServerPublicKey            *serverPublicKeyObject `json:"ServerPublicKey"`
	UserPerson                 *userObject            `json:"UserPerson"`
	UserCompany                *userObject            `json:"UserCompany"`
	UserAPIKey                 *userObject            `json:"UserApiKey"`
	UserPaymentServiceProvider *userObject            `json:"UserPaymentServiceProvider"`
}

func (h handshakeItem) user() *userObject {
	switch {
	case h.UserPerson != nil:
		return h.UserPerson
	case h.UserCompany != nil:
		return h.UserCompany
	case h.UserAPIKey != nil:
		return h.UserAPIKey
	case h.UserPaymentServiceProvider != nil:
		return h.UserPaymentServiceProvider
	}
	return nil
}

type amountObject struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

func (a *amountObject) decimal(field string) (decimal.Decimal, error) {
	if a == nil {
		return decimal.Zero, malformed("missing %s", field)
	}
	d, err := decimal.NewFromString(a.Value)
	if err != nil {
		return decimal.Zero, malformed("%s %q: %v", field, a.Value, err)
	}
	return d, nil
}

type aliasObject struct {
	DisplayName string `json:"display_name"`
}

type paymentObject struct {
	ID                   int64         `json:"id"`
	Created              string        `json:"created"`
	Description          string        `json:"description"`
	Amount               *amountObject `json:"amount"`
	BalanceAfterMutation *amountObject `json:"balance_after_mutation"`
	CounterpartyAlias    *aliasObject  `json:"counterparty_alias"`
}

type paymentItem struct {
	Payment *paymentObject `json:"Payment"`
}

type monetaryAccountObject struct {
	ID          int64         `json:"id"`
	Description string        `json:"description"`
	Currency    string        `json:"currency"`
	Status      string        `json:"status"`
	Balance     *amountObject `json:"balance"`
}

type accountItem struct {
	Bank     *monetaryAccountObject `json:"MonetaryAccountBank"`
	Savings  *monetaryAccountObject `json:"MonetaryAccountSavings"`
	Joint    *monetaryAccountObject `json:"MonetaryAccountJoint"`
	External *monetaryAccountObject `json:"MonetaryAccountExternal"`
}

func parseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, malformed("timestamp %q: %v", s, err)
	}
	return t, nil
}

// decodePayment converts one listing element. Elements wrapping something
// other than a Payment are skipped (ok=false).
func decodePayment(raw json.RawMessage) (model.Payment, bool, error) {
	var item paymentItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return model.Payment{}, false, malformed("payment item: %v", err)
	}
	p := item.Payment
	if p == nil {
		return model.Payment{}, false, nil
	}

	created, err := parseTime(p.Created)
	if err != nil {
		return model.Payment{}, false, err
	}
	amount, err := p.Amount.decimal("amount")
	if err != nil {
		return model.Payment{}, false, err
	}
	after, err := p.BalanceAfterMutation.decimal("balance_after_mutation")
	if err != nil {
		return model.Payment{}, false, err
	}

	out := model.Payment{
		ID:                   p.ID,
		CreatedAt:            created,
		Description:          p.Description,
		Amount:               amount,
		BalanceAfterMutation: after,
		Currency:             p.Amount.Currency,
	}
	if p.CounterpartyAlias != nil {
		out.CounterpartyName = p.CounterpartyAlias.DisplayName
	}
	return out, true, nil
}

// decodeAccount converts one monetary-account element.
func decodeAccount(raw json.RawMessage) (model.Account, bool, error) {
	var item accountItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return model.Account{}, false, malformed("account item: %v", err)
	}

	kind, obj := "", (*monetaryAccountObject)(nil)
	switch {
	case item.Bank != nil:
		kind, obj = "MonetaryAccountBank", item.Bank
	case item.Savings != nil:
		kind, obj = "MonetaryAccountSavings", item.Savings
	case item.Joint != nil:
		kind, obj = "MonetaryAccountJoint", item.Joint
	case item.External != nil:
		kind, obj = "MonetaryAccountExternal", item.External
	default:
		return model.Account{}, false, nil
	}

	bal, err := obj.Balance.decimal("balance")
	if err != nil {
		return model.Account{}, false, err
	}
	currency := obj.Currency
	if currency == "" {
		currency = obj.Balance.Currency
	}
	return model.Account{
		ID:          obj.ID,
		Kind:        kind,
		Description: obj.Description,
		Balance:     bal,
		Currency:    currency,
		Status:      obj.Status,
	}, true, nil
}
