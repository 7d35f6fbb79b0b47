package bunq

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/theirongolddev/bunqday/internal/model"
)

const (
	// maxPageSize is the largest count bunq accepts on listing endpoints.
	maxPageSize = 200
	// defaultAccountPages caps account listings when the caller gives no cap.
	defaultAccountPages = 10
)

// ListMonetaryAccounts returns every monetary account of the session's user,
// following older cursors for at most maxPages pages (defaultAccountPages
// when maxPages <= 0).
func (c *Client) ListMonetaryAccounts(ctx context.Context, sess model.Session, maxPages int) ([]model.Account, error) {
	if maxPages <= 0 {
		maxPages = defaultAccountPages
	}
	path := fmt.Sprintf("/v1/user/%d/monetary-account", sess.UserID)
	fetch := pageFetcher(c, sess.Token, decodeAccount)
	return Paginate(ctx, path, fetch, func(Page[model.Account]) Decision { return ContinueOlder }, maxPages)
}

// GetMonetaryAccount returns a single monetary account.
func (c *Client) GetMonetaryAccount(ctx context.Context, sess model.Session, accountID int64) (model.Account, error) {
	path := fmt.Sprintf("/v1/user/%d/monetary-account/%d", sess.UserID, accountID)
	res, err := c.do(ctx, http.MethodGet, path, sess.Token, nil)
	if err != nil {
		return model.Account{}, err
	}
	for _, raw := range res.Items {
		acct, ok, err := decodeAccount(raw)
		if err != nil {
			return model.Account{}, err
		}
		if ok {
			return acct, nil
		}
	}
	return model.Account{}, malformed("monetary account %d: no account object", accountID)
}

// PaymentQuery selects a payment listing.
type PaymentQuery struct {
	AccountID int64
	PageSize  int
	MaxPages  int
	Decide    DecideFunc[model.Payment]
}

// ListPayments walks the payment history newest-first, asking q.Decide after
// every page whether to fetch older entries.
func (c *Client) ListPayments(ctx context.Context, sess model.Session, q PaymentQuery) ([]model.Payment, error) {
	size := q.PageSize
	if size <= 0 || size > maxPageSize {
		size = maxPageSize
	}
	decide := q.Decide
	if decide == nil {
		decide = func(Page[model.Payment]) Decision { return Stop }
	}

	path := fmt.Sprintf("/v1/user/%d/monetary-account/%d/payment?%s",
		sess.UserID, q.AccountID, url.Values{"count": {strconv.Itoa(size)}}.Encode())
	return Paginate(ctx, path, pageFetcher(c, sess.Token, decodePayment), decide, q.MaxPages)
}

// OlderThan returns a decision function that keeps paging into older history
// until a page reaches back before cutoff.
//
// It relies on bunq returning each page sorted newest-first, so the last item
// is the oldest. If pages were ever returned in another order this predicate
// would stop too early or too late.
func OlderThan(cutoff time.Time) DecideFunc[model.Payment] {
	return func(p Page[model.Payment]) Decision {
		if len(p.Items) == 0 {
			return Stop
		}
		oldest := p.Items[len(p.Items)-1]
		if oldest.CreatedAt.Before(cutoff) {
			return Stop
		}
		return ContinueOlder
	}
}
