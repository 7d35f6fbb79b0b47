package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/theirongolddev/bunqday/internal/budget"
	"github.com/theirongolddev/bunqday/internal/bunq"
	"github.com/theirongolddev/bunqday/internal/logging"
	"github.com/theirongolddev/bunqday/internal/model"
)

// Refresh stages reported through ProgressFunc.
const (
	StageCache    = "cache"
	StageSession  = "session"
	StageAccount  = "account"
	StagePayments = "payments"
	StageCompute  = "compute"
)

// ProgressFunc is called as a refresh moves through its stages.
type ProgressFunc func(stage string)

// Options tunes a Refresher. Zero values fall back to the defaults.
type Options struct {
	Budget   budget.Config
	CacheTTL time.Duration
	PageSize int
	MaxPages int
	Now      func() time.Time
	Progress ProgressFunc
}

const (
	defaultCacheTTL = 15 * time.Minute
	defaultPageSize = 50
	defaultMaxPages = 20
)

// Result is the outcome of one refresh.
type Result struct {
	Balance   model.Balance
	Account   model.Preferences
	FromCache bool
}

// Refresher runs the authenticated unit of work: start a session, resolve
// the tracked account, pull today's payments and compute the budget. It
// holds an immutable authorization and may be shared between goroutines;
// callers that need at most one refresh in flight must serialize themselves.
type Refresher struct {
	store  CredentialStore
	client *bunq.Client
	bundle *model.AuthorizationBundle
	opts   Options
}

// NewRefresher loads the stored authorization and builds a client for it.
func NewRefresher(st CredentialStore, cfg bunq.Config, opts Options) (*Refresher, error) {
	bundle, err := st.LoadAuthorization()
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		return nil, ErrNotOnboarded
	}

	client, err := bunq.NewAuthorizedClient(cfg, bundle)
	if err != nil {
		return nil, err
	}

	if opts.Budget.DailyAllowance.IsZero() && opts.Budget.ResetDay == 0 {
		opts.Budget = budget.DefaultConfig()
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Refresher{store: st, client: client, bundle: bundle, opts: opts}, nil
}

// Bundle returns the authorization the refresher works with.
func (r *Refresher) Bundle() *model.AuthorizationBundle {
	return r.bundle
}

func (r *Refresher) progress(stage string) {
	if r.opts.Progress != nil {
		r.opts.Progress(stage)
	}
}

// Refresh returns today's budget. A cached balance younger than the cache
// TTL is returned as is unless force is set. A failure anywhere leaves the
// cache untouched.
func (r *Refresher) Refresh(ctx context.Context, force bool) (*Result, error) {
	now := r.opts.Now()

	if !force {
		r.progress(StageCache)
		cached, err := r.store.LoadCachedBalance()
		if err != nil {
			logging.Warnf("reading cached balance: %v", err)
		} else if cached != nil && cached.Fresh(now, r.opts.CacheTTL) {
			res := &Result{Balance: *cached, FromCache: true}
			if prefs, err := r.store.LoadPreferences(); err == nil && prefs != nil {
				res.Account = *prefs
			}
			logging.Debugf("serving cached balance from %s", cached.ComputedAt.Format(time.RFC3339))
			return res, nil
		}
	}

	sess, err := r.session(ctx)
	if err != nil {
		return nil, err
	}

	prefs, err := r.resolveAccount(ctx, sess)
	if err != nil {
		return nil, err
	}

	r.progress(StagePayments)
	payments, err := r.client.ListPayments(ctx, sess, bunq.PaymentQuery{
		AccountID: prefs.AccountID,
		PageSize:  r.opts.PageSize,
		MaxPages:  r.opts.MaxPages,
		Decide:    bunq.OlderThan(budget.StartOfDay(now)),
	})
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	logging.Debugf("fetched %d payments for account %d", len(payments), prefs.AccountID)

	r.progress(StageCompute)
	bal := budget.Compute(now, r.opts.Budget, payments)

	if err := r.store.StoreCachedBalance(bal); err != nil {
		logging.Warnf("caching balance: %v", err)
	}
	return &Result{Balance: bal, Account: prefs}, nil
}

// RecentPayments returns the payments of the last days calendar days,
// today included, newest first.
func (r *Refresher) RecentPayments(ctx context.Context, days int) ([]model.Payment, error) {
	if days < 1 {
		days = 1
	}
	cutoff := budget.StartOfDay(r.opts.Now()).AddDate(0, 0, -(days - 1))

	sess, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	prefs, err := r.resolveAccount(ctx, sess)
	if err != nil {
		return nil, err
	}

	r.progress(StagePayments)
	payments, err := r.client.ListPayments(ctx, sess, bunq.PaymentQuery{
		AccountID: prefs.AccountID,
		PageSize:  r.opts.PageSize,
		MaxPages:  r.opts.MaxPages,
		Decide:    bunq.OlderThan(cutoff),
	})
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}

	out := payments[:0]
	for _, p := range payments {
		if !p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Accounts lists every monetary account of the user.
func (r *Refresher) Accounts(ctx context.Context) ([]model.Account, error) {
	sess, err := r.session(ctx)
	if err != nil {
		return nil, err
	}
	r.progress(StageAccount)
	return r.client.ListMonetaryAccounts(ctx, sess, r.opts.MaxPages)
}

// SelectAccount makes accountID the tracked account and invalidates the
// cached balance, which belonged to the previous selection.
func (r *Refresher) SelectAccount(ctx context.Context, accountID int64) (model.Preferences, error) {
	sess, err := r.session(ctx)
	if err != nil {
		return model.Preferences{}, err
	}

	r.progress(StageAccount)
	acct, err := r.client.GetMonetaryAccount(ctx, sess, accountID)
	if err != nil {
		return model.Preferences{}, fmt.Errorf("looking up account %d: %w", accountID, err)
	}
	if !acct.Active() {
		return model.Preferences{}, fmt.Errorf("account %d is %s", accountID, acct.Status)
	}

	prefs := model.Preferences{UserID: sess.UserID, AccountID: acct.ID, AccountName: acct.Description}
	if err := r.store.StorePreferences(prefs); err != nil {
		return model.Preferences{}, fmt.Errorf("storing preferences: %w", err)
	}
	if err := r.store.StoreCachedBalance(model.Balance{}); err != nil {
		logging.Warnf("invalidating cached balance: %v", err)
	}
	return prefs, nil
}

func (r *Refresher) session(ctx context.Context) (model.Session, error) {
	r.progress(StageSession)
	sess, err := r.client.StartSession(ctx, r.bundle.InstallationToken, r.bundle.APIKey)
	if err != nil {
		if errors.Is(err, bunq.ErrUnauthorized) {
			return model.Session{}, fmt.Errorf("%w (the API key may have been revoked; run `bunqday setup`)", err)
		}
		return model.Session{}, err
	}
	return sess, nil
}

// resolveAccount returns the stored account selection for this user, or
// picks and stores the first active account.
func (r *Refresher) resolveAccount(ctx context.Context, sess model.Session) (model.Preferences, error) {
	prefs, err := r.store.LoadPreferences()
	if err != nil {
		return model.Preferences{}, fmt.Errorf("reading preferences: %w", err)
	}
	if prefs != nil && prefs.AccountID != 0 && prefs.UserID == sess.UserID {
		return *prefs, nil
	}

	r.progress(StageAccount)
	accounts, err := r.client.ListMonetaryAccounts(ctx, sess, r.opts.MaxPages)
	if err != nil {
		return model.Preferences{}, fmt.Errorf("listing accounts: %w", err)
	}
	for _, a := range accounts {
		if !a.Active() {
			continue
		}
		picked := model.Preferences{UserID: sess.UserID, AccountID: a.ID, AccountName: a.Description}
		if err := r.store.StorePreferences(picked); err != nil {
			return model.Preferences{}, fmt.Errorf("storing preferences: %w", err)
		}
		logging.Infof("tracking account %d (%s)", a.ID, a.Description)
		return picked, nil
	}
	return model.Preferences{}, ErrNoAccount
}
