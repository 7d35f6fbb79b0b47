package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/theirongolddev/bunqday/internal/bunq"
	"github.com/theirongolddev/bunqday/internal/keys"
	"github.com/theirongolddev/bunqday/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sessionPath  = "/v1/session-server"
	accountsPath = "/v1/user/42/monetary-account"
	paymentsPath = "/v1/user/42/monetary-account/7/payment"
)

var testNow = time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// standardAPI serves a user with one cancelled and one active account and a
// payment history spanning yesterday and today.
func standardAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := newFakeAPI(t)
	f.reply(http.MethodPost, sessionPath, http.StatusOK, sessionBody(42))
	f.reply(http.MethodGet, accountsPath, http.StatusOK, listBody("",
		accountJSON(6, "Old", "CANCELLED", "0.00"),
		accountJSON(7, "Main", "ACTIVE", "750.00"),
	))
	f.reply(http.MethodGet, accountsPath+"/8", http.StatusOK, listBody("", accountJSON(8, "Bills", "ACTIVE", "10.00")))
	firstPage := listBody(paymentsPath+"?older_id=1",
		paymentJSON(3, testNow.Add(-time.Hour), "-30.00", "750.00"),
		paymentJSON(2, testNow.Add(-6*time.Hour), "-20.00", "780.00"),
		paymentJSON(1, testNow.Add(-19*time.Hour), "-5.00", "800.00"),
	)
	f.handle(http.MethodGet, paymentsPath, func(r *http.Request) (int, string) {
		if r.URL.Query().Get("older_id") != "" {
			return http.StatusOK, listBody("")
		}
		return http.StatusOK, firstPage
	})
	return f
}

func newTestRefresher(t *testing.T, f *fakeAPI, st *memStore) *Refresher {
	t.Helper()
	if st.auth == nil {
		st.auth = f.bundle(t)
	}
	r, err := NewRefresher(st, f.config(), Options{Now: func() time.Time { return testNow }})
	require.NoError(t, err)
	return r
}

func TestNewRefresher_NotOnboarded(t *testing.T) {
	_, err := NewRefresher(&memStore{}, bunq.Config{}, Options{})
	assert.ErrorIs(t, err, ErrNotOnboarded)
}

func TestNewRefresher_StaleCredentials(t *testing.T) {
	_, err := NewRefresher(&memStore{authErr: model.ErrStaleCredentials}, bunq.Config{}, Options{})
	assert.ErrorIs(t, err, ErrStaleCredentials)
}

func TestRefresh_ComputesAndCaches(t *testing.T) {
	f := standardAPI(t)
	st := &memStore{}
	r := newTestRefresher(t, f, st)

	var stages []string
	r.opts.Progress = func(s string) { stages = append(stages, s) }

	res, err := r.Refresh(ctxT(t), false)
	require.NoError(t, err)
	assert.False(t, res.FromCache)

	assert.Equal(t, model.Preferences{UserID: 42, AccountID: 7, AccountName: "Main"}, res.Account,
		"first active account is picked")
	assert.Equal(t, res.Account, *st.prefs, "selection is stored")

	b := res.Balance
	assert.True(t, b.TodayLeft.Equal(decimal.NewFromInt(23)), "today left = %s", b.TodayLeft)
	assert.InDelta(t, 23.0/73.0, b.TodayLeftPercent, 1e-9)
	assert.Equal(t, 16, b.DaysLeft)
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(-368)), "balance = %s", b.Balance)
	assert.Equal(t, testNow, b.ComputedAt)

	require.NotNil(t, st.balance)
	assert.True(t, st.balance.Balance.Equal(b.Balance))

	assert.Equal(t, 1, f.countPrefix("GET "+paymentsPath), "the page reaching yesterday ends paging")
	assert.Equal(t, []string{StageCache, StageSession, StageAccount, StagePayments, StageCompute}, stages)
}

func TestRefresh_ServesFreshCache(t *testing.T) {
	f := standardAPI(t)
	cached := model.Balance{ComputedAt: testNow.Add(-5 * time.Minute), TodayLeft: decimal.NewFromInt(10), DaysLeft: 16}
	st := &memStore{balance: &cached, prefs: &model.Preferences{UserID: 42, AccountID: 7, AccountName: "Main"}}
	r := newTestRefresher(t, f, st)

	res, err := r.Refresh(ctxT(t), false)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.True(t, res.Balance.TodayLeft.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "Main", res.Account.AccountName)
	assert.Empty(t, f.requests(), "no network traffic for a fresh cache")
}

func TestRefresh_CacheFromYesterdayFetches(t *testing.T) {
	f := standardAPI(t)
	midnight := time.Date(2024, 3, 11, 0, 5, 0, 0, time.UTC)
	cached := model.Balance{ComputedAt: midnight.Add(-10 * time.Minute), TodayLeft: decimal.Zero}
	st := &memStore{auth: f.bundle(t), balance: &cached, prefs: &model.Preferences{UserID: 42, AccountID: 7, AccountName: "Main"}}
	r, err := NewRefresher(st, f.config(), Options{Now: func() time.Time { return midnight }})
	require.NoError(t, err)

	res, err := r.Refresh(ctxT(t), false)
	require.NoError(t, err)
	assert.False(t, res.FromCache, "yesterday's balance is not reused after midnight")
	assert.Equal(t, midnight, st.balance.ComputedAt)
}

func TestRefresh_StaleCacheOrForceFetches(t *testing.T) {
	for name, tc := range map[string]struct {
		age   time.Duration
		force bool
	}{
		"expired": {age: 16 * time.Minute},
		"forced":  {age: time.Minute, force: true},
	} {
		t.Run(name, func(t *testing.T) {
			f := standardAPI(t)
			cached := model.Balance{ComputedAt: testNow.Add(-tc.age)}
			st := &memStore{balance: &cached}
			r := newTestRefresher(t, f, st)

			res, err := r.Refresh(ctxT(t), tc.force)
			require.NoError(t, err)
			assert.False(t, res.FromCache)
			assert.Equal(t, testNow, st.balance.ComputedAt)
		})
	}
}

func TestRefresh_StoredPreferenceForOtherUserIsReplaced(t *testing.T) {
	f := standardAPI(t)
	st := &memStore{prefs: &model.Preferences{UserID: 1, AccountID: 99}}
	r := newTestRefresher(t, f, st)

	res, err := r.Refresh(ctxT(t), true)
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Account.AccountID)
	assert.Equal(t, 1, f.count("GET "+accountsPath))
}

func TestRefresh_StoredPreferenceSkipsAccountListing(t *testing.T) {
	f := standardAPI(t)
	st := &memStore{prefs: &model.Preferences{UserID: 42, AccountID: 7, AccountName: "Main"}}
	r := newTestRefresher(t, f, st)

	_, err := r.Refresh(ctxT(t), true)
	require.NoError(t, err)
	for _, req := range f.requests() {
		assert.NotEqual(t, "GET "+accountsPath, req)
	}
}

func TestRefresh_NoActiveAccount(t *testing.T) {
	f := newFakeAPI(t)
	f.reply(http.MethodPost, sessionPath, http.StatusOK, sessionBody(42))
	f.reply(http.MethodGet, accountsPath, http.StatusOK, listBody("", accountJSON(6, "Old", "CANCELLED", "0.00")))
	r := newTestRefresher(t, f, &memStore{})

	_, err := r.Refresh(ctxT(t), true)
	assert.ErrorIs(t, err, ErrNoAccount)
}

func TestRefresh_FailureLeavesCacheUntouched(t *testing.T) {
	f := standardAPI(t)
	f.reply(http.MethodGet, paymentsPath, http.StatusInternalServerError, `{"Error":[{"error_description":"Down."}]}`)
	old := model.Balance{ComputedAt: testNow.Add(-time.Hour), TodayLeft: decimal.NewFromInt(5)}
	st := &memStore{balance: &old}
	r := newTestRefresher(t, f, st)

	_, err := r.Refresh(ctxT(t), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, bunq.ErrTransport)
	assert.Equal(t, old.ComputedAt, st.balance.ComputedAt)
}

func TestRefresh_RevokedKey(t *testing.T) {
	f := newFakeAPI(t)
	f.reply(http.MethodPost, sessionPath, http.StatusUnauthorized, `{"Error":[{"error_description":"Insufficient authorisation."}]}`)
	r := newTestRefresher(t, f, &memStore{})

	_, err := r.Refresh(ctxT(t), true)
	assert.ErrorIs(t, err, bunq.ErrUnauthorized)
	assert.Contains(t, err.Error(), "bunqday setup")
}

func TestRefresh_UntrustedServerSignature(t *testing.T) {
	f := standardAPI(t)
	st := &memStore{}
	b := f.bundle(t)
	_, client := testKeys(t)
	b.ServerPublicKey = &client.PublicKey
	st.auth = b
	r := newTestRefresher(t, f, st)

	_, err := r.Refresh(ctxT(t), true)
	assert.ErrorIs(t, err, bunq.ErrSignature)
	assert.Nil(t, st.balance)
}

func TestRecentPayments_FiltersToWindow(t *testing.T) {
	f := standardAPI(t)
	r := newTestRefresher(t, f, &memStore{})

	today, err := r.RecentPayments(ctxT(t), 1)
	require.NoError(t, err)
	require.Len(t, today, 2)
	assert.Equal(t, int64(3), today[0].ID)

	two, err := r.RecentPayments(ctxT(t), 2)
	require.NoError(t, err)
	assert.Len(t, two, 3)
}

func TestAccounts(t *testing.T) {
	f := standardAPI(t)
	r := newTestRefresher(t, f, &memStore{})

	accts, err := r.Accounts(ctxT(t))
	require.NoError(t, err)
	require.Len(t, accts, 2)
	assert.False(t, accts[0].Active())
	assert.True(t, accts[1].Active())
}

func TestSelectAccount(t *testing.T) {
	f := standardAPI(t)
	cached := model.Balance{ComputedAt: testNow}
	st := &memStore{balance: &cached}
	r := newTestRefresher(t, f, st)

	prefs, err := r.SelectAccount(ctxT(t), 8)
	require.NoError(t, err)
	assert.Equal(t, model.Preferences{UserID: 42, AccountID: 8, AccountName: "Bills"}, prefs)
	assert.Equal(t, prefs, *st.prefs)
	assert.False(t, st.balance.Fresh(testNow, time.Hour), "cached balance invalidated")

	_, err = r.SelectAccount(ctxT(t), 404)
	assert.Error(t, err)
}

func TestOnboard(t *testing.T) {
	f := newFakeAPI(t)
	serverPEM, err := keys.ExportPublicKeyPEM(&f.key.PublicKey)
	require.NoError(t, err)
	pemJSON, err := json.Marshal(serverPEM)
	require.NoError(t, err)
	f.reply(http.MethodPost, "/v1/installation", http.StatusOK,
		`{"Response":[{"Id":{"id":1}},{"Token":{"id":2,"token":"new-installation"}},{"ServerPublicKey":{"server_public_key":`+string(pemJSON)+`}}]}`)
	f.reply(http.MethodPost, "/v1/device-server", http.StatusOK, `{"Response":[{"Id":{"id":3}}]}`)

	st := &memStore{auth: f.bundle(t), prefs: &model.Preferences{UserID: 1, AccountID: 2}}
	c, err := bunq.NewClient(f.config())
	require.NoError(t, err)

	bundle, err := Onboard(ctxT(t), st, c, bunq.Device{Description: "bunqday", APIKey: "new-key"})
	require.NoError(t, err)
	assert.Equal(t, 1, st.cleared)
	assert.Same(t, bundle, st.auth)
	assert.Equal(t, "new-installation", st.auth.InstallationToken)
	assert.Equal(t, "new-key", st.auth.APIKey)
	assert.Nil(t, st.prefs, "old preferences cleared")
}

func TestOnboard_FailureLeavesStoreEmpty(t *testing.T) {
	f := newFakeAPI(t)
	f.reply(http.MethodPost, "/v1/installation", http.StatusBadRequest, `{"Error":[{"error_description":"Bad key."}]}`)

	st := &memStore{auth: f.bundle(t)}
	c, err := bunq.NewClient(f.config())
	require.NoError(t, err)

	_, err = Onboard(ctxT(t), st, c, bunq.Device{Description: "bunqday", APIKey: "key"})
	require.Error(t, err)
	var apiErr *bunq.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Nil(t, st.auth)
}

func TestOnboard_StoreFailure(t *testing.T) {
	f := newFakeAPI(t)
	serverPEM, err := keys.ExportPublicKeyPEM(&f.key.PublicKey)
	require.NoError(t, err)
	pemJSON, _ := json.Marshal(serverPEM)
	f.reply(http.MethodPost, "/v1/installation", http.StatusOK,
		`{"Response":[{"Token":{"id":2,"token":"t"}},{"ServerPublicKey":{"server_public_key":`+string(pemJSON)+`}}]}`)
	f.reply(http.MethodPost, "/v1/device-server", http.StatusOK, `{"Response":[{"Id":{"id":3}}]}`)

	st := &memStore{storeErr: errors.New("disk full")}
	c, err := bunq.NewClient(f.config())
	require.NoError(t, err)

	bundle, err := Onboard(ctxT(t), st, c, bunq.Device{Description: "bunqday", APIKey: "key"})
	assert.Error(t, err)
	assert.Nil(t, bundle)
}
