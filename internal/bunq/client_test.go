package bunq

import (
	"errors"
	"net/http"
	"testing"

	"github.com/theirongolddev/bunqday/internal/keys"
	"github.com/theirongolddev/bunqday/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const accountsPath = "/v1/user/42/monetary-account"

const oneAccount = `{"Response":[{"MonetaryAccountBank":{"id":7,"description":"Main","currency":"EUR",` +
	`"status":"ACTIVE","balance":{"value":"1234.56","currency":"EUR"}}}],` +
	`"Pagination":{"future_url":null,"newer_url":null,"older_url":null}}`

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Config{})
	require.NoError(t, err)
	assert.Equal(t, ProductionURL, c.BaseURL())

	_, err = NewClient(Config{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestNewAuthorizedClient_RejectsIncompleteBundle(t *testing.T) {
	_, err := NewAuthorizedClient(Config{}, &model.AuthorizationBundle{APIKey: "k"})
	assert.Error(t, err)
}

func TestDo_SetsHeadersAndSigns(t *testing.T) {
	f := newFakeBunq(t)
	f.reply(http.MethodGet, accountsPath, http.StatusOK, oneAccount)
	c := f.authedClient(t)

	accts, err := c.ListMonetaryAccounts(ctxT(t), testSession, 0)
	require.NoError(t, err)
	require.Len(t, accts, 1)
	assert.Equal(t, int64(7), accts[0].ID)
	assert.Equal(t, "1234.56", accts[0].Balance.StringFixed(2))

	reqs := f.recorded()
	require.Len(t, reqs, 1)
	h := reqs[0].Header
	assert.Equal(t, "no-cache", h.Get("Cache-Control"))
	assert.Contains(t, h.Get("User-Agent"), "bunqday")
	assert.Equal(t, "session-token", h.Get(headerAuthentication))
	assert.NotEmpty(t, h.Get(headerRequestID))
	assert.NotEmpty(t, h.Get(headerClientSignature))

	_, clientKey := fixtureKeys(t)
	ok, err := keys.Verify(reqs[0].Body, h.Get(headerClientSignature), &clientKey.PublicKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDo_UnauthenticatedCallIsNotSigned(t *testing.T) {
	f := newFakeBunq(t)
	f.reply(http.MethodPost, "/v1/installation", http.StatusOK, `{"Response":[{"Id":{"id":1}}]}`)
	c := f.authedClient(t)

	_, err := c.do(ctxT(t), http.MethodPost, "/v1/installation", "", map[string]string{"a": "b"})
	require.NoError(t, err)

	h := f.recorded()[0].Header
	assert.Empty(t, h.Get(headerAuthentication))
	assert.Empty(t, h.Get(headerClientSignature))
}

func TestDo_NoPrivateKeyMeansNoSignature(t *testing.T) {
	f := newFakeBunq(t)
	f.reply(http.MethodGet, accountsPath, http.StatusOK, oneAccount)
	c := f.client(t)

	_, err := c.ListMonetaryAccounts(ctxT(t), testSession, 0)
	require.NoError(t, err)

	h := f.recorded()[0].Header
	assert.Equal(t, "session-token", h.Get(headerAuthentication))
	assert.Empty(t, h.Get(headerClientSignature))
}

func TestDo_MissingServerSignature(t *testing.T) {
	f := newFakeBunq(t)
	f.reply(http.MethodGet, accountsPath, http.StatusOK, oneAccount)
	f.unsigned = true
	c := f.authedClient(t)

	_, err := c.ListMonetaryAccounts(ctxT(t), testSession, 0)
	assert.ErrorIs(t, err, ErrMissingSignature)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestDo_ServerSignatureMismatch(t *testing.T) {
	f := newFakeBunq(t)
	f.reply(http.MethodGet, accountsPath, http.StatusOK, oneAccount)
	f.tamper = true
	c := f.authedClient(t)

	_, err := c.ListMonetaryAccounts(ctxT(t), testSession, 0)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestDo_WrongServerKeyIsMismatch(t *testing.T) {
	f := newFakeBunq(t)
	f.reply(http.MethodGet, accountsPath, http.StatusOK, oneAccount)
	_, clientKey := fixtureKeys(t)
	c := f.authedClient(t).WithKeys(clientKey, &clientKey.PublicKey)

	_, err := c.ListMonetaryAccounts(ctxT(t), testSession, 0)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestDo_StatusErrorCarriesAPIDescription(t *testing.T) {
	f := newFakeBunq(t)
	f.reply(http.MethodGet, accountsPath, http.StatusBadRequest, errorBody("Insufficient authorisation."))
	c := f.authedClient(t)

	_, err := c.ListMonetaryAccounts(ctxT(t), testSession, 0)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrUnauthorized)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, []string{"Insufficient authorisation."}, apiErr.Descriptions)
}

func TestDo_StatusSentinels(t *testing.T) {
	for _, tt := range []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrRateLimited},
	} {
		f := newFakeBunq(t)
		f.reply(http.MethodGet, accountsPath, tt.status, "")
		c := f.authedClient(t)

		_, err := c.ListMonetaryAccounts(ctxT(t), testSession, 0)
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		assert.ErrorIs(t, err, ErrTransport, "status %d", tt.status)
	}
}

func TestDo_ErrorPayloadOnSuccessStatus(t *testing.T) {
	f := newFakeBunq(t)
	f.reply(http.MethodGet, accountsPath, http.StatusOK, errorBody("Something odd."))
	c := f.authedClient(t)

	_, err := c.ListMonetaryAccounts(ctxT(t), testSession, 0)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Contains(t, apiErr.Error(), "Something odd.")
}

func TestDo_MalformedResponses(t *testing.T) {
	for name, resp := range map[string]fakeResponse{
		"no response or error": {Body: `{"Something":[]}`},
		"not json":             {Body: `<html>oops</html>`, ContentType: "text/html"},
		"broken json":          {Body: `{"Response":[`},
		"bad amount":           {Body: `{"Response":[{"MonetaryAccountBank":{"id":1,"balance":{"value":"abc"}}}]}`},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFakeBunq(t)
			f.handle(http.MethodGet, accountsPath, func(*http.Request, []byte) fakeResponse { return resp })
			c := f.authedClient(t)

			_, err := c.ListMonetaryAccounts(ctxT(t), testSession, 0)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestDo_TransportError(t *testing.T) {
	f := newFakeBunq(t)
	c := f.authedClient(t)
	f.srv.Close()

	_, err := c.ListMonetaryAccounts(ctxT(t), testSession, 0)
	var te *TransportError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestResolve_RejectsForeignHost(t *testing.T) {
	f := newFakeBunq(t)
	c := f.client(t)

	_, err := c.resolve("https://evil.example.com/v1/user/1/monetary-account")
	assert.ErrorIs(t, err, ErrMalformedResponse)

	u, err := c.resolve("/v1/user/1/monetary-account/2/payment?count=10&older_id=99")
	require.NoError(t, err)
	assert.Equal(t, f.srv.URL+"/v1/user/1/monetary-account/2/payment?count=10&older_id=99", u)
}
