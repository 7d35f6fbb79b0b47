package bunq

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/theirongolddev/bunqday/internal/keys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func installationBody(t *testing.T, f *fakeBunq) string {
	t.Helper()
	pemJSON, err := json.Marshal(f.serverPEM(t))
	require.NoError(t, err)
	return fmt.Sprintf(`{"Response":[{"Id":{"id":11}},{"Token":{"id":12,"token":"installation-token"}},`+
		`{"ServerPublicKey":{"server_public_key":%s}}]}`, pemJSON)
}

func TestBootstrap_InstallsThenRegistersSignedDevice(t *testing.T) {
	f := newFakeBunq(t)
	f.reply(http.MethodPost, "/v1/installation", http.StatusOK, installationBody(t, f))
	f.reply(http.MethodPost, "/v1/device-server", http.StatusOK, `{"Response":[{"Id":{"id":99}}]}`)

	bundle, err := Bootstrap(ctxT(t), f.client(t), Device{Description: "bunqday", APIKey: "api-key"})
	require.NoError(t, err)
	require.True(t, bundle.Complete())
	assert.Equal(t, "installation-token", bundle.InstallationToken)
	assert.Equal(t, "api-key", bundle.APIKey)
	assert.True(t, bundle.ServerPublicKey.Equal(&f.key.PublicKey), "server key trusted on first use")

	reqs := f.recorded()
	require.Len(t, reqs, 2)

	install := reqs[0]
	assert.Equal(t, "/v1/installation", install.URI)
	assert.Empty(t, install.Header.Get(headerAuthentication))
	assert.Empty(t, install.Header.Get(headerClientSignature))
	var ireq installationRequest
	require.NoError(t, json.Unmarshal(install.Body, &ireq))
	sentKey, err := keys.ImportPublicKeyPEM(ireq.ClientPublicKey)
	require.NoError(t, err)
	assert.True(t, sentKey.Equal(&bundle.PrivateKey.PublicKey))

	device := reqs[1]
	assert.Equal(t, "/v1/device-server", device.URI)
	assert.Equal(t, "installation-token", device.Header.Get(headerAuthentication))
	ok, err := keys.Verify(device.Body, device.Header.Get(headerClientSignature), &bundle.PrivateKey.PublicKey)
	require.NoError(t, err)
	assert.True(t, ok, "device registration signed with the new key")

	var dreq deviceRequest
	require.NoError(t, json.Unmarshal(device.Body, &dreq))
	assert.Equal(t, "api-key", dreq.Secret)
	assert.Equal(t, "bunqday", dreq.Description)
	assert.Nil(t, dreq.PermittedIPs)
}

func TestBootstrap_EmptyAPIKey(t *testing.T) {
	f := newFakeBunq(t)
	_, err := Bootstrap(ctxT(t), f.client(t), Device{Description: "x"})
	require.Error(t, err)
	assert.Empty(t, f.recorded(), "nothing is sent without a key")
}

func TestBootstrap_DeviceFailureAborts(t *testing.T) {
	f := newFakeBunq(t)
	f.reply(http.MethodPost, "/v1/installation", http.StatusOK, installationBody(t, f))
	f.reply(http.MethodPost, "/v1/device-server", http.StatusBadRequest, errorBody("User credentials are incorrect."))

	bundle, err := Bootstrap(ctxT(t), f.client(t), Device{Description: "bunqday", APIKey: "wrong"})
	require.Error(t, err)
	assert.Nil(t, bundle)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, []string{"User credentials are incorrect."}, apiErr.Descriptions)
}

func TestInstall_MissingPieces(t *testing.T) {
	for name, body := range map[string]string{
		"no token":      `{"Response":[{"Id":{"id":1}},{"ServerPublicKey":{"server_public_key":"abc"}}]}`,
		"no server key": `{"Response":[{"Id":{"id":1}},{"Token":{"id":2,"token":"t"}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFakeBunq(t)
			f.reply(http.MethodPost, "/v1/installation", http.StatusOK, body)
			_, clientKey := fixtureKeys(t)

			_, err := f.client(t).Install(ctxT(t), &clientKey.PublicKey)
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestInstall_BadServerKey(t *testing.T) {
	f := newFakeBunq(t)
	f.reply(http.MethodPost, "/v1/installation", http.StatusOK,
		`{"Response":[{"Token":{"id":2,"token":"t"}},{"ServerPublicKey":{"server_public_key":"not a key"}}]}`)
	_, clientKey := fixtureKeys(t)

	_, err := f.client(t).Install(ctxT(t), &clientKey.PublicKey)
	assert.ErrorIs(t, err, keys.ErrCrypto)
}

func TestStartSession(t *testing.T) {
	for name, tc := range map[string]struct {
		userWrapper string
	}{
		"person":  {"UserPerson"},
		"company": {"UserCompany"},
		"api key": {"UserApiKey"},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFakeBunq(t)
			f.reply(http.MethodPost, "/v1/session-server", http.StatusOK, fmt.Sprintf(
				`{"Response":[{"Id":{"id":5}},{"Token":{"id":6,"token":"session-token"}},{%q:{"id":4242,"display_name":"Sam"}}]}`,
				tc.userWrapper))
			c := f.authedClient(t)

			sess, err := c.StartSession(ctxT(t), "installation-token", "api-key")
			require.NoError(t, err)
			assert.Equal(t, "session-token", sess.Token)
			assert.Equal(t, int64(4242), sess.UserID)

			req := f.recorded()[0]
			assert.Equal(t, "installation-token", req.Header.Get(headerAuthentication))
			assert.JSONEq(t, `{"secret":"api-key"}`, string(req.Body))
		})
	}
}

func TestStartSession_MalformedHandshake(t *testing.T) {
	for name, body := range map[string]string{
		"no token": `{"Response":[{"Id":{"id":5}},{"UserPerson":{"id":1}}]}`,
		"no user":  `{"Response":[{"Id":{"id":5}},{"Token":{"id":6,"token":"s"}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFakeBunq(t)
			f.reply(http.MethodPost, "/v1/session-server", http.StatusOK, body)
			c := f.authedClient(t)

			_, err := c.StartSession(ctxT(t), "installation-token", "api-key")
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestStartSession_RevokedKey(t *testing.T) {
	f := newFakeBunq(t)
	f.reply(http.MethodPost, "/v1/session-server", http.StatusUnauthorized, errorBody("Insufficient authorisation."))
	c := f.authedClient(t)

	_, err := c.StartSession(ctxT(t), "installation-token", "api-key")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
