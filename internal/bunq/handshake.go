package bunq

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/theirongolddev/bunqday/internal/keys"
	"github.com/theirongolddev/bunqday/internal/model"
)

// Installation is the result of registering a client public key.
type Installation struct {
	Token           string
	ServerPublicKey *rsa.PublicKey
}

// Device describes the device-server registration.
type Device struct {
	Description  string
	APIKey       string
	PermittedIPs []string
}

type installationRequest struct {
	ClientPublicKey string `json:"client_public_key"`
}

type deviceRequest struct {
	Description  string   `json:"description"`
	Secret       string   `json:"secret"`
	PermittedIPs []string `json:"permitted_ips,omitempty"`
}

type sessionRequest struct {
	Secret string `json:"secret"`
}

// Install registers pub with the server. The call is unauthenticated and
// unsigned. The returned server key is trusted on first use: there is no
// other root of trust for it.
func (c *Client) Install(ctx context.Context, pub *rsa.PublicKey) (*Installation, error) {
	pemKey, err := keys.ExportPublicKeyPEM(pub)
	if err != nil {
		return nil, err
	}

	res, err := c.do(ctx, http.MethodPost, "/v1/installation", "", installationRequest{ClientPublicKey: pemKey})
	if err != nil {
		return nil, fmt.Errorf("bunq: installation: %w", err)
	}

	items, err := decodeHandshake(res.Items)
	if err != nil {
		return nil, err
	}

	inst := &Installation{}
	var serverPEM string
	for _, it := range items {
		if it.Token != nil {
			inst.Token = it.Token.Token
		}
		if it.ServerPublicKey != nil {
			serverPEM = it.ServerPublicKey.ServerPublicKey
		}
	}
	if inst.Token == "" {
		return nil, malformed("installation: no Token")
	}
	if serverPEM == "" {
		return nil, malformed("installation: no ServerPublicKey")
	}

	inst.ServerPublicKey, err = keys.ImportPublicKeyPEM(serverPEM)
	if err != nil {
		return nil, fmt.Errorf("bunq: installation: server key: %w", err)
	}
	return inst, nil
}

// RegisterDevice binds the API key to this installation. The client must
// carry the keypair used for Install.
func (c *Client) RegisterDevice(ctx context.Context, installationToken string, d Device) (int64, error) {
	body := deviceRequest{
		Description:  d.Description,
		Secret:       d.APIKey,
		PermittedIPs: d.PermittedIPs,
	}
	res, err := c.do(ctx, http.MethodPost, "/v1/device-server", installationToken, body)
	if err != nil {
		return 0, fmt.Errorf("bunq: device registration: %w", err)
	}

	items, err := decodeHandshake(res.Items)
	if err != nil {
		return 0, err
	}
	for _, it := range items {
		if it.ID != nil {
			return it.ID.ID, nil
		}
	}
	return 0, malformed("device registration: no Id")
}

// StartSession opens a new session for apiKey. The token is valid for one
// unit of work and is not cached by the client.
func (c *Client) StartSession(ctx context.Context, installationToken, apiKey string) (model.Session, error) {
	res, err := c.do(ctx, http.MethodPost, "/v1/session-server", installationToken, sessionRequest{Secret: apiKey})
	if err != nil {
		return model.Session{}, fmt.Errorf("bunq: session: %w", err)
	}

	items, err := decodeHandshake(res.Items)
	if err != nil {
		return model.Session{}, err
	}

	var sess model.Session
	for _, it := range items {
		if it.Token != nil {
			sess.Token = it.Token.Token
		}
		if u := it.user(); u != nil {
			sess.UserID = u.ID
		}
	}
	if sess.Token == "" {
		return model.Session{}, malformed("session: no Token")
	}
	if sess.UserID == 0 {
		return model.Session{}, malformed("session: no user object")
	}
	return sess, nil
}

// Bootstrap runs the installation and device registration steps with a
// freshly generated keypair. Any failure aborts the whole sequence and
// nothing is returned; persisting the bundle is the caller's job.
func Bootstrap(ctx context.Context, c *Client, d Device) (*model.AuthorizationBundle, error) {
	if d.APIKey == "" {
		return nil, fmt.Errorf("bunq: bootstrap: empty API key")
	}

	priv, err := keys.Generate()
	if err != nil {
		return nil, err
	}

	inst, err := c.Install(ctx, &priv.PublicKey)
	if err != nil {
		return nil, err
	}

	authed := c.WithKeys(priv, inst.ServerPublicKey)
	if _, err := authed.RegisterDevice(ctx, inst.Token, d); err != nil {
		return nil, err
	}

	return &model.AuthorizationBundle{
		PrivateKey:        priv,
		ServerPublicKey:   inst.ServerPublicKey,
		InstallationToken: inst.Token,
		APIKey:            d.APIKey,
	}, nil
}

func decodeHandshake(raw []json.RawMessage) ([]handshakeItem, error) {
	items := make([]handshakeItem, 0, len(raw))
	for _, r := range raw {
		var it handshakeItem
		if err := json.Unmarshal(r, &it); err != nil {
			return nil, malformed("handshake item: %v", err)
		}
		items = append(items, it)
	}
	return items, nil
}
