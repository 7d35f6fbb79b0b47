// Package bunq is a client for the bunq public API: signed requests,
// server signature verification, the installation/device/session handshake
// and cursor pagination.
package bunq

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/theirongolddev/bunqday/internal/keys"
	"github.com/theirongolddev/bunqday/internal/logging"
	"github.com/theirongolddev/bunqday/internal/model"

	"github.com/google/uuid"
)

const (
	// ProductionURL is the live bunq API.
	ProductionURL = "https://api.bunq.com"
	// SandboxURL is bunq's public sandbox.
	SandboxURL = "https://public-api.sandbox.bunq.com"

	defaultTimeout   = 15 * time.Second
	defaultUserAgent = "bunqday/1.0"
	maxBodySize      = 4 << 20 // 4 MB

	headerAuthentication  = "X-Bunq-Client-Authentication"
	headerClientSignature = "X-Bunq-Client-Signature"
	headerServerSignature = "X-Bunq-Server-Signature"
	headerRequestID       = "X-Bunq-Client-Request-Id"
	headerLanguage        = "X-Bunq-Language"
	headerRegion          = "X-Bunq-Region"
	headerGeolocation     = "X-Bunq-Geolocation"
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	UserAgent  string
	Language   string
	Region     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client issues requests against the bunq API. It is immutable: WithKeys
// returns a copy bound to a keypair.
type Client struct {
	base      *url.URL
	userAgent string
	language  string
	region    string
	timeout   time.Duration
	http      *http.Client

	privateKey *rsa.PrivateKey
	serverKey  *rsa.PublicKey
}

// NewClient creates an unauthenticated client. Requests are neither signed
// nor verified until keys are attached with WithKeys.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimRight(cfg.BaseURL, "/")
	if raw == "" {
		raw = ProductionURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("bunq: invalid base URL %q", cfg.BaseURL)
	}

	c := &Client{
		base:      base,
		userAgent: cfg.UserAgent,
		language:  cfg.Language,
		region:    cfg.Region,
		timeout:   cfg.Timeout,
		http:      cfg.HTTPClient,
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.language == "" {
		c.language = "en_US"
	}
	if c.region == "" {
		c.region = "nl_NL"
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c, nil
}

// NewAuthorizedClient creates a client bound to a bootstrapped identity.
func NewAuthorizedClient(cfg Config, bundle *model.AuthorizationBundle) (*Client, error) {
	if !bundle.Complete() {
		return nil, errors.New("bunq: incomplete authorization")
	}
	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return c.WithKeys(bundle.PrivateKey, bundle.ServerPublicKey), nil
}

// WithKeys returns a copy of c that signs authenticated requests with priv
// and, when server is non-nil, requires responses signed by server.
func (c *Client) WithKeys(priv *rsa.PrivateKey, server *rsa.PublicKey) *Client {
	cp := *c
	cp.privateKey = priv
	cp.serverKey = server
	return &cp
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// result is a verified, decoded response.
type result struct {
	Items      []json.RawMessage
	Pagination *Pagination
}

// do performs one request. token selects the authentication header; an
// empty token means an unauthenticated call, which is never signed.
func (c *Client) do(ctx context.Context, method, target, token string, body any) (*result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint, err := c.resolve(target)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("bunq: encoding request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("bunq: creating request: %w", err)
	}

	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerRequestID, uuid.NewString())
	req.Header.Set(headerLanguage, c.language)
	req.Header.Set(headerRegion, c.region)
	req.Header.Set(headerGeolocation, "0 0 0 0 000")

	if token != "" {
		req.Header.Set(headerAuthentication, token)
		if c.privateKey != nil {
			sig, err := keys.Sign(payload, c.privateKey)
			if err != nil {
				return nil, err
			}
			req.Header.Set(headerClientSignature, sig)
		}
	}

	logging.Debugf("%s %s", method, req.URL.Path)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, URL: req.URL.Path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Method: method, URL: req.URL.Path, Err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, &StatusError{StatusCode: resp.StatusCode, API: parseAPIError(raw)}
	}

	if len(raw) > 0 && !isJSON(resp.Header.Get("Content-Type")) {
		return nil, malformed("content type %q", resp.Header.Get("Content-Type"))
	}

	if c.serverKey != nil {
		if err := c.verify(resp.Header.Get(headerServerSignature), raw); err != nil {
			return nil, err
		}
	}

	return decodeEnvelope(raw)
}

// resolve turns a path or cursor URL into an absolute URL on the API host.
// Cursors pointing at a different host are rejected.
func (c *Client) resolve(target string) (string, error) {
	ref, err := url.Parse(target)
	if err != nil {
		return "", malformed("url %q: %v", target, err)
	}
	if ref.IsAbs() && ref.Host != c.base.Host {
		return "", malformed("url %q is not on %s", target, c.base.Host)
	}
	u := c.base.ResolveReference(ref)
	if !ref.IsAbs() && !strings.HasPrefix(ref.Path, "/") {
		u = c.base.JoinPath(ref.Path)
		u.RawQuery = ref.RawQuery
	}
	return u.String(), nil
}

func (c *Client) verify(signature string, body []byte) error {
	if signature == "" {
		return ErrMissingSignature
	}
	ok, err := keys.Verify(body, signature, c.serverKey)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
	}
	if !ok {
		return ErrSignatureMismatch
	}
	return nil
}

func decodeEnvelope(raw []byte) (*result, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, malformed("decoding body: %v", err)
	}
	if env.Response != nil {
		return &result{Items: env.Response, Pagination: env.Pagination}, nil
	}
	if len(env.Error) > 0 {
		return nil, apiErrorFrom(env.Error)
	}
	return nil, malformed("neither Response nor Error present")
}

func parseAPIError(raw []byte) *APIError {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Error) == 0 {
		return nil
	}
	return apiErrorFrom(env.Error)
}

func apiErrorFrom(items []errorItem) *APIError {
	e := &APIError{}
	for _, it := range items {
		d := it.Description
		if d == "" {
			d = it.DescriptionTranslated
		}
		e.Descriptions = append(e.Descriptions, d)
	}
	return e
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}
