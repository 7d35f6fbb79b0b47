package bunq

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/theirongolddev/bunqday/internal/keys"
	"github.com/theirongolddev/bunqday/internal/model"
)

var (
	fixtureKeysOnce sync.Once
	serverTestKey   *rsa.PrivateKey
	clientTestKey   *rsa.PrivateKey
)

func fixtureKeys(t *testing.T) (server, client *rsa.PrivateKey) {
	t.Helper()
	fixtureKeysOnce.Do(func() {
		var err error
		if serverTestKey, err = keys.Generate(); err != nil {
			t.Fatalf("generate server key: %v", err)
		}
		if clientTestKey, err = keys.Generate(); err != nil {
			t.Fatalf("generate client key: %v", err)
		}
	})
	return serverTestKey, clientTestKey
}

type recordedRequest struct {
	Method string
	URI    string
	Header http.Header
	Body   []byte
}

type fakeResponse struct {
	Status      int
	Body        string
	ContentType string
}

type routeFunc func(r *http.Request, body []byte) fakeResponse

// fakeBunq is an httptest server that speaks enough of the bunq protocol:
// it signs responses with its own key and checks client signatures with the
// key registered at installation.
type fakeBunq struct {
	t   *testing.T
	srv *httptest.Server
	key *rsa.PrivateKey

	mu        sync.Mutex
	clientKey *rsa.PublicKey
	requests  []recordedRequest
	routes    map[string]routeFunc

	unsigned bool // omit X-Bunq-Server-Signature
	tamper   bool // sign something other than the body
}

func newFakeBunq(t *testing.T) *fakeBunq {
	t.Helper()
	serverKey, _ := fixtureKeys(t)
	f := &fakeBunq{t: t, key: serverKey, routes: map[string]routeFunc{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBunq) handle(method, path string, fn routeFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = fn
}

func (f *fakeBunq) reply(method, path string, status int, body string) {
	f.handle(method, path, func(*http.Request, []byte) fakeResponse {
		return fakeResponse{Status: status, Body: body}
	})
}

func (f *fakeBunq) client(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: f.srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// authedClient returns a client holding the fixture client key and trusting
// the fake's server key, as if onboarding already happened.
func (f *fakeBunq) authedClient(t *testing.T) *Client {
	t.Helper()
	_, clientKey := fixtureKeys(t)
	f.mu.Lock()
	f.clientKey = &clientKey.PublicKey
	f.mu.Unlock()
	return f.client(t).WithKeys(clientKey, &f.key.PublicKey)
}

func (f *fakeBunq) serverPEM(t *testing.T) string {
	t.Helper()
	s, err := keys.ExportPublicKeyPEM(&f.key.PublicKey)
	if err != nil {
		t.Fatalf("export server key: %v", err)
	}
	return s
}

func (f *fakeBunq) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *fakeBunq) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		URI:    r.URL.RequestURI(),
		Header: r.Header.Clone(),
		Body:   body,
	})
	route := f.routes[r.Method+" "+r.URL.Path]
	clientKey := f.clientKey
	f.mu.Unlock()

	if r.URL.Path == "/v1/installation" {
		var req installationRequest
		if err := json.Unmarshal(body, &req); err == nil {
			if pub, err := keys.ImportPublicKeyPEM(req.ClientPublicKey); err == nil {
				f.mu.Lock()
				f.clientKey = pub
				f.mu.Unlock()
			}
		}
	} else if clientKey != nil && r.Header.Get(headerAuthentication) != "" {
		ok, err := keys.Verify(body, r.Header.Get(headerClientSignature), clientKey)
		if err != nil || !ok {
			f.write(w, fakeResponse{Status: http.StatusBadRequest, Body: errorBody("Request signature is invalid.")})
			return
		}
	}

	if route == nil {
		f.write(w, fakeResponse{Status: http.StatusNotFound, Body: errorBody("Route not found.")})
		return
	}
	f.write(w, route(r, body))
}

func (f *fakeBunq) write(w http.ResponseWriter, resp fakeResponse) {
	ct := resp.ContentType
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)

	f.mu.Lock()
	unsigned, tamper := f.unsigned, f.tamper
	f.mu.Unlock()

	if !unsigned {
		signed := []byte(resp.Body)
		if tamper {
			signed = append(signed, ' ')
		}
		sig, err := keys.Sign(signed, f.key)
		if err != nil {
			f.t.Errorf("sign response: %v", err)
		}
		w.Header().Set(headerServerSignature, sig)
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp.Body)
}

func errorBody(desc string) string {
	return fmt.Sprintf(`{"Error":[{"error_description":%q,"error_description_translated":%q}]}`, desc, desc)
}

func paymentJSON(id int64, created time.Time, amount, after string) string {
	return fmt.Sprintf(`{"Payment":{"id":%d,"created":%q,"description":"payment %d",`+
		`"amount":{"value":%q,"currency":"EUR"},"balance_after_mutation":{"value":%q,"currency":"EUR"},`+
		`"counterparty_alias":{"display_name":"Shop %d"}}}`,
		id, created.UTC().Format(timeLayout), id, amount, after, id)
}

func listBody(items []string, older, newer string) string {
	olderJSON, newerJSON := "null", "null"
	if older != "" {
		olderJSON = fmt.Sprintf("%q", older)
	}
	if newer != "" {
		newerJSON = fmt.Sprintf("%q", newer)
	}
	out := `{"Response":[`
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out + fmt.Sprintf(`],"Pagination":{"future_url":null,"newer_url":%s,"older_url":%s}}`, newerJSON, olderJSON)
}

var testSession = model.Session{Token: "session-token", UserID: 42}

func ctxT(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)
	return ctx
}
