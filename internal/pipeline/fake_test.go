package pipeline

import (
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/theirongolddev/bunqday/internal/bunq"
	"github.com/theirongolddev/bunqday/internal/keys"
	"github.com/theirongolddev/bunqday/internal/model"
)

var (
	keysOnce  sync.Once
	serverKey *rsa.PrivateKey
	clientKey *rsa.PrivateKey
)

func testKeys(t *testing.T) (server, client *rsa.PrivateKey) {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		if serverKey, err = keys.Generate(); err != nil {
			t.Fatalf("generate: %v", err)
		}
		if clientKey, err = keys.Generate(); err != nil {
			t.Fatalf("generate: %v", err)
		}
	})
	return serverKey, clientKey
}

// memStore is an in-memory CredentialStore.
type memStore struct {
	mu       sync.Mutex
	auth     *model.AuthorizationBundle
	authErr  error
	prefs    *model.Preferences
	balance  *model.Balance
	cleared  int
	storeErr error
}

func (m *memStore) LoadAuthorization() (*model.AuthorizationBundle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auth, m.authErr
}

func (m *memStore) StoreAuthorization(b *model.AuthorizationBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	if m.auth != nil {
		return model.ErrStaleCredentials
	}
	m.auth = b
	return nil
}

func (m *memStore) LoadPreferences() (*model.Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prefs == nil {
		return nil, nil
	}
	p := *m.prefs
	return &p, nil
}

func (m *memStore) StorePreferences(p model.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = &p
	return nil
}

func (m *memStore) LoadCachedBalance() (*model.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balance == nil {
		return nil, nil
	}
	b := *m.balance
	return &b, nil
}

func (m *memStore) StoreCachedBalance(b model.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = &b
	return nil
}

func (m *memStore) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auth, m.prefs, m.balance = nil, nil, nil
	m.cleared++
	return nil
}

// fakeAPI serves canned bodies per path and signs every response with the
// server test key.
type fakeAPI struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	mu     sync.Mutex
	routes map[string]func(r *http.Request) (int, string)
	hits   []string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	server, _ := testKeys(t)
	f := &fakeAPI{key: server, routes: map[string]func(*http.Request) (int, string){}}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)

		f.mu.Lock()
		f.hits = append(f.hits, r.Method+" "+r.URL.RequestURI())
		route := f.routes[r.Method+" "+r.URL.Path]
		f.mu.Unlock()

		status, body := http.StatusNotFound, `{"Error":[{"error_description":"Route not found."}]}`
		if route != nil {
			status, body = route(r)
		}
		sig, err := keys.Sign([]byte(body), f.key)
		if err != nil {
			t.Errorf("sign: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Bunq-Server-Signature", sig)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) reply(method, path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = func(*http.Request) (int, string) { return status, body }
}

func (f *fakeAPI) handle(method, path string, fn func(r *http.Request) (int, string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = fn
}

func (f *fakeAPI) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hits...)
}

func (f *fakeAPI) countPrefix(prefix string) int {
	n := 0
	for _, h := range f.requests() {
		if strings.HasPrefix(h, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeAPI) count(request string) int {
	n := 0
	for _, h := range f.requests() {
		if h == request {
			n++
		}
	}
	return n
}

func (f *fakeAPI) config() bunq.Config {
	return bunq.Config{BaseURL: f.srv.URL, Timeout: 5 * time.Second}
}

func (f *fakeAPI) bundle(t *testing.T) *model.AuthorizationBundle {
	t.Helper()
	server, client := testKeys(t)
	return &model.AuthorizationBundle{
		PrivateKey:        client,
		ServerPublicKey:   &server.PublicKey,
		InstallationToken: "installation-token",
		APIKey:            "api-key",
	}
}

func sessionBody(userID int64) string {
	return fmt.Sprintf(`{"Response":[{"Id":{"id":1}},{"Token":{"id":2,"token":"session-token"}},`+
		`{"UserPerson":{"id":%d,"display_name":"Sam"}}]}`, userID)
}

func accountJSON(id int64, desc, status, balance string) string {
	return fmt.Sprintf(`{"MonetaryAccountBank":{"id":%d,"description":%q,"status":%q,"currency":"EUR",`+
		`"balance":{"value":%q,"currency":"EUR"}}}`, id, desc, status, balance)
}

func paymentJSON(id int64, created time.Time, amount, after string) string {
	return fmt.Sprintf(`{"Payment":{"id":%d,"created":%q,"description":"payment %d",`+
		`"amount":{"value":%q,"currency":"EUR"},"balance_after_mutation":{"value":%q,"currency":"EUR"},`+
		`"counterparty_alias":{"display_name":"Shop %d"}}}`,
		id, created.UTC().Format("2006-01-02 15:04:05.000000"), id, amount, after, id)
}

func listBody(older string, items ...string) string {
	olderJSON := "null"
	if older != "" {
		olderJSON = fmt.Sprintf("%q", older)
	}
	return `{"Response":[` + strings.Join(items, ",") +
		`],"Pagination":{"future_url":null,"newer_url":null,"older_url":` + olderJSON + `}}`
}
