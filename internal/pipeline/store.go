package pipeline

import (
	"errors"

	"github.com/theirongolddev/bunqday/internal/model"
)

var (
	// ErrStaleCredentials is returned when stored credentials mix two
	// identities. Clear everything and onboard again.
	ErrStaleCredentials = model.ErrStaleCredentials
	// ErrNotOnboarded means no authorization is stored yet.
	ErrNotOnboarded = errors.New("not set up: run `bunqday setup` first")
	// ErrNoAccount means the user has no active monetary account to track.
	ErrNoAccount = errors.New("no active monetary account found")
)

// CredentialStore is durable storage for the authorization bundle, the
// account selection and the cached balance. Load methods return nil with a
// nil error when nothing is stored.
type CredentialStore interface {
	LoadAuthorization() (*model.AuthorizationBundle, error)
	StoreAuthorization(*model.AuthorizationBundle) error
	LoadPreferences() (*model.Preferences, error)
	StorePreferences(model.Preferences) error
	LoadCachedBalance() (*model.Balance, error)
	StoreCachedBalance(model.Balance) error
	ClearAll() error
}
