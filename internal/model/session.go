// Package model defines the domain types shared by the bunq client, the
// budget calculator and the credential store.
package model

import (
	"crypto/rsa"
	"errors"
)

// ErrStaleCredentials means stored credentials are a mix of an old and a new
// identity, or onboarding tried to write over an identity that was not
// cleared first. The fix is always to clear everything and onboard again.
var ErrStaleCredentials = errors.New("stale credentials: clear stored data and run setup again")

// AuthorizationBundle is a fully bootstrapped client identity: the client's
// private key, the server key trusted at installation, the installation token
// and the API key registered as a device. It is created once by onboarding
// and never mutated afterwards.
type AuthorizationBundle struct {
	PrivateKey        *rsa.PrivateKey
	ServerPublicKey   *rsa.PublicKey
	InstallationToken string
	APIKey            string
}

// Complete reports whether every part of the bundle is present.
func (b *AuthorizationBundle) Complete() bool {
	return b != nil &&
		b.PrivateKey != nil &&
		b.ServerPublicKey != nil &&
		b.InstallationToken != "" &&
		b.APIKey != ""
}

// Preferences holds the user's account selection.
type Preferences struct {
	UserID      int64
	AccountID   int64
	AccountName string
}

// Session is a short-lived authenticated session. It is obtained at the start
// of every refresh and never persisted.
type Session struct {
	Token  string
	UserID int64
}
