package pipeline

import (
	"context"
	"fmt"

	"github.com/theirongolddev/bunqday/internal/bunq"
	"github.com/theirongolddev/bunqday/internal/logging"
	"github.com/theirongolddev/bunqday/internal/model"
)

// Onboard replaces whatever identity is stored with a freshly bootstrapped
// one for d.APIKey. Old credentials are cleared before the handshake so a
// failed run leaves the store empty rather than mixed.
func Onboard(ctx context.Context, st CredentialStore, c *bunq.Client, d bunq.Device) (*model.AuthorizationBundle, error) {
	if err := st.ClearAll(); err != nil {
		return nil, fmt.Errorf("clearing stored credentials: %w", err)
	}

	logging.Debugf("onboarding against %s", c.BaseURL())
	bundle, err := bunq.Bootstrap(ctx, c, d)
	if err != nil {
		return nil, err
	}

	if err := st.StoreAuthorization(bundle); err != nil {
		return nil, fmt.Errorf("storing authorization: %w", err)
	}
	logging.Infof("device registered")
	return bundle, nil
}
