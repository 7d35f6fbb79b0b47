package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS credentials (
    name                 TEXT PRIMARY KEY,
    value                TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS preferences (
    id                   INTEGER PRIMARY KEY CHECK (id = 1),
    user_id              INTEGER NOT NULL,
    account_id           INTEGER NOT NULL,
    account_name         TEXT NOT NULL DEFAULT '',
    updated_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS balance_cache (
    id                   INTEGER PRIMARY KEY CHECK (id = 1),
    computed_at          TEXT NOT NULL,
    today_left           TEXT NOT NULL,
    today_left_percent   REAL NOT NULL,
    balance              TEXT NOT NULL,
    days_left            INTEGER NOT NULL
);
`

// Credential row names. An authorization is complete only when all four
// rows exist.
const (
	credPrivateKey        = "private_key"
	credServerPublicKey   = "server_public_key"
	credInstallationToken = "installation_token"
	credAPIKey            = "api_key"
)

var credentialNames = []string{credPrivateKey, credServerPublicKey, credInstallationToken, credAPIKey}
