// Package store provides the SQLite-backed credential store: the
// authorization bundle, account preferences and the cached balance.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/bunqday/internal/keys"
	"github.com/theirongolddev/bunqday/internal/model"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // register sqlite driver
)

// Store is a credential store backed by a single SQLite file.
type Store struct {
	db *sql.DB
}

// DataDir returns the XDG-compliant data directory.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "bunqday")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "bunqday")
}

// DefaultPath is where the store lives unless told otherwise.
func DefaultPath() string {
	return filepath.Join(DataDir(), "bunqday.db")
}

// Open opens or creates the store at the given path. The path ":memory:"
// opens a private in-memory database.
func Open(dbPath string) (*Store, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating store dir: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening store db: %w", err)
	}
	// Every connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if dbPath != ":memory:" {
		// The file holds a private key.
		_ = os.Chmod(dbPath, 0o600)
	}
	return &Store{db: db}, nil
}

// Close closes the store database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadAuthorization returns the stored bundle, or nil if nothing is stored.
// Finding some but not all parts, or parts that fail to decode, is reported
// as model.ErrStaleCredentials.
func (s *Store) LoadAuthorization() (*model.AuthorizationBundle, error) {
	rows, err := s.db.Query("SELECT name, value FROM credentials")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	values := make(map[string]string, len(credentialNames))
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		values[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(values) == 0 {
		return nil, nil
	}
	for _, name := range credentialNames {
		if values[name] == "" {
			return nil, fmt.Errorf("%w: %s missing", model.ErrStaleCredentials, name)
		}
	}

	priv, err := keys.ImportPrivateKeyPEM(values[credPrivateKey])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStaleCredentials, err)
	}
	server, err := keys.ImportPublicKeyPEM(values[credServerPublicKey])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrStaleCredentials, err)
	}

	return &model.AuthorizationBundle{
		PrivateKey:        priv,
		ServerPublicKey:   server,
		InstallationToken: values[credInstallationToken],
		APIKey:            values[credAPIKey],
	}, nil
}

// StoreAuthorization persists a complete bundle. It refuses to write over
// an existing identity: callers must ClearAll first.
func (s *Store) StoreAuthorization(b *model.AuthorizationBundle) error {
	if !b.Complete() {
		return errors.New("store: incomplete authorization bundle")
	}
	privPEM, err := keys.ExportPrivateKeyPEM(b.PrivateKey)
	if err != nil {
		return err
	}
	serverPEM, err := keys.ExportPublicKeyPEM(b.ServerPublicKey)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	if err := tx.QueryRow("SELECT COUNT(*) FROM credentials").Scan(&existing); err != nil {
		return err
	}
	if existing > 0 {
		return fmt.Errorf("%w: an authorization is already stored", model.ErrStaleCredentials)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for name, value := range map[string]string{
		credPrivateKey:        privPEM,
		credServerPublicKey:   serverPEM,
		credInstallationToken: b.InstallationToken,
		credAPIKey:            b.APIKey,
	} {
		if _, err := tx.Exec("INSERT INTO credentials (name, value, updated_at) VALUES (?, ?, ?)", name, value, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadPreferences returns the stored account selection, or nil.
func (s *Store) LoadPreferences() (*model.Preferences, error) {
	var p model.Preferences
	err := s.db.QueryRow("SELECT user_id, account_id, account_name FROM preferences WHERE id = 1").
		Scan(&p.UserID, &p.AccountID, &p.AccountName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// StorePreferences replaces the account selection.
func (s *Store) StorePreferences(p model.Preferences) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO preferences (id, user_id, account_id, account_name, updated_at)
		VALUES (1, ?, ?, ?, ?)`,
		p.UserID, p.AccountID, p.AccountName, time.Now().UTC().Format(time.RFC3339))
	return err
}

// LoadCachedBalance returns the last computed balance, or nil.
func (s *Store) LoadCachedBalance() (*model.Balance, error) {
	var computedAt, todayLeft, balance string
	var b model.Balance
	err := s.db.QueryRow(`SELECT computed_at, today_left, today_left_percent, balance, days_left
		FROM balance_cache WHERE id = 1`).
		Scan(&computedAt, &todayLeft, &b.TodayLeftPercent, &balance, &b.DaysLeft)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if b.ComputedAt, err = time.Parse(time.RFC3339Nano, computedAt); err != nil {
		return nil, fmt.Errorf("cached balance timestamp: %w", err)
	}
	if b.TodayLeft, err = decimal.NewFromString(todayLeft); err != nil {
		return nil, fmt.Errorf("cached today_left: %w", err)
	}
	if b.Balance, err = decimal.NewFromString(balance); err != nil {
		return nil, fmt.Errorf("cached balance: %w", err)
	}
	return &b, nil
}

// StoreCachedBalance replaces the cached balance.
func (s *Store) StoreCachedBalance(b model.Balance) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO balance_cache
		(id, computed_at, today_left, today_left_percent, balance, days_left)
		VALUES (1, ?, ?, ?, ?, ?)`,
		b.ComputedAt.UTC().Format(time.RFC3339Nano), b.TodayLeft.String(), b.TodayLeftPercent,
		b.Balance.String(), b.DaysLeft,
	)
	return err
}

// ClearAll deletes credentials, preferences and the cached balance.
func (s *Store) ClearAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"credentials", "preferences", "balance_cache"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return tx.Commit()
}
