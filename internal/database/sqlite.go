package database

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/professor93/cunzhi/internal/security"
	"github.com/professor93/cunzhi/pkg/constants"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// ErrSettingNotFound is returned by GetSetting for unknown keys
var ErrSettingNotFound = errors.New("setting not found")

// DB is the settings database backing the sqlite configuration store
type DB struct {
	conn   *sql.DB
	sealer *security.Sealer
	dbPath string
	mu     sync.RWMutex
}

// Config holds database configuration
type Config struct {
	DataDir string           // Directory for the database file
	Sealer  *security.Sealer // Optional; values are stored sealed when set
}

// New opens (or creates) the database and applies pending migrations
func New(cfg *Config) (*DB, error) {
	if cfg == nil || cfg.DataDir == "" {
		return nil, errors.New("data directory cannot be empty")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}

	dbPath := filepath.Join(cfg.DataDir, constants.DatabaseFileName)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to set pragma %s", pragma)
		}
	}

	db := &DB{
		conn:   conn,
		sealer: cfg.Sealer,
		dbPath: dbPath,
	}

	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate(ctx context.Context) error {
	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "failed to open migrations")
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db.conn, migrations)
	if err != nil {
		return errors.Wrap(err, "failed to create migration provider")
	}

	if _, err := provider.Up(ctx); err != nil {
		return errors.Wrap(err, "failed to apply migrations")
	}
	return nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.dbPath
}

// Close closes the database connection
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (db *DB) Ping() error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.conn == nil {
		return errors.New("database connection is nil")
	}

	return db.conn.Ping()
}

// --- Settings Table Methods ---

// GetSetting retrieves a setting value by key, unsealing it when needed
func (db *DB) GetSetting(key string) (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var value string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", errors.Wrap(ErrSettingNotFound, key)
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to query setting")
	}

	if db.sealer == nil || !security.IsSealed(value) {
		return value, nil
	}

	plaintext, err := db.sealer.OpenString(value)
	if err != nil {
		return "", errors.Wrap(err, "failed to unseal setting value")
	}
	return plaintext, nil
}

// SetSetting stores a setting value by key
func (db *DB) SetSetting(key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.sealer != nil {
		sealed, err := db.sealer.SealString(value)
		if err != nil {
			return errors.Wrap(err, "failed to seal setting value")
		}
		value = sealed
	}

	query := `
		INSERT INTO settings (key, value, created_at, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := db.conn.Exec(query, key, value); err != nil {
		return errors.Wrap(err, "failed to set setting")
	}

	return nil
}
