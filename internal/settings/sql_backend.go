package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/agentworkforce/dupeguard/internal/dupes"
)

const (
	settingsTableName     = "dupeguard_settings"
	settingsKey           = "default"
	sqlOperationTimeout   = 5 * time.Second
	postgresDriverName    = "postgres"
	sqliteDriverName      = "sqlite"
	sqliteDefaultPragmaQS = "_pragma=busy_timeout(5000)"
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

type sqlDialect struct {
	driver      string
	createTable string
	selectRow   string
	upsertRow   string
}

var postgresDialect = sqlDialect{
	driver: postgresDriverName,
	createTable: `
		CREATE TABLE IF NOT EXISTS %s (
			settings_key TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	selectRow: "SELECT payload FROM %s WHERE settings_key = $1",
	upsertRow: `
		INSERT INTO %s (settings_key, payload, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (settings_key)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`,
}

var sqliteDialect = sqlDialect{
	driver: sqliteDriverName,
	createTable: `
		CREATE TABLE IF NOT EXISTS %s (
			settings_key TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	selectRow: "SELECT payload FROM %s WHERE settings_key = ?",
	upsertRow: `
		INSERT INTO %s (settings_key, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (settings_key)
		DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`,
}

// SQLBackend keeps the settings document in a single keyed row. The table is
// created lazily on first use.
type SQLBackend struct {
	dsn       string
	dialect   sqlDialect
	tableName string
	key       string
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresBackend(dsn string) (*SQLBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return newSQLBackend(dsn, postgresDialect), nil
}

// NewSQLiteBackend opens (or creates) a database file at path.
func NewSQLiteBackend(path string) (*SQLBackend, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, ":memory:") && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?" + sqliteDefaultPragmaQS
	}
	return newSQLBackend(dsn, sqliteDialect), nil
}

func newSQLBackend(dsn string, dialect sqlDialect) *SQLBackend {
	return &SQLBackend{
		dsn:       dsn,
		dialect:   dialect,
		tableName: settingsTableName,
		key:       settingsKey,
		openDB:    sql.Open,
	}
}

func (b *SQLBackend) Load(ctx context.Context) (*dupes.Settings, error) {
	if err := b.ensureReady(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()

	var payload string
	err := b.db.QueryRowContext(ctx, fmt.Sprintf(b.dialect.selectRow, quoteIdentifier(b.tableName)), b.key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var settings dupes.Settings
	if err := json.Unmarshal([]byte(payload), &settings); err != nil {
		return nil, fmt.Errorf("decode stored settings: %w", err)
	}
	return &settings, nil
}

func (b *SQLBackend) Save(ctx context.Context, settings dupes.Settings) error {
	if err := b.ensureReady(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
	defer cancel()

	_, err = b.db.ExecContext(ctx, fmt.Sprintf(b.dialect.upsertRow, quoteIdentifier(b.tableName)), b.key, string(payload))
	return err
}

func (b *SQLBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLBackend) ensureReady(ctx context.Context) error {
	if b == nil {
		return ErrInvalidInput
	}
	b.initOnce.Do(func() {
		db, err := b.openDB(b.dialect.driver, b.dsn)
		if err != nil {
			b.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(ctx, sqlOperationTimeout)
		defer cancel()

		if _, err := db.ExecContext(ctx, fmt.Sprintf(b.dialect.createTable, quoteIdentifier(b.tableName))); err != nil {
			_ = db.Close()
			b.initErr = err
			return
		}
		b.db = db
	})
	return b.initErr
}

func quoteIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
