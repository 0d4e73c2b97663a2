// Package sqlite implements the repository interfaces on top of SQLite.
//
// DRIVER CHOICE:
// modernc.org/sqlite is a pure-Go port of SQLite, so the binary builds without
// cgo. It registers itself with database/sql under the name "sqlite"; the
// blank import below is what triggers that registration.
//
// ONE FILE, SEVERAL STORES:
// DB owns the single *sql.DB. Each table gets a small store type (UserDB,
// SessionDB, SaveGameDB, BlacklistDB) sharing that connection, so the
// server opens the file once and hands each service only the store it needs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection pool.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and applies migrations.
// Pass ":memory:" for a throwaway database in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SQLite allows one writer at a time. A single connection serialises
	// writes inside the pool instead of surfacing SQLITE_BUSY to callers,
	// and keeps ":memory:" databases from splitting into one DB per connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close releases the connection and flushes the WAL.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Users returns the user store.
func (db *DB) Users() *UserDB { return &UserDB{conn: db.conn} }

// Sessions returns the login-session store.
func (db *DB) Sessions() *SessionDB { return &SessionDB{conn: db.conn} }

// SaveGames returns the game snapshot store.
func (db *DB) SaveGames() *SaveGameDB { return &SaveGameDB{conn: db.conn} }

// Blacklist returns the revoked refresh token store.
func (db *DB) Blacklist() *BlacklistDB { return &BlacklistDB{conn: db.conn} }

// migrate creates the schema. Every statement is idempotent so it runs on
// each start.
//
// TIME COLUMNS:
// Columns that are only read back use DATETIME and are scanned into
// time.Time by the driver. Columns we compare against in WHERE clauses
// (session creation, token expiry) are INTEGER unix milliseconds, because
// comparing formatted time strings breaks as soon as the fractional-second
// width or the zone offset differs.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			display_name  TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS auth_sessions (
			state        TEXT PRIMARY KEY,
			user_id      TEXT REFERENCES users(id) ON DELETE CASCADE,
			is_completed INTEGER NOT NULL DEFAULT 0,
			created_at   INTEGER NOT NULL,
			completed_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_auth_sessions_created_at ON auth_sessions(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating auth_sessions table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS saved_game_data (
			user_id              TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
			co2_tons             REAL NOT NULL DEFAULT 0,
			citizen_satisfaction TEXT NOT NULL DEFAULT '',
			budget               INTEGER NOT NULL DEFAULT 0,
			top_tags             TEXT NOT NULL DEFAULT '[]',
			ai_city_name         TEXT NOT NULL DEFAULT '',
			created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating saved_game_data table: %w", err)
	}

	// revision arrived after the first deployments; older files lack it.
	if err := db.addColumnIfNotExists("saved_game_data", "revision",
		"INTEGER NOT NULL DEFAULT 1"); err != nil {
		return fmt.Errorf("adding revision to saved_game_data: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS token_blacklist (
			jti        TEXT PRIMARY KEY,
			expires_at INTEGER NOT NULL,
			revoked_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_token_blacklist_expires_at ON token_blacklist(expires_at);
	`)
	if err != nil {
		return fmt.Errorf("creating token_blacklist table: %w", err)
	}

	return nil
}

// addColumnIfNotExists is a tiny forward-only migration helper. SQLite has no
// "ADD COLUMN IF NOT EXISTS", so we ask pragma_table_info first.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
