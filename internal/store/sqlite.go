// ABOUTME: SQLite implementation of the Store interface (modernc.org/sqlite or mattn/go-sqlite3)
// ABOUTME: Provides agent/action persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3, cgo
)

// timeFormat is fixed-width UTC so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path using the
// pure Go driver. See Open.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(DriverModernc, path)
}

// Open creates a SQLite store at path with the named driver.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func Open(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	switch driver {
	case DriverModernc, DriverMattn:
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: terminal writes are serialized and per-connection
	// pragmas hold for every statement.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS agents (
			id          TEXT PRIMARY KEY,
			address     TEXT NOT NULL DEFAULT '',
			connected   INTEGER NOT NULL DEFAULT 0,
			last_online TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS actions (
			id           TEXT PRIMARY KEY,
			agent_id     TEXT NOT NULL REFERENCES agents(id),
			created_at   TEXT NOT NULL,
			started_at   TEXT,
			timeout      INTEGER, -- nanoseconds
			command_kind TEXT NOT NULL,
			state        TEXT NOT NULL,
			error        TEXT,
			result       BLOB,

			CHECK (command_kind IN ('ping', 'purge', 'shell')),
			CHECK (state IN ('pending', 'dispatched', 'completed', 'failed', 'timed_out'))
		);

		CREATE INDEX IF NOT EXISTS idx_actions_agent_state
			ON actions(agent_id, state, created_at, id);

		CREATE INDEX IF NOT EXISTS idx_actions_state
			ON actions(state);

		CREATE TABLE IF NOT EXISTS ping (
			id   TEXT PRIMARY KEY REFERENCES actions(id) ON DELETE CASCADE,
			data TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS purge (
			id TEXT PRIMARY KEY REFERENCES actions(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS shell (
			id    TEXT PRIMARY KEY REFERENCES actions(id) ON DELETE CASCADE,
			cmd   TEXT NOT NULL,
			args  BLOB,
			stdin BLOB
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	migrations := []struct {
		check string // Query to check if migration is needed
		apply string // Query to apply the migration
		name  string // Name for logging
	}{
		{
			// At most one dispatched action per agent, enforced by the database too.
			check: `SELECT 1 FROM sqlite_master WHERE type = 'index' AND name = 'idx_actions_one_dispatched'`,
			apply: `CREATE UNIQUE INDEX idx_actions_one_dispatched ON actions(agent_id) WHERE state = 'dispatched'`,
			name:  "idx_actions_one_dispatched",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking migration %s: %w", m.name, err)
		}

		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.name, err)
		}
		s.logger.Info("applied migration", "name", m.name)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// CreateAgent inserts a new agent.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (id, address, connected, last_online)
		VALUES (?, ?, ?, ?)
	`, agent.ID, agent.Address, agent.Connected, formatTime(agent.LastOnline))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateAgent
		}
		return fmt.Errorf("inserting agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by id.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, address, connected, last_online
		FROM agents
		WHERE id = ?
	`, id)

	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	return agent, nil
}

// ListAgents returns every agent ordered by id.
func (s *SQLiteStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, connected, last_online
		FROM agents
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agents: %w", err)
	}
	return agents, nil
}

// SetAgentPresence records a connect or disconnect.
func (s *SQLiteStore) SetAgentPresence(ctx context.Context, id string, connected bool, address string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agents
		SET connected = ?, address = ?, last_online = ?
		WHERE id = ?
	`, connected, address, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("updating agent presence: %w", err)
	}
	return requireAffected(result)
}

// TouchAgent refreshes last_online.
func (s *SQLiteStore) TouchAgent(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agents SET last_online = ? WHERE id = ?
	`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touching agent: %w", err)
	}
	return requireAffected(result)
}

// DisconnectAllAgents marks every connected agent as disconnected.
func (s *SQLiteStore) DisconnectAllAgents(ctx context.Context, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agents SET connected = 0, address = '', last_online = ? WHERE connected = 1
	`, formatTime(at))
	if err != nil {
		return fmt.Errorf("disconnecting agents: %w", err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var agent Agent
	var lastOnline string
	if err := row.Scan(&agent.ID, &agent.Address, &agent.Connected, &lastOnline); err != nil {
		return nil, err
	}
	t, err := parseTime(lastOnline)
	if err != nil {
		return nil, fmt.Errorf("parsing last_online: %w", err)
	}
	agent.LastOnline = t
	return &agent, nil
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// isConstraintViolation checks if the error is a SQLite UNIQUE or PRIMARY KEY constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "PRIMARY KEY")
}
