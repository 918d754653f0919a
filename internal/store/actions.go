// ABOUTME: SQLite persistence for actions and their per-kind payload tables
// ABOUTME: Conditional state transitions make the first terminal writer authoritative

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const actionColumns = `id, agent_id, created_at, started_at, timeout, command_kind, state, error, result`

// CreateAction inserts the action row and its payload row in one transaction.
func (s *SQLiteStore) CreateAction(ctx context.Context, action *Action, cmd Command) error {
	if cmd == nil {
		return fmt.Errorf("creating action: nil command")
	}
	if cmd.Kind() != action.Kind {
		return fmt.Errorf("creating action: command kind %q does not match action kind %q", cmd.Kind(), action.Kind)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var startedAt, timeout any
	if action.StartedAt != nil {
		startedAt = formatTime(*action.StartedAt)
	}
	if action.Timeout > 0 {
		timeout = int64(action.Timeout)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO actions (id, agent_id, created_at, started_at, timeout, command_kind, state)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, action.ID, action.AgentID, formatTime(action.CreatedAt), startedAt, timeout, string(action.Kind), string(action.State))
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("inserting action %s: duplicate id", action.ID)
		}
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return fmt.Errorf("inserting action: %w", err)
	}

	switch c := cmd.(type) {
	case PingCommand:
		_, err = tx.ExecContext(ctx, `INSERT INTO ping (id, data) VALUES (?, ?)`, action.ID, c.Data)
	case PurgeCommand:
		_, err = tx.ExecContext(ctx, `INSERT INTO purge (id) VALUES (?)`, action.ID)
	case ShellCommand:
		var args []byte
		args, err = encMode.Marshal(c.Args)
		if err != nil {
			return fmt.Errorf("encoding shell args: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO shell (id, cmd, args, stdin) VALUES (?, ?, ?, ?)`,
			action.ID, c.Cmd, args, c.Stdin)
	default:
		return fmt.Errorf("creating action: unsupported command %T", cmd)
	}
	if err != nil {
		return fmt.Errorf("inserting %s payload: %w", action.Kind, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing action: %w", err)
	}
	return nil
}

// GetAction retrieves an action by id.
func (s *SQLiteStore) GetAction(ctx context.Context, id string) (*Action, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	action, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying action: %w", err)
	}
	return action, nil
}

// GetCommand loads the payload of an action from the table for its kind.
func (s *SQLiteStore) GetCommand(ctx context.Context, id string, kind CommandKind) (Command, error) {
	var (
		cmd Command
		err error
	)
	switch kind {
	case KindPing:
		var c PingCommand
		err = s.db.QueryRowContext(ctx, `SELECT data FROM ping WHERE id = ?`, id).Scan(&c.Data)
		cmd = c
	case KindPurge:
		var found string
		err = s.db.QueryRowContext(ctx, `SELECT id FROM purge WHERE id = ?`, id).Scan(&found)
		cmd = PurgeCommand{}
	case KindShell:
		var c ShellCommand
		var args []byte
		err = s.db.QueryRowContext(ctx, `SELECT cmd, args, stdin FROM shell WHERE id = ?`, id).Scan(&c.Cmd, &args, &c.Stdin)
		if err == nil && len(args) > 0 {
			if derr := decMode.Unmarshal(args, &c.Args); derr != nil {
				return nil, fmt.Errorf("decoding shell args: %w", derr)
			}
		}
		cmd = c
	default:
		return nil, fmt.Errorf("unknown command kind %q", kind)
	}
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying %s payload: %w", kind, err)
	}
	return cmd, nil
}

// ListPendingActions returns the agent's pending actions, oldest first.
func (s *SQLiteStore) ListPendingActions(ctx context.Context, agentID string) ([]*Action, error) {
	return s.queryActions(ctx, `
		SELECT `+actionColumns+`
		FROM actions
		WHERE agent_id = ? AND state = ?
		ORDER BY created_at, id
	`, agentID, string(StatePending))
}

// GetDispatchedAction returns the agent's in-flight action.
func (s *SQLiteStore) GetDispatchedAction(ctx context.Context, agentID string) (*Action, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+actionColumns+`
		FROM actions
		WHERE agent_id = ? AND state = ?
	`, agentID, string(StateDispatched))
	action, err := scanAction(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying dispatched action: %w", err)
	}
	return action, nil
}

// ListOpenActions returns every non-terminal action that has a timeout.
func (s *SQLiteStore) ListOpenActions(ctx context.Context) ([]*Action, error) {
	return s.queryActions(ctx, `
		SELECT `+actionColumns+`
		FROM actions
		WHERE state IN (?, ?) AND timeout IS NOT NULL
		ORDER BY created_at, id
	`, string(StatePending), string(StateDispatched))
}

// MarkDispatched transitions a pending action to dispatched and stamps
// started_at. It refuses when another action of the same agent is already
// dispatched.
func (s *SQLiteStore) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE actions
		SET state = ?, started_at = ?
		WHERE id = ? AND state = ?
		  AND NOT EXISTS (
			SELECT 1 FROM actions AS other
			WHERE other.agent_id = actions.agent_id AND other.state = ?
		  )
	`, string(StateDispatched), formatTime(at), id, string(StatePending), string(StateDispatched))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrAlreadyInFlight
		}
		return fmt.Errorf("marking action dispatched: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	current, err := s.GetAction(ctx, id)
	if err != nil {
		return err
	}
	if current.State != StatePending {
		return ErrStateConflict
	}
	return ErrAlreadyInFlight
}

// ResolveAction performs the terminal transition of an action. Only a
// pending or dispatched action can be resolved; any other current state
// yields ErrStateConflict and leaves the row untouched.
func (s *SQLiteStore) ResolveAction(ctx context.Context, id string, state ActionState, result Result, errMsg string, at time.Time) error {
	if !state.Terminal() {
		return fmt.Errorf("resolving action: %q is not a terminal state", state)
	}

	encoded, err := EncodeResult(result)
	if err != nil {
		return err
	}
	var errCol any
	if errMsg != "" {
		errCol = errMsg
	}
	var resultCol any
	if encoded != nil {
		resultCol = encoded
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE actions
		SET state = ?, result = ?, error = ?, started_at = COALESCE(started_at, ?)
		WHERE id = ? AND state IN (?, ?)
	`, string(state), resultCol, errCol, formatTime(at), id, string(StatePending), string(StateDispatched))
	if err != nil {
		return fmt.Errorf("resolving action: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	if _, err := s.GetAction(ctx, id); err != nil {
		return err
	}
	return ErrStateConflict
}

// DeleteResolvedActions removes terminal actions created before the cutoff.
// Payload rows go with them.
func (s *SQLiteStore) DeleteResolvedActions(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM actions
		WHERE state IN (?, ?, ?) AND created_at < ?
	`, string(StateCompleted), string(StateFailed), string(StateTimedOut), formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("deleting resolved actions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Info("pruned resolved actions", "count", n, "before", before)
	}
	return n, nil
}

func (s *SQLiteStore) queryActions(ctx context.Context, query string, args ...any) ([]*Action, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating actions: %w", err)
	}
	return actions, nil
}

func scanAction(row rowScanner) (*Action, error) {
	var (
		action    Action
		createdAt string
		startedAt sql.NullString
		timeout   sql.NullInt64
		errMsg    sql.NullString
		result    []byte
	)
	err := row.Scan(
		&action.ID,
		&action.AgentID,
		&createdAt,
		&startedAt,
		&timeout,
		&action.Kind,
		&action.State,
		&errMsg,
		&result,
	)
	if err != nil {
		return nil, err
	}

	action.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if startedAt.Valid {
		t, err := parseTime(startedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing started_at: %w", err)
		}
		action.StartedAt = &t
	}
	if timeout.Valid {
		action.Timeout = time.Duration(timeout.Int64)
	}
	action.Error = errMsg.String
	action.Result, err = DecodeResult(result)
	if err != nil {
		return nil, err
	}
	return &action, nil
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
