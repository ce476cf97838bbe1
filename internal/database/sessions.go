package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starfield/server/internal/session"
)

const sessionColumns = `id, name, state, created_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SessionStorage persists session records in PostgreSQL.
// It implements session.Store.
type SessionStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSessionStorage creates a new session storage instance
func NewSessionStorage(db *sql.DB, logger *slog.Logger) *SessionStorage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStorage{db: db, logger: logger}
}

var _ session.Store = (*SessionStorage)(nil)

// Save inserts rec and returns it with its new ID.
func (s *SessionStorage) Save(ctx context.Context, rec session.Record) (*session.Record, error) {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}

	query := `
		INSERT INTO sessions (name, seed, state, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := s.db.QueryRowContext(ctx, query, rec.Name, rec.State.Seed, state, rec.Timestamp).Scan(&rec.ID); err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return &rec, nil
}

// Find returns the newest exact name match, else the newest record whose
// name contains query ignoring case. Records whose state cannot be decoded
// are skipped. The query is normalized like stored names.
func (s *SessionStorage) Find(ctx context.Context, query string) (*session.Record, error) {
	query = session.NormalizeQuery(query)
	if query == "" {
		return nil, nil
	}

	exact := `SELECT ` + sessionColumns + ` FROM sessions WHERE name = $1 ORDER BY created_at DESC, id DESC`
	rec, err := s.firstValid(ctx, exact, query)
	if err != nil || rec != nil {
		return rec, err
	}

	partial := `SELECT ` + sessionColumns + ` FROM sessions WHERE name ILIKE '%' || $1 || '%' ESCAPE '\' ORDER BY created_at DESC, id DESC`
	return s.firstValid(ctx, partial, likeEscaper.Replace(query))
}

func (s *SessionStorage) firstValid(ctx context.Context, query string, arg string) (*session.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		rec, ok, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		if ok {
			return rec, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return nil, nil
}

// List returns all decodable records, newest first.
func (s *SessionStorage) List(ctx context.Context) ([]session.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []session.Record
	for rows.Next() {
		rec, ok, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

// Delete removes all records named name.
func (s *SessionStorage) Delete(ctx context.Context, name string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE name = $1`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// scan reads one row. A row with undecodable state yields ok == false.
func (s *SessionStorage) scan(rows *sql.Rows) (*session.Record, bool, error) {
	var rec session.Record
	var state []byte
	if err := rows.Scan(&rec.ID, &rec.Name, &state, &rec.Timestamp); err != nil {
		return nil, false, fmt.Errorf("failed to scan session: %w", err)
	}
	if err := json.Unmarshal(state, &rec.State); err != nil {
		s.logger.Warn("skipping malformed session record", "id", rec.ID, "name", rec.Name, "error", err)
		return nil, false, nil
	}
	return &rec, true, nil
}
