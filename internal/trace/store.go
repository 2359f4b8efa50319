// Package trace records controller sessions (input samples, injected key
// actions and events) to sqlite and replays recorded samples.
package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chakramx/chakram/internal/input"
	"github.com/chakramx/chakram/internal/motion"
)

var ErrSessionNotFound = errors.New("trace session not found")

type Store struct {
	db *sql.DB
}

type Session struct {
	ID        uuid.UUID
	StartedAt time.Time
	EndedAt   *time.Time
	Config    string
	Samples   int
	Actions   int
}

type ActionRecord struct {
	T         time.Time
	KeyAction input.KeyAction
	Err       string
}

type EventRecord struct {
	ID      uuid.UUID
	Kind    string
	Message string
	T       time.Time
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create trace dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Purge drops every recorded session by rolling the schema back and
// recreating it.
func (s *Store) Purge(ctx context.Context) error {
	if err := RollbackAll(ctx, s.db); err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	if err := ApplyMigrations(ctx, s.db); err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	return nil
}

// BeginSession creates a new session row. config is stored verbatim so a
// replay can be compared against the settings it was recorded with.
func (s *Store) BeginSession(ctx context.Context, startedAt time.Time, config string) (Session, error) {
	sess := Session{ID: uuid.New(), StartedAt: startedAt, Config: config}
	_, err := s.db.ExecContext(ctx, `INSERT INTO sessions(session_id, started_at, config) VALUES (?, ?, ?)`,
		sess.ID.String(), ts(startedAt), config)
	if err != nil {
		return Session{}, fmt.Errorf("begin session: %w", err)
	}
	return sess, nil
}

func (s *Store) EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE session_id = ?`, ts(endedAt), id.String())
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Sessions lists every session, newest first, with sample and action counts.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT s.session_id, s.started_at, s.ended_at, s.config,
	(SELECT COUNT(*) FROM samples WHERE samples.session_id = s.session_id),
	(SELECT COUNT(*) FROM actions WHERE actions.session_id = s.session_id)
FROM sessions s
ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]Session, 0)
	for rows.Next() {
		var (
			id, started string
			ended       sql.NullString
			sess        Session
		)
		if err := rows.Scan(&id, &started, &ended, &sess.Config, &sess.Samples, &sess.Actions); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sess.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse session id: %w", err)
		}
		if sess.StartedAt, err = parseTS(started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if ended.Valid {
			t, err := parseTS(ended.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			sess.EndedAt = &t
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter sessions: %w", err)
	}
	return out, nil
}

// Samples returns the recorded samples of a session in recording order.
func (s *Store) Samples(ctx context.Context, id uuid.UUID) ([]motion.Sample, error) {
	if err := s.requireSession(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT t_ns, x, y FROM samples WHERE session_id = ? ORDER BY seq ASC`, id.String())
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	out := make([]motion.Sample, 0)
	for rows.Next() {
		var (
			tns  int64
			smpl motion.Sample
		)
		if err := rows.Scan(&tns, &smpl.X, &smpl.Y); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		smpl.T = time.Unix(0, tns)
		out = append(out, smpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter samples: %w", err)
	}
	return out, nil
}

func (s *Store) Actions(ctx context.Context, id uuid.UUID) ([]ActionRecord, error) {
	if err := s.requireSession(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT t_ns, action_type, key_name, kind, code, error
FROM actions WHERE session_id = ? ORDER BY seq ASC`, id.String())
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	out := make([]ActionRecord, 0)
	for rows.Next() {
		var (
			tns        int64
			actionType string
			rec        ActionRecord
			a          input.Action
		)
		if err := rows.Scan(&tns, &actionType, &a.Name, &a.Kind, &a.Code, &rec.Err); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		rec.T = time.Unix(0, tns)
		rec.KeyAction = input.KeyAction{Type: input.Release, Action: a}
		if actionType == input.Press.String() {
			rec.KeyAction.Type = input.Press
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter actions: %w", err)
	}
	return out, nil
}

func (s *Store) Events(ctx context.Context, id uuid.UUID) ([]EventRecord, error) {
	if err := s.requireSession(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT event_id, kind, message, t_ns FROM events WHERE session_id = ? ORDER BY t_ns ASC`, id.String())
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]EventRecord, 0)
	for rows.Next() {
		var (
			eid string
			tns int64
			rec EventRecord
		)
		if err := rows.Scan(&eid, &rec.Kind, &rec.Message, &tns); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if rec.ID, err = uuid.Parse(eid); err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		rec.T = time.Unix(0, tns)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter events: %w", err)
	}
	return out, nil
}

func (s *Store) requireSession(ctx context.Context, id uuid.UUID) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE session_id = ?`, id.String()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("lookup session: %w", err)
	}
	return nil
}

// writeBatch inserts records in a single transaction.
func (s *Store) writeBatch(ctx context.Context, session uuid.UUID, batch []record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	sid := session.String()
	for _, r := range batch {
		switch r.kind {
		case recordSample:
			_, err = tx.ExecContext(ctx, `INSERT INTO samples(session_id, seq, t_ns, x, y) VALUES (?, ?, ?, ?, ?)`,
				sid, r.seq, r.t.UnixNano(), r.sample.X, r.sample.Y)
		case recordAction:
			a := r.action.Action
			_, err = tx.ExecContext(ctx, `
INSERT INTO actions(session_id, seq, t_ns, action_type, key_name, kind, code, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				sid, r.seq, r.t.UnixNano(), r.action.Type.String(), a.String(), int(a.Kind), int(a.Code), r.err)
		case recordEvent:
			_, err = tx.ExecContext(ctx, `INSERT INTO events(event_id, session_id, kind, message, t_ns) VALUES (?, ?, ?, ?, ?)`,
				r.eventID.String(), sid, r.eventKind, r.message, r.t.UnixNano())
		}
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert trace record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
