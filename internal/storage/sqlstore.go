package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"linkkibot/internal/event"
	logx "linkkibot/pkg/logx"
)

// dialect holds the backend specific SQL. Both backends share the table
// layout: events(id, event_id, event_hash, payload, created_at).
type dialect struct {
	name   string
	schema string
	insert string
	// window filters on the three time sources and orders by their
	// COALESCE; degraded uses created_at only.
	window   string
	degraded string

	windowArgs   func(start, end time.Time) []any
	degradedArgs func(start, end time.Time) []any
	payloadArg   func(canonical []byte) any

	// unsupported reports whether err means the backend cannot evaluate the
	// window time expressions.
	unsupported func(err error) bool
}

type sqlStore struct {
	db  *sql.DB
	log logx.Logger
	d   dialect

	// window overrides d.window (tests).
	window string
}

func newSQLStore(db *sql.DB, d dialect, log logx.Logger) *sqlStore {
	return &sqlStore{db: db, log: log, d: d}
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *sqlStore) EnsureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	for _, stmt := range splitStatements(s.d.schema) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return opErr("ensure schema", err)
		}
	}
	s.log.Debug("schema ready")
	return nil
}

func (s *sqlStore) InsertIfNew(ctx context.Context, rec event.Record) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	payload, err := event.Canonical(rec)
	if err != nil {
		return false, opErr("insert", err)
	}
	hash, err := event.Fingerprint(rec)
	if err != nil {
		return false, opErr("insert", err)
	}
	var eventID any
	if k, ok := event.IdentityKey(rec); ok {
		eventID = k
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, opErr("insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, s.d.insert, eventID, hash, s.d.payloadArg(payload)).Scan(&id)
	isNew := true
	if errors.Is(err, sql.ErrNoRows) {
		// ON CONFLICT DO NOTHING returned nothing: already known.
		isNew = false
	} else if err != nil {
		return false, opErr("insert", err)
	}
	if err := tx.Commit(); err != nil {
		return false, opErr("insert", err)
	}
	return isNew, nil
}

func (s *sqlStore) QueryDelta(ctx context.Context, start time.Time, delta time.Duration) ([]event.Record, error) {
	return s.QueryWindow(ctx, start, start.Add(delta))
}

func (s *sqlStore) QueryWindow(ctx context.Context, start, end time.Time) ([]event.Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := s.d.window
	if s.window != "" {
		q = s.window
	}
	out, err := s.queryPayloads(ctx, q, s.d.windowArgs(start, end))
	if err == nil {
		return out, nil
	}
	if !s.d.unsupported(err) {
		return nil, opErr("query window", err)
	}

	s.log.Warn("time expressions unsupported, falling back to received_at", logx.Err(err))
	out, err = s.queryPayloads(ctx, s.d.degraded, s.d.degradedArgs(start, end))
	if err != nil {
		return nil, opErr("query window", err)
	}
	return out, nil
}

// queryPayloads reads every row before returning so that evaluation errors
// raised mid-scan surface here, not halfway through a result.
func (s *sqlStore) queryPayloads(ctx context.Context, q string, args []any) ([]event.Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]event.Record, 0, 16)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		rec, err := event.Decode(raw)
		if err != nil {
			s.log.Warn("skipping undecodable payload", logx.Err(err))
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// splitStatements splits a schema script on semicolons outside dollar-quoted
// bodies ($$ ... $$ or $tag$ ... $tag$).
func splitStatements(script string) []string {
	var (
		out []string
		cur strings.Builder
		tag string
	)
	flush := func() {
		if stmt := strings.TrimSpace(stripComments(cur.String())); stmt != "" {
			out = append(out, stmt)
		}
		cur.Reset()
	}
	for i := 0; i < len(script); {
		if script[i] == '$' {
			if t, ok := dollarTag(script[i:]); ok {
				switch tag {
				case "":
					tag = t
				case t:
					tag = ""
				}
				cur.WriteString(t)
				i += len(t)
				continue
			}
		}
		if script[i] == ';' && tag == "" {
			flush()
			i++
			continue
		}
		cur.WriteByte(script[i])
		i++
	}
	flush()
	return out
}

// dollarTag returns the $tag$ delimiter s starts with, if any.
func dollarTag(s string) (string, bool) {
	for j := 1; j < len(s); j++ {
		c := s[j]
		switch {
		case c == '$':
			return s[:j+1], true
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', j > 1 && c >= '0' && c <= '9':
			continue
		}
		return "", false
	}
	return "", false
}

func stripComments(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "--") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}
