package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	logx "linkkibot/pkg/logx"
)

const pgDateExpr = `CASE
            WHEN (payload->>'date') ~ '^\d{4}-' THEN linkki_try_timestamptz(payload->>'date')
            WHEN (payload->>'date') ~ '^\d{2}/\d{2}/\d{4}$' THEN linkki_try_dmy(payload->>'date')
            ELSE NULL
        END`

const pgWindowSQL = `
SELECT payload::text FROM (
    SELECT id, payload, created_at,
        linkki_try_timestamptz(payload->>'start_iso8601') AS start_at,
        ` + pgDateExpr + ` AS date_at
    FROM events
) AS e
WHERE start_at BETWEEN $1 AND $2
    OR date_at BETWEEN $1 AND $2
    OR created_at BETWEEN $1 AND $2
ORDER BY COALESCE(start_at, date_at, created_at), id`

const pgDegradedSQL = `
SELECT payload::text FROM events
WHERE created_at BETWEEN $1 AND $2
ORDER BY created_at, id`

const pgInsertSQL = `INSERT INTO events(event_id, event_hash, payload) VALUES($1, $2, $3::jsonb)
ON CONFLICT DO NOTHING RETURNING id`

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	// Naive payload times are cast in the session zone; make that the
	// configured one when it has an IANA name.
	if tz := ianaName(cfg.Location); tz != "" {
		if pc.RuntimeParams == nil {
			pc.RuntimeParams = map[string]string{}
		}
		pc.RuntimeParams["timezone"] = tz
	}
	db := stdlib.OpenDB(*pc)
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)

	schema, err := schemaFS.ReadFile("schema/postgres.sql")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	d := dialect{
		name:     "postgres",
		schema:   string(schema),
		insert:   pgInsertSQL,
		window:   pgWindowSQL,
		degraded: pgDegradedSQL,
		windowArgs: func(start, end time.Time) []any {
			return []any{start, end}
		},
		degradedArgs: func(start, end time.Time) []any {
			return []any{start, end}
		},
		payloadArg:  func(b []byte) any { return string(b) },
		unsupported: pgUnsupported,
	}
	log.Debug("postgres opened", logx.String("host", pc.Host), logx.String("database", pc.Database))
	return newSQLStore(db, d, log), nil
}

func ianaName(loc *time.Location) string {
	if loc == nil || loc == time.Local {
		return ""
	}
	name := loc.String()
	if name == "" || name == "Local" {
		return ""
	}
	if _, err := time.LoadLocation(name); err != nil {
		return ""
	}
	return name
}

// pgUnsupported matches failures of the time expressions themselves: data
// exceptions the helper functions let through, undefined functions (schema
// predating them) and unsupported features.
func pgUnsupported(err error) bool {
	var pe *pgconn.PgError
	if !errors.As(err, &pe) {
		return false
	}
	switch {
	case strings.HasPrefix(pe.Code, "22"):
		return true
	case pe.Code == "42883", pe.Code == "0A000":
		return true
	}
	return false
}
