package storage

import (
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"

	"linkkibot/internal/event"
	logx "linkkibot/pkg/logx"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const (
	sqlFuncStartMS = "linkki_start_ms"
	sqlFuncDateMS  = "linkki_date_ms"
)

// The window query evaluates the start_iso8601 and date candidates with the
// same Go resolver the rest of the bot uses; the functions are registered
// process wide by modernc.org/sqlite.
const sqliteWindowSQL = `
SELECT payload FROM (
    SELECT id, payload, created_at,
        ` + sqlFuncStartMS + `(json_extract(payload, '$.start_iso8601'), ?) AS start_ms,
        ` + sqlFuncDateMS + `(json_extract(payload, '$.date'), ?) AS date_ms
    FROM events
) AS e
WHERE start_ms BETWEEN ? AND ?
    OR date_ms BETWEEN ? AND ?
    OR created_at BETWEEN ? AND ?
ORDER BY COALESCE(start_ms, date_ms, created_at), id`

const sqliteDegradedSQL = `
SELECT payload FROM events
WHERE created_at BETWEEN ? AND ?
ORDER BY created_at, id`

const sqliteInsertSQL = `INSERT INTO events(event_id, event_hash, payload) VALUES(?, ?, ?)
ON CONFLICT DO NOTHING RETURNING id`

var (
	registerOnce sync.Once
	registerErr  error

	// locations maps the tz argument passed to the SQL functions back to a
	// *time.Location. Stores register their own so fixed zones work too.
	locations sync.Map
)

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	registerOnce.Do(func() { registerErr = registerSQLFunctions() })
	if registerErr != nil {
		return nil, registerErr
	}

	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	// Pragmas go in the DSN so every pooled connection gets them.
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	conns := cfg.MaxOpenConns
	if conns <= 0 {
		conns = 1
	}
	db.SetMaxOpenConns(conns)
	db.SetMaxIdleConns(conns)

	schema, err := schemaFS.ReadFile("schema/sqlite.sql")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	tz := registerLocation(cfg.Location)

	d := dialect{
		name:     "sqlite",
		schema:   string(schema),
		insert:   sqliteInsertSQL,
		window:   sqliteWindowSQL,
		degraded: sqliteDegradedSQL,
		windowArgs: func(start, end time.Time) []any {
			s, e := start.UnixMilli(), end.UnixMilli()
			return []any{tz, tz, s, e, s, e, s, e}
		},
		degradedArgs: func(start, end time.Time) []any {
			return []any{start.UnixMilli(), end.UnixMilli()}
		},
		payloadArg:  func(b []byte) any { return string(b) },
		unsupported: sqliteUnsupported,
	}
	log.Debug("sqlite opened", logx.String("path", path), logx.Int("max_open_conns", conns))
	return newSQLStore(db, d, log), nil
}

func registerSQLFunctions() error {
	if err := sqlite.RegisterDeterministicScalarFunction(sqlFuncStartMS, 2, timeFunc(event.Resolver.ParseISO)); err != nil {
		return err
	}
	return sqlite.RegisterDeterministicScalarFunction(sqlFuncDateMS, 2, timeFunc(event.Resolver.ParseLooseDate))
}

// timeFunc adapts a resolver parse method to fn(value, tz) -> unix ms | NULL.
// Non-text values and unparsable strings yield NULL.
func timeFunc(parse func(event.Resolver, string) (time.Time, bool)) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
	return func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		var s string
		switch v := args[0].(type) {
		case string:
			s = v
		case []byte:
			s = string(v)
		default:
			return nil, nil
		}
		tz, _ := args[1].(string)
		t, ok := parse(event.NewResolver(lookupLocation(tz)), s)
		if !ok {
			return nil, nil
		}
		return t.UnixMilli(), nil
	}
}

func registerLocation(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	key := fmt.Sprintf("%s@%p", loc.String(), loc)
	locations.LoadOrStore(key, loc)
	return key
}

func lookupLocation(key string) *time.Location {
	if v, ok := locations.Load(key); ok {
		return v.(*time.Location)
	}
	name, _, _ := strings.Cut(key, "@")
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	return time.Local
}

func sqliteUnsupported(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"no such function", "malformed json", "json cannot hold blob"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
