// Package sqlstore implements the schedule and run repositories on database/sql.
// Postgres (lib/pq) and embedded SQLite (modernc.org/sqlite) share the same queries;
// statements are written with ? placeholders and rebound per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DB wraps a *sql.DB together with its dialect
type DB struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to dsn and applies the embedded schema
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	var driver string
	switch dialect {
	case DialectPostgres:
		driver = "postgres"
	case DialectSQLite:
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dialect, err)
	}
	if dialect == DialectSQLite {
		// one writer; also keeps ":memory:" databases alive on a single connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
		_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000")
	}

	store := New(db, dialect)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing connection without migrating
func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, dialect: dialect}
}

func (d *DB) Migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/" + string(d.dialect) + ".sql")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	for _, stmt := range strings.Split(string(b), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres
func (d *DB) rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func nullMillis(v int64) interface{} {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func encodeJSON(v map[string]interface{}) (string, error) {
	if v == nil {
		return "{}", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return string(b), nil
}

func decodeJSON(raw []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return out, nil
}

// pageKey is the keyset cursor carried in next tokens
type pageKey struct {
	CreatedAt int64  `json:"created_at"`
	ID        string `json:"id"`
}

func encodeNextToken(k pageKey) string {
	b, _ := json.Marshal(k)
	return base64.URLEncoding.EncodeToString(b)
}

func decodeNextToken(token string) (*pageKey, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("failed to decode next token: %w", err)
	}
	var k pageKey
	if err := json.Unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("failed to unmarshal next token: %w", err)
	}
	return &k, nil
}

func pageLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
