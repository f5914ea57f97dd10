package storage

import (
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Dialect captures the few places where SQLite and PostgreSQL differ.
// Queries are written with ? placeholders and rebound per dialect.
type Dialect struct {
	Name   string
	driver string
}

var (
	SQLite   = Dialect{Name: DialectSQLite, driver: "sqlite"}
	Postgres = Dialect{Name: DialectPostgres, driver: "pgx"}
)

// rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func (d Dialect) rebind(query string) string {
	if d.Name != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation reports whether err comes from a UNIQUE constraint.
func (d Dialect) isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
