package sqlsource

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier runs a read query. Both *sql.DB and *pgxpool.Pool are adapted to it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

// Rows represents query result rows
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}

type pgxPoolWrapper struct {
	*pgxpool.Pool
}

func (p *pgxPoolWrapper) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return p.Pool.Query(ctx, sql, args...)
}

// FromPool adapts a pgx pool.
func FromPool(pool *pgxpool.Pool) Querier {
	return &pgxPoolWrapper{Pool: pool}
}

type sqlDBWrapper struct {
	db *sql.DB
}

func (w *sqlDBWrapper) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows}, nil
}

type sqlRows struct {
	*sql.Rows
}

func (r *sqlRows) Close() {
	_ = r.Rows.Close()
}

// FromDB adapts a database/sql handle, e.g. SQLite opened with go-sqlite3.
func FromDB(db *sql.DB) Querier {
	return &sqlDBWrapper{db: db}
}
