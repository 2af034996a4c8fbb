package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const columnExistsQuery = `
	SELECT EXISTS (
		SELECT 1
		FROM information_schema.columns
		WHERE table_schema = current_schema()
			AND table_name = $1
			AND column_name = $2
	)`

// Catalog answers schema questions from information_schema over the pgx pool.
type Catalog struct {
	pool *pgxpool.Pool
}

// NewCatalog returns a Catalog backed by pool.
func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// ColumnExists reports whether table has column in the connection's schema.
func (c *Catalog) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	var exists bool
	if err := c.pool.QueryRow(ctx, columnExistsQuery, table, column).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: probe %s.%s: %w", table, column, err)
	}
	return exists, nil
}

// Ping verifies the pool can reach Postgres.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}
