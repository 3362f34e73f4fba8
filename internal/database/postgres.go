// Package database wraps the single read-only pgx pool the generation run
// uses for enrichment lookups, dependency fetches and schema introspection.
package database

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsandi/seed-it/internal/types"
)

// RowFetcher is the lookup seam the enrichment and dependency-fetch stages
// depend on; tests substitute an in-memory fake.
type RowFetcher interface {
	// FetchOne returns at most one row of table matching every key equality,
	// or nil when nothing matches.
	FetchOne(ctx context.Context, table string, keys map[string]any) (types.Row, error)
}

// validIdentifier validates table/column names before they reach query text.
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type Client struct {
	pool *pgxpool.Pool
	qb   squirrel.StatementBuilderType
}

func Connect(ctx context.Context, url string) (*Client, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection URL: %w", err)
	}

	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeExec
	config.MaxConns = 2
	config.MinConns = 0
	config.MaxConnLifetime = 15 * time.Minute
	config.MaxConnIdleTime = 3 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{
		pool: pool,
		qb:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

func (c *Client) Close() {
	c.pool.Close()
}

// FetchOne issues SELECT * FROM table WHERE <keys> LIMIT 1 and returns the
// row as a column→value map, or nil when there is no match.
func (c *Client) FetchOne(ctx context.Context, table string, keys map[string]any) (types.Row, error) {
	if !validIdentifier.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}
	eq := squirrel.Eq{}
	for col, val := range keys {
		if !validIdentifier.MatchString(col) {
			return nil, fmt.Errorf("invalid column name: %s", col)
		}
		eq[col] = val
	}

	sql, args, err := c.qb.Select("*").From(table).Where(eq).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup query: %w", err)
	}

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup on %s failed: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("failed to read lookup row: %w", err)
	}

	row := make(types.Row, len(values))
	for i, fd := range rows.FieldDescriptions() {
		row[fd.Name] = values[i]
	}
	return row, rows.Err()
}
