package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const applicationName = "rehab-server"

// NewPool opens a pgx pool for the document store and verifies it with a ping.
// Unqualified table names resolve in schema first, then public, unless the
// URL already sets search_path.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["search_path"]; !ok && schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = SearchPath(schema)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// SearchPath is the search_path used for schema. It matches the one the
// migrator sets while applying migrations.
func SearchPath(schema string) string {
	if schema == "" || schema == "public" {
		return "public"
	}
	return quoteSchema(schema) + ", public"
}
