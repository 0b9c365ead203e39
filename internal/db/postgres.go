package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const (
	applicationName     = "naverworks-cron"
	defaultMaxConns     = 10
	defaultMinConns     = 2
	postgresPingTimeout = 5 * time.Second
)

// OpenPostgres connects through the pgx stdlib adapter. The report store issues a
// handful of statements per run, so the pool stays small.
func OpenPostgres(opts Options) (*sql.DB, error) {
	connCfg, err := pgx.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if connCfg.RuntimeParams == nil {
		connCfg.RuntimeParams = map[string]string{}
	}
	if _, ok := connCfg.RuntimeParams["application_name"]; !ok {
		connCfg.RuntimeParams["application_name"] = applicationName
	}

	db := stdlib.OpenDB(*connCfg)

	maxConns, minConns := opts.MaxConns, opts.MinConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	if minConns <= 0 || minConns > maxConns {
		minConns = min(defaultMinConns, maxConns)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), postgresPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", connCfg.Host, err)
	}
	return db, nil
}
