package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vbp1/magicwand/internal/dbcmd"
)

// DSN builds a connection URL for p.
func DSN(p dbcmd.Profile) string {
	p = p.WithDefaults()
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.Database,
	}
	return u.String()
}

// Connect establishes a pgx pool for the profile. maxConns=0 uses pgx default.
func Connect(ctx context.Context, p dbcmd.Profile, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(DSN(p))
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// ping
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Execer is satisfied by *pgxpool.Pool, *pgx.Conn and pgxmock.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ResetSchema drops and recreates the public schema.
func ResetSchema(ctx context.Context, db Execer, p dbcmd.Profile) error {
	stmts, err := dbcmd.ResetStatements(p)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if _, err := db.Exec(ctx, s); err != nil {
			return fmt.Errorf("reset schema: %s: %w", s, err)
		}
	}
	return nil
}

// Reset connects and runs ResetSchema.
func Reset(ctx context.Context, p dbcmd.Profile) error {
	pool, err := Connect(ctx, p, 1)
	if err != nil {
		return fmt.Errorf("connect %s: %w", p.Host, err)
	}
	defer pool.Close()
	return ResetSchema(ctx, pool, p)
}
