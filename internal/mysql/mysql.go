// Package mysql resets the local MySQL database through a driver connection.
package mysql

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/vbp1/magicwand/internal/dbcmd"
)

// DSN builds a driver DSN for p. The database name is left out: the reset
// drops it, so the session must not depend on it existing.
func DSN(p dbcmd.Profile) string {
	p = p.WithDefaults()
	cfg := mysqldriver.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	cfg.Timeout = 10 * time.Second
	return cfg.FormatDSN()
}

// Connect opens and pings a connection.
func Connect(ctx context.Context, p dbcmd.Profile) (*sqlx.DB, error) {
	return sqlx.ConnectContext(ctx, "mysql", DSN(p))
}

// RecreateDatabase drops the database and creates it empty with utf8mb4.
func RecreateDatabase(ctx context.Context, db sqlx.ExecerContext, p dbcmd.Profile) error {
	stmts, err := dbcmd.ResetStatements(p)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("recreate database: %s: %w", s, err)
		}
	}
	return nil
}

// Reset connects and runs RecreateDatabase.
func Reset(ctx context.Context, p dbcmd.Profile) error {
	db, err := Connect(ctx, p)
	if err != nil {
		return fmt.Errorf("connect %s: %w", p.Host, err)
	}
	defer db.Close()
	return RecreateDatabase(ctx, db, p)
}
