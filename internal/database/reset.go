// Package database empties the local database before a restore.
package database

import (
	"context"

	"github.com/vbp1/magicwand/internal/dbcmd"
	"github.com/vbp1/magicwand/internal/mysql"
	"github.com/vbp1/magicwand/internal/postgres"
)

// Resetter drops and recreates the local database (MySQL) or schema (Postgres).
type Resetter interface {
	Reset(ctx context.Context, p dbcmd.Profile) error
}

// DriverResetter talks to the database directly through its Go driver.
type DriverResetter struct{}

// Reset implements Resetter.
func (DriverResetter) Reset(ctx context.Context, p dbcmd.Profile) error {
	switch p.Driver {
	case dbcmd.MySQL:
		return mysql.Reset(ctx, p)
	case dbcmd.Postgres:
		return postgres.Reset(ctx, p)
	}
	return &dbcmd.UnsupportedDriverError{Name: p.Driver.String()}
}
