//go:build integration

package util

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vbp1/magicwand/internal/dbcmd"
)

// StartPostgres runs a disposable PostgreSQL container and returns a profile
// pointing at it together with a teardown func.
func StartPostgres(ctx context.Context) (dbcmd.Profile, func() error, error) {
	const (
		user     = "neos"
		password = "neos-pw"
		dbName   = "neos"
	)
	c, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(user),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		return dbcmd.Profile{}, nil, fmt.Errorf("start postgres: %w", err)
	}
	teardown := func() error {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return c.Terminate(stopCtx)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = teardown()
		return dbcmd.Profile{}, nil, err
	}
	mapped, err := c.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = teardown()
		return dbcmd.Profile{}, nil, err
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		_ = teardown()
		return dbcmd.Profile{}, nil, err
	}
	return dbcmd.Profile{
		Driver:   dbcmd.Postgres,
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		Database: dbName,
	}, teardown, nil
}
