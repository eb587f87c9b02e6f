package dbcmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbp1/magicwand/internal/process"
)

func mysqlProfile() Profile {
	return Profile{Driver: MySQL, Host: "db", User: "neos", Password: "p@ss", Database: "shop", Charset: "utf8mb4"}
}

func pgProfile() Profile {
	return Profile{Driver: Postgres, Host: "db", Port: 6432, User: "neos", Password: "p@ss", Database: "shop"}
}

func TestParseDriver(t *testing.T) {
	tests := []struct {
		in   string
		want Driver
	}{
		{"pdo_mysql", MySQL},
		{"mysqli", MySQL},
		{"PDO_PGSQL", Postgres},
		{"postgresql", Postgres},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDriver(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseDriver("pdo_sqlite")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
	var ude *UnsupportedDriverError
	require.True(t, errors.As(err, &ude))
	assert.Equal(t, "pdo_sqlite", ude.Name)
}

func TestDefaultPort(t *testing.T) {
	assert.Equal(t, 3306, DefaultPort(MySQL))
	assert.Equal(t, 5432, DefaultPort(Postgres))
	assert.Equal(t, 0, DefaultPort(DriverUnknown))
}

func TestMySQLDumpCmd(t *testing.T) {
	c, err := DumpCmd(mysqlProfile(), []string{"cache", "log"}, "")
	require.NoError(t, err)
	assert.Equal(t, "mysqldump", c.Name)
	assert.Equal(t, []string{
		"--single-transaction", "--add-drop-table", "--no-tablespaces",
		"--host=db", "--port=3306", "--user=neos",
		"--ignore-table=shop.cache", "--ignore-table=shop.log",
		"shop",
	}, c.Args)
	assert.Equal(t, []string{"MYSQL_PWD=p@ss"}, c.Env)
}

func TestPostgresDumpCmd(t *testing.T) {
	c, err := DumpCmd(pgProfile(), []string{"cache"}, "/usr/lib/postgresql/15/bin/pg_dump")
	require.NoError(t, err)
	assert.Equal(t, "/usr/lib/postgresql/15/bin/pg_dump", c.Name)
	assert.Contains(t, c.Args, "--exclude-table-data=cache")
	assert.Contains(t, c.Args, "--port=6432")
	assert.Contains(t, c.Args, "--schema=public")
	assert.Equal(t, []string{"PGPASSWORD=p@ss"}, c.Env)
}

func TestSchemaOnlyDumpCmd(t *testing.T) {
	c, err := SchemaOnlyDumpCmd(mysqlProfile(), []string{"cache"}, "")
	require.NoError(t, err)
	assert.Contains(t, c.Args, "--no-data")
	assert.Equal(t, []string{"shop", "cache"}, c.Args[len(c.Args)-2:])

	c, err = SchemaOnlyDumpCmd(pgProfile(), []string{"a", "b"}, "")
	require.NoError(t, err)
	assert.Contains(t, c.Args, "--schema-only")
	assert.Contains(t, c.Args, "--table=a")
	assert.Contains(t, c.Args, "--table=b")

	_, err = SchemaOnlyDumpCmd(pgProfile(), nil, "")
	assert.Error(t, err)
}

func TestConnectCmd(t *testing.T) {
	c, err := ConnectCmd(pgProfile())
	require.NoError(t, err)
	assert.Equal(t, "psql", c.Name)
	assert.Equal(t, "--quiet", c.Args[0])
	assert.Contains(t, c.Env, "PGOPTIONS=--client-min-messages=warning")
	assert.Contains(t, c.Args, "--dbname=shop")

	c, err = ConnectCmd(mysqlProfile())
	require.NoError(t, err)
	assert.Equal(t, "mysql", c.Name)
	assert.Equal(t, "shop", c.Args[len(c.Args)-1])
}

func TestResetStatements(t *testing.T) {
	stmts, err := ResetStatements(mysqlProfile())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"DROP DATABASE IF EXISTS `shop`",
		"CREATE DATABASE `shop` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci",
	}, stmts)

	stmts, err = ResetStatements(pgProfile())
	require.NoError(t, err)
	assert.Equal(t, "DROP SCHEMA IF EXISTS public CASCADE", stmts[0])

	c, err := ResetCmd(pgProfile())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.Stdin, "DROP SCHEMA"))
}

func TestUnsupportedDriverFailsFast(t *testing.T) {
	p := Profile{Driver: DriverUnknown, Database: "x"}
	_, err := DumpCmd(p, nil, "")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
	_, err = ConnectCmd(p)
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
	_, err = ResetStatements(p)
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
	assert.False(t, NeedsSchemaPass(DriverUnknown))
}

func TestNeedsSchemaPass(t *testing.T) {
	assert.True(t, NeedsSchemaPass(MySQL))
	assert.False(t, NeedsSchemaPass(Postgres))
}

func TestCheckCompatibility(t *testing.T) {
	utf8 := mysqlProfile()
	utf8.Charset = "utf8"
	latin := mysqlProfile()
	latin.Charset = "latin1"
	pgUTF8 := pgProfile()
	pgUTF8.Charset = "utf8"

	tests := []struct {
		name    string
		a, b    Profile
		wantErr error
	}{
		{"same mysql", mysqlProfile(), mysqlProfile(), nil},
		{"utf8 equals utf8mb4", utf8, mysqlProfile(), nil},
		{"charset mismatch", latin, mysqlProfile(), ErrConfigIncompatible},
		{"driver mismatch", mysqlProfile(), pgProfile(), ErrConfigIncompatible},
		{"unsupported", Profile{}, mysqlProfile(), ErrUnsupportedDriver},
		{"postgres without charsets", pgProfile(), pgProfile(), nil},
		{"postgres utf8 against utf8mb4", pgUTF8, Profile{Driver: Postgres, Charset: "UTF8MB4"}, nil},
		{"postgres charset mismatch", pgUTF8, Profile{Driver: Postgres, Charset: "latin1"}, ErrConfigIncompatible},
		{"postgres charset set on one side only", pgUTF8, pgProfile(), ErrConfigIncompatible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, pair := range [][2]Profile{{tt.a, tt.b}, {tt.b, tt.a}} {
				err := CheckCompatibility(pair[0], pair[1])
				if tt.wantErr == nil {
					assert.NoError(t, err)
				} else {
					assert.ErrorIs(t, err, tt.wantErr)
				}
			}
		})
	}
}

func TestMySQLPasswordStaysOutOfArgs(t *testing.T) {
	p := mysqlProfile()
	p.Password = "it's"
	for _, build := range []func() (process.Command, error){
		func() (process.Command, error) { return ConnectCmd(p) },
		func() (process.Command, error) { return DumpCmd(p, nil, "") },
		func() (process.Command, error) { return SchemaOnlyDumpCmd(p, []string{"cache"}, "") },
	} {
		c, err := build()
		require.NoError(t, err)
		for _, a := range c.Args {
			assert.NotContains(t, a, "it's")
		}
		assert.Equal(t, []string{"MYSQL_PWD=it's"}, c.Env)
		assert.True(t, strings.HasPrefix(c.Shell(), `MYSQL_PWD='it'"'"'s' `), c.Shell())
	}
}
