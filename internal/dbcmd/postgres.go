package dbcmd

import (
	"strconv"

	"github.com/vbp1/magicwand/internal/process"
)

type postgresDialect struct{}

func (postgresDialect) defaultPort() int { return 5432 }

// pg_dump keeps the structure of tables excluded with --exclude-table-data.
func (postgresDialect) keepsExcludedSchema() bool { return true }

func (postgresDialect) env(p Profile) []string {
	return []string{"PGPASSWORD=" + p.Password}
}

func (postgresDialect) auth(p Profile) []string {
	return []string{
		"--host=" + p.Host,
		"--port=" + strconv.Itoa(p.Port),
		"--username=" + p.User,
	}
}

func (d postgresDialect) connect(p Profile) process.Command {
	args := append([]string{"--quiet"}, d.auth(p)...)
	args = append(args, "--dbname="+p.Database)
	return process.Command{
		Name: "psql",
		Args: args,
		Env:  append(d.env(p), "PGOPTIONS=--client-min-messages=warning"),
	}
}

func (d postgresDialect) dump(p Profile, exclude []string, binary string) process.Command {
	args := d.auth(p)
	for _, t := range exclude {
		args = append(args, "--exclude-table-data="+t)
	}
	args = append(args, "--dbname="+p.Database, "--schema=public", "--no-owner", "--no-privileges")
	return process.Command{Name: orDefault(binary, "pg_dump"), Args: args, Env: d.env(p)}
}

func (d postgresDialect) schemaDump(p Profile, tables []string, binary string) process.Command {
	args := d.auth(p)
	args = append(args, "--dbname="+p.Database, "--schema-only", "--no-owner", "--no-privileges")
	for _, t := range tables {
		args = append(args, "--table="+t)
	}
	return process.Command{Name: orDefault(binary, "pg_dump"), Args: args, Env: d.env(p)}
}

func (postgresDialect) reset(Profile) []string {
	return []string{
		"DROP SCHEMA IF EXISTS public CASCADE",
		"CREATE SCHEMA public",
	}
}
