package dbcmd

import (
	"strconv"
	"strings"

	"github.com/vbp1/magicwand/internal/process"
)

type mysqlDialect struct{}

func (mysqlDialect) defaultPort() int { return 3306 }

func (mysqlDialect) keepsExcludedSchema() bool { return false }

func (mysqlDialect) auth(p Profile) []string {
	return []string{
		"--host=" + p.Host,
		"--port=" + strconv.Itoa(p.Port),
		"--user=" + p.User,
	}
}

// env passes the password outside of argv.
func (mysqlDialect) env(p Profile) []string {
	if p.Password == "" {
		return nil
	}
	return []string{"MYSQL_PWD=" + p.Password}
}

func (d mysqlDialect) connect(p Profile) process.Command {
	args := append(d.auth(p), p.Database)
	return process.Command{Name: "mysql", Args: args, Env: d.env(p)}
}

func (d mysqlDialect) dump(p Profile, exclude []string, binary string) process.Command {
	args := []string{"--single-transaction", "--add-drop-table", "--no-tablespaces"}
	args = append(args, d.auth(p)...)
	for _, t := range exclude {
		args = append(args, "--ignore-table="+p.Database+"."+t)
	}
	args = append(args, p.Database)
	return process.Command{Name: orDefault(binary, "mysqldump"), Args: args, Env: d.env(p)}
}

func (d mysqlDialect) schemaDump(p Profile, tables []string, binary string) process.Command {
	args := []string{"--single-transaction", "--add-drop-table", "--no-tablespaces", "--no-data"}
	args = append(args, d.auth(p)...)
	args = append(args, p.Database)
	args = append(args, tables...)
	return process.Command{Name: orDefault(binary, "mysqldump"), Args: args, Env: d.env(p)}
}

func (mysqlDialect) reset(p Profile) []string {
	db := quoteIdent(p.Database)
	return []string{
		"DROP DATABASE IF EXISTS " + db,
		"CREATE DATABASE " + db + " CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci",
	}
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
