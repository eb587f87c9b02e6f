// Package dbcmd builds the client command lines used to dump, restore and reset
// a database. Commands are argument arrays; nothing is interpolated into a shell
// string until Command.Shell is asked for one.
package dbcmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vbp1/magicwand/internal/process"
)

// Driver is the closed set of supported database engines.
type Driver int

const (
	DriverUnknown Driver = iota
	MySQL
	Postgres
)

func (d Driver) String() string {
	switch d {
	case MySQL:
		return "mysql"
	case Postgres:
		return "postgres"
	}
	return "unknown"
}

var (
	// ErrUnsupportedDriver is returned for any driver outside the closed set.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	// ErrConfigIncompatible means the remote and local databases cannot be cloned into each other.
	ErrConfigIncompatible = errors.New("database configurations are incompatible")
)

// UnsupportedDriverError names the offending driver.
type UnsupportedDriverError struct {
	Name string
}

func (e *UnsupportedDriverError) Error() string {
	return fmt.Sprintf("unsupported database driver %q, only pdo_mysql and pdo_pgsql are supported", e.Name)
}

func (e *UnsupportedDriverError) Is(target error) bool { return target == ErrUnsupportedDriver }

// ParseDriver maps the driver names found in application settings to a Driver.
func ParseDriver(name string) (Driver, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pdo_mysql", "mysql", "mysqli":
		return MySQL, nil
	case "pdo_pgsql", "pgsql", "postgres", "postgresql":
		return Postgres, nil
	}
	return DriverUnknown, &UnsupportedDriverError{Name: name}
}

// Profile is everything needed to reach one database.
type Profile struct {
	Driver   Driver
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Charset  string
}

// WithDefaults fills in the driver's default port.
func (p Profile) WithDefaults() Profile {
	if p.Port == 0 {
		p.Port = DefaultPort(p.Driver)
	}
	if p.Host == "" {
		p.Host = "127.0.0.1"
	}
	return p
}

// Secrets lists values that must never appear in output.
func (p Profile) Secrets() []string {
	return []string{p.User, p.Password}
}

// dialect holds the per-engine command shapes.
type dialect interface {
	connect(p Profile) process.Command
	dump(p Profile, excludeTables []string, binary string) process.Command
	schemaDump(p Profile, tables []string, binary string) process.Command
	reset(p Profile) []string
	defaultPort() int
	keepsExcludedSchema() bool
}

var dialects = map[Driver]dialect{
	MySQL:    mysqlDialect{},
	Postgres: postgresDialect{},
}

func dialectFor(d Driver) (dialect, error) {
	dl, ok := dialects[d]
	if !ok {
		return nil, &UnsupportedDriverError{Name: d.String()}
	}
	return dl, nil
}

// IsSupported reports whether d has a dialect.
func IsSupported(d Driver) bool {
	_, ok := dialects[d]
	return ok
}

// DefaultPort returns 3306 for MySQL, 5432 for Postgres and 0 otherwise.
func DefaultPort(d Driver) int {
	if dl, ok := dialects[d]; ok {
		return dl.defaultPort()
	}
	return 0
}

// NeedsSchemaPass reports whether tables excluded from DumpCmd lose their
// structure too, so a SchemaOnlyDumpCmd pass has to follow.
func NeedsSchemaPass(d Driver) bool {
	dl, ok := dialects[d]
	return ok && !dl.keepsExcludedSchema()
}

// ConnectCmd returns an interactive client reading SQL from stdin.
func ConnectCmd(p Profile) (process.Command, error) {
	dl, err := dialectFor(p.Driver)
	if err != nil {
		return process.Command{}, err
	}
	return dl.connect(p.WithDefaults()), nil
}

// DumpCmd returns a full dump that skips the row content of excludeTables.
// binary overrides the dump program name when non-empty.
func DumpCmd(p Profile, excludeTables []string, binary string) (process.Command, error) {
	dl, err := dialectFor(p.Driver)
	if err != nil {
		return process.Command{}, err
	}
	return dl.dump(p.WithDefaults(), excludeTables, binary), nil
}

// SchemaOnlyDumpCmd dumps only the structure of tables.
func SchemaOnlyDumpCmd(p Profile, tables []string, binary string) (process.Command, error) {
	dl, err := dialectFor(p.Driver)
	if err != nil {
		return process.Command{}, err
	}
	if len(tables) == 0 {
		return process.Command{}, errors.New("schema-only dump needs at least one table")
	}
	return dl.schemaDump(p.WithDefaults(), tables, binary), nil
}

// ResetStatements returns the SQL that leaves the target database empty.
func ResetStatements(p Profile) ([]string, error) {
	dl, err := dialectFor(p.Driver)
	if err != nil {
		return nil, err
	}
	return dl.reset(p), nil
}

// ResetCmd is the client-based fallback for resetting: ConnectCmd fed with ResetStatements.
func ResetCmd(p Profile) (process.Command, error) {
	c, err := ConnectCmd(p)
	if err != nil {
		return c, err
	}
	stmts, _ := ResetStatements(p)
	c.Stdin = strings.Join(stmts, ";\n") + ";\n"
	return c, nil
}

// CheckCompatibility verifies a clone from remote into local is possible.
// Both drivers must be supported and identical and the charsets must agree,
// with utf8 and utf8mb4 treated as the same. Two unset charsets agree.
func CheckCompatibility(remote, local Profile) error {
	if !IsSupported(remote.Driver) {
		return fmt.Errorf("remote: %w", &UnsupportedDriverError{Name: remote.Driver.String()})
	}
	if !IsSupported(local.Driver) {
		return fmt.Errorf("local: %w", &UnsupportedDriverError{Name: local.Driver.String()})
	}
	if remote.Driver != local.Driver {
		return fmt.Errorf("%w: remote uses %s, local uses %s", ErrConfigIncompatible, remote.Driver, local.Driver)
	}
	if normalizeCharset(remote.Charset) != normalizeCharset(local.Charset) {
		return fmt.Errorf("%w: remote charset %q, local charset %q", ErrConfigIncompatible, remote.Charset, local.Charset)
	}
	return nil
}

func normalizeCharset(cs string) string {
	cs = strings.ToLower(strings.TrimSpace(cs))
	if cs == "utf8" {
		return "utf8mb4"
	}
	return cs
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
