// Package remoteconfig reads the database settings of a remote Flow installation.
package remoteconfig

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"
	"gopkg.in/yaml.v3"

	"github.com/vbp1/magicwand/internal/dbcmd"
	"github.com/vbp1/magicwand/internal/log"
)

// ErrRemoteConfigUnavailable covers every way of not getting a usable profile.
var ErrRemoteConfigUnavailable = errors.New("remote database configuration unavailable")

const settingsPath = "Neos.Flow.persistence.backendOptions"

// Executor is the part of a transport Fetch needs.
type Executor interface {
	Output(ctx context.Context, script string) ([]byte, error)
}

// Request locates the remote installation.
type Request struct {
	Path        string // remote Flow root
	Context     string // remote FLOW_CONTEXT
	FlowCommand string // e.g. "./flow" or "php ./flow"
}

// Script is the remote shell line printing the settings as YAML.
// FlowCommand is operator configuration and is not quoted.
func (r Request) Script() string {
	return fmt.Sprintf("cd %s && FLOW_CONTEXT=%s %s configuration:show --type Settings --path %s",
		shellescape.Quote(r.Path), shellescape.Quote(r.Context), r.FlowCommand, settingsPath)
}

// Fetch runs Script remotely and parses the result.
func Fetch(ctx context.Context, remote Executor, req Request) (dbcmd.Profile, error) {
	out, err := remote.Output(ctx, req.Script())
	if err != nil {
		return dbcmd.Profile{}, fmt.Errorf("%w: %v", ErrRemoteConfigUnavailable, err)
	}
	p, err := Parse(out)
	if err != nil {
		return dbcmd.Profile{}, err
	}
	log.Component("remoteconfig").Debug().Str("driver", p.Driver.String()).Str("host", p.Host).Msg("remote profile")
	return p, nil
}

type backendOptions struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     any    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Charset  string `yaml:"charset"`
}

// Parse decodes the settings document. An unsupported driver is reported as
// dbcmd.ErrUnsupportedDriver, everything else as ErrRemoteConfigUnavailable.
func Parse(doc []byte) (dbcmd.Profile, error) {
	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 {
		return dbcmd.Profile{}, fmt.Errorf("%w: empty output", ErrRemoteConfigUnavailable)
	}
	var bo backendOptions
	if err := yaml.Unmarshal(doc, &bo); err != nil {
		return dbcmd.Profile{}, fmt.Errorf("%w: %v", ErrRemoteConfigUnavailable, err)
	}
	var missing []string
	for k, v := range map[string]string{"driver": bo.Driver, "host": bo.Host, "user": bo.User, "dbname": bo.DBName} {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return dbcmd.Profile{}, fmt.Errorf("%w: missing %s", ErrRemoteConfigUnavailable, strings.Join(missing, ", "))
	}
	drv, err := dbcmd.ParseDriver(bo.Driver)
	if err != nil {
		return dbcmd.Profile{}, err
	}
	port, err := parsePort(bo.Port)
	if err != nil {
		return dbcmd.Profile{}, fmt.Errorf("%w: %v", ErrRemoteConfigUnavailable, err)
	}
	return dbcmd.Profile{
		Driver:   drv,
		Host:     bo.Host,
		Port:     port,
		User:     bo.User,
		Password: bo.Password,
		Database: bo.DBName,
		Charset:  bo.Charset,
	}.WithDefaults(), nil
}

func parsePort(v any) (int, error) {
	switch p := v.(type) {
	case nil:
		return 0, nil
	case int:
		return p, nil
	case string:
		if p == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid port %q", p)
		}
		return n, nil
	}
	return 0, fmt.Errorf("invalid port %v", v)
}
