package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/vbp1/magicwand/internal/config"
	"github.com/vbp1/magicwand/internal/database"
	"github.com/vbp1/magicwand/internal/dbcmd"
	"github.com/vbp1/magicwand/internal/log"
	"github.com/vbp1/magicwand/internal/maintenance"
	"github.com/vbp1/magicwand/internal/process"
	"github.com/vbp1/magicwand/internal/redact"
	"github.com/vbp1/magicwand/internal/resource"
	"github.com/vbp1/magicwand/internal/status"
	"github.com/vbp1/magicwand/internal/transport"
)

// app wires configuration and collaborators for the commands.
type app struct {
	opts rootOptions

	runner   process.Runner
	resetter database.Resetter
	dial     transport.Dialer

	cfg     *config.Config
	secrets *redact.Secrets
}

// load reads the configuration once per process.
func (a *app) load() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	a.secrets = &redact.Secrets{}
	if p, err := cfg.Database.Profile(); err == nil {
		a.secrets.Add(p.Secrets()...)
	}
	return cfg, nil
}

// console returns the redacting writer commands print through. Callers must
// Flush it before returning.
func (a *app) console(cmd *cobra.Command) *redact.Writer {
	return redact.NewWriter(cmd.OutOrStdout(), a.secrets)
}

func (a *app) local() (dbcmd.Profile, error) {
	return a.cfg.Database.Profile()
}

func (a *app) flow(out io.Writer) maintenance.Flow {
	return maintenance.Flow{
		Runner:  a.runner,
		Command: a.cfg.FlowCommand,
		Context: a.cfg.FlowContext,
		Dir:     a.cfg.RootPath,
		Stdout:  out,
		Stderr:  out,
	}
}

func (a *app) status() *status.Store {
	return status.NewStore(a.cfg.StatusPath())
}

// activePreset is the preset of the last clone, falling back to the default preset.
func (a *app) activePreset() (config.Preset, bool) {
	name, _, err := a.status().CurrentPreset()
	if err != nil {
		log.Component("cli").Debug().Err(err).Msg("status unavailable")
	}
	if name != "" {
		if p, err := a.cfg.Preset(name); err == nil {
			return p, true
		}
	}
	p, err := a.cfg.Default()
	if err != nil {
		return config.Preset{}, false
	}
	return p, true
}

// resources builds the storage, publishing target and proxy. The origin comes
// from the active preset's resourceProxy, if any.
func (a *app) resources() (*resource.Proxy, resource.Target, error) {
	storage := resource.Storage{Root: a.cfg.ResourceStoragePath()}
	var origin *resource.Origin
	if p, ok := a.activePreset(); ok && p.Proxy != nil {
		origin = &resource.Origin{
			BaseURI:   p.Proxy.BaseURI,
			Subdivide: p.Proxy.Subdivide,
			HTTP: resource.HTTPOptions{
				Timeout:            p.Proxy.HTTP.Timeout,
				InsecureSkipVerify: p.Proxy.HTTP.InsecureSkipVerify,
				Proxy:              p.Proxy.HTTP.Proxy,
				Headers:            p.Proxy.HTTP.Headers,
			},
		}
	}
	target := resource.Target{
		PublicPath:   a.cfg.PublicPath(),
		BaseURI:      a.cfg.Resources.BaseURI,
		Storage:      storage,
		ProxyEnabled: origin != nil,
	}
	proxy, err := resource.NewProxy(storage, target, origin)
	if err != nil {
		return nil, resource.Target{}, err
	}
	return proxy, target, nil
}

// flushed runs fn and flushes w afterwards, keeping fn's error first.
func flushed(w *redact.Writer, fn func() error) error {
	err := fn()
	return errors.Join(err, w.Flush())
}

// redactedError masks secrets in the message and keeps the chain for errors.Is.
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

func (a *app) redactError(err error) error {
	if err == nil || a.secrets == nil {
		return err
	}
	msg := a.secrets.Redact(err.Error())
	if msg == err.Error() {
		return err
	}
	return &redactedError{msg: msg, err: err}
}
