package clone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/alessio/shellescape"

	"github.com/vbp1/magicwand/internal/config"
	"github.com/vbp1/magicwand/internal/confirm"
	"github.com/vbp1/magicwand/internal/console"
	"github.com/vbp1/magicwand/internal/database"
	"github.com/vbp1/magicwand/internal/dbcmd"
	"github.com/vbp1/magicwand/internal/debug"
	"github.com/vbp1/magicwand/internal/log"
	"github.com/vbp1/magicwand/internal/process"
	"github.com/vbp1/magicwand/internal/redact"
	"github.com/vbp1/magicwand/internal/remoteconfig"
	"github.com/vbp1/magicwand/internal/rsync"
	"github.com/vbp1/magicwand/internal/runctx"
	"github.com/vbp1/magicwand/internal/transport"
	"github.com/vbp1/magicwand/internal/util/fs"
)

// Maintenance runs the local Flow commands that follow the transfer.
type Maintenance interface {
	FlushCaches(ctx context.Context) error
	Migrate(ctx context.Context) error
	SetCharset(ctx context.Context) error
	PublishResources(ctx context.Context) error
	Hook(ctx context.Context, hook string) error
}

// Status records the preset that was cloned.
type Status interface {
	RecordClone(preset string) error
}

// Config is the local side of a clone.
type Config struct {
	Local            dbcmd.Profile
	PersistentPath   string
	TranslationsPath string
	FlowCommand      string // remote flow command unless the preset overrides it
	Progress         bool
	KeepStaging      bool
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Dial     transport.Dialer
	Runner   process.Runner
	Resetter database.Resetter
	Flow     Maintenance
	Status   Status
	Secrets  *redact.Secrets
	Stdin    io.Reader
	Out      io.Writer // console output, expected to be a redacting writer
}

// Options select the preset and skip steps.
type Options struct {
	Preset config.Preset
	Yes    bool
	KeepDB bool
}

// Session is the state of one clone run.
type Session struct {
	Start  time.Time
	Local  dbcmd.Profile
	Remote dbcmd.Profile
	Preset config.Preset

	remote transport.Remote
}

// Orchestrator keeps state across clone steps.
type Orchestrator struct {
	cfg  Config
	deps Deps
	out  *console.Printer
	now  func() time.Time
}

// New returns an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	return &Orchestrator{cfg: cfg, deps: deps, out: console.New(deps.Out), now: time.Now}
}

// Run clones the preset into the local environment. Steps run strictly in
// order; the first failing step aborts the run, leaving partial state.
func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	lg := log.Component("clone").With().Str("preset", opts.Preset.Name).Logger()

	s, err := o.stepInit(ctx, opts.Preset)
	if err != nil {
		return err
	}
	defer s.remote.Close()

	if !opts.Yes {
		if err := confirm.Ask(o.deps.Stdin, o.deps.Out); err != nil {
			return err
		}
	}
	s.Start = o.now()
	o.registerSecrets(s)

	steps := []struct {
		name string
		fn   func(context.Context, *Session) error
		skip bool
	}{
		{"check configuration", o.stepCheckConfiguration, false},
		{"reset local database", o.stepResetLocalDB, opts.KeepDB},
		{"transfer database", o.stepTransferDatabase, false},
		{"transfer files", o.stepTransferFiles, false},
		{"transfer translations", o.stepTransferTranslations, false},
		{"clear caches", o.stepClearCaches, false},
		{"migrate", o.stepMigrate, false},
		{"publish resources", o.stepPublishResources, opts.Preset.Clone.SkipResourcePublishStep},
		{"post clone hooks", o.stepPostHooks, false},
	}
	for _, st := range steps {
		if st.skip {
			lg.Debug().Str("step", st.name).Msg("skipped")
			continue
		}
		lg.Debug().Str("step", st.name).Msg("step start")
		debug.StopIf(st.name)
		if err := st.fn(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", st.name, err)
		}
	}

	if o.deps.Status != nil {
		if err := o.deps.Status.RecordClone(opts.Preset.Name); err != nil {
			lg.Warn().Err(err).Msg("cannot record clone status")
		}
	}
	o.out.Headline("Done")
	o.out.Line("Successfully cloned in %d seconds", int(o.now().Sub(s.Start).Seconds()))
	lg.Info().Msg("clone completed")
	return nil
}

func (o *Orchestrator) stepInit(ctx context.Context, p config.Preset) (*Session, error) {
	o.out.Headline("Fetch Remote Configuration")
	remote, err := o.deps.Dial(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", p.Name, err)
	}
	flow := p.FlowCommand
	if flow == "" {
		flow = o.cfg.FlowCommand
	}
	prof, err := remoteconfig.Fetch(ctx, remote, remoteconfig.Request{Path: p.Path, Context: p.Context, FlowCommand: flow})
	if err != nil {
		remote.Close()
		return nil, err
	}
	o.out.Line("Remote %s: %s database %s on %s", remote, prof.Driver, prof.Database, prof.Host)
	return &Session{Local: o.cfg.Local.WithDefaults(), Remote: prof, Preset: p, remote: remote}, nil
}

func (o *Orchestrator) registerSecrets(s *Session) {
	if o.deps.Secrets == nil {
		return
	}
	o.deps.Secrets.Add(s.Local.Secrets()...)
	o.deps.Secrets.Add(s.Remote.Secrets()...)
}

func (o *Orchestrator) stepCheckConfiguration(_ context.Context, s *Session) error {
	o.out.Headline("Check Configuration")
	if err := dbcmd.CheckCompatibility(s.Remote, s.Local); err != nil {
		return err
	}
	o.out.Line("Ok")
	return nil
}

func (o *Orchestrator) stepResetLocalDB(ctx context.Context, s *Session) error {
	o.out.Headline("Drop and Recreate DB")
	return o.deps.Resetter.Reset(ctx, s.Local)
}

func (o *Orchestrator) stepTransferDatabase(ctx context.Context, s *Session) error {
	o.out.Headline("Transfer Database")
	exclude := s.Preset.Clone.Database.ExcludeTableContent
	dump, err := dbcmd.DumpCmd(s.Remote, exclude, s.Preset.DumpCommand)
	if err != nil {
		return err
	}
	if err := o.transferDump(ctx, s, dump); err != nil {
		return err
	}
	if len(exclude) == 0 || !dbcmd.NeedsSchemaPass(s.Remote.Driver) {
		return nil
	}
	o.out.Line("Transfer structure of excluded tables")
	schema, err := dbcmd.SchemaOnlyDumpCmd(s.Remote, exclude, s.Preset.DumpCommand)
	if err != nil {
		return err
	}
	return o.transferDump(ctx, s, schema)
}

// transferDump runs dump remotely and restores its output locally, streaming
// when the transport allows it and staging to a file otherwise.
func (o *Orchestrator) transferDump(ctx context.Context, s *Session, dump process.Command) error {
	restore, err := dbcmd.ConnectCmd(s.Local)
	if err != nil {
		return err
	}
	o.out.Command(dump.Shell() + " | " + restore.Shell())

	if !s.remote.Buffered() {
		bar := newTransferBar(o.cfg.Progress, "database")
		err := o.deps.Runner.Stream(ctx, func(w io.Writer) error {
			return s.remote.Run(ctx, dump.Shell(), bar.Wrap(w), o.deps.Out)
		}, restore, o.deps.Out, o.deps.Out)
		bar.Done()
		return err
	}

	stage, err := runctx.New("magicwand_dump_", o.cfg.KeepStaging)
	if err != nil {
		return err
	}
	defer stage.Cleanup()
	f, err := stage.Create("dump.sql")
	if err != nil {
		return err
	}
	defer f.Close()

	bar := newTransferBar(o.cfg.Progress, "database")
	err = s.remote.Run(ctx, dump.Shell(), bar.Wrap(f), o.deps.Out)
	bar.Done()
	if err != nil {
		return fmt.Errorf("remote dump: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return o.deps.Runner.Run(ctx, restore, f, o.deps.Out, o.deps.Out)
}

func (o *Orchestrator) rsyncConfig(p config.Preset) rsync.Config {
	return rsync.Config{
		Host:       p.Host,
		User:       p.User,
		Port:       p.Port,
		SSHOptions: p.SSHOptions,
		KeyPath:    p.SSHKey,
		Insecure:   p.InsecureSSH,
	}
}

func (o *Orchestrator) stepTransferFiles(ctx context.Context, s *Session) error {
	o.out.Headline("Transfer Files")
	if s.Preset.IsKubernetes() {
		o.out.Line("Skipped, resources are served through the resource proxy")
		return nil
	}
	if err := fs.MkdirP(o.cfg.PersistentPath); err != nil {
		return err
	}
	rc := o.rsyncConfig(s.Preset)
	if s.Preset.Proxy != nil {
		rc.Excludes = []string{"Resources/*"}
	}
	remoteDir := path.Join(s.Preset.Path, "Data", "Persistent")
	o.out.Command(rc.Command(remoteDir, o.cfg.PersistentPath).Shell())
	st, err := rc.Pull(ctx, o.deps.Runner, remoteDir, o.cfg.PersistentPath, o.deps.Out)
	if err != nil {
		return err
	}
	o.out.Line("%s", st.Summary())
	return nil
}

func (o *Orchestrator) stepTransferTranslations(ctx context.Context, s *Session) error {
	o.out.Headline("Transfer Translations")
	if s.Preset.IsKubernetes() {
		o.out.Line("Skipped for container presets")
		return nil
	}
	remoteDir := path.Join(s.Preset.Path, "Data", "Translations")
	out, err := s.remote.Output(ctx, "[ -d "+shellescape.Quote(remoteDir)+" ] && echo true")
	if err != nil || strings.TrimSpace(string(out)) != "true" {
		o.out.Line("No translations available for cloning")
		return nil
	}
	if err := fs.MkdirP(o.cfg.TranslationsPath); err != nil {
		return err
	}
	rc := o.rsyncConfig(s.Preset)
	o.out.Command(rc.Command(remoteDir, o.cfg.TranslationsPath).Shell())
	_, err = rc.Pull(ctx, o.deps.Runner, remoteDir, o.cfg.TranslationsPath, o.deps.Out)
	return err
}

func (o *Orchestrator) stepClearCaches(ctx context.Context, _ *Session) error {
	o.out.Headline("Clear Caches")
	return o.deps.Flow.FlushCaches(ctx)
}

func (o *Orchestrator) stepMigrate(ctx context.Context, s *Session) error {
	o.out.Headline("Migrate Database")
	if s.Local.Driver == dbcmd.MySQL && !strings.EqualFold(s.Remote.Charset, "utf8mb4") {
		if err := o.deps.Flow.SetCharset(ctx); err != nil {
			return err
		}
	}
	return o.deps.Flow.Migrate(ctx)
}

func (o *Orchestrator) stepPublishResources(ctx context.Context, _ *Session) error {
	o.out.Headline("Publish Resources")
	return o.deps.Flow.PublishResources(ctx)
}

// stepPostHooks never fails the run: hook errors are reported and the next hook runs.
func (o *Orchestrator) stepPostHooks(ctx context.Context, s *Session) error {
	if len(s.Preset.PostClone) == 0 {
		return nil
	}
	o.out.Headline("Execute Post Clone Commands")
	var failed []error
	for _, hook := range s.Preset.PostClone {
		o.out.Command(hook)
		if err := o.deps.Flow.Hook(ctx, hook); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.out.Line("Post clone command failed: %v", err)
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		log.Component("clone").Warn().Err(errors.Join(failed...)).Int("failed", len(failed)).Msg("post clone commands failed")
	}
	return nil
}
