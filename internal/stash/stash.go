// Package stash snapshots the local database and persistent files under a
// name and restores them later.
package stash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vbp1/magicwand/internal/confirm"
	"github.com/vbp1/magicwand/internal/console"
	"github.com/vbp1/magicwand/internal/database"
	"github.com/vbp1/magicwand/internal/dbcmd"
	"github.com/vbp1/magicwand/internal/lock"
	"github.com/vbp1/magicwand/internal/log"
	"github.com/vbp1/magicwand/internal/process"
	"github.com/vbp1/magicwand/internal/redact"
	"github.com/vbp1/magicwand/internal/util/disk"
	"github.com/vbp1/magicwand/internal/util/fs"
)

var (
	ErrEntryNotFound   = errors.New("stash entry not found")
	ErrEntryExists     = errors.New("stash entry already exists")
	ErrEntryBusy       = errors.New("stash entry is locked by another process")
	ErrInvalidName     = errors.New("invalid stash entry name")
	ErrManifestCorrupt = errors.New("stash manifest missing or corrupt")
)

const (
	dumpFile      = "database.sql"
	persistentDir = "persistent"
	manifestFile  = "manifest.json"
	notAvailable  = "N/A"
	timeLayout    = "2006-01-02 15:04:05"
)

// Manifest describes where an entry came from.
type Manifest struct {
	Preset    string     `json:"preset,omitempty"`
	ClonedAt  *time.Time `json:"clonedAt,omitempty"`
	StashedAt time.Time  `json:"stashedAt"`
}

// Entry is one item of List.
type Entry struct {
	Name     string
	Manifest *Manifest
	Err      error // ErrManifestCorrupt when the manifest could not be read
}

// Options for Restore.
type Options struct {
	Yes    bool
	KeepDB bool
}

// Maintenance runs the Flow housekeeping after a restore.
type Maintenance interface {
	FlushCaches(ctx context.Context) error
	Migrate(ctx context.Context) error
	PublishResources(ctx context.Context) error
}

// Status is the part of the status manifest the stash touches.
type Status interface {
	CurrentPreset() (string, time.Time, error)
	SetCurrentPreset(preset string, clonedAt time.Time) error
	RecordStash(name, operation string) error
}

// Config locates the stash and the data it snapshots.
type Config struct {
	Root           string
	PersistentPath string
	Local          dbcmd.Profile
	MinFreeBytes   uint64
}

// Deps are the collaborators of a Store.
type Deps struct {
	Runner   process.Runner
	Resetter database.Resetter
	Flow     Maintenance
	Status   Status
	Secrets  *redact.Secrets
	Stdin    io.Reader
	Out      io.Writer // console output, expected to be a redacting writer
}

// Store manages the entries below Config.Root.
type Store struct {
	cfg  Config
	deps Deps
	out  *console.Printer
	now  func() time.Time
}

// New returns a Store.
func New(cfg Config, deps Deps) *Store {
	return &Store{cfg: cfg, deps: deps, out: console.New(deps.Out), now: time.Now}
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func (s *Store) entryPath(name string, elem ...string) string {
	return filepath.Join(append([]string{s.cfg.Root, name}, elem...)...)
}

func (s *Store) exists(name string) bool {
	fi, err := os.Stat(s.entryPath(name))
	return err == nil && fi.IsDir()
}

func (s *Store) lock(name string) (*lock.FileLock, error) {
	l := lock.New(s.entryPath(name))
	ok, err := l.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryBusy, name)
	}
	return l, nil
}

func (s *Store) registerSecrets() {
	if s.deps.Secrets != nil {
		s.deps.Secrets.Add(s.cfg.Local.Secrets()...)
	}
}

// Create snapshots the local database and persistent files as name.
func (s *Store) Create(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if !dbcmd.IsSupported(s.cfg.Local.Driver) {
		return &dbcmd.UnsupportedDriverError{Name: s.cfg.Local.Driver.String()}
	}
	l, err := s.lock(name)
	if err != nil {
		return err
	}
	defer l.Unlock()

	if err := fs.MkdirP(s.cfg.Root); err != nil {
		return err
	}
	if s.exists(name) {
		return fmt.Errorf("%w: %s", ErrEntryExists, name)
	}
	// a failed space check must not leave an entry behind
	if err := disk.EnsureSpace(s.cfg.Root, s.cfg.MinFreeBytes); err != nil {
		return err
	}
	dir := s.entryPath(name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrEntryExists, name)
		}
		return err
	}
	s.registerSecrets()
	start := s.now()
	lg := log.Component("stash")

	s.out.Headline("Write Manifest")
	m := Manifest{StashedAt: start.UTC()}
	if s.deps.Status != nil {
		preset, clonedAt, err := s.deps.Status.CurrentPreset()
		if err != nil {
			lg.Warn().Err(err).Msg("status manifest unreadable, stashing without preset")
		} else if preset != "" {
			m.Preset = preset
			m.ClonedAt = &clonedAt
		}
	}
	if err := writeManifest(s.entryPath(name, manifestFile), m); err != nil {
		return err
	}

	s.out.Headline("Backup Database")
	dump, err := dbcmd.DumpCmd(s.cfg.Local, nil, "")
	if err != nil {
		return err
	}
	s.out.Command(dump.Shell() + " > " + s.entryPath(name, dumpFile))
	f, err := os.Create(s.entryPath(name, dumpFile))
	if err != nil {
		return err
	}
	if err := s.deps.Runner.Run(ctx, dump, nil, f, s.deps.Out); err != nil {
		f.Close()
		return fmt.Errorf("dump database: %w", err)
	}
	if fi, err := f.Stat(); err == nil {
		s.out.Line("Database dump: %s", disk.PrettyBytes(fi.Size()))
	}
	if err := f.Close(); err != nil {
		return err
	}

	s.out.Headline("Backup Persistent Resources")
	if err := fs.ReplaceTree(s.cfg.PersistentPath, s.entryPath(name, persistentDir)); err != nil {
		return fmt.Errorf("copy persistent files: %w", err)
	}
	if size, err := fs.DirSize(s.entryPath(name, persistentDir)); err == nil {
		s.out.Line("Persistent files: %s (hardlinked)", disk.PrettyBytes(size))
	}

	s.recordStatus(name, "create")
	s.out.Line("Successfully stashed %s in %d seconds", name, int(s.now().Sub(start).Seconds()))
	lg.Info().Str("entry", name).Msg("stash created")
	return nil
}

// List returns entries sorted by name. A missing root yields no entries.
func (s *Store) List() ([]Entry, error) {
	dirs, err := os.ReadDir(s.cfg.Root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, d := range dirs {
		if !d.IsDir() || validateName(d.Name()) != nil {
			continue
		}
		e := Entry{Name: d.Name()}
		m, err := readManifest(s.entryPath(d.Name(), manifestFile))
		if err != nil {
			e.Err = err
		} else {
			e.Manifest = m
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Restore replaces the local database and persistent files with entry name.
func (s *Store) Restore(ctx context.Context, name string, opts Options) error {
	if err := validateName(name); err != nil {
		return err
	}
	if !s.exists(name) {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if !opts.Yes {
		if err := confirm.Ask(s.deps.Stdin, s.deps.Out); err != nil {
			return err
		}
	}
	if !dbcmd.IsSupported(s.cfg.Local.Driver) {
		return &dbcmd.UnsupportedDriverError{Name: s.cfg.Local.Driver.String()}
	}
	l, err := s.lock(name)
	if err != nil {
		return err
	}
	defer l.Unlock()

	s.registerSecrets()
	start := s.now()

	if !opts.KeepDB {
		s.out.Headline("Drop and Recreate DB")
		if err := s.deps.Resetter.Reset(ctx, s.cfg.Local); err != nil {
			return fmt.Errorf("reset database: %w", err)
		}
	}

	s.out.Headline("Restore Database")
	restore, err := dbcmd.ConnectCmd(s.cfg.Local)
	if err != nil {
		return err
	}
	s.out.Command(restore.Shell() + " < " + s.entryPath(name, dumpFile))
	f, err := os.Open(s.entryPath(name, dumpFile))
	if err != nil {
		return fmt.Errorf("open dump: %w", err)
	}
	defer f.Close()
	if err := s.deps.Runner.Run(ctx, restore, f, s.deps.Out, s.deps.Out); err != nil {
		return fmt.Errorf("restore database: %w", err)
	}

	s.out.Headline("Restore Persistent Resources")
	if err := fs.ReplaceTree(s.entryPath(name, persistentDir), s.cfg.PersistentPath); err != nil {
		return fmt.Errorf("restore persistent files: %w", err)
	}

	if s.deps.Flow != nil {
		s.out.Headline("Clear Caches")
		if err := s.deps.Flow.FlushCaches(ctx); err != nil {
			return err
		}
		s.out.Headline("Migrate Database")
		if err := s.deps.Flow.Migrate(ctx); err != nil {
			return err
		}
		s.out.Headline("Publish Resources")
		if err := s.deps.Flow.PublishResources(ctx); err != nil {
			return err
		}
	}

	lg := log.Component("stash")
	if m, err := readManifest(s.entryPath(name, manifestFile)); err != nil {
		lg.Warn().Err(err).Str("entry", name).Msg("restored entry has no usable manifest")
	} else if m.Preset != "" && s.deps.Status != nil {
		clonedAt := m.StashedAt
		if m.ClonedAt != nil {
			clonedAt = *m.ClonedAt
		}
		if err := s.deps.Status.SetCurrentPreset(m.Preset, clonedAt); err != nil {
			lg.Warn().Err(err).Msg("cannot update current preset")
		}
	}
	s.recordStatus(name, "restore")
	s.out.Line("Successfully restored %s in %d seconds", name, int(s.now().Sub(start).Seconds()))
	return nil
}

// Remove deletes entry name after confirmation.
func (s *Store) Remove(name string, yes bool) error {
	if err := validateName(name); err != nil {
		return err
	}
	if !s.exists(name) {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}
	if !yes {
		if err := confirm.Ask(s.deps.Stdin, s.deps.Out); err != nil {
			return err
		}
	}
	l, err := s.lock(name)
	if err != nil {
		return err
	}
	defer l.Unlock()
	if err := os.RemoveAll(s.entryPath(name)); err != nil {
		return err
	}
	s.recordStatus(name, "remove")
	s.out.Line("Removed stash %s", name)
	return nil
}

// Clear deletes every entry.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.cfg.Root); err != nil {
		return err
	}
	s.recordStatus("", "clear")
	s.out.Line("Cleaned up stash %s", s.cfg.Root)
	return nil
}

func (s *Store) recordStatus(name, op string) {
	if s.deps.Status == nil {
		return
	}
	if err := s.deps.Status.RecordStash(name, op); err != nil {
		log.Component("stash").Warn().Err(err).Msg("cannot record stash status")
	}
}

func writeManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
	}
	return &m, nil
}

// Fields renders an entry for display: preset, cloned at, stashed at.
func (e Entry) Fields() (preset, clonedAt, stashedAt string) {
	preset, clonedAt, stashedAt = notAvailable, notAvailable, notAvailable
	if e.Manifest == nil {
		return
	}
	if e.Manifest.Preset != "" {
		preset = e.Manifest.Preset
	}
	if e.Manifest.ClonedAt != nil && !e.Manifest.ClonedAt.IsZero() {
		clonedAt = e.Manifest.ClonedAt.Local().Format(timeLayout)
	}
	if !e.Manifest.StashedAt.IsZero() {
		stashedAt = e.Manifest.StashedAt.Local().Format(timeLayout)
	}
	return
}
