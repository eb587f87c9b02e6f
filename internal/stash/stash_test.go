package stash

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbp1/magicwand/internal/confirm"
	"github.com/vbp1/magicwand/internal/dbcmd"
	"github.com/vbp1/magicwand/internal/process"
	"github.com/vbp1/magicwand/internal/redact"
	"github.com/vbp1/magicwand/internal/status"
	"github.com/vbp1/magicwand/internal/util/disk"
)

type fakeRunner struct {
	mu       sync.Mutex
	cmds     []process.Command
	restored string
}

func (r *fakeRunner) Run(_ context.Context, c process.Command, stdin io.Reader, stdout, _ io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, c)
	switch c.Name {
	case "mysqldump":
		_, err := io.WriteString(stdout, "-- dump of shop\n")
		return err
	case "mysql":
		data, err := io.ReadAll(stdin)
		r.restored = string(data)
		return err
	}
	return nil
}

func (r *fakeRunner) Stream(context.Context, func(io.Writer) error, process.Command, io.Writer, io.Writer) error {
	return errors.New("not used")
}

type fakeResetter struct{ calls int }

func (f *fakeResetter) Reset(context.Context, dbcmd.Profile) error {
	f.calls++
	return nil
}

type fakeFlow struct{ steps []string }

func (f *fakeFlow) FlushCaches(context.Context) error {
	f.steps = append(f.steps, "flush")
	return nil
}

func (f *fakeFlow) Migrate(context.Context) error {
	f.steps = append(f.steps, "migrate")
	return nil
}

func (f *fakeFlow) PublishResources(context.Context) error {
	f.steps = append(f.steps, "publish")
	return nil
}

type fixture struct {
	store    *Store
	runner   *fakeRunner
	resetter *fakeResetter
	flow     *fakeFlow
	status   *status.Store
	out      *bytes.Buffer
	persist  string
	root     string
}

func newFixture(t *testing.T, stdin string) *fixture {
	t.Helper()
	tmp := t.TempDir()
	f := &fixture{
		runner:   &fakeRunner{},
		resetter: &fakeResetter{},
		flow:     &fakeFlow{},
		status:   status.NewStore(filepath.Join(tmp, "meta")),
		out:      &bytes.Buffer{},
		persist:  filepath.Join(tmp, "Data", "Persistent"),
		root:     filepath.Join(tmp, "Data", "MagicWandStash"),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(f.persist, "Resources"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.persist, "Resources", "blob"), []byte("v1"), 0o644))

	secrets := &redact.Secrets{}
	f.store = New(Config{
		Root:           f.root,
		PersistentPath: f.persist,
		Local:          dbcmd.Profile{Driver: dbcmd.MySQL, Host: "127.0.0.1", User: "root", Password: "s3cr3t-pw", Database: "shop"},
	}, Deps{
		Runner:   f.runner,
		Resetter: f.resetter,
		Flow:     f.flow,
		Status:   f.status,
		Secrets:  secrets,
		Stdin:    strings.NewReader(stdin),
		Out:      redact.NewWriter(f.out, secrets),
	})
	return f
}

func TestCreateAndList(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	require.NoError(t, f.status.RecordClone("production"))

	require.NoError(t, f.store.Create(ctx, "before-upgrade"))

	dump, err := os.ReadFile(filepath.Join(f.root, "before-upgrade", "database.sql"))
	require.NoError(t, err)
	assert.Equal(t, "-- dump of shop\n", string(dump))
	_, err = os.Stat(filepath.Join(f.root, "before-upgrade", "persistent", "Resources", "blob"))
	require.NoError(t, err)
	assert.NotContains(t, f.out.String(), "s3cr3t-pw")
	assert.Contains(t, f.out.String(), redact.Mask)
	assert.Contains(t, f.out.String(), "Database dump: 16 bytes")
	assert.Contains(t, f.out.String(), "Persistent files: 2 bytes")

	err = f.store.Create(ctx, "before-upgrade")
	assert.ErrorIs(t, err, ErrEntryExists)

	entries, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	preset, cloned, stashed := entries[0].Fields()
	assert.Equal(t, "production", preset)
	assert.NotEqual(t, notAvailable, cloned)
	assert.NotEqual(t, notAvailable, stashed)

	m, err := f.status.Load()
	require.NoError(t, err)
	op, _ := m.Get(status.SectionStash, status.PropertyOperation)
	assert.Equal(t, "create", op)
}

func TestListToleratesBrokenManifest(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "b-broken"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "b-broken", "manifest.json"), []byte("{"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, "a-empty"), 0o755))

	entries, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a-empty", entries[0].Name)
	for _, e := range entries {
		assert.ErrorIs(t, e.Err, ErrManifestCorrupt)
		p, c, s := e.Fields()
		assert.Equal(t, []string{notAvailable, notAvailable, notAvailable}, []string{p, c, s})
	}
}

func TestListMissingRoot(t *testing.T) {
	f := newFixture(t, "")
	entries, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRestore(t *testing.T) {
	f := newFixture(t, "yes\n")
	ctx := context.Background()
	require.NoError(t, f.status.RecordClone("production"))
	require.NoError(t, f.store.Create(ctx, "snap"))

	// local state diverges after the stash
	require.NoError(t, f.status.RecordClone("staging"))
	require.NoError(t, os.WriteFile(filepath.Join(f.persist, "Resources", "new"), []byte("v2"), 0o644))

	require.NoError(t, f.store.Restore(ctx, "snap", Options{}))

	assert.Equal(t, 1, f.resetter.calls)
	assert.Equal(t, "-- dump of shop\n", f.runner.restored)
	assert.Equal(t, []string{"flush", "migrate", "publish"}, f.flow.steps)
	_, err := os.Stat(filepath.Join(f.persist, "Resources", "new"))
	assert.True(t, os.IsNotExist(err), "files created after the stash are gone")

	preset, _, err := f.status.CurrentPreset()
	require.NoError(t, err)
	assert.Equal(t, "production", preset)
}

func TestRestoreKeepDB(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, "snap"))
	require.NoError(t, f.store.Restore(ctx, "snap", Options{Yes: true, KeepDB: true}))
	assert.Equal(t, 0, f.resetter.calls)
}

func TestRestoreMissingEntryHasNoSideEffects(t *testing.T) {
	f := newFixture(t, "yes\n")
	err := f.store.Restore(context.Background(), "nope", Options{})
	assert.ErrorIs(t, err, ErrEntryNotFound)
	assert.Equal(t, 0, f.resetter.calls)
	assert.Empty(t, f.runner.cmds)
	assert.NotContains(t, f.out.String(), "Are you sure")
}

func TestRestoreDeclined(t *testing.T) {
	f := newFixture(t, "no\n")
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, "snap"))
	before := len(f.runner.cmds)

	err := f.store.Restore(ctx, "snap", Options{})
	assert.ErrorIs(t, err, confirm.ErrUserDeclined)
	assert.Equal(t, 0, f.resetter.calls)
	assert.Len(t, f.runner.cmds, before)
}

func TestRemoveAndClear(t *testing.T) {
	f := newFixture(t, "yes\n")
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, "one"))
	require.NoError(t, f.store.Create(ctx, "two"))

	assert.ErrorIs(t, f.store.Remove("three", true), ErrEntryNotFound)
	require.NoError(t, f.store.Remove("one", false))
	entries, err := f.store.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "two", entries[0].Name)

	require.NoError(t, f.store.Clear())
	entries, err = f.store.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInvalidNames(t *testing.T) {
	f := newFixture(t, "")
	for _, name := range []string{"", "..", "a/b", ".hidden"} {
		assert.ErrorIs(t, f.store.Create(context.Background(), name), ErrInvalidName, name)
	}
}

func TestFieldsFormatsTimes(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	e := Entry{Name: "x", Manifest: &Manifest{StashedAt: at}}
	p, c, s := e.Fields()
	assert.Equal(t, notAvailable, p)
	assert.Equal(t, notAvailable, c)
	assert.Equal(t, "2026-01-02 03:04:05", s)
}

func TestCreateWithoutSpaceLeavesNoEntry(t *testing.T) {
	f := newFixture(t, "")
	f.store.cfg.MinFreeBytes = 1 << 62

	err := f.store.Create(context.Background(), "big")
	require.ErrorIs(t, err, disk.ErrInsufficientSpace)
	assert.NoDirExists(t, filepath.Join(f.root, "big"))
	assert.Empty(t, f.runner.cmds)

	f.store.cfg.MinFreeBytes = 0
	require.NoError(t, f.store.Create(context.Background(), "big"))
}
