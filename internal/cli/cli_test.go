package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbp1/magicwand/internal/config"
	"github.com/vbp1/magicwand/internal/dbcmd"
	"github.com/vbp1/magicwand/internal/process"
	"github.com/vbp1/magicwand/internal/redact"
	"github.com/vbp1/magicwand/internal/transport"
)

const testConfig = `
rootPath: %ROOT%
defaultPreset: production
database:
  driver: pdo_mysql
  user: root
  password: l0cal-secret
  dbname: neos_dev
clonePresets:
  production:
    host: web.example.com
    user: deploy
    path: /var/www/neos
    resourceProxy:
      baseUri: https://www.example.com
      http:
        headers:
          Authorization: Basic c2VjcmV0
`

const remoteSettings = `
driver: pdo_mysql
host: db.internal
user: neos
password: r3mote-secret
dbname: neos_prod
charset: utf8mb4
`

type fakeRunner struct{ names []string }

func (r *fakeRunner) Run(_ context.Context, c process.Command, stdin io.Reader, stdout, _ io.Writer) error {
	r.names = append(r.names, c.Name)
	switch c.Name {
	case "mysqldump":
		_, err := io.WriteString(stdout, "-- local dump\n")
		return err
	case "mysql":
		_, err := io.Copy(io.Discard, stdin)
		return err
	}
	return nil
}

func (r *fakeRunner) Stream(_ context.Context, produce func(io.Writer) error, consumer process.Command, _, _ io.Writer) error {
	r.names = append(r.names, consumer.Name)
	return produce(io.Discard)
}

type fakeResetter struct{}

func (fakeResetter) Reset(context.Context, dbcmd.Profile) error { return nil }

type fakeRemote struct{}

func (fakeRemote) Run(_ context.Context, _ string, stdout, _ io.Writer) error {
	_, err := io.WriteString(stdout, "-- remote dump\n")
	return err
}

func (fakeRemote) Output(_ context.Context, script string) ([]byte, error) {
	if strings.Contains(script, "configuration:show") {
		return []byte(remoteSettings), nil
	}
	return []byte("false"), nil
}

func (fakeRemote) Buffered() bool { return false }
func (fakeRemote) String() string { return "deploy@web.example.com" }
func (fakeRemote) Close() error   { return nil }

type env struct {
	root   string
	config string
	runner *fakeRunner
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	path := filepath.Join(root, "magicwand.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(testConfig, "%ROOT%", root)), 0o644))
	return &env{root: root, config: path, runner: &fakeRunner{}}
}

func (e *env) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return e.runWith(t, func(context.Context, config.Preset) (transport.Remote, error) {
		return fakeRemote{}, nil
	}, stdin, args...)
}

func (e *env) runWith(t *testing.T, dial transport.Dialer, stdin string, args ...string) (string, error) {
	t.Helper()
	a := &app{
		runner:   e.runner,
		resetter: fakeResetter{},
		dial:     dial,
	}
	var out, errOut bytes.Buffer
	err := execute(context.Background(), a, func(cmd *cobra.Command) {
		cmd.SetOut(&out)
		cmd.SetErr(&errOut)
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetArgs(append([]string{"--config", e.config}, args...))
	})
	return out.String(), err
}

func TestCloneList(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "", "clone", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "production")
	assert.Contains(t, out, "host: web.example.com")
	assert.Contains(t, out, "resourceProxy: https://www.example.com")
	assert.NotContains(t, out, "c2VjcmV0")
}

func TestCloneUnknownPreset(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "", "clone", "preset", "staging")
	require.ErrorIs(t, err, config.ErrPresetNotFound)
}

func TestCloneDefaultRedactsAndRecordsStatus(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "", "clone", "default", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully cloned in")
	assert.Contains(t, out, redact.Mask)
	assert.NotContains(t, out, "r3mote-secret")
	assert.NotContains(t, out, "l0cal-secret")
	assert.Contains(t, e.runner.names, "rsync")

	out, err = e.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "clone")
	assert.Contains(t, out, "preset: production")
}

func TestCloneDeclined(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "no\n", "clone", "preset", "production")
	require.Error(t, err)
	assert.Contains(t, out, "exit")
	assert.NotContains(t, e.runner.names, "mysql")
}

func TestStashLifecycle(t *testing.T) {
	e := newEnv(t)
	persistent := filepath.Join(e.root, "Data", "Persistent")
	require.NoError(t, os.MkdirAll(persistent, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(persistent, "a.txt"), []byte("a"), 0o644))

	_, err := e.run(t, "", "stash", "create", "before-upgrade")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(e.root, "Data", "MagicWandStash", "before-upgrade", "database.sql"))

	out, err := e.run(t, "", "stash", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "before-upgrade")

	_, err = e.run(t, "", "stash", "restore", "before-upgrade", "--yes")
	require.NoError(t, err)
	assert.Contains(t, e.runner.names, "mysql")

	_, err = e.run(t, "", "stash", "remove", "before-upgrade", "--yes")
	require.NoError(t, err)
	out, err = e.run(t, "", "stash", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No stash entries found")
}

func TestStatusEmpty(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing cloned or stashed yet")
}

func TestResourceURI(t *testing.T) {
	e := newEnv(t)
	hash := strings.Repeat("ab", 20)
	out, err := e.run(t, "", "resource", "uri", hash, "logo.png")
	require.NoError(t, err)
	assert.Equal(t, "/_magicwand/resource/"+hash+"/logo.png\n", out)

	_, err = e.run(t, "", "resource", "uri", "nothex", "logo.png")
	require.Error(t, err)
}

func TestResourcePublishSkipsMissing(t *testing.T) {
	e := newEnv(t)
	hash := strings.Repeat("cd", 20)
	out, err := e.run(t, "", "resource", "publish", hash+":doc.pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "Published 0 of 1 resources")

	_, err = e.run(t, "", "resource", "publish", "no-colon")
	require.Error(t, err)
}

func TestErrorsAreRedacted(t *testing.T) {
	e := newEnv(t)
	errDial := errors.New("dial refused")
	_, err := e.runWith(t, func(context.Context, config.Preset) (transport.Remote, error) {
		return nil, fmt.Errorf("%w: mysql -pl0cal-secret exited 1", errDial)
	}, "", "clone", "default", "--yes")
	require.Error(t, err)
	assert.ErrorIs(t, err, errDial)
	assert.NotContains(t, err.Error(), "l0cal-secret")
	assert.Contains(t, err.Error(), redact.Mask)
}
