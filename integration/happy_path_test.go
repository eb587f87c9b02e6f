//go:build integration

package integration

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vbp1/magicwand/integration/util"
	"github.com/vbp1/magicwand/internal/database"
	"github.com/vbp1/magicwand/internal/postgres"
	"github.com/vbp1/magicwand/internal/process"
	"github.com/vbp1/magicwand/internal/redact"
	"github.com/vbp1/magicwand/internal/stash"
	"github.com/vbp1/magicwand/internal/status"
)

type noopFlow struct{}

func (noopFlow) FlushCaches(context.Context) error      { return nil }
func (noopFlow) Migrate(context.Context) error          { return nil }
func (noopFlow) PublishResources(context.Context) error { return nil }

func TestResetSchema(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	profile, teardown, err := util.StartPostgres(ctx)
	require.NoError(err)
	defer teardown()

	pool, err := postgres.Connect(ctx, profile, 2)
	require.NoError(err)
	defer pool.Close()

	_, err = pool.Exec(ctx, "CREATE TABLE neos_contentrepository_domain_model_nodedata (id int)")
	require.NoError(err)

	require.NoError(database.DriverResetter{}.Reset(ctx, profile))

	var n int
	require.NoError(pool.QueryRow(ctx, "SELECT count(*) FROM information_schema.tables WHERE table_schema = 'public'").Scan(&n))
	require.Zero(n)
	require.NoError(pool.QueryRow(ctx, "SELECT count(*) FROM information_schema.schemata WHERE schema_name = 'public'").Scan(&n))
	require.Equal(1, n)
}

func TestStashRoundTrip(t *testing.T) {
	for _, bin := range []string{"pg_dump", "psql"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
	require := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	profile, teardown, err := util.StartPostgres(ctx)
	require.NoError(err)
	defer teardown()

	pool, err := postgres.Connect(ctx, profile, 2)
	require.NoError(err)
	defer pool.Close()
	_, err = pool.Exec(ctx, "CREATE TABLE sites (name text); INSERT INTO sites VALUES ('neos'), ('flow')")
	require.NoError(err)

	root := t.TempDir()
	persistent := filepath.Join(root, "Data", "Persistent")
	require.NoError(os.MkdirAll(persistent, 0o755))
	require.NoError(os.WriteFile(filepath.Join(persistent, "asset.txt"), []byte("original"), 0o644))

	var out bytes.Buffer
	secrets := &redact.Secrets{}
	store := stash.New(stash.Config{
		Root:           filepath.Join(root, "Data", "MagicWandStash"),
		PersistentPath: persistent,
		Local:          profile,
	}, stash.Deps{
		Runner:   process.Exec{},
		Resetter: database.DriverResetter{},
		Flow:     noopFlow{},
		Status:   status.NewStore(filepath.Join(root, "Data", "MagicWand")),
		Secrets:  secrets,
		Out:      redact.NewWriter(&out, secrets),
	})
	require.NoError(store.Create(ctx, "baseline"))

	_, err = pool.Exec(ctx, "DROP TABLE sites")
	require.NoError(err)
	// stash entries share inodes with the live tree, so replace instead of rewriting in place
	require.NoError(os.Remove(filepath.Join(persistent, "asset.txt")))
	require.NoError(os.WriteFile(filepath.Join(persistent, "asset.txt"), []byte("changed"), 0o644))

	require.NoError(store.Restore(ctx, "baseline", stash.Options{Yes: true}))

	var n int
	require.NoError(pool.QueryRow(ctx, "SELECT count(*) FROM sites").Scan(&n))
	require.Equal(2, n)
	data, err := os.ReadFile(filepath.Join(persistent, "asset.txt"))
	require.NoError(err)
	require.Equal("original", string(data))
	require.NotContains(out.String(), profile.Password)
}
