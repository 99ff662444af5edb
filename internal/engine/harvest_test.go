package engine

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajitpratap0/harvester/internal/pipeline"
	"github.com/ajitpratap0/harvester/internal/store"
	"github.com/ajitpratap0/harvester/pkg/config"
	"github.com/ajitpratap0/harvester/pkg/connector/destinations"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
	"github.com/ajitpratap0/harvester/pkg/connector/sources"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/ajitpratap0/harvester/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countFiles(t *testing.T, root string) int {
	t.Helper()
	n := 0
	require.NoError(t, filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err == nil && d.Type().IsRegular() {
			n++
		}
		return err
	}))
	return n
}

func TestFolderToFolderHarvest(t *testing.T) {
	env := testutil.NewTestEnvironment(t)
	in := filepath.Join(env.TempDir(), "in")
	out := filepath.Join(env.TempDir(), "out")
	require.NoError(t, os.MkdirAll(in, 0o755))

	old := time.Now().Add(-time.Hour)
	for _, f := range testutil.CreateTestData(t, in, 3) {
		require.NoError(t, os.Chtimes(f, old, old))
	}

	reg := registry.NewRegistry()
	require.NoError(t, sources.Register(reg))
	require.NoError(t, destinations.Register(reg))

	e, err := New(env.Context(), config.Default(), Options{
		Registry: reg,
		Stores:   store.NewMemoryStores(),
		Logger:   testutil.TestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})

	def := models.TaskDefinition{
		Name:         "files",
		Incremental:  true,
		Source:       models.NewEntityDefinition("FOLDER", map[string]string{"rootFolder": in, "pattern": "*.xml"}),
		Destinations: []models.EntityDefinition{models.NewEntityDefinition("FOLDER", map[string]string{"rootFolder": out, "compression": "gzip"})},
	}

	p, err := e.Run(env.Context(), def)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateCompleted, p.State())
	stats := p.Statistics()
	assert.Equal(t, int64(3), stats.Harvested)
	assert.Equal(t, int64(3), stats.Published)
	assert.Equal(t, 3, countFiles(t, out))

	testutil.AssertEventually(t, func() bool {
		last, err := e.Stores().History.LastSuccess(env.Context(), def.Hash())
		return err == nil && last != nil
	}, time.Second, "successful run recorded")

	// nothing changed since the first run
	p, err = e.Run(env.Context(), def)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateCompleted, p.State())
	assert.Equal(t, int64(0), p.Statistics().Harvested)
}
