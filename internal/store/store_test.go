package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ajitpratap0/harvester/pkg/config"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/ajitpratap0/harvester/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTask(name string) models.TaskDefinition {
	return models.TaskDefinition{
		Name:   name,
		Source: models.NewEntityDefinition("CKAN", map[string]string{"hostUrl": "https://example.org"}),
		Destinations: []models.EntityDefinition{
			models.NewEntityDefinition("FOLDER", map[string]string{"rootFolder": "/tmp/out"}),
		},
	}
}

func exerciseRepository(t *testing.T, repo Repository[models.TaskDefinition]) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	id, err := repo.Create(ctx, sampleTask("first"))
	require.NoError(t, err)

	got, err := repo.Read(ctx, id)
	require.NoError(t, err)
	assert.True(t, sampleTask("first").Equal(got))
	assert.Equal(t, "first", got.Name)

	require.NoError(t, repo.Update(ctx, id, sampleTask("renamed")))
	got, err = repo.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)

	missing := uuid.New()
	_, err = repo.Read(ctx, missing)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
	assert.True(t, errors.IsType(repo.Update(ctx, missing, sampleTask("x")), errors.ErrorTypeNotFound))

	fixed := uuid.NewSHA1(uuid.NameSpaceURL, []byte("task.yaml"))
	require.NoError(t, repo.Put(ctx, fixed, sampleTask("fixed")))
	require.NoError(t, repo.Put(ctx, fixed, sampleTask("fixed again")))

	entries, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].ID.String() < entries[1].ID.String())

	deleted, err := repo.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.Delete(ctx, id)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func exerciseHistory(t *testing.T, h HistoryRepository) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	hash := sampleTask("history").Hash() + "-" + uuid.NewString()
	last, err := h.LastSuccess(ctx, hash)
	require.NoError(t, err)
	assert.Nil(t, last)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	runs := []struct {
		state  string
		offset time.Duration
	}{
		{"COMPLETED", 0},
		{"COMPLETED", time.Hour},
		{"COMPLETED_WITH_ERRORS", 2 * time.Hour},
	}
	for _, r := range runs {
		require.NoError(t, h.Record(ctx, models.ProcessHistory{
			ID:        uuid.NewString(),
			TaskHash:  hash,
			TaskName:  "history",
			State:     r.state,
			StartTime: base.Add(r.offset),
			EndTime:   base.Add(r.offset + time.Minute),
		}))
	}

	last, err = h.LastSuccess(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, base.Add(time.Hour).Equal(*last))

	list, err := h.List(ctx, hash)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "COMPLETED_WITH_ERRORS", list[0].State)
}

func TestMemoryRepository(t *testing.T) {
	exerciseRepository(t, NewMemoryRepository[models.TaskDefinition]())
}

func TestMemoryHistory(t *testing.T) {
	exerciseHistory(t, NewMemoryHistory())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "bolt"}, testutil.TestLogger(t))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	s, err := Open(context.Background(), config.StoreConfig{}, testutil.TestLogger(t))
	require.NoError(t, err)
	s.Close()
}

// Set HARVESTER_TEST_POSTGRES_DSN to run against a real database.
func TestPostgresStores(t *testing.T) {
	testutil.IntegrationTest(t)
	dsn := os.Getenv("HARVESTER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HARVESTER_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	pool, err := Connect(ctx, dsn, testutil.TestLogger(t))
	require.NoError(t, err)
	defer pool.Close()

	table := "harvester_test_" + uuid.NewString()[:8]
	repo, err := NewPostgresRepository[models.TaskDefinition](ctx, pool, table)
	require.NoError(t, err)
	defer func() { _, _ = pool.Exec(context.Background(), "DROP TABLE "+repo.table) }()
	exerciseRepository(t, repo)

	history, err := NewPostgresHistory(ctx, pool)
	require.NoError(t, err)
	exerciseHistory(t, history)
}
