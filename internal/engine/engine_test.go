package engine

import (
	"context"
	"testing"
	"time"

	"github.com/ajitpratap0/harvester/internal/pipeline"
	"github.com/ajitpratap0/harvester/internal/store"
	"github.com/ajitpratap0/harvester/pkg/config"
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/ajitpratap0/harvester/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sink is shared by every broker the RECORDING connector builds
type sink struct {
	dst *testutil.RecordingDestination
}

func newEngine(t *testing.T) (*Engine, *sink) {
	t.Helper()
	s := &sink{dst: testutil.NewRecordingDestination("shared")}

	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterInput(core.InputConnectorFunc{
		Name: "MEMORY",
		New: func(def models.EntityDefinition) (core.InputBroker, error) {
			src := testutil.NewMemorySource(def.Get("uri"), "a", "b", "c")
			src.Def = def
			return src, nil
		},
	}))
	require.NoError(t, reg.RegisterOutput(core.OutputConnectorFunc{
		Name: "RECORDING",
		New: func(def models.EntityDefinition) (core.OutputBroker, error) {
			return s.dst, nil
		},
	}))

	cfg := config.Default()
	cfg.Scheduler.Location = "UTC"
	e, err := New(context.Background(), cfg, Options{
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
	return e, s
}

func memoryTask() models.TaskDefinition {
	return models.TaskDefinition{
		Name:         "memory",
		Source:       models.NewEntityDefinition("MEMORY", map[string]string{"uri": "memory://engine"}),
		Destinations: []models.EntityDefinition{models.NewEntityDefinition("RECORDING", nil)},
	}
}

func TestRunRecordsHistory(t *testing.T) {
	e, s := newEngine(t)
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	p, err := e.Run(ctx, memoryTask())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateCompleted, p.State())
	assert.Equal(t, []string{"a", "b", "c"}, s.dst.Published())

	testutil.AssertEventually(t, func() bool {
		list, err := e.Stores().History.List(ctx, memoryTask().Hash())
		return err == nil && len(list) == 1
	}, time.Second, "history entry")

	last, err := e.Stores().History.LastSuccess(ctx, memoryTask().Hash())
	require.NoError(t, err)
	require.NotNil(t, last)
}

func TestSubmitSurfacesConfigErrors(t *testing.T) {
	e, _ := newEngine(t)

	def := memoryTask()
	def.Source.Type = "NOPE"
	_, err := e.Submit(def)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Empty(t, e.Processor().Processes())
}

func TestLoadAndStartRunsActiveTriggers(t *testing.T) {
	e, s := newEngine(t)
	ctx := context.Background()

	inactive := false
	file := &config.TaskFile{
		ID:   uuid.New(),
		Task: memoryTask(),
		Triggers: []config.TriggerSpec{
			{Type: "now"},
			{Type: "CRON", Properties: map[string]string{"cron": "@daily"}, Active: &inactive},
		},
	}
	require.NoError(t, e.Load(ctx, []*config.TaskFile{file}))

	stored, err := e.Stores().Tasks.Read(ctx, file.ID)
	require.NoError(t, err)
	assert.True(t, memoryTask().Equal(stored))

	defs, err := e.Triggers().List(ctx)
	require.NoError(t, err)
	assert.Len(t, defs, 2)
	assert.Empty(t, e.Triggers().Instances())

	require.NoError(t, e.Start(ctx))
	assert.Len(t, e.Triggers().Instances(), 1)

	testutil.AssertEventually(t, func() bool {
		return len(s.dst.Published()) == 3
	}, 5*time.Second, "triggered run delivered every record")
}

func TestLoadRejectsUnbuildableTask(t *testing.T) {
	e, _ := newEngine(t)

	def := memoryTask()
	def.Destinations = []models.EntityDefinition{models.NewEntityDefinition("S3", nil)}
	err := e.Load(context.Background(), []*config.TaskFile{{ID: uuid.New(), Task: def}})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestTriggerOnMissingTask(t *testing.T) {
	e, _ := newEngine(t)
	err := e.runTrigger(context.Background(), models.TriggerInstanceDefinition{ID: uuid.New(), TaskID: uuid.New()})
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}
