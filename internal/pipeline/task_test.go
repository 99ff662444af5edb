package pipeline

import (
	"testing"

	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/ajitpratap0/harvester/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterInput(core.InputConnectorFunc{
		Name: "MEMORY",
		New: func(def models.EntityDefinition) (core.InputBroker, error) {
			src := testutil.NewMemorySource(def.Get("uri"), "a", "b")
			src.Def = def
			return src, nil
		},
	}))
	require.NoError(t, reg.RegisterOutput(core.OutputConnectorFunc{
		Name: "RECORDING",
		New: func(def models.EntityDefinition) (core.OutputBroker, error) {
			dst := testutil.NewRecordingDestination(def.Get("name"))
			dst.Def = def
			return dst, nil
		},
	}))
	return reg
}

func taskDefinition() models.TaskDefinition {
	return models.TaskDefinition{
		Name:   "equality",
		Source: models.NewEntityDefinition("MEMORY", map[string]string{"uri": "memory://one"}),
		Destinations: []models.EntityDefinition{
			models.NewEntityDefinition("RECORDING", map[string]string{"name": "first"}),
			models.NewEntityDefinition("RECORDING", map[string]string{"name": "second"}),
		},
	}
}

func TestTaskEqualityIgnoresBrokerIdentity(t *testing.T) {
	reg := testRegistry(t)

	first, err := BuildTask(reg, taskDefinition())
	require.NoError(t, err)
	second, err := BuildTask(reg, taskDefinition())
	require.NoError(t, err)

	assert.NotSame(t, first.Source(), second.Source())
	assert.True(t, first.Equal(second))
	assert.Equal(t, first.Hash(), second.Hash())

	other := taskDefinition()
	other.Destinations[1].Properties["name"] = "third"
	third, err := BuildTask(reg, other)
	require.NoError(t, err)

	assert.False(t, first.Equal(third))
	assert.NotEqual(t, first.Hash(), third.Hash())
}

func TestBuildTaskConfigErrors(t *testing.T) {
	reg := testRegistry(t)

	def := taskDefinition()
	def.Destinations = append(def.Destinations, models.NewEntityDefinition("UNKNOWN", nil))
	_, err := BuildTask(reg, def)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	def = taskDefinition()
	def.Destinations = nil
	_, err = BuildTask(reg, def)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestTaskCloseAttemptsEveryDestination(t *testing.T) {
	src := testutil.NewMemorySource("memory://close")
	src.TermErr = testutil.ErrTest
	first := testutil.NewRecordingDestination("first")
	first.TermErr = testutil.ErrTest
	second := testutil.NewRecordingDestination("second")

	task := NewTask(models.TaskDefinition{}, src, first, second).WithLogger(testutil.TestLogger(t))

	err := task.Close()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeProcessor))
	assert.True(t, errors.Is(err, testutil.ErrTest))

	assert.Equal(t, 1, src.Terminations())
	assert.Equal(t, 1, first.Terminations())
	assert.Equal(t, 1, second.Terminations())
	assert.Len(t, task.DestinationErrors(), 1)

	// second close is a no-op returning the same result
	assert.Equal(t, err, task.Close())
	assert.Equal(t, 1, src.Terminations())
	assert.Equal(t, 1, second.Terminations())
}
