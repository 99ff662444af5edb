package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ajitpratap0/harvester/internal/store"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/ajitpratap0/harvester/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls   atomic.Int32
	running atomic.Int32
	maxSeen atomic.Int32
	block   chan struct{}
}

func (r *countingRunner) Run(ctx context.Context, _ models.TriggerInstanceDefinition) error {
	r.calls.Add(1)
	n := r.running.Add(1)
	defer r.running.Add(-1)
	for {
		seen := r.maxSeen.Load()
		if n <= seen || r.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}
	return nil
}

func newManager(t *testing.T, runner Runner) (*Manager, *store.MemoryRepository[models.TriggerInstanceDefinition]) {
	t.Helper()
	repo := store.NewMemoryRepository[models.TriggerInstanceDefinition]()
	m := NewManager(repo, runner, ManagerOptions{Location: time.UTC, Logger: testutil.TestLogger(t)})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Stop(ctx)
	})
	return m, repo
}

func definition(triggerType string, props map[string]string) models.TriggerInstanceDefinition {
	return models.TriggerInstanceDefinition{
		ID:         uuid.New(),
		Type:       triggerType,
		TaskID:     uuid.New(),
		Properties: props,
	}
}

func TestActivateIsIdempotent(t *testing.T) {
	runner := &countingRunner{}
	m, _ := newManager(t, runner)
	def := definition(TypeNow, nil)

	first, err := m.Activate(def)
	require.NoError(t, err)
	second, err := m.Activate(def)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Len(t, m.Instances(), 1)

	<-first.(*nowInstance).Done()
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestConcurrentActivationCreatesOneInstance(t *testing.T) {
	m, _ := newManager(t, &countingRunner{})
	def := definition(TypePeriod, map[string]string{PropertyPeriod: "1h"})

	var wg sync.WaitGroup
	handles := make([]Instance, 16)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst, err := m.Activate(def)
			assert.NoError(t, err)
			handles[i] = inst
		}(i)
	}
	wg.Wait()

	require.Len(t, m.Instances(), 1)
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}
}

func TestDeactivate(t *testing.T) {
	m, _ := newManager(t, &countingRunner{})
	def := definition(TypeCron, map[string]string{PropertyCron: "0 3 * * *"})

	inst, err := m.Activate(def)
	require.NoError(t, err)
	assert.True(t, inst.Active())
	require.Len(t, m.cron.Entries(), 1)

	m.Deactivate(def.ID)
	assert.False(t, inst.Active())
	assert.Empty(t, m.Instances())
	assert.Empty(t, m.cron.Entries())

	// absent ids are ignored
	m.Deactivate(def.ID)
	m.Deactivate(uuid.New())
}

func TestValidation(t *testing.T) {
	m, _ := newManager(t, &countingRunner{})
	ctx := context.Background()

	tests := []struct {
		name string
		def  models.TriggerInstanceDefinition
	}{
		{"unknown type", definition("HOURLY", nil)},
		{"missing period", definition(TypePeriod, nil)},
		{"bad period", definition(TypePeriod, map[string]string{PropertyPeriod: "soon"})},
		{"tiny period", definition(TypePeriod, map[string]string{PropertyPeriod: "10ms"})},
		{"missing cron", definition(TypeCron, nil)},
		{"bad cron", definition(TypeCron, map[string]string{PropertyCron: "every day"})},
		{"no task", models.TriggerInstanceDefinition{Type: TypeNow}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Create(ctx, tt.def)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestCreateUpdateDelete(t *testing.T) {
	m, repo := newManager(t, &countingRunner{})
	ctx := context.Background()

	def := definition("period", map[string]string{PropertyPeriod: "1h"})
	def.ID = uuid.Nil
	def.Active = true
	id, err := m.Create(ctx, def)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	stored, err := repo.Read(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, TypePeriod, stored.Type)
	assert.Contains(t, m.Instances(), id)

	stored.Active = false
	require.NoError(t, m.Update(ctx, id, stored))
	assert.NotContains(t, m.Instances(), id)

	stored.Active = true
	stored.Properties = map[string]string{PropertyPeriod: "2h"}
	require.NoError(t, m.Update(ctx, id, stored))
	require.Contains(t, m.Instances(), id)
	assert.Equal(t, "2h", m.Instances()[id].Definition().Get(PropertyPeriod))

	deleted, err := m.Delete(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, m.Instances())
	_, err = m.Read(ctx, id)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestStartReactivatesActiveDefinitions(t *testing.T) {
	m, repo := newManager(t, &countingRunner{})
	ctx := context.Background()

	active := definition(TypeCron, map[string]string{PropertyCron: "@daily"})
	active.Active = true
	inactive := definition(TypeCron, map[string]string{PropertyCron: "@daily"})
	broken := definition(TypeCron, map[string]string{PropertyCron: "nonsense"})
	broken.Active = true
	for _, d := range []models.TriggerInstanceDefinition{active, inactive, broken} {
		require.NoError(t, repo.Put(ctx, d.ID, d))
	}

	err := m.Start(ctx)
	require.Error(t, err)

	instances := m.Instances()
	assert.Len(t, instances, 1)
	assert.Contains(t, instances, active.ID)
}

func TestPeriodSkipsOverlappingRuns(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the scheduler")
	}
	runner := &countingRunner{block: make(chan struct{})}
	m, _ := newManager(t, runner)
	require.NoError(t, m.Start(context.Background()))

	_, err := m.Activate(definition(TypePeriod, map[string]string{PropertyPeriod: "1s"}))
	require.NoError(t, err)

	testutil.AssertEventually(t, func() bool { return runner.calls.Load() >= 1 }, 3*time.Second, "first run")
	time.Sleep(2200 * time.Millisecond)
	assert.Equal(t, int32(1), runner.maxSeen.Load())
	assert.Equal(t, int32(1), runner.calls.Load())

	close(runner.block)
}

func TestCronLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("time zone database unavailable")
	}
	def := definition(TypeCron, map[string]string{PropertyCron: "0 9 * * *"})
	sched, err := CronTrigger{Location: loc}.schedule(def)
	require.NoError(t, err)

	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	next := sched.Next(from)
	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), next.UTC())
}
