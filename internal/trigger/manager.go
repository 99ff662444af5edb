package trigger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/harvester/internal/store"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/metrics"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	// Location is the time zone of the scheduler; nil means local time
	Location *time.Location
	// Triggers are the schedule types; nil means DefaultTriggers
	Triggers []Trigger
	Logger   *zap.Logger
}

// Manager owns the active trigger instances, at most one per definition id.
type Manager struct {
	repo     store.Repository[models.TriggerInstanceDefinition]
	runner   Runner
	triggers map[string]Trigger
	cron     *cron.Cron
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	instances map[uuid.UUID]Instance
}

// NewManager creates a manager. Runs are started through runner.
func NewManager(repo store.Repository[models.TriggerInstanceDefinition], runner Runner, opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "trigger_manager"))

	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	triggers := opts.Triggers
	if triggers == nil {
		triggers = DefaultTriggers(loc)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		repo:      repo,
		runner:    runner,
		triggers:  make(map[string]Trigger, len(triggers)),
		cron:      cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{logger})),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		instances: make(map[uuid.UUID]Instance),
	}
	for _, t := range triggers {
		m.triggers[normalizeType(t.Type())] = t
	}
	return m
}

// Types returns the registered trigger type names.
func (m *Manager) Types() []string {
	types := make([]string, 0, len(m.triggers))
	for t := range m.triggers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (m *Manager) trigger(def models.TriggerInstanceDefinition) (Trigger, error) {
	t, ok := m.triggers[normalizeType(def.Type)]
	if !ok {
		return nil, errors.New(errors.ErrorTypeConfig, "unknown trigger type").WithDetail("type", def.Type)
	}
	return t, nil
}

func (m *Manager) validate(def models.TriggerInstanceDefinition) error {
	t, err := m.trigger(def)
	if err != nil {
		return err
	}
	if def.TaskID == uuid.Nil {
		return errors.New(errors.ErrorTypeConfig, "trigger has no task").WithDetail("trigger", def.ID.String())
	}
	return t.Validate(def)
}

// Save validates and stores def without activating it, assigning an id when
// it has none. Start activates it later if def.Active is set.
func (m *Manager) Save(ctx context.Context, def models.TriggerInstanceDefinition) (uuid.UUID, error) {
	def.Type = normalizeType(def.Type)
	if err := m.validate(def); err != nil {
		return uuid.Nil, err
	}
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	if err := m.repo.Put(ctx, def.ID, def); err != nil {
		return uuid.Nil, err
	}
	return def.ID, nil
}

// Create saves def and activates it right away when def.Active is set.
func (m *Manager) Create(ctx context.Context, def models.TriggerInstanceDefinition) (uuid.UUID, error) {
	id, err := m.Save(ctx, def)
	if err != nil {
		return uuid.Nil, err
	}
	if def.Active {
		def.ID = id
		def.Type = normalizeType(def.Type)
		if _, err := m.Activate(def); err != nil {
			return id, err
		}
	}
	return id, nil
}

// Read returns a stored definition.
func (m *Manager) Read(ctx context.Context, id uuid.UUID) (models.TriggerInstanceDefinition, error) {
	return m.repo.Read(ctx, id)
}

// Update replaces a stored definition. A running instance is rescheduled
// with the new definition, or deactivated when def.Active is false.
func (m *Manager) Update(ctx context.Context, id uuid.UUID, def models.TriggerInstanceDefinition) error {
	def.ID = id
	def.Type = normalizeType(def.Type)
	if err := m.validate(def); err != nil {
		return err
	}
	if err := m.repo.Update(ctx, id, def); err != nil {
		return err
	}

	m.Deactivate(id)
	if def.Active {
		_, err := m.Activate(def)
		return err
	}
	return nil
}

// Delete deactivates and removes a definition.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	m.Deactivate(id)
	return m.repo.Delete(ctx, id)
}

// List returns the stored definitions.
func (m *Manager) List(ctx context.Context) ([]models.TriggerInstanceDefinition, error) {
	entries, err := m.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	defs := make([]models.TriggerInstanceDefinition, len(entries))
	for i, e := range entries {
		defs[i] = e.Value
	}
	return defs, nil
}

// Activate starts an instance for def. If one is already active for def.ID
// it is returned unchanged.
func (m *Manager) Activate(def models.TriggerInstanceDefinition) (Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if inst, ok := m.instances[def.ID]; ok {
		return inst, nil
	}

	t, err := m.trigger(def)
	if err != nil {
		return nil, err
	}
	inst, err := t.NewInstance(def)
	if err != nil {
		return nil, err
	}
	tc := Context{
		Ctx:    m.ctx,
		Runner: m.runner,
		Cron:   m.cron,
		Logger: m.logger,
	}
	if err := inst.Activate(tc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to activate trigger").
			WithDetail("trigger", def.ID.String())
	}

	m.instances[def.ID] = inst
	metrics.ActiveTriggers.WithLabelValues(t.Type()).Inc()
	m.logger.Info("trigger activated",
		zap.String("trigger_id", def.ID.String()),
		zap.String("type", t.Type()),
		zap.String("task_id", def.TaskID.String()))
	return inst, nil
}

// Deactivate cancels the future runs of an instance. Unknown ids are ignored.
func (m *Manager) Deactivate(id uuid.UUID) {
	m.mu.Lock()
	inst, ok := m.instances[id]
	delete(m.instances, id)
	m.mu.Unlock()

	if !ok {
		return
	}
	inst.Deactivate()
	metrics.ActiveTriggers.WithLabelValues(normalizeType(inst.Definition().Type)).Dec()
	m.logger.Info("trigger deactivated", zap.String("trigger_id", id.String()))
}

// Instances returns a snapshot of the active instances.
func (m *Manager) Instances() map[uuid.UUID]Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]Instance, len(m.instances))
	for id, inst := range m.instances {
		out[id] = inst
	}
	return out
}

// Start runs the scheduler and activates every stored definition marked
// active. Definitions that fail to activate are logged and skipped; their
// errors are returned joined.
func (m *Manager) Start(ctx context.Context) error {
	m.cron.Start()

	defs, err := m.List(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, def := range defs {
		if !def.Active {
			continue
		}
		if _, err := m.Activate(def); err != nil {
			m.logger.Error("failed to re-activate trigger",
				zap.String("trigger_id", def.ID.String()),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stop deactivates every instance and waits for scheduled jobs in flight to
// return, or for ctx to be done. Runs blocked on a process are released by
// cancelling the context handed to the runner.
func (m *Manager) Stop(ctx context.Context) error {
	for id := range m.Instances() {
		m.Deactivate(id)
	}
	m.cancel()

	stopped := m.cron.Stop()
	select {
	case <-stopped.Done():
		m.logger.Info("trigger manager stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "trigger manager stop timed out")
	}
}
