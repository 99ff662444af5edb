// Package engine wires the connector registry, the processor, the trigger
// manager and the definition stores into one harvesting engine.
package engine

import (
	"context"
	"time"

	"github.com/ajitpratap0/harvester/internal/pipeline"
	"github.com/ajitpratap0/harvester/internal/store"
	"github.com/ajitpratap0/harvester/internal/trigger"
	"github.com/ajitpratap0/harvester/pkg/config"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options override the engine collaborators. Zero values select defaults.
type Options struct {
	// Registry defaults to the global registry
	Registry *registry.Registry
	// Stores defaults to the store selected by the engine config
	Stores *store.Stores
	// Reporters are added to the log, metrics and history reporters
	Reporters []pipeline.ReportBuilder
	Logger    *zap.Logger
}

// Engine runs tasks on demand and on schedule.
type Engine struct {
	cfg       *config.EngineConfig
	registry  *registry.Registry
	stores    *store.Stores
	processor *pipeline.Processor
	triggers  *trigger.Manager
	logger    *zap.Logger
}

// New creates an engine. It opens the configured store unless one is given.
func New(ctx context.Context, cfg *config.EngineConfig, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := opts.Registry
	if reg == nil {
		reg = registry.GetRegistry()
	}

	stores := opts.Stores
	if stores == nil {
		var err error
		stores, err = store.Open(ctx, cfg.Store, logger)
		if err != nil {
			return nil, err
		}
	}

	loc := time.Local
	if cfg.Scheduler.Location != "" {
		l, err := time.LoadLocation(cfg.Scheduler.Location)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid scheduler location").
				WithDetail("location", cfg.Scheduler.Location)
		}
		loc = l
	}

	reporters := pipeline.MultiReporter{
		pipeline.NewLogReporter(logger),
		pipeline.MetricsReporter{},
		pipeline.NewHistoryReporter(stores.History, logger),
	}
	reporters = append(reporters, opts.Reporters...)

	userAgent := cfg.Robots.UserAgent
	if userAgent == "" {
		userAgent = cfg.HTTP.UserAgent
	}

	e := &Engine{
		cfg:      cfg,
		registry: reg,
		stores:   stores,
		logger:   logger.With(zap.String("component", "engine")),
	}
	e.processor = pipeline.NewProcessor(cfg.Processor, pipeline.ProcessorOptions{
		Reporter:      reporters,
		History:       stores.History,
		RobotsEnabled: cfg.Robots.Enabled,
		UserAgent:     userAgent,
		HTTP:          &cfg.HTTP,
		Logger:        logger,
	})
	e.triggers = trigger.NewManager(stores.Triggers, trigger.RunnerFunc(e.runTrigger), trigger.ManagerOptions{
		Location: loc,
		Logger:   logger,
	})
	return e, nil
}

// Registry returns the connector registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Processor returns the process tracker.
func (e *Engine) Processor() *pipeline.Processor { return e.processor }

// Triggers returns the trigger manager.
func (e *Engine) Triggers() *trigger.Manager { return e.triggers }

// Stores returns the definition stores.
func (e *Engine) Stores() *store.Stores { return e.stores }

// Submit builds a task from def and submits it. Configuration errors are
// returned before any process exists.
func (e *Engine) Submit(def models.TaskDefinition) (*pipeline.Process, error) {
	task, err := pipeline.BuildTask(e.registry, def)
	if err != nil {
		return nil, err
	}
	return e.processor.Submit(task), nil
}

// Run submits def and waits for the process to finish.
func (e *Engine) Run(ctx context.Context, def models.TaskDefinition) (*pipeline.Process, error) {
	p, err := e.Submit(def)
	if err != nil {
		return nil, err
	}
	if err := p.Wait(ctx); err != nil {
		p.Abort()
		return p, err
	}
	return p, nil
}

// runTrigger builds a fresh task from the stored definition referenced by the
// trigger and waits for its process.
func (e *Engine) runTrigger(ctx context.Context, def models.TriggerInstanceDefinition) error {
	taskDef, err := e.stores.Tasks.Read(ctx, def.TaskID)
	if err != nil {
		return err
	}
	p, err := e.Submit(taskDef)
	if err != nil {
		return err
	}
	e.logger.Info("triggered task submitted",
		zap.String("trigger_id", def.ID.String()),
		zap.String("process_id", p.ID().String()),
		zap.String("task", taskDef.String()))

	waitErr := p.Wait(ctx)
	if waitErr == nil {
		_ = e.processor.Release(p.ID())
	}
	return waitErr
}

// SaveTask stores a task definition under id, or a fresh id when id is nil.
func (e *Engine) SaveTask(ctx context.Context, id uuid.UUID, def models.TaskDefinition) (uuid.UUID, error) {
	if id == uuid.Nil {
		return e.stores.Tasks.Create(ctx, def)
	}
	return id, e.stores.Tasks.Put(ctx, id, def)
}

// Load stores the tasks and triggers of task files. Triggers marked active
// are activated by Start.
func (e *Engine) Load(ctx context.Context, files []*config.TaskFile) error {
	for _, f := range files {
		stored := f.StoredTask()
		// fail early on definitions no connector can build
		task, err := pipeline.BuildTask(e.registry, stored.Definition)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid task definition").
				WithDetail("task", stored.Definition.String())
		}
		_ = task.Close()

		if _, err := e.SaveTask(ctx, stored.ID, stored.Definition); err != nil {
			return err
		}
		for _, def := range f.TriggerDefinitions() {
			if _, err := e.triggers.Save(ctx, def); err != nil {
				return err
			}
		}
		e.logger.Info("task loaded",
			zap.String("task", stored.Definition.String()),
			zap.String("task_id", stored.ID.String()),
			zap.Int("triggers", len(f.Triggers)))
	}
	return nil
}

// Start activates the persisted active triggers.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("starting engine",
		zap.Strings("inputs", e.registry.ListInputs()),
		zap.Strings("outputs", e.registry.ListOutputs()),
		zap.Strings("triggers", e.triggers.Types()))
	return e.triggers.Start(ctx)
}

// Stop stops scheduling, aborts running processes and closes the stores.
func (e *Engine) Stop(ctx context.Context) error {
	var errs []error
	if err := e.triggers.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := e.processor.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	e.stores.Close()
	return errors.Join(errs...)
}
