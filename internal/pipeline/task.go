package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/connector/registry"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"go.uber.org/zap"
)

// Task binds one input broker to an ordered list of output brokers. It owns
// the brokers for the lifetime of a single process.
type Task struct {
	name         string
	processor    models.EntityDefinition
	source       core.InputBroker
	destinations []core.OutputBroker

	ignoreRobotsTxt bool
	incremental     bool

	closeOnce sync.Once
	closeErr  error
	destErrs  []error
	logger    *zap.Logger
}

// NewTask creates a task from live brokers.
func NewTask(def models.TaskDefinition, source core.InputBroker, destinations ...core.OutputBroker) *Task {
	return &Task{
		name:            def.Name,
		processor:       def.Processor.Clone(),
		source:          source,
		destinations:    destinations,
		ignoreRobotsTxt: def.IgnoreRobotsTxt,
		incremental:     def.Incremental,
		logger:          zap.NewNop(),
	}
}

// BuildTask materializes every broker named by def through reg. Any
// configuration error is returned before a process exists; brokers built
// before the failure are terminated.
func BuildTask(reg *registry.Registry, def models.TaskDefinition) (*Task, error) {
	if len(def.Destinations) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "task has no destinations").
			WithDetail("task", def.String())
	}

	source, err := reg.CreateInput(def.Source)
	if err != nil {
		return nil, err
	}

	destinations := make([]core.OutputBroker, 0, len(def.Destinations))
	for i, d := range def.Destinations {
		dest, err := reg.CreateOutput(d)
		if err != nil {
			_ = source.Terminate()
			for _, built := range destinations {
				_ = built.Terminate()
			}
			var e *errors.Error
			if errors.As(err, &e) {
				e.WithDetail("destination", i)
			}
			return nil, err
		}
		destinations = append(destinations, dest)
	}

	return NewTask(def, source, destinations...), nil
}

// WithLogger sets the logger used to report close failures.
func (t *Task) WithLogger(logger *zap.Logger) *Task {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// Name returns the task display name.
func (t *Task) Name() string {
	return t.Definition().String()
}

// Source returns the input broker.
func (t *Task) Source() core.InputBroker { return t.source }

// Destinations returns the output brokers in delivery order.
func (t *Task) Destinations() []core.OutputBroker { return t.destinations }

// Definition rebuilds the task definition from the live brokers.
func (t *Task) Definition() models.TaskDefinition {
	dests := make([]models.EntityDefinition, len(t.destinations))
	for i, d := range t.destinations {
		dests[i] = d.EntityDefinition()
	}
	return models.TaskDefinition{
		Name:            t.name,
		Processor:       t.processor,
		Source:          t.source.EntityDefinition(),
		Destinations:    dests,
		IgnoreRobotsTxt: t.ignoreRobotsTxt,
		Incremental:     t.incremental,
	}
}

// Equal compares tasks by the entity definitions of their processor, source
// and destinations. Broker identity does not matter.
func (t *Task) Equal(other *Task) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.Definition().Equal(other.Definition())
}

// Hash is consistent with Equal.
func (t *Task) Hash() string {
	return t.Definition().Hash()
}

func (t *Task) String() string {
	return fmt.Sprintf("TASK :: %s", t.Name())
}

// initialize prepares the source and then every destination, stopping at the
// first failure.
func (t *Task) initialize(ctx context.Context, initCtx core.InitContext) *errors.Error {
	if err := t.source.Initialize(ctx, initCtx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeProcessor, "error initializing source").
			WithDetail("broker", t.source.BrokerURI())
	}
	for _, d := range t.destinations {
		if err := d.Initialize(ctx, initCtx); err != nil {
			return errors.Wrap(err, errors.ErrorTypeProcessor, "error initializing destination").
				WithDetail("broker", d.BrokerURI())
		}
	}
	return nil
}

// Close terminates the source and then every destination, whatever happened
// before. Destination failures are logged and kept for DestinationErrors; the
// source failure is returned. Only the first call does any work.
func (t *Task) Close() error {
	t.closeOnce.Do(func() {
		if err := t.source.Terminate(); err != nil {
			t.closeErr = errors.Wrap(err, errors.ErrorTypeProcessor, "error terminating source").
				WithDetail("broker", t.source.BrokerURI())
		}
		for _, d := range t.destinations {
			if err := d.Terminate(); err != nil {
				wrapped := errors.Wrap(err, errors.ErrorTypeProcessor, "error terminating destination").
					WithDetail("broker", d.BrokerURI())
				t.logger.Warn("destination close failed",
					zap.String("broker", d.BrokerURI()),
					zap.Error(err))
				t.destErrs = append(t.destErrs, wrapped)
			}
		}
	})
	return t.closeErr
}

// DestinationErrors returns the destination close failures of the last Close.
func (t *Task) DestinationErrors() []error {
	return t.destErrs
}
