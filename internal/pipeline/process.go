package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/harvester/pkg/config"
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/metrics"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/ajitpratap0/harvester/pkg/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// State is the lifecycle state of a process.
type State string

const (
	StateSubmitted           State = "SUBMITTED"
	StateWorking             State = "WORKING"
	StateCompleted           State = "COMPLETED"
	StateCompletedWithErrors State = "COMPLETED_WITH_ERRORS"
	StateFailed              State = "FAILED"
	StateAborted             State = "ABORTED"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCompletedWithErrors, StateFailed, StateAborted:
		return true
	default:
		return false
	}
}

// Statistics are the counters of one process.
type Statistics struct {
	Harvested int64
	Published int64
	Skipped   int64
	Failed    int64
	StartTime time.Time
	EndTime   time.Time
}

// Duration returns how long the process worked, or zero before it finished.
func (s Statistics) Duration() time.Duration {
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Process is one supervised execution of a task.
type Process struct {
	id       uuid.UUID
	task     *Task
	reporter ReportBuilder
	logger   *zap.Logger

	initCtx  core.InitContext
	iterCtx  core.IteratorContext
	policy   string
	maxInErr int

	mu    sync.RWMutex
	state State
	start time.Time
	end   time.Time

	harvested atomic.Int64
	published atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	errCount  atomic.Int64

	// inputErrors is only touched by the worker goroutine
	inputErrors int

	abort atomic.Bool
	done  chan struct{}
}

func newProcess(task *Task, reporter ReportBuilder, cfg config.ProcessorConfig, initCtx core.InitContext, iterCtx core.IteratorContext, logger *zap.Logger) *Process {
	id := uuid.New()
	l := logger.With(
		zap.String("process_id", id.String()),
		zap.String("task", task.Name()))
	initCtx.TaskName = task.Name()
	initCtx.IgnoreRobotsTxt = task.ignoreRobotsTxt
	initCtx.Logger = l
	task.WithLogger(l)

	return &Process{
		id:       id,
		task:     task,
		reporter: reporter,
		logger:   l,
		initCtx:  initCtx,
		iterCtx:  iterCtx,
		policy:   cfg.InputErrorPolicy,
		maxInErr: cfg.MaxInputErrors,
		state:    StateSubmitted,
		done:     make(chan struct{}),
	}
}

// ID returns the process identifier.
func (p *Process) ID() uuid.UUID { return p.id }

// Task returns the executed task.
func (p *Process) Task() *Task { return p.task }

// State returns the current state.
func (p *Process) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
	switch {
	case s == StateWorking:
		p.start = time.Now()
	case s.Terminal():
		p.end = time.Now()
	}
}

// Abort asks the process to stop. The flag is checked before every HasNext,
// so a record being published is delivered to all destinations first.
func (p *Process) Abort() {
	p.abort.Store(true)
}

// Aborted reports whether Abort was requested.
func (p *Process) Aborted() bool {
	return p.abort.Load()
}

// Done is closed once the process reaches a terminal state.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the process terminates or ctx is done.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Statistics returns a snapshot of the counters.
func (p *Process) Statistics() Statistics {
	p.mu.RLock()
	start, end := p.start, p.end
	p.mu.RUnlock()
	return Statistics{
		Harvested: p.harvested.Load(),
		Published: p.published.Load(),
		Skipped:   p.skipped.Load(),
		Failed:    p.failed.Load(),
		StartTime: start,
		EndTime:   end,
	}
}

// History summarizes the process for the history store.
func (p *Process) History() models.ProcessHistory {
	stats := p.Statistics()
	return models.ProcessHistory{
		ID:        p.id.String(),
		TaskHash:  p.task.Hash(),
		TaskName:  p.task.Name(),
		State:     string(p.State()),
		StartTime: stats.StartTime,
		EndTime:   stats.EndTime,
		Harvested: stats.Harvested,
		Published: stats.Published,
		Failed:    stats.Failed,
	}
}

// Errors returns how many errors were reported so far.
func (p *Process) Errors() int64 {
	return p.errCount.Load()
}

func (p *Process) String() string {
	return fmt.Sprintf("PROCESS :: %s, %s, %s", p.id, p.task.Name(), p.State())
}

func (p *Process) report(err *errors.Error) {
	p.errCount.Add(1)
	p.reporter.Error(p, err)
}

// cancelled finishes a process that never got a worker slot.
func (p *Process) cancelled() {
	p.setState(StateAborted)
	if err := p.task.Close(); err != nil {
		p.report(processorError(err))
	}
	p.reporter.Completed(p)
	close(p.done)
}

// run executes the task. It never returns an error: every failure ends up in
// the reporter and the final state.
func (p *Process) run(ctx context.Context) {
	defer close(p.done)

	p.setState(StateWorking)
	p.reporter.Started(p)

	ctx, span := observability.StartSpan(ctx, "process.run",
		attribute.String("process.id", p.id.String()),
		attribute.String("task.name", p.task.Name()))

	final := p.execute(ctx)

	p.setState(final)
	var spanErr error
	if final == StateFailed {
		spanErr = fmt.Errorf("process %s failed", p.id)
	}
	span.SetAttributes(attribute.String("process.state", string(final)))
	observability.EndSpan(span, spanErr)
	p.reporter.Completed(p)
}

func (p *Process) execute(ctx context.Context) State {
	failed := false

	if err := p.task.initialize(ctx, p.initCtx); err != nil {
		p.report(err)
		failed = true
	}

	aborted := false
	if !failed {
		aborted = p.pull(ctx)
	}

	if err := p.task.Close(); err != nil {
		p.report(processorError(err))
	}
	for _, err := range p.task.DestinationErrors() {
		p.report(processorError(err))
	}

	switch {
	case failed:
		return StateFailed
	case aborted:
		return StateAborted
	case p.failed.Load() > 0 || p.inputErrors > 0:
		return StateCompletedWithErrors
	default:
		return StateCompleted
	}
}

// pull drives the iterator and publishes every reference. It returns true
// when the loop ended because of an abort.
func (p *Process) pull(ctx context.Context) bool {
	source := p.task.source

	it, err := source.Iterator(ctx, p.iterCtx)
	if err != nil {
		p.inputError(err, "error creating iterator")
		return false
	}

	consecutive := 0
	for {
		if p.abort.Load() || ctx.Err() != nil {
			return true
		}

		more, err := it.HasNext(ctx)
		if err != nil {
			p.inputError(err, "error reading data")
			if p.skipInputErrors() && consecutive < p.maxInErr {
				consecutive++
				continue
			}
			return false
		}
		if !more {
			return false
		}

		ref, err := it.Next(ctx)
		if err != nil {
			p.inputError(err, "error reading data reference")
			if p.skipInputErrors() && consecutive < p.maxInErr {
				consecutive++
				continue
			}
			return false
		}
		consecutive = 0

		p.harvested.Add(1)
		metrics.RecordsHarvested.WithLabelValues(source.EntityDefinition().Type).Inc()
		p.publish(ctx, ref)
	}
}

func processorError(err error) *errors.Error {
	var e *errors.Error
	if errors.As(err, &e) {
		return e
	}
	return errors.Wrap(err, errors.ErrorTypeProcessor, "processor error")
}

func (p *Process) skipInputErrors() bool {
	return p.policy == config.InputErrorSkip
}

func (p *Process) inputError(err error, msg string) {
	p.inputErrors++
	p.report(errors.Wrap(err, errors.ErrorTypeInput, msg).
		WithDetail("broker", p.task.source.BrokerURI()))
}

// publish hands ref to every destination in order. A failing destination
// does not stop delivery to the others.
func (p *Process) publish(ctx context.Context, ref *models.DataReference) {
	for _, dest := range p.task.destinations {
		destType := dest.EntityDefinition().Type

		pctx, span := observability.StartSpan(ctx, "destination.publish",
			attribute.String("broker.uri", dest.BrokerURI()),
			attribute.String("reference.id", ref.ID))
		timer := metrics.NewTimer()
		status, err := dest.Publish(pctx, ref)
		metrics.PublishLatency.WithLabelValues(destType).Observe(timer.Stop().Seconds())
		observability.EndSpan(span, err)

		if err != nil {
			p.failed.Add(1)
			metrics.RecordsPublished.WithLabelValues(destType, "failed").Inc()
			p.report(errors.Wrap(err, errors.ErrorTypeOutput, "error publishing data").
				WithDetail("broker", dest.BrokerURI()).
				WithDetail("id", ref.ID))
			continue
		}

		if status == models.PublishingStatusSkipped {
			p.skipped.Add(1)
		} else {
			p.published.Add(1)
		}
		metrics.RecordsPublished.WithLabelValues(destType, string(status)).Inc()
		observability.RecordPublished(ctx, destType, string(status))
		p.reporter.Success(p, ref)
	}
}
