// Package pipeline executes harvesting tasks.
//
// A Task binds one input broker to an ordered list of output brokers. The
// Processor turns a Task into a Process that runs on its own goroutine:
//
//	proc := pipeline.NewProcessor(cfg.Processor, pipeline.ProcessorOptions{
//	    Reporter: pipeline.NewLogReporter(logger),
//	    Logger:   logger,
//	})
//	p := proc.Submit(task)
//	_ = p.Wait(ctx)
//	fmt.Println(p.State())
//
// Within a process the pull/push loop is strictly sequential: a record is
// handed to every destination, in declared order, before the next one is
// pulled. A failing destination never stops delivery to the others. Every
// error is reported through the ReportBuilder and reflected in the final
// state; none escapes the process.
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ajitpratap0/harvester/pkg/clients"
	"github.com/ajitpratap0/harvester/pkg/config"
	"github.com/ajitpratap0/harvester/pkg/connector/core"
	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// HistoryLookup finds when a task last completed successfully.
type HistoryLookup interface {
	LastSuccess(ctx context.Context, taskHash string) (*time.Time, error)
}

// ProcessorOptions are the collaborators of a Processor.
type ProcessorOptions struct {
	// Reporter receives process events; nil means a log reporter
	Reporter ReportBuilder
	// History provides the last harvest time of incremental tasks
	History HistoryLookup
	// RobotsEnabled, UserAgent and HTTP are passed to brokers on Initialize
	RobotsEnabled bool
	UserAgent     string
	HTTP          *clients.HTTPConfig
	Logger        *zap.Logger
}

// Processor submits tasks and tracks the resulting processes until they are
// released.
type Processor struct {
	cfg     config.ProcessorConfig
	opts    ProcessorOptions
	sem     *semaphore.Weighted
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running map[uuid.UUID]*Process
}

// NewProcessor creates a processor running at most cfg.MaxConcurrent
// processes at once.
func NewProcessor(cfg config.ProcessorConfig, opts ProcessorOptions) *Processor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.InputErrorPolicy == "" {
		cfg.InputErrorPolicy = config.InputErrorAbort
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "processor"))
	if opts.Reporter == nil {
		opts.Reporter = NewLogReporter(logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		cfg:     cfg,
		opts:    opts,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		running: make(map[uuid.UUID]*Process),
	}
}

// Submit creates a process for task and starts it. The returned process is
// SUBMITTED until a worker slot is free.
func (p *Processor) Submit(task *Task) *Process {
	iterCtx := p.iteratorContext(task)
	initCtx := core.InitContext{
		RobotsEnabled: p.opts.RobotsEnabled,
		UserAgent:     p.opts.UserAgent,
		HTTP:          p.opts.HTTP,
	}
	proc := newProcess(task, p.opts.Reporter, p.cfg, initCtx, iterCtx, p.logger)

	p.mu.Lock()
	p.running[proc.id] = proc
	p.mu.Unlock()

	p.logger.Debug("process submitted",
		zap.String("process_id", proc.id.String()),
		zap.String("task", task.Name()))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			proc.cancelled()
			return
		}
		defer p.sem.Release(1)

		if proc.Aborted() {
			proc.cancelled()
			return
		}
		// shutdown aborts through the flag; a publish in flight is not cut short
		proc.run(context.WithoutCancel(p.ctx))
	}()

	return proc
}

func (p *Processor) iteratorContext(task *Task) core.IteratorContext {
	if !task.incremental || p.opts.History == nil {
		return core.IteratorContext{}
	}

	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	last, err := p.opts.History.LastSuccess(ctx, task.Hash())
	if err != nil && !errors.IsType(err, errors.ErrorTypeNotFound) {
		p.logger.Warn("cannot read harvest history, harvesting everything",
			zap.String("task", task.Name()),
			zap.Error(err))
		return core.IteratorContext{}
	}
	return core.IteratorContext{LastHarvest: last}
}

// Get returns a tracked process.
func (p *Processor) Get(id uuid.UUID) (*Process, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	proc, ok := p.running[id]
	return proc, ok
}

// Processes returns a snapshot of the tracked processes ordered by id.
func (p *Processor) Processes() []*Process {
	p.mu.RLock()
	out := make([]*Process, 0, len(p.running))
	for _, proc := range p.running {
		out = append(out, proc)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].id.String() < out[j].id.String()
	})
	return out
}

// Release stops tracking a terminated process. Releasing a process that is
// still running is refused.
func (p *Processor) Release(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	proc, ok := p.running[id]
	if !ok {
		return errors.New(errors.ErrorTypeNotFound, "process not found").WithDetail("id", id.String())
	}
	if !proc.State().Terminal() {
		return errors.New(errors.ErrorTypeConflict, "process is still running").WithDetail("id", id.String())
	}
	delete(p.running, id)
	return nil
}

// Shutdown aborts every tracked process and waits until their goroutines
// exit or ctx is done.
func (p *Processor) Shutdown(ctx context.Context) error {
	for _, proc := range p.Processes() {
		proc.Abort()
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("processor stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "processor shutdown timed out")
	}
}
