package pipeline

import (
	"context"
	"time"

	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/metrics"
	"github.com/ajitpratap0/harvester/pkg/models"
	"go.uber.org/zap"
)

// ReportBuilder receives the lifecycle and per-record events of processes.
// Implementations must be safe for concurrent use by several processes.
type ReportBuilder interface {
	Started(p *Process)
	Completed(p *Process)
	Success(p *Process, ref *models.DataReference)
	// Error receives input, output and processor errors.
	Error(p *Process, err *errors.Error)
}

// MultiReporter fans every event out to several builders in order.
type MultiReporter []ReportBuilder

func (m MultiReporter) Started(p *Process) {
	for _, r := range m {
		r.Started(p)
	}
}

func (m MultiReporter) Completed(p *Process) {
	for _, r := range m {
		r.Completed(p)
	}
}

func (m MultiReporter) Success(p *Process, ref *models.DataReference) {
	for _, r := range m {
		r.Success(p, ref)
	}
}

func (m MultiReporter) Error(p *Process, err *errors.Error) {
	for _, r := range m {
		r.Error(p, err)
	}
}

// LogReporter writes events to a zap logger.
type LogReporter struct {
	logger *zap.Logger
}

// NewLogReporter creates a reporter logging through logger.
func NewLogReporter(logger *zap.Logger) *LogReporter {
	return &LogReporter{logger: logger.With(zap.String("component", "report"))}
}

func (r *LogReporter) Started(p *Process) {
	r.logger.Info("started processing task",
		zap.String("process_id", p.ID().String()),
		zap.String("task", p.Task().Name()))
}

func (r *LogReporter) Completed(p *Process) {
	stats := p.Statistics()
	r.logger.Info("completed processing task",
		zap.String("process_id", p.ID().String()),
		zap.String("task", p.Task().Name()),
		zap.String("state", string(p.State())),
		zap.Int64("harvested", stats.Harvested),
		zap.Int64("published", stats.Published),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("failed", stats.Failed),
		zap.Duration("duration", stats.Duration()))
}

func (r *LogReporter) Success(p *Process, ref *models.DataReference) {
	r.logger.Debug("harvested data reference",
		zap.String("process_id", p.ID().String()),
		zap.String("broker", ref.BrokerURI),
		zap.String("id", ref.ID))
}

func (r *LogReporter) Error(p *Process, err *errors.Error) {
	fields := []zap.Field{
		zap.String("process_id", p.ID().String()),
		zap.String("task", p.Task().Name()),
		zap.String("category", string(err.Type)),
		zap.Error(err),
	}
	for k, v := range err.Details {
		fields = append(fields, zap.Any(k, v))
	}
	r.logger.Error("error processing task", fields...)
}

// MetricsReporter counts events in the Prometheus collectors.
type MetricsReporter struct{}

func (MetricsReporter) Started(*Process) {
	metrics.ActiveProcesses.Inc()
}

func (MetricsReporter) Completed(p *Process) {
	if !p.Statistics().StartTime.IsZero() {
		metrics.ActiveProcesses.Dec()
	}
	metrics.ProcessesFinished.WithLabelValues(string(p.State())).Inc()
}

func (MetricsReporter) Success(*Process, *models.DataReference) {}

func (MetricsReporter) Error(_ *Process, err *errors.Error) {
	metrics.ProcessingErrors.WithLabelValues(string(err.Type)).Inc()
}

// HistoryRecorder persists the outcome of finished processes.
type HistoryRecorder interface {
	Record(ctx context.Context, h models.ProcessHistory) error
}

// HistoryReporter writes one history entry per completed process.
type HistoryReporter struct {
	recorder HistoryRecorder
	timeout  time.Duration
	logger   *zap.Logger
}

// NewHistoryReporter creates a reporter storing history through recorder.
func NewHistoryReporter(recorder HistoryRecorder, logger *zap.Logger) *HistoryReporter {
	return &HistoryReporter{
		recorder: recorder,
		timeout:  10 * time.Second,
		logger:   logger.With(zap.String("component", "history")),
	}
}

func (r *HistoryReporter) Started(*Process) {}

func (r *HistoryReporter) Completed(p *Process) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.recorder.Record(ctx, p.History()); err != nil {
		r.logger.Warn("failed to record process history",
			zap.String("process_id", p.ID().String()),
			zap.Error(err))
	}
}

func (r *HistoryReporter) Success(*Process, *models.DataReference) {}

func (r *HistoryReporter) Error(*Process, *errors.Error) {}
