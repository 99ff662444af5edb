package trigger

import (
	"strings"
	"sync"
	"time"

	"github.com/ajitpratap0/harvester/pkg/errors"
	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// PeriodTrigger runs the task every "period" (a Go duration such as "1h30m").
type PeriodTrigger struct{}

func (PeriodTrigger) Type() string { return TypePeriod }

func (PeriodTrigger) Validate(def models.TriggerInstanceDefinition) error {
	_, err := periodSchedule(def)
	return err
}

func (PeriodTrigger) NewInstance(def models.TriggerInstanceDefinition) (Instance, error) {
	sched, err := periodSchedule(def)
	if err != nil {
		return nil, err
	}
	return &scheduledInstance{def: def, schedule: sched}, nil
}

func periodSchedule(def models.TriggerInstanceDefinition) (cron.Schedule, error) {
	raw := def.Get(PropertyPeriod)
	if raw == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "missing period").WithDetail("trigger", def.ID.String())
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid period").WithDetail("period", raw)
	}
	if d < time.Second {
		return nil, errors.New(errors.ErrorTypeConfig, "period must be at least one second").WithDetail("period", raw)
	}
	return cron.Every(d), nil
}

// CronTrigger runs the task on a standard five field cron spec; descriptors
// such as "@daily" are accepted too. Specs without a CRON_TZ prefix are
// evaluated in Location, or the local time zone when it is nil.
type CronTrigger struct {
	Location *time.Location
}

func (CronTrigger) Type() string { return TypeCron }

func (t CronTrigger) Validate(def models.TriggerInstanceDefinition) error {
	_, err := t.schedule(def)
	return err
}

func (t CronTrigger) NewInstance(def models.TriggerInstanceDefinition) (Instance, error) {
	sched, err := t.schedule(def)
	if err != nil {
		return nil, err
	}
	return &scheduledInstance{def: def, schedule: sched}, nil
}

func (t CronTrigger) schedule(def models.TriggerInstanceDefinition) (cron.Schedule, error) {
	spec := strings.TrimSpace(def.Get(PropertyCron))
	if spec == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "missing cron spec").WithDetail("trigger", def.ID.String())
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid cron spec").WithDetail("cron", spec)
	}
	zoned := strings.HasPrefix(spec, "CRON_TZ=") || strings.HasPrefix(spec, "TZ=")
	if s, ok := sched.(*cron.SpecSchedule); ok && t.Location != nil && !zoned {
		s.Location = t.Location
	}
	return sched, nil
}

// scheduledInstance registers one entry in the shared cron scheduler.
// Overlapping runs of the same instance are skipped.
type scheduledInstance struct {
	def      models.TriggerInstanceDefinition
	schedule cron.Schedule

	mu     sync.Mutex
	cron   *cron.Cron
	entry  cron.EntryID
	active bool
}

func (i *scheduledInstance) Definition() models.TriggerInstanceDefinition { return i.def }

func (i *scheduledInstance) Activate(tc Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.active {
		return nil
	}

	logger := tc.Logger.With(zap.String("trigger_id", i.def.ID.String()))
	job := cron.FuncJob(func() {
		if err := tc.Runner.Run(tc.Ctx, i.def); err != nil {
			logger.Error("scheduled run failed", zap.Error(err))
		}
	})
	wrapped := cron.NewChain(
		cron.Recover(cronLogger{logger}),
		cron.SkipIfStillRunning(cronLogger{logger}),
	).Then(job)

	i.cron = tc.Cron
	i.entry = tc.Cron.Schedule(i.schedule, wrapped)
	i.active = true

	logger.Info("trigger scheduled",
		zap.String("type", i.def.Type),
		zap.Time("next", i.schedule.Next(time.Now())))
	return nil
}

func (i *scheduledInstance) Deactivate() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.active {
		return
	}
	i.cron.Remove(i.entry)
	i.active = false
}

func (i *scheduledInstance) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
