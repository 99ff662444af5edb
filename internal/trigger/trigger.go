// Package trigger schedules task runs.
//
// A Trigger is a named schedule type (NOW, PERIOD, CRON). Activating a
// trigger instance definition creates an Instance that submits a freshly
// built task whenever its schedule fires. The Manager keeps at most one
// Instance per definition id and persists definitions through a store.
package trigger

import (
	"context"
	"strings"
	"time"

	"github.com/ajitpratap0/harvester/pkg/models"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Trigger type names
const (
	TypeNow    = "NOW"
	TypePeriod = "PERIOD"
	TypeCron   = "CRON"
)

// Schedule properties
const (
	PropertyPeriod = "period"
	PropertyCron   = "cron"
)

// Runner starts one run of the task referenced by def and blocks until it
// finishes or ctx is done.
type Runner interface {
	Run(ctx context.Context, def models.TriggerInstanceDefinition) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, def models.TriggerInstanceDefinition) error

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, def models.TriggerInstanceDefinition) error {
	return f(ctx, def)
}

// Context is handed to instances on activation.
type Context struct {
	// Ctx is cancelled when the manager stops
	Ctx    context.Context
	Runner Runner
	// Cron is the scheduler shared by all instances of a manager
	Cron   *cron.Cron
	Logger *zap.Logger
}

// Trigger creates instances of one schedule type.
type Trigger interface {
	Type() string
	// Validate checks the schedule properties of def.
	Validate(def models.TriggerInstanceDefinition) error
	// NewInstance creates an inactive instance for def.
	NewInstance(def models.TriggerInstanceDefinition) (Instance, error)
}

// Instance is a live activation of a trigger instance definition.
type Instance interface {
	Definition() models.TriggerInstanceDefinition
	// Activate starts scheduling runs.
	Activate(tc Context) error
	// Deactivate cancels future runs. Runs already started are not touched.
	// Calling it on an inactive instance does nothing.
	Deactivate()
	Active() bool
}

// DefaultTriggers returns the bundled trigger types. Cron specs are
// evaluated in loc.
func DefaultTriggers(loc *time.Location) []Trigger {
	return []Trigger{NowTrigger{}, PeriodTrigger{}, CronTrigger{Location: loc}}
}

func normalizeType(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}
