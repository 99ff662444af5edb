package trigger

import (
	"sync"

	"github.com/ajitpratap0/harvester/pkg/models"
	"go.uber.org/zap"
)

// NowTrigger runs the task once, right after activation.
type NowTrigger struct{}

func (NowTrigger) Type() string { return TypeNow }

func (NowTrigger) Validate(models.TriggerInstanceDefinition) error { return nil }

func (NowTrigger) NewInstance(def models.TriggerInstanceDefinition) (Instance, error) {
	return &nowInstance{def: def}, nil
}

type nowInstance struct {
	def models.TriggerInstanceDefinition

	mu     sync.Mutex
	active bool
	done   chan struct{}
}

func (i *nowInstance) Definition() models.TriggerInstanceDefinition { return i.def }

func (i *nowInstance) Activate(tc Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.active {
		return nil
	}
	i.active = true
	i.done = make(chan struct{})

	go func() {
		defer close(i.done)
		if err := tc.Runner.Run(tc.Ctx, i.def); err != nil {
			tc.Logger.Error("triggered run failed",
				zap.String("trigger_id", i.def.ID.String()),
				zap.Error(err))
		}
	}()
	return nil
}

func (i *nowInstance) Deactivate() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.active = false
}

func (i *nowInstance) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// Done is closed when the single run returns. It is nil before activation.
func (i *nowInstance) Done() <-chan struct{} {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.done
}
