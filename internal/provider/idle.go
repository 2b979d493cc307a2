package provider

import (
	"context"

	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// Idle returns a configured constant action on every tick, with no
// prepare/shutdown work (§4.4.1).
type Idle struct {
	action map[string]float64
}

// NewIdle builds an Idle provider. action may be nil/empty for a pure no-op.
func NewIdle(action map[string]float64) *Idle {
	return &Idle{action: action}
}

func (i *Idle) Prepare(ctx context.Context) error  { return nil }
func (i *Idle) Shutdown(ctx context.Context) error { return nil }

func (i *Idle) Compute(ctx context.Context, obs wire.Observation) (wire.Action, error) {
	actions := make(map[string]float64, len(i.action))
	for k, v := range i.action {
		actions[k] = v
	}
	return wire.Action{Actions: actions, TimestampNs: obs.TimestampNs, Version: 1}, nil
}

func (i *Idle) WantsFullObservation() bool { return false }
