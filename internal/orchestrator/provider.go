// Package orchestrator implements the command orchestrator (§4.3): a
// registry of Provider implementations with a single active provider at a
// time, a state machine serialized by one lock, and the get_action /
// sync_config RPC endpoints the edge loop drives.
package orchestrator

import (
	"context"

	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// Provider is the capability every command provider (idle, AI, teleop,
// data-collection) implements (§4.4).
type Provider interface {
	Prepare(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Compute(ctx context.Context, obs wire.Observation) (wire.Action, error)
	WantsFullObservation() bool
}

// PreprocessedObserver is an optional extension a Provider may implement to
// request the "full_preprocessed" observation hint instead of plain "full"
// (§4.3 observation_hint values; the GR00T AI provider is the one built-in
// implementation, see internal/provider).
type PreprocessedObserver interface {
	WantsPreprocessedObservation() bool
}

func observationHint(p Provider) wire.ObservationHint {
	if pre, ok := p.(PreprocessedObserver); ok && pre.WantsPreprocessedObservation() {
		return wire.HintFullPreprocessed
	}
	if p.WantsFullObservation() {
		return wire.HintFull
	}
	return wire.HintNumeric
}
