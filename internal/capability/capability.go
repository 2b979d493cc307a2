// Package capability defines the driver-boundary interfaces that
// concrete robot/teleoperator/dataset integrations implement (§6). These
// are deliberately thin: the control plane treats robots, teleoperators,
// and frame sinks as opaque collaborators (§1 "explicitly out of scope").
package capability

import (
	"context"

	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// RobotController is the edge-side driver boundary (§6).
type RobotController interface {
	Connect(ctx context.Context, calibrate bool) error
	Disconnect(ctx context.Context) error

	// Observe samples the robot's current sensor/actuator state. The
	// returned map may contain numeric keys and named camera ndarrays.
	Observe(ctx context.Context) (map[string]wire.Value, error)

	Actuate(ctx context.Context, action map[string]float64) error

	// ActionFeatures lists the actuator channels this robot exposes, used
	// to construct the fallback ladder's zero-vector (§4.5).
	ActionFeatures() []string
}

// Teleoperator is the orchestrator-side human-input driver boundary (§6).
type Teleoperator interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	GetAction(ctx context.Context) (map[string]float64, error)

	// OnObservation is an optional hook some teleoperators use to display
	// the current robot state to the operator; nil means unused.
	OnObservation(obs map[string]wire.Value)
}

// FrameSink accumulates, persists, and post-processes recorded frames for
// the data-collection provider (§4.4.5, §6). Treated as opaque: callers
// must not call AddFrame between SaveEpisode calls concurrently with
// another buffer mutation (single-producer invariant, §3).
type FrameSink interface {
	Features() []string
	AddFrame(frame map[string]wire.Value) error
	SaveEpisode(ctx context.Context) error
	ClearEpisodeBuffer()
	NumEpisodes() int
	EpisodeBufferSize() int
}

// ProcessSupervisor starts/stops a named external service, used by the
// remote-teleop provider to bring up a peer process before use (§4.4.4).
type ProcessSupervisor interface {
	Start(ctx context.Context, service string) error
	Stop(ctx context.Context, service string) error
}
