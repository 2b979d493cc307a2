package provider

import (
	"context"

	"github.com/brainbot-robotics/brainbot/internal/capability"
	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// LocalTeleop wraps a capability.Teleoperator driver (§4.4.3).
type LocalTeleop struct {
	teleop                capability.Teleoperator
	teleopActionProcessor TransformFunc
	robotActionProcessor  TransformFunc
	wantsFull             bool
}

// NewLocalTeleop builds a LocalTeleop provider. Either processor may be nil
// to skip that pipeline stage.
func NewLocalTeleop(teleop capability.Teleoperator, teleopActionProcessor, robotActionProcessor TransformFunc) *LocalTeleop {
	return &LocalTeleop{
		teleop:                teleop,
		teleopActionProcessor: teleopActionProcessor,
		robotActionProcessor:  robotActionProcessor,
	}
}

func (l *LocalTeleop) Prepare(ctx context.Context) error {
	return l.teleop.Connect(ctx)
}

func (l *LocalTeleop) Shutdown(ctx context.Context) error {
	return l.teleop.Disconnect(ctx)
}

func (l *LocalTeleop) Compute(ctx context.Context, obs wire.Observation) (wire.Action, error) {
	l.teleop.OnObservation(obs.Payload)

	action, err := l.teleop.GetAction(ctx)
	if err != nil {
		return wire.Action{}, err
	}

	robotObs, _ := obs.Payload["robot"].AsMap()

	if l.teleopActionProcessor != nil {
		action, err = l.teleopActionProcessor(action, robotObs)
		if err != nil {
			return wire.Action{}, err
		}
	}
	if l.robotActionProcessor != nil {
		action, err = l.robotActionProcessor(action, robotObs)
		if err != nil {
			return wire.Action{}, err
		}
	}

	return wire.Action{Actions: action, TimestampNs: obs.TimestampNs, Version: 1}, nil
}

func (l *LocalTeleop) WantsFullObservation() bool { return l.wantsFull }
