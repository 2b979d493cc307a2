// Package edge implements the fixed-rate edge control loop (§4.5): observe
// the robot, negotiate the observation mode with the orchestrator, fetch an
// action over RPC, fall back gracefully on timeout, and actuate.
package edge

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/brainbot-robotics/brainbot/internal/capability"
	"github.com/brainbot-robotics/brainbot/internal/logger"
	"github.com/brainbot-robotics/brainbot/internal/rpc"
	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// CameraPublisher accepts the raw robot sub-mapping for out-of-band
// streaming (§4.5 step 3, §4.6). Forwarding is non-blocking and failures are
// logged, never propagated.
type CameraPublisher interface {
	Publish(robot map[string]wire.Value) error
}

// Config bundles the per-run tunables (§6 edge config keys).
type Config struct {
	RateHz           float64
	MaxMissedActions int
	FallbackAction   map[string]float64
	TargetHeight     int
	TargetWidth      int
	ActionFilter     *ActionFilter
}

// Loop drives one robot against one orchestrator connection (§4.5, §5 "one
// thread per edge process").
type Loop struct {
	robot     capability.RobotController
	client    *rpc.Client
	publisher CameraPublisher
	cfg       Config

	limiter *rate.Limiter

	mode       wire.ObservationHint
	missCount  int
	lastAction wire.Action
}

// NewLoop builds a Loop. publisher may be nil.
func NewLoop(robot capability.RobotController, client *rpc.Client, publisher CameraPublisher, cfg Config) *Loop {
	hz := cfg.RateHz
	if hz <= 0 {
		hz = 30
	}
	return &Loop{
		robot:      robot,
		client:     client,
		publisher:  publisher,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(hz), 1),
		mode:       wire.HintNumeric,
		lastAction: wire.NewEmptyAction(0),
	}
}

// Run executes ticks until ctx is cancelled or a shutdown status envelope is
// observed (§4.5, §5 "operating-system signals ... flip a running flag read
// at loop boundaries" — ctx cancellation is that flag here).
func (l *Loop) Run(ctx context.Context) error {
	raiseSchedulingPriority()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		shutdown, err := l.tick(ctx)
		if err != nil {
			return err
		}
		if shutdown {
			return nil
		}

		if err := l.limiter.Wait(ctx); err != nil {
			return nil
		}
	}
}

// tick runs one iteration of §4.5 steps 1-7 and reports whether the
// orchestrator signalled cooperative shutdown.
func (l *Loop) tick(ctx context.Context) (shutdown bool, err error) {
	t0 := time.Now()

	rawObs, err := l.robot.Observe(ctx)
	if err != nil {
		return false, &DriverError{Op: "observe", Cause: err}
	}

	if l.publisher != nil {
		if perr := l.publisher.Publish(rawObs); perr != nil {
			logger.Warn("edge: camera publish failed", "err", perr)
		}
	}

	shaped := l.shapeObservation(rawObs)
	obs := wire.Observation{Payload: shaped, TimestampNs: t0.UnixNano(), Version: 1}

	reply, callErr := l.client.Call("get_action", map[string]wire.Value{"observation": obs.ToValue()})

	var action wire.Action
	switch {
	case callErr == nil && isShutdownReply(reply):
		return true, nil

	case callErr != nil && (rpc.IsKind(callErr, rpc.KindTimeout) || rpc.IsKind(callErr, rpc.KindAppError)):
		// TIMEOUT (§4.5 step 5) and APP_ERROR (§7: AI-inference timeout or no
		// active provider, surfaced to the edge as a get_action {error} reply)
		// are both recovered via the fallback ladder, never fatal to the loop.
		l.missCount++
		action = l.fallbackAction(t0.UnixNano())

	case callErr != nil:
		return false, err2transport(callErr)

	default:
		l.missCount = 0
		if hintVal, ok := reply["observation_hint"]; ok {
			if hint, ok := hintVal.AsString(); ok {
				l.mode = wire.ObservationHint(hint)
			}
		}
		act, ok := wire.ActionFromValue(reply["action"])
		if !ok {
			return false, err2transport(errMalformedReply)
		}
		action = act
	}

	actuated := action.Actions
	if l.cfg.ActionFilter != nil {
		actuated = l.cfg.ActionFilter.Apply(actuated)
	}

	if err := l.robot.Actuate(ctx, actuated); err != nil {
		return false, &DriverError{Op: "actuate", Cause: err}
	}
	l.lastAction = wire.Action{Actions: actuated, TimestampNs: action.TimestampNs, Version: 1}

	return false, nil
}

// fallbackAction implements the miss-counter ladder (§4.5 step 5 Timeout
// branch).
func (l *Loop) fallbackAction(timestampNs int64) wire.Action {
	if l.missCount > l.cfg.MaxMissedActions {
		l.missCount = 0
		return wire.ZeroAction(l.robot.ActionFeatures(), timestampNs)
	}
	if l.cfg.FallbackAction != nil {
		return wire.Action{Actions: copyFloatMap(l.cfg.FallbackAction), TimestampNs: timestampNs, Version: 1}
	}
	return wire.Action{Actions: copyFloatMap(l.lastAction.Actions), TimestampNs: timestampNs, Version: 1}
}

// shapeObservation wraps the raw robot fields into an Observation payload
// shaped to the current negotiated mode (§4.5 step 4, §4.3 observation-
// contract negotiation, §3 "payload carries the well-known robot/base
// sub-mappings").
func (l *Loop) shapeObservation(rawFields map[string]wire.Value) map[string]wire.Value {
	switch l.mode {
	case wire.HintFull:
		return map[string]wire.Value{"robot": wire.Map(rawFields)}
	case wire.HintFullPreprocessed:
		h, w := l.cfg.TargetHeight, l.cfg.TargetWidth
		if h <= 0 || w <= 0 {
			return map[string]wire.Value{"robot": wire.Map(rawFields)}
		}
		return map[string]wire.Value{"robot": wire.Map(preprocessFields(rawFields, h, w))}
	default:
		return map[string]wire.Value{"robot": wire.Map(numericOnlyFields(rawFields))}
	}
}

func numericOnlyFields(rawFields map[string]wire.Value) map[string]wire.Value {
	numeric := make(map[string]wire.Value, len(rawFields))
	for k, v := range rawFields {
		switch v.Kind() {
		case wire.KindFloat, wire.KindInt, wire.KindBool:
			numeric[k] = v
		}
	}
	return numeric
}

func isShutdownReply(reply map[string]wire.Value) bool {
	statusVal, ok := reply["status"]
	if !ok {
		return false
	}
	status, ok := wire.StatusFromValue(statusVal)
	return ok && status.Status == "shutdown"
}

func copyFloatMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
