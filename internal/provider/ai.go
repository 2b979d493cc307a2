package provider

import (
	"context"
	"sync"
	"time"

	"github.com/brainbot-robotics/brainbot/internal/rpc"
	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// AI wraps an RPC client to a learned-policy inference server and a
// single-slot FIFO of pending per-tick actions (§4.4.2).
type AI struct {
	client         *rpc.Client
	instructionKey string
	actionHorizon  int
	obsAdapter     ObservationAdapterFunc
	actAdapter     ActionAdapterFunc
	endpoint       string
	wantsFull      bool
	wantsPreproc   bool
	startupTimeout time.Duration

	mu             sync.Mutex
	instruction    string
	hasInstruction bool
	pending        []map[string]float64
}

// AIOption configures optional AI behavior at construction.
type AIOption func(*AI)

// WithFullObservation marks this AI provider as requiring camera frames
// (§4.3 observation-contract negotiation).
func WithFullObservation(wantsFull, wantsPreprocessed bool) AIOption {
	return func(a *AI) {
		a.wantsFull = wantsFull
		a.wantsPreproc = wantsPreprocessed
	}
}

// WithStartupTimeout applies the scoped temporary-deadline override (§4.2)
// to Prepare's readiness ping, so a slow-to-boot inference server gets a
// longer budget than ordinary per-tick calls.
func WithStartupTimeout(d time.Duration) AIOption {
	return func(a *AI) { a.startupTimeout = d }
}

// NewAI builds an AI provider. obsAdapter/actAdapter default to
// PassthroughObservation/NumericOnlyAction when nil (§4.4.2 "default =
// payload as-is" / "extract numeric key/value pairs only").
func NewAI(client *rpc.Client, instructionKey string, actionHorizon int, obsAdapter ObservationAdapterFunc, actAdapter ActionAdapterFunc, opts ...AIOption) *AI {
	if obsAdapter == nil {
		obsAdapter = PassthroughObservation
	}
	if actAdapter == nil {
		actAdapter = NumericOnlyAction
	}
	a := &AI{
		client:         client,
		instructionKey: instructionKey,
		actionHorizon:  actionHorizon,
		obsAdapter:     obsAdapter,
		actAdapter:     actAdapter,
		endpoint:       "get_action",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetInstruction stores the instruction and clears any pending actions
// (§4.4.2 "set_instruction(s) stores the instruction and clears pending").
func (a *AI) SetInstruction(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.instruction = s
	a.hasInstruction = true
	a.pending = nil
}

// ClearInstruction clears both the instruction and pending actions.
func (a *AI) ClearInstruction() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.instruction = ""
	a.hasInstruction = false
	a.pending = nil
}

func (a *AI) Prepare(ctx context.Context) error {
	if a.startupTimeout <= 0 {
		return a.client.Ping()
	}
	return a.client.WithDeadline(a.startupTimeout, a.client.Ping)
}

func (a *AI) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()
	return nil
}

func (a *AI) Compute(ctx context.Context, obs wire.Observation) (wire.Action, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.hasInstruction {
		a.pending = nil
		return wire.NewEmptyAction(obs.TimestampNs), nil
	}

	if len(a.pending) == 0 {
		payload, err := a.obsAdapter(obs)
		if err != nil {
			return wire.Action{}, err
		}

		batched := make(map[string]wire.Value, len(payload)+1)
		batched[a.instructionKey] = wire.List(wire.String(a.instruction))
		for k, v := range payload {
			batched[k] = wire.List(v)
		}

		reply, err := a.client.Call(a.endpoint, batched)
		if err != nil {
			return wire.Action{}, err
		}

		chunk, err := a.actAdapter(reply, a.actionHorizon)
		if err != nil {
			return wire.Action{}, err
		}
		a.pending = chunk
	}

	if len(a.pending) == 0 {
		return wire.NewEmptyAction(obs.TimestampNs), nil
	}

	head := a.pending[0]
	a.pending = a.pending[1:]
	return wire.Action{Actions: head, TimestampNs: obs.TimestampNs, Version: 1}, nil
}

func (a *AI) WantsFullObservation() bool { return a.wantsFull }

func (a *AI) WantsPreprocessedObservation() bool { return a.wantsPreproc }
