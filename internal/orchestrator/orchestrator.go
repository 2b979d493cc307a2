package orchestrator

import (
	"context"
	"sync"

	"github.com/brainbot-robotics/brainbot/internal/history"
	"github.com/brainbot-robotics/brainbot/internal/logger"
	"github.com/brainbot-robotics/brainbot/internal/rpc"
	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// State is the active-provider state machine (§4.3): None -> Preparing ->
// Active(k) -> ShuttingDown -> None.
type State int

const (
	StateNone State = iota
	StatePreparing
	StateActive
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StatePreparing:
		return "preparing"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// ExchangeHook runs after every get_action exchange (§4.3). It must not
// panic; the orchestrator recovers and logs instead of propagating.
type ExchangeHook func(obs, act map[string]wire.Value, mode string)

// Orchestrator holds the provider registry and the single active-provider
// state machine, serialized by mu (§4.3, §5: "a single reentrant lock").
// Nothing called while mu is held ever re-enters an Orchestrator method, so
// a plain sync.Mutex provides the serialization the spec describes without
// needing true reentrancy.
type Orchestrator struct {
	mu sync.Mutex

	providers  map[string]Provider
	defaultKey string

	state     State
	activeKey string
	active    Provider

	lastConfig map[string]wire.Value

	shutdownHandle *ShutdownHandle

	hook ExchangeHook
	hist *history.Store
}

// SetHistory attaches an optional debugging ledger (§9). Passing nil
// disables recording; AppendBestEffort on a nil *history.Store is itself a
// no-op, so callers never need to branch on whether history is configured.
func (o *Orchestrator) SetHistory(h *history.Store) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hist = h
}

// New returns an empty Orchestrator. defaultKey names the provider prepared
// lazily on the first get_action if none is active (§4.3 "else prepare
// default").
func New(defaultKey string) *Orchestrator {
	return &Orchestrator{
		providers:  make(map[string]Provider),
		defaultKey: defaultKey,
		state:      StateNone,
	}
}

// Register adds a provider under key. Not safe to call concurrently with
// SetActive/GetAction on the same key once the orchestrator is serving
// traffic; registration is expected to happen during startup.
func (o *Orchestrator) Register(key string, p Provider) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.providers[key] = p
}

// SetExchangeHook installs the optional post-exchange callback (§4.3).
func (o *Orchestrator) SetExchangeHook(h ExchangeHook) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hook = h
}

// Available enumerates registered provider keys.
func (o *Orchestrator) Available() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make([]string, 0, len(o.providers))
	for k := range o.providers {
		keys = append(keys, k)
	}
	return keys
}

// ActiveKey returns the currently active provider key, or "" if none.
func (o *Orchestrator) ActiveKey() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.activeKey
}

// State returns the current state-machine state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SetActive implements the public set_active contract (§4.3): if key is
// already active and prepared, no-op; else shut down the current provider
// (if any), prepare the new one, and mark it active. A failed prepare
// leaves the orchestrator with no active provider.
func (o *Orchestrator) SetActive(ctx context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.setActiveLocked(ctx, key)
}

func (o *Orchestrator) setActiveLocked(ctx context.Context, key string) error {
	if key == o.activeKey && o.state == StateActive {
		return nil
	}
	provider, ok := o.providers[key]
	if !ok {
		return &ErrUnknownProvider{Key: key}
	}

	if o.active != nil {
		o.state = StateShuttingDown
		if err := o.active.Shutdown(ctx); err != nil {
			logger.Warn("orchestrator: provider shutdown failed", "provider", o.activeKey, "err", err)
		}
		o.active = nil
		o.activeKey = ""
		o.state = StateNone
	}

	o.state = StatePreparing
	if err := provider.Prepare(ctx); err != nil {
		o.state = StateNone
		return err
	}
	o.active = provider
	o.activeKey = key
	o.state = StateActive
	o.hist.AppendBestEffort(history.KindProviderSwitch, key, "")
	return nil
}

// GetAction implements the get_action RPC endpoint (§4.3, §6). The returned
// map is the reply's field set, ready to hand back to the RPC server.
func (o *Orchestrator) GetAction(ctx context.Context, obs wire.Observation) (map[string]wire.Value, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.shutdownHandle != nil {
		o.shutdownHandle.ack()
		o.hist.AppendBestEffort(history.KindShutdownAck, o.activeKey, "")
		o.runHookLocked(obs.Payload, nil, o.activeKey)
		status := wire.Status{Status: "shutdown", TimestampNs: obs.TimestampNs}
		return map[string]wire.Value{"status": status.ToValue()}, nil
	}

	if o.active == nil {
		if o.defaultKey == "" {
			return nil, &ErrUnknownProvider{Key: ""}
		}
		if err := o.setActiveLocked(ctx, o.defaultKey); err != nil {
			return nil, err
		}
	}

	active := o.active
	hint := observationHint(active)

	if active.WantsFullObservation() && !obs.HasRankAtLeast2Array() {
		act := wire.NewEmptyAction(obs.TimestampNs)
		o.runHookLocked(obs.Payload, act.Actions, o.activeKey)
		return map[string]wire.Value{
			"action":           act.ToValue(),
			"observation_hint": wire.String(string(hint)),
		}, nil
	}

	action, err := active.Compute(ctx, obs)
	if err != nil {
		return nil, err
	}
	o.runHookLocked(obs.Payload, action.Actions, o.activeKey)

	return map[string]wire.Value{
		"action":           action.ToValue(),
		"observation_hint": wire.String(string(hint)),
	}, nil
}

func (o *Orchestrator) runHookLocked(obs map[string]wire.Value, act map[string]float64, mode string) {
	if o.hook == nil {
		return
	}
	actVals := make(map[string]wire.Value, len(act))
	for k, v := range act {
		actVals[k] = wire.Float(v)
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("orchestrator: exchange hook panicked", "recover", r)
		}
	}()
	o.hook(obs, actVals, mode)
}

// SyncConfig implements the sync_config RPC endpoint (§4.3): store the
// last-seen config for introspection, reply {status:"ok"}.
func (o *Orchestrator) SyncConfig(cfg map[string]wire.Value) (map[string]wire.Value, error) {
	o.mu.Lock()
	o.lastConfig = cfg
	o.mu.Unlock()
	return map[string]wire.Value{"status": wire.String("ok")}, nil
}

// LastConfig returns the most recently synced config, or nil.
func (o *Orchestrator) LastConfig() map[string]wire.Value {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastConfig
}

// InitiateShutdown arms cooperative shutdown (§4.3, §5) and returns the
// one-shot handle that is acknowledged once a subsequent get_action has
// delivered the shutdown status envelope. Calling it more than once returns
// the same handle.
func (o *Orchestrator) InitiateShutdown() *ShutdownHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shutdownHandle == nil {
		o.shutdownHandle = newShutdownHandle()
		o.hist.AppendBestEffort(history.KindShutdownRequest, o.activeKey, "")
	}
	return o.shutdownHandle
}

// RecordShutdownResult logs the final outcome of waiting on the shutdown
// handle (called by the process owning the handle after ShutdownHandle.Wait
// returns). A no-op for any status other than timeout — the acknowledged
// case is already recorded from GetAction.
func (o *Orchestrator) RecordShutdownResult(status ShutdownStatus) {
	if status != ShutdownTimedOut {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hist.AppendBestEffort(history.KindShutdownTimeout, o.activeKey, "")
}

// ShutdownRequested reports whether InitiateShutdown has been called.
func (o *Orchestrator) ShutdownRequested() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shutdownHandle != nil
}

// ShutdownActive shuts down the active provider exactly once (§4.3 "When
// the orchestrator itself is asked to exit, the active provider is shut
// down exactly once"). Safe to call even if no provider is active.
func (o *Orchestrator) ShutdownActive(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return
	}
	o.state = StateShuttingDown
	if err := o.active.Shutdown(ctx); err != nil {
		logger.Warn("orchestrator: final shutdown failed", "provider", o.activeKey, "err", err)
	}
	o.active = nil
	o.activeKey = ""
	o.state = StateNone
}

// RegisterEndpoints wires get_action and sync_config onto an rpc.Server
// (ping and kill are already built in, §4.2).
func (o *Orchestrator) RegisterEndpoints(srv *rpc.Server) {
	srv.Register("get_action", func(ctx context.Context, data map[string]wire.Value) (map[string]wire.Value, error) {
		obsVal, ok := data["observation"]
		if !ok {
			return nil, &ErrMissingField{Field: "observation"}
		}
		obs, ok := wire.ObservationFromValue(obsVal)
		if !ok {
			return nil, &ErrMissingField{Field: "observation"}
		}
		return o.GetAction(ctx, obs)
	})
	srv.Register("sync_config", func(ctx context.Context, data map[string]wire.Value) (map[string]wire.Value, error) {
		return o.SyncConfig(data)
	})
}
