package provider

import (
	"context"
	"fmt"

	"github.com/brainbot-robotics/brainbot/internal/capability"
	"github.com/brainbot-robotics/brainbot/internal/rpc"
	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// RemoteTeleop is a nested RPC client to a peer running another
// orchestrator-shaped endpoint (§4.4.4). An optional ProcessSupervisor may
// bring up the peer process before use.
type RemoteTeleop struct {
	client      *rpc.Client
	supervisor  capability.ProcessSupervisor
	serviceName string
	obsAdapter  ObservationAdapterFunc
}

// NewRemoteTeleop builds a RemoteTeleop provider. supervisor may be nil if
// the peer process is managed externally. obsAdapter defaults to
// NumericOnlyObservation (§4.4.4 "numeric-only snapshot").
func NewRemoteTeleop(client *rpc.Client, supervisor capability.ProcessSupervisor, serviceName string, obsAdapter ObservationAdapterFunc) *RemoteTeleop {
	if obsAdapter == nil {
		obsAdapter = NumericOnlyObservation
	}
	return &RemoteTeleop{client: client, supervisor: supervisor, serviceName: serviceName, obsAdapter: obsAdapter}
}

// Prepare opens/re-opens the socket and pings, starting the peer process
// first if a supervisor is configured (§4.4.4 "prepare opens/re-opens the
// socket and pings; failure => UNREACHABLE").
func (r *RemoteTeleop) Prepare(ctx context.Context) error {
	if r.supervisor != nil {
		if err := r.supervisor.Start(ctx, r.serviceName); err != nil {
			return err
		}
	}
	return r.client.Ping()
}

// Shutdown stops the peer process if a supervisor is configured; the RPC
// connection itself is left open, pooled for reuse (§4.4.4).
func (r *RemoteTeleop) Shutdown(ctx context.Context) error {
	if r.supervisor != nil {
		return r.supervisor.Stop(ctx, r.serviceName)
	}
	return nil
}

func (r *RemoteTeleop) Compute(ctx context.Context, obs wire.Observation) (wire.Action, error) {
	payload, err := r.obsAdapter(obs)
	if err != nil {
		return wire.Action{}, err
	}

	envelope := wire.Observation{Payload: payload, TimestampNs: obs.TimestampNs, Version: 1}
	reply, err := r.client.Call("get_action", map[string]wire.Value{"observation": envelope.ToValue()})
	if err != nil {
		return wire.Action{}, err
	}

	if statusVal, ok := reply["status"]; ok {
		status, _ := wire.StatusFromValue(statusVal)
		return wire.Action{}, fmt.Errorf("remote teleop: peer reported status %q", status.Status)
	}

	actionVal, ok := reply["action"]
	if !ok {
		return wire.Action{}, fmt.Errorf("remote teleop: reply missing action field")
	}
	action, ok := wire.ActionFromValue(actionVal)
	if !ok {
		return wire.Action{}, fmt.Errorf("remote teleop: reply action field malformed")
	}
	return action, nil
}

func (r *RemoteTeleop) WantsFullObservation() bool { return false }
