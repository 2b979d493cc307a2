package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brainbot-robotics/brainbot/internal/wire"
)

type stubProvider struct {
	prepareErr    error
	shutdownErr   error
	wantsFull     bool
	wantsPreproc  bool
	computeAction wire.Action
	computeErr    error

	prepared  int
	shutdowns int
	computed  int
}

func (s *stubProvider) Prepare(ctx context.Context) error {
	s.prepared++
	return s.prepareErr
}

func (s *stubProvider) Shutdown(ctx context.Context) error {
	s.shutdowns++
	return s.shutdownErr
}

func (s *stubProvider) Compute(ctx context.Context, obs wire.Observation) (wire.Action, error) {
	s.computed++
	if s.computeErr != nil {
		return wire.Action{}, s.computeErr
	}
	return s.computeAction, nil
}

func (s *stubProvider) WantsFullObservation() bool { return s.wantsFull }

type preprocStubProvider struct {
	stubProvider
}

func (s *preprocStubProvider) WantsPreprocessedObservation() bool { return s.wantsPreproc }

func numericObservation() wire.Observation {
	return wire.Observation{
		Payload: map[string]wire.Value{
			"robot": wire.Map(map[string]wire.Value{"joint_0": wire.Float(0.5)}),
		},
		TimestampNs: 1,
		Version:     1,
	}
}

func fullObservation() wire.Observation {
	arr := wire.NdArray{DType: wire.Uint8, Shape: []int{2, 2, 3}, Data: make([]byte, 12)}
	return wire.Observation{
		Payload: map[string]wire.Value{
			"robot": wire.Map(map[string]wire.Value{"cam": wire.NdArrayValue(arr)}),
		},
		TimestampNs: 1,
		Version:     1,
	}
}

func TestAvailableAndSetActive(t *testing.T) {
	o := New("idle")
	idle := &stubProvider{}
	ai := &stubProvider{}
	o.Register("idle", idle)
	o.Register("ai", ai)

	available := o.Available()
	if len(available) != 2 {
		t.Fatalf("Available() = %v, want 2 entries", available)
	}

	if err := o.SetActive(context.Background(), "ai"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if o.ActiveKey() != "ai" {
		t.Errorf("ActiveKey() = %q, want ai", o.ActiveKey())
	}
	if ai.prepared != 1 {
		t.Errorf("ai.prepared = %d, want 1", ai.prepared)
	}

	// Re-setting the same active key while already active is a no-op.
	if err := o.SetActive(context.Background(), "ai"); err != nil {
		t.Fatalf("SetActive (no-op): %v", err)
	}
	if ai.prepared != 1 {
		t.Errorf("ai.prepared = %d after no-op re-set, want still 1", ai.prepared)
	}

	if err := o.SetActive(context.Background(), "idle"); err != nil {
		t.Fatalf("SetActive(idle): %v", err)
	}
	if ai.shutdowns != 1 {
		t.Errorf("ai.shutdowns = %d, want 1", ai.shutdowns)
	}
	if idle.prepared != 1 {
		t.Errorf("idle.prepared = %d, want 1", idle.prepared)
	}
}

func TestSetActiveUnknownProvider(t *testing.T) {
	o := New("idle")
	o.Register("idle", &stubProvider{})

	err := o.SetActive(context.Background(), "missing")
	var unknown *ErrUnknownProvider
	if !errors.As(err, &unknown) {
		t.Fatalf("SetActive(missing) err = %v, want ErrUnknownProvider", err)
	}
	if o.ActiveKey() != "" {
		t.Errorf("ActiveKey() = %q, want empty after unknown provider", o.ActiveKey())
	}
}

func TestSetActivePrepareFailureLeavesNoActive(t *testing.T) {
	o := New("idle")
	o.Register("broken", &stubProvider{prepareErr: errors.New("boom")})

	if err := o.SetActive(context.Background(), "broken"); err == nil {
		t.Fatal("SetActive: want error, got nil")
	}
	if o.State() != StateNone {
		t.Errorf("State() = %v, want StateNone", o.State())
	}
	if o.ActiveKey() != "" {
		t.Errorf("ActiveKey() = %q, want empty", o.ActiveKey())
	}
}

func TestGetActionLazyPreparesDefault(t *testing.T) {
	o := New("idle")
	idle := &stubProvider{computeAction: wire.NewEmptyAction(2)}
	o.Register("idle", idle)

	reply, err := o.GetAction(context.Background(), numericObservation())
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	if idle.prepared != 1 {
		t.Errorf("idle.prepared = %d, want 1 (lazy default prepare)", idle.prepared)
	}
	if _, ok := reply["action"]; !ok {
		t.Errorf("reply missing action field: %v", reply)
	}
	hint, ok := reply["observation_hint"].AsString()
	if !ok || hint != string(wire.HintNumeric) {
		t.Errorf("observation_hint = %v, want numeric", reply["observation_hint"])
	}
}

func TestGetActionRequestsFullObservation(t *testing.T) {
	o := New("ai")
	ai := &stubProvider{wantsFull: true}
	o.Register("ai", ai)

	reply, err := o.GetAction(context.Background(), numericObservation())
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	if ai.computed != 0 {
		t.Errorf("ai.computed = %d, want 0 (should short-circuit)", ai.computed)
	}
	act, ok := wire.ActionFromValue(reply["action"])
	if !ok || len(act.Actions) != 0 {
		t.Errorf("reply action = %+v, want empty", act)
	}
	hint, _ := reply["observation_hint"].AsString()
	if hint != string(wire.HintFull) {
		t.Errorf("observation_hint = %q, want full", hint)
	}

	// With a full observation present, compute runs normally.
	reply, err = o.GetAction(context.Background(), fullObservation())
	if err != nil {
		t.Fatalf("GetAction (full obs): %v", err)
	}
	if ai.computed != 1 {
		t.Errorf("ai.computed = %d, want 1", ai.computed)
	}
	_ = reply
}

func TestGetActionFullPreprocessedHint(t *testing.T) {
	o := New("ai")
	ai := &preprocStubProvider{stubProvider{wantsFull: true, wantsPreproc: true}}
	o.Register("ai", ai)

	reply, err := o.GetAction(context.Background(), fullObservation())
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	hint, _ := reply["observation_hint"].AsString()
	if hint != string(wire.HintFullPreprocessed) {
		t.Errorf("observation_hint = %q, want full_preprocessed", hint)
	}
}

func TestInitiateShutdownDeliversStatusAndAcks(t *testing.T) {
	o := New("idle")
	o.Register("idle", &stubProvider{})

	handle := o.InitiateShutdown()
	if handle.Status() != ShutdownPending {
		t.Fatalf("Status() = %v, want Pending before delivery", handle.Status())
	}

	reply, err := o.GetAction(context.Background(), numericObservation())
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	st, ok := wire.StatusFromValue(reply["status"])
	if !ok || st.Status != "shutdown" {
		t.Fatalf("reply = %v, want status:shutdown", reply)
	}

	got := handle.Wait(time.Second)
	if got != ShutdownAcknowledged {
		t.Errorf("Wait() = %v, want Acknowledged", got)
	}
}

func TestShutdownHandleTimesOut(t *testing.T) {
	h := newShutdownHandle()
	got := h.Wait(10 * time.Millisecond)
	if got != ShutdownTimedOut {
		t.Errorf("Wait() = %v, want TimedOut", got)
	}
}

func TestExchangeHookRunsAndSwallowsPanic(t *testing.T) {
	o := New("idle")
	o.Register("idle", &stubProvider{computeAction: wire.NewEmptyAction(5)})

	called := false
	o.SetExchangeHook(func(obs, act map[string]wire.Value, mode string) {
		called = true
		panic("boom")
	})

	if _, err := o.GetAction(context.Background(), numericObservation()); err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	if !called {
		t.Error("exchange hook was not invoked")
	}
}

func TestShutdownActiveRunsOnce(t *testing.T) {
	o := New("idle")
	idle := &stubProvider{}
	o.Register("idle", idle)
	if err := o.SetActive(context.Background(), "idle"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	o.ShutdownActive(context.Background())
	o.ShutdownActive(context.Background())
	if idle.shutdowns != 1 {
		t.Errorf("idle.shutdowns = %d, want 1", idle.shutdowns)
	}
}
