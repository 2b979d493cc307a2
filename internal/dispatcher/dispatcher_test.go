package dispatcher

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/brainbot-robotics/brainbot/internal/orchestrator"
	"github.com/brainbot-robotics/brainbot/internal/provider"
	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// stubProvider is a minimal orchestrator.Provider that never fails.
type stubProvider struct{}

func (stubProvider) Prepare(ctx context.Context) error  { return nil }
func (stubProvider) Shutdown(ctx context.Context) error { return nil }
func (stubProvider) Compute(ctx context.Context, obs wire.Observation) (wire.Action, error) {
	return wire.NewEmptyAction(obs.TimestampNs), nil
}
func (stubProvider) WantsFullObservation() bool { return false }

type fakeInstructable struct {
	mu   sync.Mutex
	last string
}

func (f *fakeInstructable) SetInstruction(s string) {
	f.mu.Lock()
	f.last = s
	f.mu.Unlock()
}

func (f *fakeInstructable) get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

type fakeControllable struct {
	mu   sync.Mutex
	last provider.ControlCommand
}

func (f *fakeControllable) SendCommand(cmd provider.ControlCommand) {
	f.mu.Lock()
	f.last = cmd
	f.mu.Unlock()
}

func (f *fakeControllable) get() provider.ControlCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func newTestDispatcher() (*Dispatcher, *fakeInstructable, *fakeControllable) {
	orch := orchestrator.New("idle")
	orch.Register("idle", stubProvider{})
	orch.Register("ai", stubProvider{})
	orch.Register("data", stubProvider{})
	orch.Register("teleop:left_arm", stubProvider{})

	ai := &fakeInstructable{}
	data := &fakeControllable{}
	d := New(orch, Config{
		TeleopKeys: map[string]string{"arm": "teleop:left_arm"},
		AI:         ai,
		Data:       data,
	})
	return d, ai, data
}

func submitSync(d *Dispatcher, line string) string {
	replyCh := make(chan string, 1)
	d.Submit(line, func(resp string) { replyCh <- resp })
	return <-replyCh
}

func TestDispatcherTeleopSwitchesByExplicitAlias(t *testing.T) {
	d, _, _ := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resp := submitSync(d, `{"teleop": "arm"}`)
	if resp != "OK\n" {
		t.Fatalf("reply = %q, want OK", resp)
	}
	if got := d.orch.ActiveKey(); got != "teleop:left_arm" {
		t.Errorf("active key = %q, want teleop:left_arm", got)
	}
}

func TestDispatcherTeleopFallsBackToSynonymKey(t *testing.T) {
	d, _, _ := newTestDispatcher()
	d.orch.Register("teleop:right_arm", stubProvider{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resp := submitSync(d, `{"teleop": "right_arm"}`)
	if resp != "OK\n" {
		t.Fatalf("reply = %q, want OK", resp)
	}
	if got := d.orch.ActiveKey(); got != "teleop:right_arm" {
		t.Errorf("active key = %q, want teleop:right_arm", got)
	}
}

func TestDispatcherInferSetsInstructionAndSwitchesToAI(t *testing.T) {
	d, ai, _ := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resp := submitSync(d, `{"infer": "pick the cup"}`)
	if resp != "OK\n" {
		t.Fatalf("reply = %q, want OK", resp)
	}
	if ai.get() != "pick the cup" {
		t.Errorf("ai instruction = %q, want %q", ai.get(), "pick the cup")
	}
	if got := d.orch.ActiveKey(); got != "ai" {
		t.Errorf("active key = %q, want ai", got)
	}
}

func TestDispatcherDataWithCommand(t *testing.T) {
	d, _, data := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resp := submitSync(d, `{"data": {"command": "next"}}`)
	if resp != "OK\n" {
		t.Fatalf("reply = %q, want OK", resp)
	}
	if data.get() != provider.CtlNext {
		t.Errorf("data command = %q, want next", data.get())
	}
	if got := d.orch.ActiveKey(); got != "data" {
		t.Errorf("active key = %q, want data", got)
	}
}

func TestDispatcherDataBareStringCommand(t *testing.T) {
	d, _, data := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resp := submitSync(d, `{"data": "stop"}`)
	if resp != "OK\n" {
		t.Fatalf("reply = %q, want OK", resp)
	}
	if data.get() != provider.CtlStop {
		t.Errorf("data command = %q, want stop", data.get())
	}
}

func TestDispatcherDataEmptyStringHasNoCommand(t *testing.T) {
	d, _, data := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resp := submitSync(d, `{"data": ""}`)
	if resp != "OK\n" {
		t.Fatalf("reply = %q, want OK", resp)
	}
	if data.get() != "" {
		t.Errorf("data command = %q, want empty", data.get())
	}
	if got := d.orch.ActiveKey(); got != "data" {
		t.Errorf("active key = %q, want data", got)
	}
}

func TestDispatcherIdle(t *testing.T) {
	d, _, _ := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	if resp := submitSync(d, `{"teleop": "arm"}`); resp != "OK\n" {
		t.Fatalf("setup teleop switch failed: %q", resp)
	}
	resp := submitSync(d, `{"idle": "operator paused"}`)
	if resp != "OK\n" {
		t.Fatalf("reply = %q, want OK", resp)
	}
	if got := d.orch.ActiveKey(); got != "idle" {
		t.Errorf("active key = %q, want idle", got)
	}
}

func TestDispatcherShutdownArmsHandle(t *testing.T) {
	d, _, _ := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resp := submitSync(d, `{"shutdown": "operator request"}`)
	if resp != "OK\n" {
		t.Fatalf("reply = %q, want OK", resp)
	}
	if !d.orch.ShutdownRequested() {
		t.Error("expected ShutdownRequested after a shutdown event")
	}
}

func TestDispatcherUnsupportedCommand(t *testing.T) {
	d, _, _ := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resp := submitSync(d, `{"frobnicate": true}`)
	if resp != "ERROR: unsupported command\n" {
		t.Errorf("reply = %q, want unsupported-command error", resp)
	}
}

func TestDispatcherMalformedJSON(t *testing.T) {
	d, _, _ := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resp := submitSync(d, `not json`)
	if len(resp) < 6 || resp[:6] != "ERROR:" {
		t.Errorf("reply = %q, want an ERROR: reply", resp)
	}
}

func TestDispatcherUnknownTeleopKeyErrors(t *testing.T) {
	d, _, _ := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resp := submitSync(d, `{"teleop": "nonexistent"}`)
	if len(resp) < 6 || resp[:6] != "ERROR:" {
		t.Errorf("reply = %q, want an ERROR: reply for an unregistered provider", resp)
	}
}

func TestCLISourceRoundTrips(t *testing.T) {
	d, _, _ := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	pr, pw := io.Pipe()
	outr, outw := io.Pipe()
	src := NewCLISource(pr, outw)

	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, d.Submit) }()

	go func() {
		pw.Write([]byte(`{"idle": null}` + "\n"))
	}()

	buf := make([]byte, 64)
	n, err := outr.Read(buf)
	if err != nil {
		t.Fatalf("reading CLI reply: %v", err)
	}
	if got := string(buf[:n]); got != "OK\n" {
		t.Errorf("CLI reply = %q, want OK", got)
	}
	pw.Close()
}

func TestSocketSourceRoundTrips(t *testing.T) {
	d, _, _ := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	src := &SocketSource{Network: "tcp", Address: "127.0.0.1:0"}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	src.Address = addr

	go src.Run(ctx, d.Submit)
	time.Sleep(20 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(`{"idle": null}` + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(buf[:n]); got != "OK\n" {
		t.Errorf("socket reply = %q, want OK", got)
	}
}
