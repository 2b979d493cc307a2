package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/brainbot-robotics/brainbot/internal/wire"
)

func startTestServer(t *testing.T, configure func(*Server)) (addr string, stop func()) {
	t.Helper()
	srv, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if configure != nil {
		configure(srv)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx, ln)
	return ln.Addr().String(), func() {
		cancel()
		ln.Close()
	}
}

func TestPingPong(t *testing.T) {
	addr, stop := startTestServer(t, nil)
	defer stop()

	c, err := NewClient("tcp", addr, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	fields, err := c.Call("ping", nil)
	if err != nil {
		t.Fatalf("Call ping: %v", err)
	}
	if s, _ := fields["status"].AsString(); s != "ok" {
		t.Errorf("status = %q, want ok", s)
	}
}

func TestUnauthorized(t *testing.T) {
	addr, stop := startTestServer(t, func(s *Server) { s.Token = "secret" })
	defer stop()

	c, err := NewClient("tcp", addr, "wrong")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	_, err = c.Call("ping", nil)
	if !IsKind(err, KindUnauthorized) {
		t.Fatalf("err = %v, want UNAUTHORIZED", err)
	}
}

func TestUnknownEndpoint(t *testing.T) {
	addr, stop := startTestServer(t, nil)
	defer stop()

	c, err := NewClient("tcp", addr, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	_, err = c.Call("nonexistent", nil)
	if err == nil {
		t.Fatal("expected error for unknown endpoint")
	}
	if !IsKind(err, KindUnknownEndpoint) {
		t.Errorf("expected KindUnknownEndpoint, got %v", err)
	}
}

func TestAppErrorReplyIsNotTransport(t *testing.T) {
	addr, stop := startTestServer(t, func(s *Server) {
		s.Register("get_action", func(ctx context.Context, data map[string]wire.Value) (map[string]wire.Value, error) {
			return nil, errors.New("no active provider")
		})
	})
	defer stop()

	c, err := NewClient("tcp", addr, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	_, err = c.Call("get_action", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !IsKind(err, KindAppError) {
		t.Errorf("expected KindAppError, got %v", err)
	}
	if IsKind(err, KindTransport) {
		t.Error("an application-level {error} reply must not be classified as KindTransport")
	}
}

func TestCustomEndpointRoundTrip(t *testing.T) {
	addr, stop := startTestServer(t, func(s *Server) {
		s.Register("echo", func(ctx context.Context, data map[string]wire.Value) (map[string]wire.Value, error) {
			return data, nil
		})
	})
	defer stop()

	c, err := NewClient("tcp", addr, "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	fields, err := c.Call("echo", map[string]wire.Value{"x": wire.Int(7)})
	if err != nil {
		t.Fatalf("Call echo: %v", err)
	}
	if i, _ := fields["x"].AsInt(); i != 7 {
		t.Errorf("x = %d, want 7", i)
	}
}

func TestClientTimeoutAndReinit(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	// Accept connections but never reply, to force a client read timeout.
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				buf := make([]byte, 4)
				conn.Read(buf) // consume the length prefix, then go silent
			}()
		}
	}()

	c, err := NewClient("tcp", ln.Addr().String(), "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()
	c.SendTimeout = 50 * time.Millisecond
	c.RecvTimeout = 50 * time.Millisecond
	c.MaxRetries = 1

	_, err = c.Call("ping", nil)
	if !IsKind(err, KindTimeout) {
		t.Fatalf("err = %v, want TIMEOUT", err)
	}
}

func TestKillMarksServerNonRunning(t *testing.T) {
	srv, err := NewServer()
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if !srv.Running() {
		t.Fatal("server should start running")
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, ln)

	c, err := NewClient("tcp", ln.Addr().String(), "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer c.Close()

	if _, err := c.Call("kill", nil); err != nil {
		t.Fatalf("Call kill: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if srv.Running() {
		t.Error("server should be marked non-running after kill")
	}
}
