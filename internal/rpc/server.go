package rpc

import (
	"context"
	"crypto/subtle"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/brainbot-robotics/brainbot/internal/logger"
	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// Handler computes a reply for a request's data payload. Parameterless
// endpoints ignore data. Returning an error yields {error: err.Error()} to
// the caller (§7: "wire-layer errors are embedded into the reply").
type Handler func(ctx context.Context, data map[string]wire.Value) (map[string]wire.Value, error)

// Server is a single-listener, single-request-at-a-time-per-connection RPC
// server (§4.2). Handlers run on the connection's reader goroutine unless
// they explicitly hand off work elsewhere.
type Server struct {
	Token         string        // if non-empty, every request (besides none) must carry it
	SoftDeadline  time.Duration // handlers exceeding this are logged, never pre-empted (§4.2)
	MaxFrameBytes int

	mu        sync.RWMutex
	endpoints map[string]Handler
	running   bool
	codec     *wire.Codec
}

// NewServer builds a Server with the built-in ping/kill endpoints
// registered (§4.2).
func NewServer() (*Server, error) {
	codec, err := wire.NewCodec(0)
	if err != nil {
		return nil, err
	}
	s := &Server{
		endpoints: make(map[string]Handler),
		running:   true,
		codec:     codec,
	}
	s.Register("ping", func(ctx context.Context, data map[string]wire.Value) (map[string]wire.Value, error) {
		return map[string]wire.Value{
			"status":  wire.String("ok"),
			"message": wire.String("pong"),
		}, nil
	})
	s.Register("kill", func(ctx context.Context, data map[string]wire.Value) (map[string]wire.Value, error) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return nil, nil
	})
	return s, nil
}

// Register adds or replaces a named endpoint.
func (s *Server) Register(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[name] = h
}

// Running reports whether the server has not yet processed a kill request.
func (s *Server) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Serve accepts connections on ln until ctx is cancelled, handling each on
// its own goroutine (one reader per socket, per §5).
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return newError(KindTransport, "accept", err)
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	for {
		if ctx.Err() != nil {
			return
		}
		raw, err := readFrame(conn)
		if err != nil {
			return // client disconnected or framing error; connection is done
		}
		reqVal, err := s.codec.Decode(raw)
		if err != nil {
			s.replyError(conn, "DECODE: "+err.Error())
			continue
		}
		req, err := requestFromValue(reqVal)
		if err != nil {
			s.replyError(conn, "DECODE: "+err.Error())
			continue
		}
		s.handleRequest(ctx, conn, req)
		if !s.Running() {
			return
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, conn net.Conn, req Request) {
	s.mu.RLock()
	token := s.Token
	deadline := s.SoftDeadline
	handler, ok := s.endpoints[req.Endpoint]
	s.mu.RUnlock()

	if token != "" && !tokensEqual(req.APIToken, token) {
		s.reply(conn, Reply{Error: "Unauthorized"})
		return
	}
	if !ok {
		s.reply(conn, Reply{Error: "unknown endpoint: " + req.Endpoint})
		return
	}

	start := time.Now()
	fields, err := handler(ctx, req.Data)
	if deadline > 0 {
		if elapsed := time.Since(start); elapsed > deadline {
			logger.Warn("rpc handler exceeded soft deadline", "endpoint", req.Endpoint, "elapsed", elapsed, "deadline", deadline)
		}
	}
	if err != nil {
		s.reply(conn, Reply{Error: err.Error()})
		return
	}
	if fields == nil {
		// kill and other void endpoints: no reply body expected by spec,
		// but every request still gets framed so readers don't stall.
		s.reply(conn, Reply{Fields: map[string]wire.Value{}})
		return
	}
	s.reply(conn, Reply{Fields: fields})
}

// tokensEqual compares two bearer tokens without leaking their length or
// contents through timing: both are hashed to a fixed-size digest first
// (so subtle.ConstantTimeCompare always sees equal-length inputs), then
// compared in constant time (§7 "Unauthorized" must not be distinguishable
// by response latency from a correct token).
func tokensEqual(got, want string) bool {
	a := blake2b.Sum256([]byte(got))
	b := blake2b.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

func (s *Server) reply(conn net.Conn, r Reply) {
	val, err := s.codec.Encode(r.toValue())
	if err != nil {
		logger.Error("rpc: failed to encode reply", "err", err)
		return
	}
	if err := writeFrame(conn, val); err != nil {
		logger.Warn("rpc: failed to write reply", "err", err)
	}
}

func (s *Server) replyError(conn net.Conn, msg string) {
	s.reply(conn, Reply{Error: msg})
}
