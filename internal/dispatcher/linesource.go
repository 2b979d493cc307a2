package dispatcher

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"

	"github.com/brainbot-robotics/brainbot/internal/logger"
)

// LineSource reads newline-delimited commands from some local channel and
// submits each to a Dispatcher, writing back whatever reply the dispatcher
// produces before reading the next line (§9 "Generalise CLIModeDispatcher
// and SocketModeDispatcher over a 'line source' trait").
type LineSource interface {
	Run(ctx context.Context, submit func(line string, reply func(string))) error
}

// CLISource reads commands from a single stream (stdin by default) and
// writes replies to a single stream (stdout by default) — the "one reader
// thread" variant of §5.
type CLISource struct {
	r io.Reader
	w io.Writer
}

// NewCLISource builds a CLISource over r/w.
func NewCLISource(r io.Reader, w io.Writer) *CLISource {
	return &CLISource{r: r, w: w}
}

// Run blocks reading lines from r until EOF, an error, or ctx cancellation
// causes the underlying reader to unblock with an error of its own. A
// blocked stdin read has no portable cancellation hook short of closing the
// file descriptor, so — matching the rest of §5's "OS signals flip a flag
// read at loop boundaries" model — normal shutdown here happens via process
// exit, not mid-read cancellation.
func (c *CLISource) Run(ctx context.Context, submit func(string, func(string))) error {
	scanner := bufio.NewScanner(c.r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		replyCh := make(chan string, 1)
		submit(line, func(resp string) { replyCh <- resp })
		select {
		case resp := <-replyCh:
			io.WriteString(c.w, resp)
		case <-ctx.Done():
			return nil
		}
	}
	return scanner.Err()
}

// SocketSource accepts connections on Network/Address (e.g. "unix" + a
// socket path, or "tcp" + a loopback address) and spawns one goroutine per
// connected client — the "one per connected client" half of §5's thread
// model. Each client's lines are processed strictly in order; different
// clients' lines interleave only at Dispatcher.Run's queue.
type SocketSource struct {
	Network string
	Address string
}

// Run listens and accepts until ctx is cancelled.
func (s *SocketSource) Run(ctx context.Context, submit func(string, func(string))) error {
	ln, err := net.Listen(s.Network, s.Address)
	if err != nil {
		return err
	}
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
			return err
		}
		go s.handleConn(ctx, conn, submit)
	}
}

func (s *SocketSource) handleConn(ctx context.Context, conn net.Conn, submit func(string, func(string))) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		replyCh := make(chan string, 1)
		submit(line, func(resp string) { replyCh <- resp })
		select {
		case resp := <-replyCh:
			if _, err := conn.Write([]byte(resp)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("dispatcher: socket client read failed", "err", err)
	}
}
