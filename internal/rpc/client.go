package rpc

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/brainbot-robotics/brainbot/internal/wire"
)

// Client is a persistent-connection RPC client with send/receive deadlines,
// reinit-on-error, and a bounded retry budget (§4.2).
type Client struct {
	Network string // "tcp" or "unix"
	Address string
	Token   string

	SendTimeout time.Duration
	RecvTimeout time.Duration
	MaxRetries  int // default 1 if zero

	mu    sync.Mutex
	conn  net.Conn
	codec *wire.Codec
}

// NewClient builds a Client. Defaults: SendTimeout/RecvTimeout 2s,
// MaxRetries 1.
func NewClient(network, address, token string) (*Client, error) {
	codec, err := wire.NewCodec(0)
	if err != nil {
		return nil, err
	}
	return &Client{
		Network:     network,
		Address:     address,
		Token:       token,
		SendTimeout: 2 * time.Second,
		RecvTimeout: 2 * time.Second,
		MaxRetries:  1,
		codec:       codec,
	}, nil
}

// Close releases the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// reinit tears down and reopens the connection (§4.2: "the client then
// reinitialises the socket" on timeout/transport error).
func (c *Client) reinit() error {
	c.closeLocked()
	conn, err := net.DialTimeout(c.Network, c.Address, c.SendTimeout)
	if err != nil {
		return newError(KindTransport, "dial", err)
	}
	c.conn = conn
	return nil
}

// WithDeadline temporarily overrides SendTimeout/RecvTimeout for the
// duration of fn, restoring the previous values on exit regardless of
// outcome (§4.2 "temporary deadline override", used by provider prepare()).
func (c *Client) WithDeadline(d time.Duration, fn func() error) error {
	c.mu.Lock()
	prevSend, prevRecv := c.SendTimeout, c.RecvTimeout
	c.SendTimeout, c.RecvTimeout = d, d
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.SendTimeout, c.RecvTimeout = prevSend, prevRecv
		c.mu.Unlock()
	}()
	return fn()
}

// Call invokes endpoint with data, returning the reply fields. It retries up
// to MaxRetries times on TIMEOUT/TRANSPORT, reinitialising the socket each
// time (§4.2 retry policy).
func (c *Client) Call(endpoint string, data map[string]wire.Value) (map[string]wire.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if c.conn == nil {
			if err := c.reinit(); err != nil {
				lastErr = err
				continue
			}
		}
		fields, err := c.callOnce(endpoint, data)
		if err == nil {
			return fields, nil
		}
		lastErr = err
		c.closeLocked() // abandon the half-open request, per §4.2
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	return IsKind(err, KindTimeout) || IsKind(err, KindTransport)
}

func (c *Client) callOnce(endpoint string, data map[string]wire.Value) (map[string]wire.Value, error) {
	req := Request{Endpoint: endpoint, Data: data, APIToken: c.Token}
	val, err := c.codec.Encode(req.toValue())
	if err != nil {
		return nil, newError(KindDecode, "encode request", err)
	}

	if c.SendTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.SendTimeout))
	}
	if err := writeFrame(c.conn, val); err != nil {
		if isTimeout(err) {
			return nil, newError(KindTimeout, "send", err)
		}
		return nil, newError(KindTransport, "send", err)
	}

	if c.RecvTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.RecvTimeout))
	}
	raw, err := readFrame(c.conn)
	if err != nil {
		if isTimeout(err) {
			return nil, newError(KindTimeout, "recv", err)
		}
		return nil, newError(KindTransport, "recv", err)
	}

	replyVal, err := c.codec.Decode(raw)
	if err != nil {
		if err == wire.ErrOversized {
			return nil, newError(KindOversized, "reply", err)
		}
		return nil, newError(KindDecode, "decode reply", err)
	}
	reply, err := replyFromValue(replyVal)
	if err != nil {
		return nil, newError(KindDecode, "parse reply", err)
	}
	if reply.Error != "" {
		switch {
		case reply.Error == "Unauthorized":
			return nil, newError(KindUnauthorized, reply.Error, nil)
		case strings.HasPrefix(reply.Error, "unknown endpoint: "):
			return nil, newError(KindUnknownEndpoint, reply.Error, nil)
		default:
			// A handler-level {error} body (§7): the request and reply both
			// made it across the wire intact, so this is not a transport
			// failure and the socket stays open.
			return nil, newError(KindAppError, reply.Error, nil)
		}
	}
	return reply.Fields, nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// Ping calls the built-in ping endpoint, surfacing UNREACHABLE instead of
// TRANSPORT/TIMEOUT for callers that use ping as a liveness probe (§4.4.4
// remote teleop prepare: "ping; failure => UNREACHABLE").
func (c *Client) Ping() error {
	_, err := c.Call("ping", nil)
	if err != nil {
		return newError(KindUnreachable, "ping failed", err)
	}
	return nil
}
