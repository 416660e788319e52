// Package feed is the dashboard's push channel to the backend: a websocket
// that carries {event, data} envelopes both ways and reconnects on loss.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

// ErrNotConnected is returned when a frame is sent while the socket is down.
var ErrNotConnected = errors.New("feed: not connected")

const (
	// Path is the websocket endpoint on the backend.
	Path = "/ws"

	DefaultHandshakeTimeout = 5 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultReconnectDelay   = 2 * time.Second
	DefaultBufferSize       = 32
)

// Config configures a Client.
type Config struct {
	// URL is the ws:// or wss:// endpoint. See URLFromBase.
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReconnectDelay   time.Duration
	BufferSize       int
}

// Client keeps a websocket open to the backend. Inbound frames, plus
// synthetic connect and disconnect envelopes, are delivered on Envelopes.
type Client struct {
	cfg    Config
	logger *zap.Logger
	dialer websocket.Dialer
	out    chan telemetry.Envelope

	mu   sync.Mutex
	conn *websocket.Conn
}

// New creates a client. Nothing is dialed until Run.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed: url is required")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		logger: logger.Named("feed"),
		dialer: websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		out:    make(chan telemetry.Envelope, cfg.BufferSize),
	}, nil
}

// URLFromBase turns the backend's http base URL into the feed URL.
func URLFromBase(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + Path
	return u.String(), nil
}

// Envelopes returns the inbound channel. It is closed when Run returns.
func (c *Client) Envelopes() <-chan telemetry.Envelope {
	return c.out
}

// Connected reports whether a socket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run dials the backend and reads until ctx is done, redialing after
// ReconnectDelay whenever the connection drops.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.out)

	for {
		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Debug("dial failed", zap.String("url", c.cfg.URL), zap.Error(err))
		} else {
			c.serve(ctx, conn)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Info("connected", zap.String("url", c.cfg.URL))
	c.emit(ctx, telemetry.Envelope{Event: telemetry.EventConnect})

	// Unblocks ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	err := c.receiveLoop(ctx, conn)

	c.mu.Lock()
	c.conn = nil
	c.mu.Unlock()
	_ = conn.Close()

	if ctx.Err() != nil {
		return
	}
	c.logger.Warn("disconnected", zap.Error(err))
	c.emit(ctx, telemetry.Envelope{Event: telemetry.EventDisconnect})
}

func (c *Client) receiveLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("read: %w", err)
			}
			return err
		}

		var env telemetry.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("dropping undecodable frame", zap.Error(err))
			continue
		}
		if !c.emit(ctx, env) {
			return ctx.Err()
		}
	}
}

func (c *Client) emit(ctx context.Context, env telemetry.Envelope) bool {
	select {
	case c.out <- env:
		return true
	case <-ctx.Done():
		return false
	}
}

// Send writes one envelope to the backend.
func (c *Client) Send(ctx context.Context, event string, payload any) error {
	env, err := telemetry.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// RequestBenchmark sends request_benchmark. The outcome arrives on
// Envelopes as benchmark_result or benchmark_error.
func (c *Client) RequestBenchmark(ctx context.Context, req telemetry.BenchmarkRequest) error {
	return c.Send(ctx, telemetry.EventRequestBenchmark, req)
}
