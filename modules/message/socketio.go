package message

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/vk/flowgrid/internal/capability"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultEvent is the event chat messages are emitted as.
const DefaultEvent = "message"

// Config describes the chat server a SocketIOMessenger talks to.
type Config struct {
	URL                string
	Namespace          string
	Event              string
	ConnectTimeout     time.Duration
	InsecureSkipVerify bool
}

// SocketIOMessenger delivers chat messages by emitting them on a socket.io
// connection. The connection is opened on first use and kept until Close.
type SocketIOMessenger struct {
	cfg Config

	mu sync.Mutex
	io *socket.Socket
}

var _ capability.Messenger = (*SocketIOMessenger)(nil)

// NewSocketIOMessenger validates cfg and returns a messenger. No connection is
// made yet.
func NewSocketIOMessenger(cfg Config) (*SocketIOMessenger, error) {
	if cfg.URL == "" {
		return nil, errors.New("socket.io messenger: url must not be empty")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "/"
	}
	if cfg.Event == "" {
		cfg.Event = DefaultEvent
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	return &SocketIOMessenger{cfg: cfg}, nil
}

// SendMessage emits {"text": text} as the configured event.
func (m *SocketIOMessenger) SendMessage(ctx context.Context, text string) error {
	io, err := m.connection(ctx)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Debug("Emitting chat message.", "event", m.cfg.Event, "sid", io.Id())
	if err := io.Emit(m.cfg.Event, map[string]any{"text": text}); err != nil {
		return fmt.Errorf("failed to emit %q: %w", m.cfg.Event, err)
	}
	return nil
}

// Close disconnects the socket, if one is open.
func (m *SocketIOMessenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.io != nil {
		m.io.Disconnect()
		m.io = nil
	}
	return nil
}

func (m *SocketIOMessenger) connection(ctx context.Context) (*socket.Socket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.io != nil && m.io.Connected() {
		return m.io, nil
	}

	logger := ctxlog.FromContext(ctx).With("capability", "chat", "url", m.cfg.URL)
	parsedURL, err := url.Parse(m.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if m.cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(m.cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		m.io = io
		return io, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(m.cfg.ConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", m.cfg.ConnectTimeout)
	}
}
