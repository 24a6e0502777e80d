package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/gmvfs/pkg/gmvfs/o11y"
)

// DefaultStartupTimeout bounds the wait for the startup handshake.
const DefaultStartupTimeout = 30 * time.Second

// Builder provides a fluent interface for starting sessions.
type Builder struct {
	logger         *zap.Logger
	monitor        Monitor
	startupTimeout time.Duration
	queueSize      int
	observability  o11y.ObservabilityConfig
}

// NewSession creates a session builder with default settings.
func NewSession() *Builder {
	return &Builder{
		logger:         zap.NewNop(),
		startupTimeout: DefaultStartupTimeout,
		queueSize:      64,
	}
}

// WithLogger sets the logger for the session. Server stderr is forwarded to
// it as well.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithMonitor sets an optional monitor for lifecycle events.
func (b *Builder) WithMonitor(monitor Monitor) *Builder {
	b.monitor = monitor
	return b
}

// WithStartupTimeout bounds how long Start waits for the handshake.
func (b *Builder) WithStartupTimeout(timeout time.Duration) *Builder {
	if timeout > 0 {
		b.startupTimeout = timeout
	}
	return b
}

// WithQueueSize sets how many round trips may wait behind the one in
// flight before callers block. Default is 64.
func (b *Builder) WithQueueSize(size int) *Builder {
	if size > 0 {
		b.queueSize = size
	}
	return b
}

// WithObservability enables session metrics.
func (b *Builder) WithObservability(cfg o11y.ObservabilityConfig) *Builder {
	b.observability = cfg
	return b
}

// IsValid checks the builder configuration, filling in defaults.
func (b *Builder) IsValid() error {
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.startupTimeout <= 0 {
		b.startupTimeout = DefaultStartupTimeout
	}
	if b.queueSize <= 0 {
		b.queueSize = 64
	}
	return nil
}

// Start connects with connector and performs the startup handshake. On
// failure the connection is torn down and a *StartupError is returned.
func (b *Builder) Start(ctx context.Context, connector Connector) (*Session, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}
	if connector == nil {
		return nil, fmt.Errorf("connector is required")
	}

	s := newSession(b)
	if err := s.start(ctx, connector); err != nil {
		return nil, err
	}
	return s, nil
}
