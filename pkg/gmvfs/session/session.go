// Package session owns the connection to one project server: it performs
// the startup handshake, serializes round trips through a single dispatcher,
// and detects and reports unexpected server exits.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/gmvfs/pkg/gmvfs/o11y"
	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateStarting State = iota
	StateOpen
	StateShuttingDown
	StateCrashedUnexpectedly
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateOpen:
		return "open"
	case StateShuttingDown:
		return "shutting down"
	case StateCrashedUnexpectedly:
		return "crashed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const (
	requestQueued int32 = iota
	requestDispatched
	requestAbandoned
)

type request struct {
	data    []byte
	noReply bool
	state   atomic.Int32
	done    chan reply
}

type reply struct {
	data []byte
	err  error
}

// Session is a live connection to a project server. Round trips are
// dispatched one at a time in the order they were queued. It implements
// protocol.Transport.
type Session struct {
	logger         *zap.Logger
	monitor        Monitor
	startupTimeout time.Duration
	logFile        string

	state    atomic.Int32
	metadata protocol.ProjectMetadata

	conn   Conn
	ctx    context.Context
	cancel context.CancelFunc

	queue    chan *request
	incoming chan []byte
	readDone chan struct{}
	readErr  error
	closed   chan struct{}

	closeOnce    sync.Once
	shutdownDone chan struct{}
	wg           sync.WaitGroup

	crashMu   sync.Mutex
	crashErr  error
	crashSeen bool
	callbacks []func(error)

	crashes   o11y.Counter
	openGauge o11y.Gauge
}

var _ protocol.Transport = (*Session)(nil)

func newSession(b *Builder) *Session {
	s := &Session{
		logger:         b.logger,
		monitor:        b.monitor,
		startupTimeout: b.startupTimeout,
		queue:          make(chan *request, b.queueSize),
		incoming:       make(chan []byte, 1),
		readDone:       make(chan struct{}),
		closed:         make(chan struct{}),
		shutdownDone:   make(chan struct{}),
	}
	if mp := b.observability.MetricsProvider; mp != nil {
		s.crashes = mp.Counter(o11y.MetricSessionCrashes)
		s.openGauge = mp.Gauge(o11y.MetricSessionOpen)
	}
	s.state.Store(int32(StateStarting))
	return s
}

func (s *Session) start(ctx context.Context, connector Connector) error {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	conn, err := connector.Connect(ctx, s.logger)
	if err != nil {
		s.cancel()
		close(s.closed)
		s.state.Store(int32(StateClosed))
		return &StartupError{Err: err}
	}
	s.conn = conn
	if lf, ok := connector.(interface{ LogFile() string }); ok {
		s.logFile = lf.LogFile()
	}

	s.wg.Add(1)
	go s.readLoop()

	timer := time.NewTimer(s.startupTimeout)
	defer timer.Stop()

	var first []byte
	select {
	case first = <-s.incoming:
	case <-s.readDone:
		return s.failStartup(&StartupError{Err: fmt.Errorf("server exited before handshake: %w", s.readErr)})
	case <-timer.C:
		return s.failStartup(&StartupError{Err: fmt.Errorf("no handshake within %s", s.startupTimeout)})
	case <-ctx.Done():
		return s.failStartup(&StartupError{Err: ctx.Err()})
	}

	metadata, err := protocol.DecodeResult[protocol.ProjectMetadata](protocol.KindProjectInfo, first)
	if err != nil {
		var se *protocol.ServerError
		if errors.As(err, &se) {
			detail := se.Detail
			return s.failStartup(&StartupError{Detail: &detail, Err: err})
		}
		return s.failStartup(&StartupError{Err: err})
	}

	s.metadata = metadata
	s.state.Store(int32(StateOpen))

	s.wg.Add(1)
	go s.dispatchLoop()

	if s.openGauge != nil {
		s.openGauge.Set(ctx, 1)
	}
	s.logger.Info("Session open",
		zap.String("project", metadata.Name),
		zap.String("root", metadata.Root.Path))

	if s.monitor != nil {
		s.monitor.OnOpen(ctx, s, metadata)
	}

	return nil
}

func (s *Session) failStartup(err *StartupError) error {
	s.logger.Error("Session startup failed", zap.Error(err), zap.String("log_file", s.logFile))
	s.teardown()
	s.wg.Wait()
	s.state.Store(int32(StateClosed))
	return err
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Metadata returns the project metadata reported during the handshake.
func (s *Session) Metadata() protocol.ProjectMetadata {
	return s.metadata
}

// LogFile returns the server log path, if the connector knows it.
func (s *Session) LogFile() string {
	return s.logFile
}

// Done is closed once the session stops accepting round trips.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// Err returns the error that ended the session unexpectedly, or nil.
func (s *Session) Err() error {
	s.crashMu.Lock()
	defer s.crashMu.Unlock()
	return s.crashErr
}

// OnUnexpectedShutdown registers cb to be called once if the server exits
// while the session is open. If that has already happened cb is called
// right away, on its own goroutine.
func (s *Session) OnUnexpectedShutdown(cb func(error)) {
	s.crashMu.Lock()
	defer s.crashMu.Unlock()

	if s.crashSeen {
		go cb(s.crashErr)
		return
	}
	s.callbacks = append(s.callbacks, cb)
}

// RoundTrip sends one encoded command and waits for its response. A request
// whose ctx ends while it is still queued is dropped without being sent;
// once sent it waits for the response or for the session to close.
func (s *Session) RoundTrip(ctx context.Context, data []byte) ([]byte, error) {
	if s.State() != StateOpen {
		return nil, ErrSessionClosed
	}
	return s.enqueue(ctx, data, false)
}

func (s *Session) enqueue(ctx context.Context, data []byte, noReply bool) ([]byte, error) {
	req := &request{data: data, noReply: noReply, done: make(chan reply, 1)}

	select {
	case s.queue <- req:
	case <-s.closed:
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-req.done:
		return r.data, r.err
	case <-s.closed:
		return s.afterClose(req)
	case <-ctx.Done():
		if req.state.CompareAndSwap(requestQueued, requestAbandoned) {
			return nil, ctx.Err()
		}
	}

	select {
	case r := <-req.done:
		return r.data, r.err
	case <-s.closed:
		return s.afterClose(req)
	}
}

func (s *Session) afterClose(req *request) ([]byte, error) {
	select {
	case r := <-req.done:
		return r.data, r.err
	default:
		req.state.CompareAndSwap(requestQueued, requestAbandoned)
		return nil, ErrSessionClosed
	}
}

// Shutdown asks the server to exit, closes the connection and waits for the
// session goroutines. It is safe to call more than once and after a crash.
func (s *Session) Shutdown(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateOpen), int32(StateShuttingDown)) {
		if s.State() == StateShuttingDown {
			select {
			case <-s.shutdownDone:
				return nil
			case <-ctx.Done():
				return ErrAlreadyShuttingDown
			}
		}
		return nil
	}
	defer close(s.shutdownDone)

	s.logger.Info("Shutting down session")

	if data, err := protocol.Encode(protocol.Shutdown{}); err == nil {
		if _, err := s.enqueue(ctx, data, true); err != nil {
			s.logger.Debug("Shutdown command not delivered", zap.Error(err))
		}
	}

	s.teardown()
	s.wg.Wait()
	s.state.Store(int32(StateClosed))

	if s.openGauge != nil {
		s.openGauge.Set(ctx, 0)
	}
	s.logger.Info("Session closed")

	if s.monitor != nil {
		s.monitor.OnShutdown(ctx, s)
	}

	return nil
}

func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("Error closing server connection", zap.Error(err))
		}
	})
}

// crash moves an open session to CrashedUnexpectedly, tears it down and
// notifies observers once the session goroutines have exited.
func (s *Session) crash(err error) {
	if !s.state.CompareAndSwap(int32(StateOpen), int32(StateCrashedUnexpectedly)) {
		return
	}

	fields := []zap.Field{zap.Error(err)}
	if s.logFile != "" {
		fields = append(fields, zap.String("log_file", s.logFile))
	}
	s.logger.Error("Project server stopped unexpectedly", fields...)

	if s.crashes != nil {
		s.crashes.Add(context.Background(), 1)
		s.openGauge.Set(context.Background(), 0)
	}

	s.crashMu.Lock()
	s.crashErr = err
	s.crashMu.Unlock()

	s.teardown()

	// Runs on its own goroutine since crash is called from the loops that
	// must exit first.
	go func() {
		s.wg.Wait()
		s.state.Store(int32(StateClosed))

		s.crashMu.Lock()
		s.crashSeen = true
		callbacks := s.callbacks
		s.callbacks = nil
		s.crashMu.Unlock()

		for _, cb := range callbacks {
			cb(err)
		}
		if s.monitor != nil {
			s.monitor.OnUnexpectedShutdown(context.Background(), s, err)
		}
	}()
}

func (s *Session) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		data, err := s.conn.ReadMessage(s.ctx)
		if err != nil {
			s.readErr = err
			if s.ctx.Err() == nil {
				s.crash(fmt.Errorf("read from server: %w", err))
			}
			return
		}

		msg := bytes.TrimSpace(data)
		if len(msg) == 0 || msg[0] != '{' || !json.Valid(msg) {
			s.logger.Debug("Ignoring server output", zap.ByteString("line", msg))
			continue
		}

		select {
		case s.incoming <- msg:
		case <-s.closed:
			return
		}
	}
}

func (s *Session) dispatchLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.closed:
			return
		case req := <-s.queue:
			if !req.state.CompareAndSwap(requestQueued, requestDispatched) {
				continue
			}

			if err := s.conn.WriteMessage(s.ctx, req.data); err != nil {
				req.done <- reply{err: fmt.Errorf("%w: write: %v", ErrSessionClosed, err)}
				s.crash(fmt.Errorf("write to server: %w", err))
				return
			}

			if req.noReply {
				req.done <- reply{}
				continue
			}

			select {
			case data := <-s.incoming:
				req.done <- reply{data: data}
			case <-s.readDone:
				req.done <- reply{err: ErrSessionClosed}
			case <-s.closed:
				req.done <- reply{err: ErrSessionClosed}
				return
			}
		}
	}
}
