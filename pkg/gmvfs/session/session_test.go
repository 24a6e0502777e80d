package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tsarna/gmvfs/pkg/gmvfs/o11y"
	"github.com/tsarna/gmvfs/pkg/gmvfs/projecttest"
	"github.com/tsarna/gmvfs/pkg/gmvfs/protocol"
)

// pipes connects a session to a server-side reader/writer pair.
type pipes struct {
	connector  StreamConnector
	fromClient *io.PipeReader
	toClient   *io.PipeWriter
}

func newPipes() *pipes {
	cr, cw := io.Pipe()
	sr, sw := io.Pipe()
	return &pipes{
		connector:  StreamConnector{Reader: sr, Writer: cw},
		fromClient: cr,
		toClient:   sw,
	}
}

// serve runs srv on the pipes; the server side closes when it returns.
func (p *pipes) serve(srv *projecttest.Server) {
	go func() {
		_ = srv.ServeLines(p.fromClient, p.toClient)
		p.toClient.Close()
	}()
}

// manualServer hands every line the client sends to the test and lets it
// reply explicitly.
type manualServer struct {
	*pipes
	lines chan string
}

func newManualServer(t *testing.T) *manualServer {
	m := &manualServer{pipes: newPipes(), lines: make(chan string, 16)}
	go func() {
		scanner := bufio.NewScanner(m.fromClient)
		for scanner.Scan() {
			m.lines <- scanner.Text()
		}
		close(m.lines)
	}()
	return m
}

func (m *manualServer) write(t *testing.T, line string) {
	_, err := fmt.Fprintf(m.toClient, "%s\n", line)
	require.NoError(t, err)
}

func (m *manualServer) hello(t *testing.T) {
	data, err := protocol.EncodeSuccess(protocol.ProjectMetadata{Name: "Manual", Root: protocol.ViewPath{Name: "Manual", Path: "folders"}})
	require.NoError(t, err)
	m.write(t, string(data))
}

func (m *manualServer) next(t *testing.T) string {
	select {
	case line := <-m.lines:
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("server received nothing")
		return ""
	}
}

type mockMonitor struct {
	mu         sync.Mutex
	opens      []protocol.ProjectMetadata
	shutdowns  int
	unexpected []error
}

func (m *mockMonitor) OnOpen(_ context.Context, _ *Session, metadata protocol.ProjectMetadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens = append(m.opens, metadata)
}

func (m *mockMonitor) OnShutdown(_ context.Context, _ *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdowns++
}

func (m *mockMonitor) OnUnexpectedShutdown(_ context.Context, _ *Session, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unexpected = append(m.unexpected, err)
}

func (m *mockMonitor) unexpectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unexpected)
}

func startWithServer(t *testing.T, srv *projecttest.Server, monitor Monitor) *Session {
	p := newPipes()
	p.serve(srv)

	b := NewSession().WithLogger(zap.NewNop()).WithStartupTimeout(2 * time.Second)
	if monitor != nil {
		b = b.WithMonitor(monitor)
	}
	s, err := b.Start(context.Background(), p.connector)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func TestSessionBuilder(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		b := NewSession()
		assert.NotNil(t, b.logger)
		assert.Equal(t, DefaultStartupTimeout, b.startupTimeout)
		assert.Equal(t, 64, b.queueSize)
	})

	t.Run("fluent interface returns same builder", func(t *testing.T) {
		b := NewSession()
		assert.Same(t, b, b.WithLogger(zap.NewNop()))
		assert.Same(t, b, b.WithMonitor(&mockMonitor{}))
		assert.Same(t, b, b.WithStartupTimeout(time.Second))
		assert.Same(t, b, b.WithQueueSize(8))
		assert.Same(t, b, b.WithObservability(o11y.ObservabilityConfig{}))
	})

	t.Run("invalid values are ignored", func(t *testing.T) {
		b := NewSession().WithLogger(nil).WithStartupTimeout(-time.Second).WithQueueSize(0)
		assert.NotNil(t, b.logger)
		assert.Equal(t, DefaultStartupTimeout, b.startupTimeout)
		assert.Equal(t, 64, b.queueSize)
	})

	t.Run("connector is required", func(t *testing.T) {
		_, err := NewSession().Start(context.Background(), nil)
		assert.Error(t, err)
	})
}

func TestSessionStartup(t *testing.T) {
	t.Run("handshake captures metadata", func(t *testing.T) {
		srv := projecttest.NewServer("Platformer")
		monitor := &mockMonitor{}
		s := startWithServer(t, srv, monitor)

		assert.Equal(t, StateOpen, s.State())
		assert.Equal(t, "Platformer", s.Metadata().Name)
		assert.Equal(t, srv.Root(), s.Metadata().Root)
		require.Len(t, monitor.opens, 1)
		assert.Equal(t, "Platformer", monitor.opens[0].Name)
	})

	t.Run("server-reported failure", func(t *testing.T) {
		m := newManualServer(t)
		go func() {
			data, _ := protocol.EncodeFailure(protocol.ErrorDetail{Kind: protocol.ErrorKindStartup, Message: "bad yyp"})
			fmt.Fprintf(m.toClient, "%s\n", data)
		}()

		_, err := NewSession().WithStartupTimeout(2*time.Second).Start(context.Background(), m.connector)
		require.Error(t, err)

		var se *StartupError
		require.True(t, errors.As(err, &se))
		require.NotNil(t, se.Detail)
		assert.Equal(t, protocol.ErrorKindStartup, se.Detail.Kind)
		assert.Contains(t, err.Error(), "bad yyp")
	})

	t.Run("server exits before handshake", func(t *testing.T) {
		m := newManualServer(t)
		go func() {
			fmt.Fprintln(m.toClient, "panicked at src/main.rs")
			m.toClient.Close()
		}()

		_, err := NewSession().WithStartupTimeout(2*time.Second).Start(context.Background(), m.connector)
		var se *StartupError
		require.True(t, errors.As(err, &se))
		assert.Nil(t, se.Detail)
		assert.Contains(t, err.Error(), "before handshake")
	})

	t.Run("handshake timeout", func(t *testing.T) {
		m := newManualServer(t)

		start := time.Now()
		_, err := NewSession().WithStartupTimeout(50*time.Millisecond).Start(context.Background(), m.connector)
		var se *StartupError
		require.True(t, errors.As(err, &se))
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("connect failure", func(t *testing.T) {
		_, err := NewSession().Start(context.Background(), StreamConnector{})
		var se *StartupError
		assert.True(t, errors.As(err, &se))
	})
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()

	t.Run("typed commands through the client", func(t *testing.T) {
		srv := projecttest.NewServer("Platformer")
		srv.AddResource(srv.Root(), protocol.ResourceScript, "scr_player")
		srv.Chatter = true
		s := startWithServer(t, srv, nil)

		client := protocol.NewClient(s, nil)
		graph, err := client.GetFullVfs(ctx)
		require.NoError(t, err)
		require.Len(t, graph.Files, 1)
		assert.Equal(t, "scr_player", graph.Files[0].FilesystemPath.Name)

		ok, err := client.CanUseResourceName(ctx, "scr_player")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, client.Checkpoint(ctx))
		assert.Equal(t, []protocol.Kind{protocol.KindGetFullVfs, protocol.KindCanUseResourceName, protocol.KindSerialize}, srv.Commands())
	})

	t.Run("concurrent callers are serialized", func(t *testing.T) {
		srv := projecttest.NewServer("Platformer")
		s := startWithServer(t, srv, nil)
		client := protocol.NewClient(s, nil)

		var wg sync.WaitGroup
		var failures atomic.Int32
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := client.Checkpoint(ctx); err != nil {
					failures.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(0), failures.Load())
		assert.Equal(t, 20, srv.Count(protocol.KindSerialize))
	})

	t.Run("cancelled queued request is never sent", func(t *testing.T) {
		m := newManualServer(t)
		go m.hello(t)
		s, err := NewSession().WithStartupTimeout(2*time.Second).Start(ctx, m.connector)
		require.NoError(t, err)
		defer s.Shutdown(context.Background())

		reqA, _ := protocol.Encode(protocol.GetFullVfs{})
		reqB, _ := protocol.Encode(protocol.CanUseResourceName{Name: "b"})
		reqC, _ := protocol.Encode(protocol.SerializationCheckpoint{})

		doneA := make(chan []byte, 1)
		go func() {
			resp, err := s.RoundTrip(ctx, reqA)
			assert.NoError(t, err)
			doneA <- resp
		}()
		assert.JSONEq(t, string(reqA), m.next(t))

		ctxB, cancelB := context.WithCancel(ctx)
		doneB := make(chan error, 1)
		go func() {
			_, err := s.RoundTrip(ctxB, reqB)
			doneB <- err
		}()
		time.Sleep(20 * time.Millisecond)
		cancelB()
		assert.ErrorIs(t, <-doneB, context.Canceled)

		m.write(t, `{"success":true,"payload":{"name":"Manual"}}`)
		assert.Contains(t, string(<-doneA), "Manual")

		doneC := make(chan error, 1)
		go func() {
			_, err := s.RoundTrip(ctx, reqC)
			doneC <- err
		}()
		assert.JSONEq(t, string(reqC), m.next(t), "the abandoned request must not reach the server")
		m.write(t, `{"success":true}`)
		assert.NoError(t, <-doneC)
	})

	t.Run("dispatched request waits for its response", func(t *testing.T) {
		m := newManualServer(t)
		go m.hello(t)
		s, err := NewSession().WithStartupTimeout(2*time.Second).Start(ctx, m.connector)
		require.NoError(t, err)
		defer s.Shutdown(context.Background())

		req, _ := protocol.Encode(protocol.SerializationCheckpoint{})
		reqCtx, cancel := context.WithCancel(ctx)

		type result struct {
			resp []byte
			err  error
		}
		done := make(chan result, 1)
		go func() {
			resp, err := s.RoundTrip(reqCtx, req)
			done <- result{resp, err}
		}()
		m.next(t)
		cancel()

		select {
		case <-done:
			t.Fatal("dispatched request returned before its response")
		case <-time.After(50 * time.Millisecond):
		}

		m.write(t, `{"success":true}`)
		r := <-done
		assert.NoError(t, r.err)
		assert.JSONEq(t, `{"success":true}`, string(r.resp))
	})
}

func TestSessionShutdown(t *testing.T) {
	ctx := context.Background()

	t.Run("shutdown is idempotent", func(t *testing.T) {
		srv := projecttest.NewServer("Platformer")
		monitor := &mockMonitor{}
		s := startWithServer(t, srv, monitor)

		require.NoError(t, s.Shutdown(ctx))
		require.NoError(t, s.Shutdown(ctx))

		assert.Equal(t, StateClosed, s.State())
		assert.True(t, srv.ShutdownReceived())
		assert.Equal(t, 1, monitor.shutdowns)
		assert.Equal(t, 0, monitor.unexpectedCount())
		assert.Nil(t, s.Err())
	})

	t.Run("round trips fail after shutdown", func(t *testing.T) {
		srv := projecttest.NewServer("Platformer")
		s := startWithServer(t, srv, nil)
		require.NoError(t, s.Shutdown(ctx))

		_, err := s.RoundTrip(ctx, []byte(`{"type":"Serialize"}`))
		assert.ErrorIs(t, err, ErrSessionClosed)

		err = protocol.NewClient(s, nil).Checkpoint(ctx)
		assert.True(t, protocol.IsTransport(err))
		assert.ErrorIs(t, err, ErrSessionClosed)

		select {
		case <-s.Done():
		default:
			t.Fatal("Done not closed")
		}
	})
}

func TestSessionCrash(t *testing.T) {
	ctx := context.Background()

	t.Run("unexpected exit notifies once", func(t *testing.T) {
		m := newManualServer(t)
		go m.hello(t)

		monitor := &mockMonitor{}
		metrics := o11y.NewMemoryProvider("test")
		s, err := NewSession().
			WithStartupTimeout(2 * time.Second).
			WithMonitor(monitor).
			WithObservability(o11y.ObservabilityConfig{MetricsProvider: metrics}).
			Start(ctx, m.connector)
		require.NoError(t, err)

		var first, second atomic.Int32
		s.OnUnexpectedShutdown(func(error) { first.Add(1) })
		s.OnUnexpectedShutdown(func(error) { second.Add(1) })

		pending := make(chan error, 1)
		go func() {
			_, err := s.RoundTrip(ctx, []byte(`{"type":"Serialize"}`))
			pending <- err
		}()
		m.next(t)
		m.toClient.Close()

		assert.ErrorIs(t, <-pending, ErrSessionClosed)

		require.Eventually(t, func() bool { return monitor.unexpectedCount() == 1 }, 2*time.Second, 5*time.Millisecond)
		assert.Equal(t, int32(1), first.Load())
		assert.Equal(t, int32(1), second.Load())
		assert.Equal(t, StateClosed, s.State())
		assert.Error(t, s.Err())
		assert.Equal(t, int64(1), metrics.CounterValue(o11y.MetricSessionCrashes))

		start := time.Now()
		_, err = s.RoundTrip(ctx, []byte(`{"type":"Serialize"}`))
		assert.ErrorIs(t, err, ErrSessionClosed)
		assert.Less(t, time.Since(start), 100*time.Millisecond)

		late := make(chan error, 1)
		s.OnUnexpectedShutdown(func(err error) { late <- err })
		select {
		case err := <-late:
			assert.Error(t, err)
		case <-time.After(time.Second):
			t.Fatal("late callback not called")
		}

		assert.NoError(t, s.Shutdown(ctx))
		assert.Equal(t, 0, monitor.shutdowns)
		assert.Equal(t, 1, monitor.unexpectedCount())
	})

	t.Run("non-json output is not a crash", func(t *testing.T) {
		m := newManualServer(t)
		go m.hello(t)
		s, err := NewSession().WithStartupTimeout(2*time.Second).Start(ctx, m.connector)
		require.NoError(t, err)
		defer s.Shutdown(ctx)

		done := make(chan []byte, 1)
		go func() {
			resp, _ := s.RoundTrip(ctx, []byte(`{"type":"Serialize"}`))
			done <- resp
		}()
		m.next(t)
		m.write(t, "INFO serializing project")
		m.write(t, "")
		m.write(t, `[1,2,3]`)
		m.write(t, `{"success":true}`)

		assert.JSONEq(t, `{"success":true}`, string(<-done))
		assert.Equal(t, StateOpen, s.State())
	})
}

func TestWebsocketConnector(t *testing.T) {
	ctx := context.Background()
	srv := projecttest.NewServer("Remote")
	srv.AddFolder(srv.Root(), "Sprites")

	var gotHeader atomic.Value
	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("X-Project-Token"))

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()

		hello, _ := protocol.EncodeSuccess(srv.Metadata())
		if err := conn.Write(r.Context(), websocket.MessageText, hello); err != nil {
			return
		}
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			resp, kind := srv.Handle(data)
			if kind == protocol.KindShutdown {
				conn.Close(websocket.StatusNormalClosure, "bye")
				return
			}
			if err := conn.Write(r.Context(), websocket.MessageText, resp); err != nil {
				return
			}
		}
	}))
	defer httpSrv.Close()

	connector := WebsocketConnector{
		URL:         "ws" + strings.TrimPrefix(httpSrv.URL, "http"),
		Headers:     map[string][]string{"X-Project-Token": {"secret"}},
		DialTimeout: 2 * time.Second,
	}

	s, err := NewSession().WithStartupTimeout(2*time.Second).Start(ctx, connector)
	require.NoError(t, err)

	assert.Equal(t, "Remote", s.Metadata().Name)
	assert.Equal(t, "secret", gotHeader.Load())

	graph, err := protocol.NewClient(s, nil).GetFullVfs(ctx)
	require.NoError(t, err)
	require.Len(t, graph.Folders, 1)
	assert.Equal(t, "Sprites", graph.Folders[0].Name)

	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, StateClosed, s.State())
	assert.Eventually(t, srv.ShutdownReceived, time.Second, 5*time.Millisecond)
}

func TestWebsocketConnectorInvalidURL(t *testing.T) {
	_, err := NewSession().Start(context.Background(), WebsocketConnector{URL: ""})
	var se *StartupError
	assert.True(t, errors.As(err, &se))
}

func TestProcessConnectorValidation(t *testing.T) {
	_, err := NewSession().Start(context.Background(), ProcessConnector{ProjectPath: "game.yyp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server executable is required")

	_, err = NewSession().Start(context.Background(), ProcessConnector{ServerPath: "/bin/true"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project path is required")

	assert.Equal(t, "/tmp/server.log", ProcessConnector{LogPath: "/tmp/server.log"}.LogFile())
}

func writeServerScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "server.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

// readUntilError keeps reading like the session read loop does.
func readUntilError(conn Conn) <-chan error {
	done := make(chan error, 1)
	go func() {
		for {
			if _, err := conn.ReadMessage(context.Background()); err != nil {
				done <- err
				return
			}
		}
	}()
	return done
}

func TestProcessConnector(t *testing.T) {
	t.Run("server exits when stdin closes", func(t *testing.T) {
		script := writeServerScript(t, "echo '{\"ok\":true}'\necho 'warming up' >&2\ncat >/dev/null\n")
		core, logs := observer.New(zap.DebugLevel)

		conn, err := ProcessConnector{ServerPath: script, ProjectPath: "game.yyp", ShutdownGrace: 5 * time.Second}.
			Connect(context.Background(), zap.New(core))
		require.NoError(t, err)

		msg, err := conn.ReadMessage(context.Background())
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(msg))

		readErr := readUntilError(conn)
		require.NoError(t, conn.Close())
		assert.ErrorIs(t, <-readErr, io.EOF)

		assert.Equal(t, 1, logs.FilterMessage("warming up").FilterField(zap.String("stream", "stderr")).Len())
		exited := logs.FilterMessage("Project server exited").All()
		require.Len(t, exited, 1)
		assert.Equal(t, int64(0), exited[0].ContextMap()["exit_code"])
		assert.Zero(t, logs.FilterMessage("Project server did not exit, killing it").Len())
	})

	t.Run("server ignoring stdin is killed after the grace period", func(t *testing.T) {
		script := writeServerScript(t, "echo '{}'\nexec sleep 30\n")
		core, logs := observer.New(zap.DebugLevel)

		conn, err := ProcessConnector{ServerPath: script, ProjectPath: "game.yyp", ShutdownGrace: 100 * time.Millisecond}.
			Connect(context.Background(), zap.New(core))
		require.NoError(t, err)

		_, err = conn.ReadMessage(context.Background())
		require.NoError(t, err)

		readErr := readUntilError(conn)
		start := time.Now()
		require.NoError(t, conn.Close())
		assert.Less(t, time.Since(start), 5*time.Second)
		assert.Error(t, <-readErr)

		assert.Equal(t, 1, logs.FilterMessage("Project server did not exit, killing it").Len())
		assert.Zero(t, logs.FilterMessage("Project server output still open after kill").Len())
	})
}
