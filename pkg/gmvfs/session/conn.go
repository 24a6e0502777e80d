package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// maxMessageSize bounds a single server message. A full project graph of a
// large project runs to several megabytes.
const maxMessageSize = 64 * 1024 * 1024

// Conn is a bidirectional message stream to a project server. ReadMessage
// is only called from one goroutine, WriteMessage only from another. Close
// must unblock a pending ReadMessage.
type Conn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close() error
}

// Connector establishes a Conn. The context only bounds connection setup.
type Connector interface {
	Connect(ctx context.Context, logger *zap.Logger) (Conn, error)
}

// lineConn frames messages as newline-terminated lines.
type lineConn struct {
	scanner *bufio.Scanner
	w       io.Writer
	closer  func() error

	closeOnce sync.Once
	closeErr  error
}

func newLineConn(r io.Reader, w io.Writer, closer func() error) *lineConn {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
	return &lineConn{scanner: scanner, w: w, closer: closer}
}

func (c *lineConn) ReadMessage(_ context.Context) ([]byte, error) {
	if c.scanner.Scan() {
		line := c.scanner.Bytes()
		msg := make([]byte, len(line))
		copy(msg, line)
		return msg, nil
	}
	if err := c.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (c *lineConn) WriteMessage(_ context.Context, data []byte) error {
	line := make([]byte, 0, len(data)+1)
	line = append(line, data...)
	line = append(line, '\n')
	_, err := c.w.Write(line)
	return err
}

func (c *lineConn) Close() error {
	c.closeOnce.Do(func() {
		if c.closer != nil {
			c.closeErr = c.closer()
		}
	})
	return c.closeErr
}

// StreamConnector speaks the line protocol over an already-open stream pair,
// such as the stdio of a process started elsewhere or an in-memory pipe.
// Closing the connection closes both ends that implement io.Closer.
type StreamConnector struct {
	Reader io.Reader
	Writer io.Writer
}

func (s StreamConnector) Connect(_ context.Context, _ *zap.Logger) (Conn, error) {
	if s.Reader == nil || s.Writer == nil {
		return nil, fmt.Errorf("stream connector needs both a reader and a writer")
	}

	closer := func() error {
		var errs []error
		if wc, ok := s.Writer.(io.Closer); ok {
			errs = append(errs, wc.Close())
		}
		if rc, ok := s.Reader.(io.Closer); ok {
			errs = append(errs, rc.Close())
		}
		return errors.Join(errs...)
	}

	return newLineConn(s.Reader, s.Writer, closer), nil
}
