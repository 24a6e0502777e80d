package session

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// DefaultDialTimeout bounds the websocket handshake when
// WebsocketConnector.DialTimeout is unset.
const DefaultDialTimeout = 30 * time.Second

// WebsocketConnector connects to a project server exposed over a websocket.
// Each text frame carries exactly one protocol message.
type WebsocketConnector struct {
	URL         string
	Headers     map[string][]string
	DialTimeout time.Duration
}

func (w WebsocketConnector) Connect(ctx context.Context, logger *zap.Logger) (Conn, error) {
	if _, err := url.Parse(w.URL); err != nil || w.URL == "" {
		return nil, fmt.Errorf("invalid URL %q", w.URL)
	}

	timeout := w.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := &websocket.DialOptions{}
	if w.Headers != nil {
		opts.HTTPHeader = make(map[string][]string, len(w.Headers))
		for key, values := range w.Headers {
			opts.HTTPHeader[key] = values
		}
	}

	conn, _, err := websocket.Dial(dialCtx, w.URL, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	logger.Info("Connected to project server", zap.String("url", w.URL))

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ == websocket.MessageText {
			return data, nil
		}
	}
}

func (c *wsConn) WriteMessage(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "session closed")
}
