package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/fasthttp/websocket"

	"github.com/wizardin/chat-server/models"
)

// WSTransport sends and receives event envelopes over a WebSocket
// connection.
type WSTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// DialTransport connects to the server's websocket endpoint, e.g.
// ws://localhost:3002/ws.
func DialTransport(ctx context.Context, url string) (*WSTransport, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}
	return &WSTransport{conn: conn}, nil
}

// Send writes one envelope. Safe for concurrent use; the intent methods and
// the typing debouncer both write here.
func (t *WSTransport) Send(ev models.Event) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("failed to send %q: %w", ev.Event, err)
	}
	return nil
}

// Listen reads envelopes until the connection closes, passing each to the
// handler. It returns the terminating read error; normal closure is
// translated to nil.
func (t *WSTransport) Listen(handler func(models.Event)) error {
	for {
		var ev models.Event
		if err := t.conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("transport read failed: %w", err)
		}
		handler(ev)
	}
}

// Close closes the underlying connection.
func (t *WSTransport) Close() error {
	return t.conn.Close()
}

// Dial connects to the server and returns a client whose state is fed by a
// background read loop. The loop exits when the connection closes.
func Dial(ctx context.Context, url string) (*Client, error) {
	transport, err := DialTransport(ctx, url)
	if err != nil {
		return nil, err
	}

	c := New(transport)
	go func() {
		transport.Listen(func(ev models.Event) {
			c.HandleEvent(ev)
		})
	}()
	return c, nil
}
