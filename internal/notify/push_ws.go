package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketPusher delivers events over live websocket connections. The HTTP
// layer attaches a connection when a subscriber connects and detaches it on
// disconnect; a push to a connection id with no attached socket reports the
// connection gone.
type WebSocketPusher struct {
	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

func NewWebSocketPusher() *WebSocketPusher {
	return &WebSocketPusher{conns: make(map[string]*websocket.Conn)}
}

// Attach binds a live socket to a connection id.
func (p *WebSocketPusher) Attach(connectionID string, conn *websocket.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[connectionID] = conn
}

// Detach forgets the socket for a connection id. The caller owns closing it.
func (p *WebSocketPusher) Detach(connectionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, connectionID)
}

// Push implements Pusher. Write errors are reported as gone: a socket that
// cannot be written to has already disappeared from the subscriber's side.
func (p *WebSocketPusher) Push(_ context.Context, rec ConnectionRecord, event Event) error {
	p.mu.Lock()
	conn, ok := p.conns[rec.ConnectionID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("no socket for %s: %w", rec.ConnectionID, ErrGone)
	}
	if err := conn.WriteJSON(event); err != nil {
		return fmt.Errorf("write to %s: %v: %w", rec.ConnectionID, err, ErrGone)
	}
	return nil
}
