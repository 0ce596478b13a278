// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"musicviz/internal/log"

	"github.com/gorilla/websocket"
)

const (
	broadcastQueue = 64
	writeTimeout   = 2 * time.Second
)

// WebSocketTransport serves frames as JSON on /ws to any number of
// renderers and forwards their control messages to a CommandHandler.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	onCommand CommandHandler

	server    *http.Server
	listener  net.Listener
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebSocketTransport creates a transport for addr. Nothing listens
// until Start is called. onCommand may be nil.
func NewWebSocketTransport(addr string, onCommand CommandHandler) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // Renderers are local pages or tools
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, broadcastQueue),
		done:      make(chan struct{}),
		onCommand: onCommand,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	wst.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return wst
}

// Start binds the listener and begins serving and broadcasting.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return fmt.Errorf("websocket listen on %s: %w", wst.addr, err)
	}
	wst.listener = ln

	wst.wg.Add(2)
	go func() {
		defer wst.wg.Done()
		log.Infof("WebSocketTransport: Serving on ws://%s/ws", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
	go func() {
		defer wst.wg.Done()
		wst.handleBroadcasts()
	}()
	return nil
}

// Addr returns the bound address after Start.
func (wst *WebSocketTransport) Addr() net.Addr {
	if wst.listener == nil {
		return nil
	}
	return wst.listener.Addr()
}

// ClientCount returns the number of connected renderers.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	log.Infof("WebSocketTransport: Client connected, total: %d", total)

	go wst.readCommands(conn)
}

// readCommands is the only reader of conn. It ends when the client goes
// away or the transport closes.
func (wst *WebSocketTransport) readCommands(conn *websocket.Conn) {
	defer wst.dropClient(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			log.Warnf("WebSocketTransport: Ignoring malformed command: %v", err)
			continue
		}
		if err := cmd.Validate(); err != nil {
			log.Warnf("WebSocketTransport: Ignoring command: %v", err)
			continue
		}
		if wst.onCommand != nil {
			wst.onCommand(cmd)
		}
	}
}

func (wst *WebSocketTransport) dropClient(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, known := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	conn.Close()
	if known {
		log.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

// handleBroadcasts sends messages to all connected clients
func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				client.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := client.WriteJSON(data); err != nil {
					log.Warnf("WebSocketTransport: Error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Send queues data for broadcast. When renderers fall behind the frame
// is dropped rather than blocking the render loop.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return errors.New("websocket transport is closed")
	default:
	}
	select {
	case wst.broadcast <- data:
	default:
		log.Debugf("WebSocketTransport: Broadcast queue full, dropping frame")
	}
	return nil
}

// Close shuts down the server and disconnects every client.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		log.Infof("WebSocketTransport: Closing server")
		close(wst.done)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		err = wst.server.Close()
		wst.wg.Wait()
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
