// Package wshub is the replay pipeline's local progress dashboard: a
// WebSocket hub that broadcasts per-instrument tick/accuracy events to
// connected operators. It is adapted from the order-book service's
// analysis-broadcast hub — here broadcasting replay progress instead of
// live order-book analysis. This is the coordinator's own outbound status
// feed, not a live market-data feed, so it does not fall under the "no
// live feed ingestion" non-goal.
package wshub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message types sent to dashboard clients.
const (
	MessageTypeProgress     = "progress"
	MessageTypeDayComplete  = "day_complete"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
	MessageTypeSubscribe    = "subscribe"
	MessageTypeUnsubscribe  = "unsubscribe"
)

// Message is a WebSocket dashboard message.
type Message struct {
	Type         string                 `json:"type"`
	InstrumentID string                 `json:"instrument_id,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Timestamp    int64                  `json:"timestamp"`
}

// Client is one dashboard WebSocket connection.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	subscribed map[string]bool
	mu         sync.RWMutex
}

// Hub manages dashboard client connections and broadcasts.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new dashboard hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop: registration/unregistration, broadcast
// fan-out, and periodic ping heartbeats.
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("dashboard client connected (total: %d)", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("dashboard client disconnected (total: %d)", len(h.clients))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()

		case <-ticker.C:
			pingMsg := Message{Type: MessageTypePing, Timestamp: time.Now().Unix()}
			data, _ := json.Marshal(pingMsg)
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// BroadcastProgress sends a tick/accuracy progress update to clients
// subscribed to instrumentID.
func (h *Hub) BroadcastProgress(instrumentID string, data map[string]interface{}) {
	msg := Message{
		Type:         MessageTypeProgress,
		InstrumentID: instrumentID,
		Data:         data,
		Timestamp:    time.Now().Unix(),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		log.Printf("failed to marshal progress update: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.mu.RLock()
		isSubscribed := client.subscribed[instrumentID]
		client.mu.RUnlock()

		if isSubscribed {
			select {
			case client.send <- jsonData:
			default:
			}
		}
	}
}

// BroadcastDayComplete notifies all clients that a day's replay finished,
// regardless of subscription.
func (h *Hub) BroadcastDayComplete(date string, rowsTotal int) {
	msg := Message{
		Type:      MessageTypeDayComplete,
		Data:      map[string]interface{}{"date": date, "rows_total": rowsTotal},
		Timestamp: time.Now().Unix(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// Subscribe adds instrumentID to the client's subscription list.
func (c *Client) Subscribe(instrumentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed[instrumentID] = true
}

// Unsubscribe removes instrumentID from the client's subscription list.
func (c *Client) Unsubscribe(instrumentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscribed, instrumentID)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("dashboard websocket error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case MessageTypeSubscribe:
			if msg.InstrumentID != "" {
				c.Subscribe(msg.InstrumentID)
			}
		case MessageTypeUnsubscribe:
			if msg.InstrumentID != "" {
				c.Unsubscribe(msg.InstrumentID)
			}
		case MessageTypePong:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades an HTTP request to a dashboard WebSocket connection.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("dashboard websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, 256),
		subscribed: make(map[string]bool),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}
