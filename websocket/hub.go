package websocket

import (
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/devzayn/otpbazaar_backend/models"
)

// Notification types pushed to dashboard clients
const (
	NotificationTypeJobProgress  = "job_progress"
	NotificationTypeJobCompleted = "job_completed"
)

// Notification represents a message sent over WebSocket
type Notification struct {
	Type         string      `json:"type"`
	Message      string      `json:"message"`
	Data         interface{} `json:"data,omitempty"`
	RequiresAuth bool        `json:"requiresAuth,omitempty"`
}

// Client represents a connected WebSocket client. TelegramID identifies the
// admin; it matches the key bulk jobs are stored under.
type Client struct {
	TelegramID    int64
	Conn          *websocket.Conn
	Authenticated bool
}

// Hub maintains the set of active clients and pushes job events to them
type Hub struct {
	clients                map[int64]*Client
	unauthenticatedClients map[*Client]bool
	register               chan *Client
	unregister             chan *Client
	mu                     sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:                make(map[int64]*Client),
		unauthenticatedClients: make(map[*Client]bool),
		register:               make(chan *Client),
		unregister:             make(chan *Client),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if client.Authenticated && client.TelegramID != 0 {
				h.clients[client.TelegramID] = client
			} else {
				h.unauthenticatedClients[client] = true
			}
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if client.Authenticated && client.TelegramID != 0 {
				if h.clients[client.TelegramID] == client {
					delete(h.clients, client.TelegramID)
				}
			} else {
				delete(h.unauthenticatedClients, client)
			}
			client.Conn.Close()
			h.mu.Unlock()
		}
	}
}

// SendToAdmin sends a notification to one connected admin
func (h *Hub) SendToAdmin(telegramID int64, notification Notification) error {
	h.mu.RLock()
	client, ok := h.clients[telegramID]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("admin not connected")
	}

	return client.Conn.WriteJSON(notification)
}

// AuthenticateClient moves a client from unauthenticated to authenticated state
func (h *Hub) AuthenticateClient(client *Client, telegramID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.unauthenticatedClients, client)

	client.Authenticated = true
	client.TelegramID = telegramID
	h.clients[telegramID] = client
}

// JobProgress pushes a bulk job progress snapshot to the owning admin.
// Implements the bulk service's progress sink.
func (h *Hub) JobProgress(owner int64, snap models.ProgressSnapshot) {
	notification := Notification{
		Type:    NotificationTypeJobProgress,
		Message: fmt.Sprintf("Processing number %d of %d", snap.CurrentIndex+1, snap.Total),
		Data:    snap,
	}

	// Not connected is normal, the dashboard may be closed
	_ = h.SendToAdmin(owner, notification)
}

// JobCompleted pushes the final summary to the owning admin
func (h *Hub) JobCompleted(owner int64, summary models.BulkSummary) {
	notification := Notification{
		Type: NotificationTypeJobCompleted,
		Message: fmt.Sprintf("Bulk job finished: %d verified, %d failed",
			summary.SuccessCount, summary.FailureCount),
		Data: summary,
	}

	if err := h.SendToAdmin(owner, notification); err != nil {
		log.Printf("Bulk summary not delivered over websocket for admin %d: %v", owner, err)
	}
}
