package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/services"
)

// Message is the envelope pushed to connected clients.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub tracks open websocket connections per user and fans change-feed events
// out to them. Per-user tables route to the owning user only; emergency
// reports broadcast to everyone connected.
type Hub struct {
	clients    map[string]*Client
	userConns  map[uuid.UUID]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	unsubscribes []func()
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		userConns:  make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if h.userConns[client.UserID] == nil {
				h.userConns[client.UserID] = make(map[*Client]bool)
			}
			h.userConns[client.UserID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				if h.userConns[client.UserID] != nil {
					delete(h.userConns[client.UserID], client)
					if len(h.userConns[client.UserID]) == 0 {
						delete(h.userConns, client.UserID)
					}
				}
				close(client.Send)
			}
			h.mu.Unlock()
		}
	}
}

// Attach subscribes the hub to the tables clients care about. Call once at
// startup; Close releases the subscriptions.
func (h *Hub) Attach(feed services.ChangeFeed) error {
	perUser := []string{"notifications", "friends", "friend_requests"}
	for _, table := range perUser {
		unsub, err := feed.Subscribe(table, func(event services.ChangeEvent) {
			h.SendToUser(event.UserID, &Message{Event: "change", Data: event})
		})
		if err != nil {
			h.Close()
			return err
		}
		h.unsubscribes = append(h.unsubscribes, unsub)
	}

	unsub, err := feed.Subscribe("emergencies", func(event services.ChangeEvent) {
		h.Broadcast(&Message{Event: "change", Data: event})
	})
	if err != nil {
		h.Close()
		return err
	}
	h.unsubscribes = append(h.unsubscribes, unsub)
	return nil
}

func (h *Hub) Close() {
	for _, unsub := range h.unsubscribes {
		unsub()
	}
	h.unsubscribes = nil
}

func (h *Hub) SendToUser(userID uuid.UUID, msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	// Run mutates the per-user map and closes Send channels under the write
	// lock, so both the iteration and the sends stay under the read lock.
	var slow []*Client
	h.mu.RLock()
	for client := range h.userConns[userID] {
		select {
		case client.Send <- data:
		default:
			// Slow consumer; drop the connection rather than block the feed.
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	// Unregistering needs the write lock, so it waits until the read lock
	// is released.
	for _, client := range slow {
		h.unregister <- client
	}
}

func (h *Hub) Broadcast(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
		}
	}
	h.mu.RUnlock()
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.userConns[userID]) > 0
}

// ConnectedCount is exposed for the health endpoint.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
