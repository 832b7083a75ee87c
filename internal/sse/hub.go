package sse

import (
	"encoding/json"
	"sync"
	"time"
)

// Activity event types pushed to dashboard streams.
const (
	EventCallCreated   = "call_created"
	EventCallStatus    = "call_status"
	EventCallCancelled = "call_cancelled"
)

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type CallCreatedEvent struct {
	CallID    string    `json:"call_id"`
	FromTeam  string    `json:"from_team"`
	Message   string    `json:"message"`
	Targets   []string  `json:"targets"`
	CreatedAt time.Time `json:"created_at"`
}

type CallStatusEvent struct {
	CallID   string `json:"call_id"`
	FromTeam string `json:"from_team"`
	Team     string `json:"team"`
	Status   string `json:"status"`
}

type CallCancelledEvent struct {
	CallID   string `json:"call_id"`
	FromTeam string `json:"from_team"`
}

// Client is one open activity stream. A client with an empty Party sees
// every event; otherwise only events its party takes part in.
type Client struct {
	ID    string
	Party string
	Send  chan []byte
}

type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *PartyMessage
	mu         sync.RWMutex
}

// PartyMessage is an event addressed to the parties of one call.
type PartyMessage struct {
	Parties []string
	Event   Event
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *PartyMessage, 256),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			data, err := json.Marshal(msg.Event)
			if err != nil {
				continue
			}
			h.mu.RLock()
			for _, client := range h.clients {
				if client.Party == "" || contains(msg.Parties, client.Party) {
					select {
					case client.Send <- data:
					default:
						// Client buffer full, skip
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) publish(parties []string, event Event) {
	msg := &PartyMessage{Parties: parties, Event: event}
	select {
	case h.broadcast <- msg:
	default:
		// Broadcast queue full, drop rather than block the signaling path
	}
}

func (h *Hub) PublishCallCreated(fromTeam, callID, message string, targets []string, teams []string, createdAt time.Time) {
	h.publish(append([]string{fromTeam}, teams...), Event{
		Type: EventCallCreated,
		Data: CallCreatedEvent{
			CallID:    callID,
			FromTeam:  fromTeam,
			Message:   message,
			Targets:   targets,
			CreatedAt: createdAt,
		},
	})
}

func (h *Hub) PublishCallStatus(fromTeam, callID, team, status string) {
	h.publish([]string{fromTeam, team}, Event{
		Type: EventCallStatus,
		Data: CallStatusEvent{
			CallID:   callID,
			FromTeam: fromTeam,
			Team:     team,
			Status:   status,
		},
	})
}

func (h *Hub) PublishCallCancelled(fromTeam, callID string, teams []string) {
	h.publish(append([]string{fromTeam}, teams...), Event{
		Type: EventCallCancelled,
		Data: CallCancelledEvent{
			CallID:   callID,
			FromTeam: fromTeam,
		},
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
