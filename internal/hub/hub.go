package hub

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/anhducle99/bluecode/internal/logger"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/signal"
)

var (
	ErrRouteExists  = errors.New("call already routed")
	ErrUnknownRoute = errors.New("unknown call")
	ErrNotCaller    = errors.New("call was placed by another sender")
)

const DefaultRouteTTL = 2 * time.Minute

type Client struct {
	ID       string
	Identity models.Identity
	Send     chan []byte
}

// Route remembers who placed a call and which teams it rings, so that status
// updates can travel back to the sender.
type Route struct {
	CallID    string
	From      string
	OriginID  string
	Message   string
	Targets   []string
	CreatedAt time.Time

	teams map[string]bool
}

func (r *Route) HasTeam(team string) bool {
	return r.teams[team]
}

type Hub struct {
	clients    map[string]*Client
	routes     map[string]*Route
	register   chan *Client
	unregister chan *Client
	routeTTL   time.Duration
	now        func() time.Time
	log        *slog.Logger
	mu         sync.RWMutex
}

func NewHub(routeTTL time.Duration, log *slog.Logger) *Hub {
	if routeTTL <= 0 {
		routeTTL = DefaultRouteTTL
	}
	return &Hub{
		clients:    make(map[string]*Client),
		routes:     make(map[string]*Route),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		routeTTL:   routeTTL,
		now:        time.Now,
		log:        logger.OrDefault(log).With("component", "hub"),
	}
}

func (h *Hub) Run() {
	prune := time.NewTicker(h.routeTTL / 2)
	defer prune.Stop()

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

		case <-prune.C:
			if n := h.PruneRoutes(); n > 0 {
				h.log.Debug("pruned call routes", "count", n)
			}
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Identify binds a registered identity to a connected client.
func (h *Hub) Identify(clientID string, identity models.Identity) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.clients[clientID]
	if !ok {
		return false
	}
	client.Identity = identity
	return true
}

// Ring stores the route and delivers incomingCall to every team-affiliated
// client of each target team, except the client that placed the call. It
// returns the number of clients reached.
func (h *Hub) Ring(route Route) (int, error) {
	frame, err := signal.Encode(signal.IncomingCall{
		CallID:   route.CallID,
		Message:  route.Message,
		FromTeam: route.From,
	})
	if err != nil {
		return 0, err
	}

	r := route
	r.teams = make(map[string]bool, len(route.Targets))
	for _, key := range route.Targets {
		if team := models.KeyTeam(key); team != "" {
			r.teams[team] = true
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = h.now()
	}

	h.mu.Lock()
	if _, exists := h.routes[r.CallID]; exists {
		h.mu.Unlock()
		return 0, ErrRouteExists
	}
	h.routes[r.CallID] = &r
	h.mu.Unlock()

	return h.fanOut(frame, func(c *Client) bool {
		return c.ID != r.OriginID && c.Identity.CanReceive() && r.teams[c.Identity.TeamName]
	}), nil
}

// RelayStatus forwards a recipient team's decision to every client calling
// under the route's sender name.
func (h *Hub) RelayStatus(callID, toTeam string, status signal.Status) (int, error) {
	h.mu.RLock()
	route, ok := h.routes[callID]
	h.mu.RUnlock()
	if !ok || !route.HasTeam(toTeam) {
		return 0, ErrUnknownRoute
	}

	frame, err := signal.Encode(signal.CallStatusUpdate{CallID: callID, ToDept: toTeam, Status: status})
	if err != nil {
		return 0, err
	}

	return h.fanOut(frame, func(c *Client) bool {
		return c.Identity.From() == route.From
	}), nil
}

// Cancel withdraws a call from its recipient teams and forgets the route.
func (h *Hub) Cancel(callID, from string) (int, error) {
	h.mu.Lock()
	route, ok := h.routes[callID]
	if !ok {
		h.mu.Unlock()
		return 0, ErrUnknownRoute
	}
	if route.From != from {
		h.mu.Unlock()
		return 0, ErrNotCaller
	}
	delete(h.routes, callID)
	h.mu.Unlock()

	frame, err := signal.Encode(signal.CallCancelled{CallID: callID, FromTeam: from})
	if err != nil {
		return 0, err
	}

	return h.fanOut(frame, func(c *Client) bool {
		return c.ID != route.OriginID && c.Identity.CanReceive() && route.teams[c.Identity.TeamName]
	}), nil
}

func (h *Hub) Route(callID string) (Route, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	route, ok := h.routes[callID]
	if !ok {
		return Route{}, false
	}
	return *route, true
}

// PruneRoutes drops routes older than the route TTL.
func (h *Hub) PruneRoutes() int {
	cutoff := h.now().Add(-h.routeTTL)

	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for id, route := range h.routes {
		if route.CreatedAt.Before(cutoff) {
			delete(h.routes, id)
			removed++
		}
	}
	return removed
}

// OnlineTeams lists the teams with at least one connected, registered client.
func (h *Hub) OnlineTeams() []string {
	h.mu.RLock()
	seen := make(map[string]bool)
	teams := []string{}
	for _, client := range h.clients {
		team := client.Identity.TeamName
		if team != "" && !seen[team] {
			seen[team] = true
			teams = append(teams, team)
		}
	}
	h.mu.RUnlock()

	sort.Strings(teams)
	return teams
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanOut(frame []byte, match func(*Client) bool) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, client := range h.clients {
		if !match(client) {
			continue
		}
		select {
		case client.Send <- frame:
			delivered++
		default:
			// Client buffer full, skip
			h.log.Warn("dropped frame for slow client", "client_id", client.ID)
		}
	}
	return delivered
}
