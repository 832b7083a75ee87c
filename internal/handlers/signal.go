package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/anhducle99/bluecode/internal/hub"
	"github.com/anhducle99/bluecode/internal/logger"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/services"
	"github.com/anhducle99/bluecode/internal/signal"
	"github.com/anhducle99/bluecode/pkg/dto"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/websocket"
)

const (
	signalPingInterval = 30 * time.Second
	signalWriteTimeout = 10 * time.Second
	signalReadTimeout  = 60 * time.Second
	signalOpTimeout    = 5 * time.Second
)

type SignalHandler struct {
	hub      HubInterface
	calls    CallServiceInterface
	ledger   services.StatusLedger
	activity ActivityPublisher
	tokens   TokenValidator
	log      *slog.Logger
}

func NewSignalHandler(hub HubInterface, calls CallServiceInterface, ledger services.StatusLedger, activity ActivityPublisher, tokens TokenValidator, log *slog.Logger) *SignalHandler {
	return &SignalHandler{
		hub:      hub,
		calls:    calls,
		ledger:   ledger,
		activity: activity,
		tokens:   tokens,
		log:      logger.OrDefault(log).With("component", "signal"),
	}
}

// peer is the server side of one signaling connection.
type peer struct {
	client   *hub.Client
	identity models.Identity
}

func (p *peer) send(ev signal.Event) {
	frame, err := signal.Encode(ev)
	if err != nil {
		return
	}
	select {
	case p.client.Send <- frame:
	default:
		// Client buffer full, skip
	}
}

func (p *peer) fail(message string, ref signal.Type) {
	p.send(signal.Error{Message: message, RefType: ref})
}

func (h *SignalHandler) Connect(c *drift.Context) {
	// Extract and validate JWT before upgrading
	token := c.QueryParam("token")
	if token == "" {
		c.Unauthorized("token is required")
		return
	}

	claims, err := h.tokens.ValidateAccessToken(token)
	if err != nil {
		c.Unauthorized("invalid token")
		return
	}

	conn, err := websocket.Upgrade(c)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	p := &peer{
		client: &hub.Client{
			ID:       uuid.New().String(),
			Identity: claims.Identity(),
			Send:     make(chan []byte, 256),
		},
		identity: claims.Identity(),
	}
	log := h.log.With("client_id", p.client.ID)

	h.hub.Register(p.client)

	if err := conn.WriteText(string(signal.MustEncode(signal.Connected{ClientID: p.client.ID}))); err != nil {
		h.hub.Unregister(p.client)
		return
	}
	log.Info("signaling client connected", "name", p.identity.DisplayName, "team", p.identity.TeamName)

	done := make(chan struct{})

	// Write pump
	go func() {
		ticker := time.NewTicker(signalPingInterval)
		defer ticker.Stop()
		defer func() {
			if err := conn.Close(websocket.CloseNormalClosure, ""); err != nil {
				log.Debug("websocket close error", "error", err)
			}
		}()

		for {
			select {
			case msg, ok := <-p.client.Send:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(signalWriteTimeout))
				if err := conn.WriteText(string(msg)); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.Ping(nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Read pump (blocks until disconnect)
	func() {
		defer func() {
			close(done)
			h.hub.Unregister(p.client)
			log.Info("signaling client disconnected")
		}()

		for {
			_ = conn.SetReadDeadline(time.Now().Add(signalReadTimeout))
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}

			if msgType != websocket.TextMessage {
				continue
			}

			h.handleFrame(p, data)
		}
	}()
}

func (h *SignalHandler) handleFrame(p *peer, data []byte) {
	ev, err := signal.Decode(data)
	if err != nil {
		p.fail(err.Error(), "")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), signalOpTimeout)
	defer cancel()

	switch e := ev.(type) {
	case signal.Register:
		h.handleRegister(p, e)
	case signal.StartCall:
		h.handleStartCall(ctx, p, e)
	case signal.CancelCall:
		h.handleCancelCall(ctx, p, e)
	case signal.Decision:
		h.handleDecision(ctx, p, e, ev.Type())
	default:
		p.fail("unexpected event", ev.Type())
	}
}

func (h *SignalHandler) handleRegister(p *peer, ev signal.Register) {
	identity := ev.Identity()
	if identity != p.identity {
		h.log.Info("client re-registered", "client_id", p.client.ID,
			"name", identity.DisplayName, "team", identity.TeamName)
	}
	p.identity = identity
	h.hub.Identify(p.client.ID, identity)

	p.send(signal.Registered{Name: identity.DisplayName, TeamName: identity.TeamName})
}

func (h *SignalHandler) handleStartCall(ctx context.Context, p *peer, ev signal.StartCall) {
	if ev.From != p.identity.From() {
		p.fail("from does not match registered identity", ev.Type())
		return
	}

	call, err := h.calls.GetByCallID(ctx, ev.CallID)
	if errors.Is(err, services.ErrCallNotFound) {
		p.fail("unknown call", ev.Type())
		return
	}
	if err != nil {
		h.log.Error("failed to load call", "call_id", ev.CallID, "error", err)
		p.fail("failed to load call", ev.Type())
		return
	}
	if call.FromTeam != ev.From {
		p.fail("call was placed by another sender", ev.Type())
		return
	}

	// Persisted targets are authoritative
	rung, err := h.hub.Ring(hub.Route{
		CallID:    call.CallID,
		From:      call.FromTeam,
		OriginID:  p.client.ID,
		Message:   call.Message,
		Targets:   call.Targets,
		CreatedAt: call.CreatedAt,
	})
	if errors.Is(err, hub.ErrRouteExists) {
		h.log.Debug("duplicate startCall ignored", "call_id", call.CallID)
		return
	}
	if err != nil {
		p.fail("failed to route call", ev.Type())
		return
	}

	h.log.Info("call started", "call_id", call.CallID, "from", call.FromTeam,
		"targets", len(call.Targets), "rung", rung)
	h.activity.PublishCallCreated(call.FromTeam, call.CallID, call.Message, call.Targets, callTeams(call), call.CreatedAt)
}

func (h *SignalHandler) handleCancelCall(ctx context.Context, p *peer, ev signal.CancelCall) {
	if ev.From != p.identity.From() {
		p.fail("from does not match registered identity", ev.Type())
		return
	}

	rung, err := h.hub.Cancel(ev.CallID, ev.From)
	switch {
	case errors.Is(err, hub.ErrNotCaller):
		p.fail(err.Error(), ev.Type())
		return
	case errors.Is(err, hub.ErrUnknownRoute):
		// Already cancelled over REST or pruned; the record may still be pending
	case err != nil:
		p.fail("failed to cancel call", ev.Type())
		return
	}

	if _, err := h.calls.Cancel(ctx, ev.CallID); err != nil {
		h.log.Error("failed to persist cancellation", "call_id", ev.CallID, "error", err)
	}
	if rung > 0 {
		h.log.Info("call cancelled", "call_id", ev.CallID, "notified", rung)
	}
}

func (h *SignalHandler) handleDecision(ctx context.Context, p *peer, ev signal.Decision, ref signal.Type) {
	callID, toTeam, status := ev.Decision()

	if !p.identity.CanReceive() || toTeam != p.identity.TeamName {
		p.fail("cannot answer for another team", ref)
		return
	}
	// Routes live on the replica that rang the call; an unknown route is
	// left to the ledger and the database.
	if route, ok := h.hub.Route(callID); ok && !route.HasTeam(toTeam) {
		p.fail("call was not routed to your team", ref)
		return
	}

	claimed, err := h.ledger.Claim(ctx, callID, toTeam)
	held := err == nil
	if err != nil {
		// Fall back to the pending-only update as the arbiter
		h.log.Warn("status ledger unavailable", "error", err)
		claimed = true
	}
	if !claimed {
		h.log.Debug("duplicate status ignored", "call_id", callID, "team", toTeam, "status", status)
		return
	}

	updated, err := h.calls.MarkStatus(ctx, callID, toTeam, status.CallLogStatus())
	if err != nil {
		h.log.Error("failed to record call status", "call_id", callID, "team", toTeam, "error", err)
		if held {
			if err := h.ledger.Release(ctx, callID, toTeam); err != nil {
				h.log.Warn("failed to release status claim", "call_id", callID, "team", toTeam, "error", err)
			}
		}
		p.fail("failed to record status", ref)
		return
	}
	if updated == 0 {
		h.log.Debug("status for settled call ignored", "call_id", callID, "team", toTeam, "status", status)
		return
	}

	relayed, err := h.hub.RelayStatus(callID, toTeam, status)
	if err != nil {
		h.log.Debug("status not relayed", "call_id", callID, "team", toTeam, "error", err)
	}
	h.log.Info("call status recorded", "call_id", callID, "team", toTeam, "status", status, "relayed", relayed)

	if call, err := h.calls.GetByCallID(ctx, callID); err == nil {
		h.activity.PublishCallStatus(call.FromTeam, callID, toTeam, status.CallLogStatus())
	}
}

// Presence lists the teams with a connected signaling client.
func (h *SignalHandler) Presence(c *drift.Context) {
	_ = c.JSON(200, dto.PresenceResponse{Teams: h.hub.OnlineTeams()})
}
