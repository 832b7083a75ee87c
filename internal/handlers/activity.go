package handlers

import (
	"github.com/anhducle99/bluecode/internal/middleware"
	"github.com/anhducle99/bluecode/internal/sse"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
)

// SSEHubInterface defines the methods used by the activity stream from the SSE hub
type SSEHubInterface interface {
	Register(client *sse.Client)
	Unregister(client *sse.Client)
}

type ActivityHandler struct {
	hub SSEHubInterface
}

func NewActivityHandler(hub SSEHubInterface) *ActivityHandler {
	return &ActivityHandler{hub: hub}
}

// Stream pushes call activity for the caller's team (or name, when
// team-less) as server-sent events until the request ends.
func (h *ActivityHandler) Stream(c *drift.Context) {
	identity := middleware.GetIdentity(c)
	if identity.IsZero() {
		c.Unauthorized("not authenticated")
		return
	}

	sseCtx := c.SSE()

	client := &sse.Client{
		ID:    uuid.New().String(),
		Party: identity.From(),
		Send:  make(chan []byte, 256),
	}

	h.hub.Register(client)
	defer h.hub.Unregister(client)

	if err := sseCtx.SendJSON(map[string]string{
		"type":      "connected",
		"client_id": client.ID,
	}, "system", ""); err != nil {
		return
	}

	done := c.Request.Context().Done()
	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			if err := sseCtx.Send(string(msg), "message", ""); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
