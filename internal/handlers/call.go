package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/anhducle99/bluecode/internal/logger"
	"github.com/anhducle99/bluecode/internal/middleware"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/services"
	"github.com/anhducle99/bluecode/pkg/dto"
	"github.com/m1z23r/drift/pkg/drift"
)

type CallHandler struct {
	calls    CallServiceInterface
	hub      HubInterface
	activity ActivityPublisher
	log      *slog.Logger
}

func NewCallHandler(calls CallServiceInterface, hub HubInterface, activity ActivityPublisher, log *slog.Logger) *CallHandler {
	return &CallHandler{
		calls:    calls,
		hub:      hub,
		activity: activity,
		log:      logger.OrDefault(log).With("component", "calls"),
	}
}

func (h *CallHandler) Create(c *drift.Context) {
	identity := middleware.GetIdentity(c)
	if identity.IsZero() {
		c.Unauthorized("not authenticated")
		return
	}

	var req dto.CreateCallRequest
	if err := c.BindJSON(&req); err != nil {
		c.BadRequest("invalid request body")
		return
	}

	if req.FromTeam == "" {
		req.FromTeam = identity.From()
	}
	if req.FromTeam != identity.From() {
		c.Forbidden("cannot place calls for another sender")
		return
	}

	targets := models.UniqueTargets(req.TargetKeys)
	if len(targets) == 0 {
		c.BadRequest("targetKeys is required")
		return
	}

	call, err := h.calls.Create(context.Background(), req.FromTeam, req.Message, targets)
	if errors.Is(err, services.ErrNoTargets) || errors.Is(err, models.ErrInvalidRecipientKey) {
		c.BadRequest(err.Error())
		return
	}
	if err != nil {
		h.log.Error("failed to create call", "from", req.FromTeam, "error", err)
		c.InternalServerError("failed to create call")
		return
	}

	h.log.Info("call created", "call_id", call.CallID, "from", call.FromTeam, "targets", len(call.Targets))

	_ = c.JSON(201, dto.CreateCallResponse{
		Success: true,
		CallID:  call.CallID,
	})
}

func (h *CallHandler) Cancel(c *drift.Context) {
	identity := middleware.GetIdentity(c)
	if identity.IsZero() {
		c.Unauthorized("not authenticated")
		return
	}

	callID := c.Param("callId")
	if callID == "" {
		c.BadRequest("call id is required")
		return
	}

	ctx := context.Background()

	call, err := h.calls.GetByCallID(ctx, callID)
	if errors.Is(err, services.ErrCallNotFound) {
		c.NotFound("call not found")
		return
	}
	if err != nil {
		c.InternalServerError("failed to get call")
		return
	}
	if call.FromTeam != identity.From() {
		c.Forbidden("call was placed by another sender")
		return
	}

	cancelled, err := h.calls.Cancel(ctx, callID)
	if err != nil {
		h.log.Error("failed to cancel call", "call_id", callID, "error", err)
		c.InternalServerError("failed to cancel call")
		return
	}

	// Ringing recipients drop the prompt; an unknown route just means nobody
	// is ringing any more.
	_, _ = h.hub.Cancel(callID, call.FromTeam)
	h.activity.PublishCallCancelled(call.FromTeam, callID, callTeams(call))

	_ = c.JSON(200, dto.CancelCallResponse{
		Success:   true,
		Cancelled: cancelled,
	})
}

func (h *CallHandler) History(c *drift.Context) {
	identity := middleware.GetIdentity(c)
	if identity.IsZero() {
		c.Unauthorized("not authenticated")
		return
	}

	filter := services.HistoryFilter{
		Party:    c.QueryParam("party"),
		Sender:   c.QueryParam("sender"),
		Receiver: c.QueryParam("receiver"),
	}
	if filter.Party == "" && filter.Sender == "" && filter.Receiver == "" {
		filter.Party = identity.From()
	}

	var err error
	if filter.From, err = parseDateParam(c.QueryParam("startDate"), false); err != nil {
		c.BadRequest("invalid startDate")
		return
	}
	if filter.To, err = parseDateParam(c.QueryParam("endDate"), true); err != nil {
		c.BadRequest("invalid endDate")
		return
	}
	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			c.BadRequest("invalid limit")
			return
		}
		filter.Limit = n
	}

	logs, err := h.calls.History(context.Background(), filter)
	if err != nil {
		h.log.Error("failed to load call history", "error", err)
		c.InternalServerError("failed to load call history")
		return
	}

	_ = c.JSON(200, logs)
}

// parseDateParam accepts RFC 3339 timestamps or plain dates. A plain end
// date covers the whole day.
func parseDateParam(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
