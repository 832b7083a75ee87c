package handlers

import (
	"context"
	"time"

	"github.com/anhducle99/bluecode/internal/hub"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/services"
	"github.com/anhducle99/bluecode/internal/signal"
)

// CallServiceInterface defines the methods used by handlers from CallService
type CallServiceInterface interface {
	Create(ctx context.Context, sender, message string, targetKeys []string) (*models.Call, error)
	GetByCallID(ctx context.Context, callID string) (*models.Call, error)
	MarkStatus(ctx context.Context, callID, receiverTeam, status string) (int64, error)
	Cancel(ctx context.Context, callID string) (int64, error)
	History(ctx context.Context, filter services.HistoryFilter) ([]models.CallLog, error)
}

// HubInterface defines the methods used by handlers from the signaling Hub
type HubInterface interface {
	Register(client *hub.Client)
	Unregister(client *hub.Client)
	Identify(clientID string, identity models.Identity) bool
	Ring(route hub.Route) (int, error)
	RelayStatus(callID, toTeam string, status signal.Status) (int, error)
	Cancel(callID, from string) (int, error)
	Route(callID string) (hub.Route, bool)
	OnlineTeams() []string
	ClientCount() int
}

// ActivityPublisher defines the methods used by handlers from the SSE hub
type ActivityPublisher interface {
	PublishCallCreated(fromTeam, callID, message string, targets []string, teams []string, createdAt time.Time)
	PublishCallStatus(fromTeam, callID, team, status string)
	PublishCallCancelled(fromTeam, callID string, teams []string)
}

// TokenValidator defines the methods used by handlers from JWTService
type TokenValidator interface {
	ValidateAccessToken(token string) (*services.Claims, error)
}

func callTeams(call *models.Call) []string {
	seen := make(map[string]bool, len(call.Targets))
	var teams []string
	for _, key := range call.Targets {
		team := models.KeyTeam(key)
		if team != "" && !seen[team] {
			seen[team] = true
			teams = append(teams, team)
		}
	}
	return teams
}
