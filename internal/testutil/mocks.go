package testutil

import (
	"context"
	"time"

	"github.com/anhducle99/bluecode/internal/hub"
	"github.com/anhducle99/bluecode/internal/models"
	"github.com/anhducle99/bluecode/internal/services"
	"github.com/anhducle99/bluecode/internal/signal"
	"github.com/anhducle99/bluecode/internal/sse"
	"github.com/stretchr/testify/mock"
)

// MockCallService mocks the CallService
type MockCallService struct {
	mock.Mock
}

func (m *MockCallService) Create(ctx context.Context, sender, message string, targetKeys []string) (*models.Call, error) {
	args := m.Called(ctx, sender, message, targetKeys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Call), args.Error(1)
}

func (m *MockCallService) GetByCallID(ctx context.Context, callID string) (*models.Call, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Call), args.Error(1)
}

func (m *MockCallService) MarkStatus(ctx context.Context, callID, receiverTeam, status string) (int64, error) {
	args := m.Called(ctx, callID, receiverTeam, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCallService) Cancel(ctx context.Context, callID string) (int64, error) {
	args := m.Called(ctx, callID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCallService) History(ctx context.Context, filter services.HistoryFilter) ([]models.CallLog, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CallLog), args.Error(1)
}

// MockHub mocks the signaling Hub
type MockHub struct {
	mock.Mock
}

func (m *MockHub) Register(client *hub.Client) {
	m.Called(client)
}

func (m *MockHub) Unregister(client *hub.Client) {
	m.Called(client)
}

func (m *MockHub) Identify(clientID string, identity models.Identity) bool {
	args := m.Called(clientID, identity)
	return args.Bool(0)
}

func (m *MockHub) Ring(route hub.Route) (int, error) {
	args := m.Called(route)
	return args.Int(0), args.Error(1)
}

func (m *MockHub) RelayStatus(callID, toTeam string, status signal.Status) (int, error) {
	args := m.Called(callID, toTeam, status)
	return args.Int(0), args.Error(1)
}

func (m *MockHub) Cancel(callID, from string) (int, error) {
	args := m.Called(callID, from)
	return args.Int(0), args.Error(1)
}

func (m *MockHub) Route(callID string) (hub.Route, bool) {
	args := m.Called(callID)
	return args.Get(0).(hub.Route), args.Bool(1)
}

func (m *MockHub) OnlineTeams() []string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockHub) ClientCount() int {
	args := m.Called()
	return args.Int(0)
}

// MockLedger mocks a StatusLedger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Claim(ctx context.Context, callID, team string) (bool, error) {
	args := m.Called(ctx, callID, team)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedger) Release(ctx context.Context, callID, team string) error {
	args := m.Called(ctx, callID, team)
	return args.Error(0)
}

// MockActivity mocks the SSE activity publisher
type MockActivity struct {
	mock.Mock
}

func (m *MockActivity) PublishCallCreated(fromTeam, callID, message string, targets []string, teams []string, createdAt time.Time) {
	m.Called(fromTeam, callID, message, targets, teams, createdAt)
}

func (m *MockActivity) PublishCallStatus(fromTeam, callID, team, status string) {
	m.Called(fromTeam, callID, team, status)
}

func (m *MockActivity) PublishCallCancelled(fromTeam, callID string, teams []string) {
	m.Called(fromTeam, callID, teams)
}

// MockSSEHub mocks the SSE hub registry
type MockSSEHub struct {
	mock.Mock
}

func (m *MockSSEHub) Register(client *sse.Client) {
	m.Called(client)
}

func (m *MockSSEHub) Unregister(client *sse.Client) {
	m.Called(client)
}
