package signal

import (
	"github.com/anhducle99/bluecode/internal/models"
)

type Type string

const (
	TypeRegister         Type = "register"
	TypeRegistered       Type = "registered"
	TypeConnected        Type = "connected"
	TypeStartCall        Type = "startCall"
	TypeCancelCall       Type = "cancelCall"
	TypeIncomingCall     Type = "incomingCall"
	TypeCallCancelled    Type = "callCancelled"
	TypeCallAccepted     Type = "callAccepted"
	TypeCallRejected     Type = "callRejected"
	TypeCallTimeout      Type = "callTimeout"
	TypeCallStatusUpdate Type = "callStatusUpdate"
	TypeError            Type = "error"
)

// Event is one of the closed set of signaling messages defined in this
// package.
type Event interface {
	Type() Type
	validate() error
}

// Status is the recipient outcome carried by callStatusUpdate.
type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// RecipientStatus maps a wire status onto the sender-side status.
func (s Status) RecipientStatus() (models.RecipientStatus, bool) {
	switch s {
	case StatusAccepted:
		return models.StatusAccepted, true
	case StatusRejected:
		return models.StatusRejected, true
	case StatusTimeout:
		return models.StatusUnreachable, true
	case StatusCancelled:
		return models.StatusCancelled, true
	}
	return "", false
}

// CallLogStatus maps a wire status onto the persisted record status.
func (s Status) CallLogStatus() string {
	switch s {
	case StatusAccepted:
		return models.CallStatusAccepted
	case StatusRejected:
		return models.CallStatusRejected
	case StatusTimeout:
		return models.CallStatusTimeout
	case StatusCancelled:
		return models.CallStatusCancelled
	}
	return ""
}

type Register struct {
	Name     string `json:"name"`
	TeamID   string `json:"teamId,omitempty"`
	TeamName string `json:"teamName,omitempty"`
}

func RegisterFor(identity models.Identity) Register {
	return Register{Name: identity.DisplayName, TeamID: identity.TeamID, TeamName: identity.TeamName}
}

func (r Register) Identity() models.Identity {
	return models.Identity{DisplayName: r.Name, TeamID: r.TeamID, TeamName: r.TeamName}
}

type Registered struct {
	Name     string `json:"name"`
	TeamName string `json:"teamName,omitempty"`
}

type Connected struct {
	ClientID string `json:"clientId"`
}

type StartCall struct {
	CallID  string   `json:"callId"`
	From    string   `json:"from"`
	Targets []string `json:"targets"`
}

type CancelCall struct {
	CallID string `json:"callId"`
	From   string `json:"from"`
}

type IncomingCall struct {
	CallID   string `json:"callId"`
	Message  string `json:"message"`
	FromTeam string `json:"fromTeam"`
}

type CallCancelled struct {
	CallID   string `json:"callId"`
	FromTeam string `json:"fromTeam"`
}

type CallAccepted struct {
	CallID string `json:"callId"`
	ToTeam string `json:"toTeam"`
}

type CallRejected struct {
	CallID string `json:"callId"`
	ToTeam string `json:"toTeam"`
}

type CallTimeout struct {
	CallID string `json:"callId"`
	ToTeam string `json:"toTeam"`
	Reason string `json:"reason,omitempty"`
}

type CallStatusUpdate struct {
	CallID string `json:"callId"`
	ToDept string `json:"toDept"`
	Status Status `json:"status"`
}

type Error struct {
	Message string `json:"message"`
	RefType Type   `json:"refType,omitempty"`
}

func (Register) Type() Type         { return TypeRegister }
func (Registered) Type() Type       { return TypeRegistered }
func (Connected) Type() Type        { return TypeConnected }
func (StartCall) Type() Type        { return TypeStartCall }
func (CancelCall) Type() Type       { return TypeCancelCall }
func (IncomingCall) Type() Type     { return TypeIncomingCall }
func (CallCancelled) Type() Type    { return TypeCallCancelled }
func (CallAccepted) Type() Type     { return TypeCallAccepted }
func (CallRejected) Type() Type     { return TypeCallRejected }
func (CallTimeout) Type() Type      { return TypeCallTimeout }
func (CallStatusUpdate) Type() Type { return TypeCallStatusUpdate }
func (Error) Type() Type            { return TypeError }

// Decision is implemented by the three recipient decisions.
type Decision interface {
	Event
	Decision() (callID, toTeam string, status Status)
}

func (e CallAccepted) Decision() (string, string, Status) {
	return e.CallID, e.ToTeam, StatusAccepted
}

func (e CallRejected) Decision() (string, string, Status) {
	return e.CallID, e.ToTeam, StatusRejected
}

func (e CallTimeout) Decision() (string, string, Status) {
	return e.CallID, e.ToTeam, StatusTimeout
}

// NewDecision builds the recipient event reporting status for callID.
func NewDecision(callID, toTeam string, status Status) (Decision, bool) {
	switch status {
	case StatusAccepted:
		return CallAccepted{CallID: callID, ToTeam: toTeam}, true
	case StatusRejected:
		return CallRejected{CallID: callID, ToTeam: toTeam}, true
	case StatusTimeout:
		return CallTimeout{CallID: callID, ToTeam: toTeam, Reason: "no_answer"}, true
	}
	return nil, false
}
