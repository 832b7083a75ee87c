package dto

type CreateCallRequest struct {
	FromTeam   string   `json:"fromTeam"`
	Message    string   `json:"message"`
	TargetKeys []string `json:"targetKeys"`
}

type CreateCallResponse struct {
	Success bool   `json:"success"`
	CallID  string `json:"callId"`
}

type CancelCallResponse struct {
	Success   bool  `json:"success"`
	Cancelled int64 `json:"cancelled"`
}

type PresenceResponse struct {
	Teams []string `json:"teams"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

