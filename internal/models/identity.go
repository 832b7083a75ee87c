package models

// Identity is the caller/recipient identity a client registers with the
// signaling server. It changes only at login and logout.
type Identity struct {
	DisplayName string `json:"name"`
	TeamID      string `json:"team_id,omitempty"`
	TeamName    string `json:"team_name,omitempty"`
}

// CanReceive reports whether the identity is eligible for incoming rings.
// Team-less identities may originate calls but are never rung.
func (i Identity) CanReceive() bool {
	return i.TeamName != ""
}

// From is the name calls are placed under: the team when there is one,
// the display name otherwise.
func (i Identity) From() string {
	if i.TeamName != "" {
		return i.TeamName
	}
	return i.DisplayName
}

func (i Identity) Key() string {
	return RecipientKey(i.DisplayName, i.TeamName)
}

func (i Identity) IsZero() bool {
	return i == Identity{}
}
