package domain

import (
	"slices"
	"time"
)

// Room is the client's view of a server-side drawing room
type Room struct {
	ID                       string    `json:"id"`
	Name                     string    `json:"name"`
	MaxParticipants          int       `json:"maxParticipants"`
	CurrentParticipantsCount int       `json:"currentParticipantsCount"`
	Participants             []string  `json:"participants"` // join order, index 0 is the host
	CreatedAt                time.Time `json:"createdAt"`
}

// Host returns the id of the first participant, the room creator
func (r Room) Host() (string, bool) {
	if len(r.Participants) == 0 {
		return "", false
	}
	return r.Participants[0], true
}

// IsFull reports whether the room has no free seat left
func (r Room) IsFull() bool {
	return r.MaxParticipants > 0 && r.CurrentParticipantsCount >= r.MaxParticipants
}

// HasParticipant reports whether userID is in the participant list
func (r Room) HasParticipant(userID string) bool {
	return slices.Contains(r.Participants, userID)
}

// Clone returns a deep copy so readers never alias store-owned slices
func (r Room) Clone() Room {
	r.Participants = slices.Clone(r.Participants)
	if r.Participants == nil {
		r.Participants = []string{}
	}
	return r
}

// ConnectionState mirrors the transport lifecycle for views
type ConnectionState struct {
	IsConnected  bool   `json:"isConnected"`
	IsConnecting bool   `json:"isConnecting"`
	Error        string `json:"error,omitempty"` // empty means no error
}
