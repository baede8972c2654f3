package domain

import (
	"github.com/google/uuid"
)

// User represents a participant of the drawing session
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"` // hex display color, optional
}

// NewUser creates a new User with a generated ID
func NewUser(name, color string) *User {
	return &User{
		ID:    uuid.New().String(),
		Name:  name,
		Color: color,
	}
}
