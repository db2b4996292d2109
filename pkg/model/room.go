package model

import (
	"time"

	"github.com/google/uuid"
)

type RoomID string

// NewRoomID generates a new unique RoomID
func NewRoomID() RoomID {
	return RoomID(uuid.New().String())
}

type AccountID string

// NewAccountID generates a new unique AccountID
func NewAccountID() AccountID {
	return AccountID(uuid.New().String())
}

type ParticipantID string

// NewParticipantID generates a new unique ParticipantID
func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.New().String())
}

// Room is a conversation scope. Memories belong to exactly one room and are
// removed with it.
type Room struct {
	ID        RoomID
	CreatedAt time.Time
}

// Account identifies a user or an agent.
type Account struct {
	ID        AccountID
	Name      string
	Username  string
	Email     string
	Details   map[string]any
	CreatedAt time.Time
}

// Participant links an account to a room.
type Participant struct {
	ID        ParticipantID
	UserID    AccountID
	RoomID    RoomID
	CreatedAt time.Time
}
