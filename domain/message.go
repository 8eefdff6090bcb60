// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once stored; only their deletion is allowed.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	PublicMessage  MessageType = "message"
	PrivateMessage MessageType = "private_message"
	StatusMessage  MessageType = "status"
)

const (
	// Everyone is the recipient marker of broadcast and status messages.
	Everyone = "all"

	JoinedText = "entra na sala..."
	LeftText   = "sai da sala..."

	// DisplayTimeLayout is how a message creation time is shown to clients.
	DisplayTimeLayout = "15:04:05"
)

// Message represents an immutable chat event.
type Message struct {
	ID        uuid.UUID // assigned by the store on append
	From      string
	To        string
	Text      string
	Type      MessageType
	CreatedAt time.Time
}

// DisplayTime formats the creation time for clients.
func (m Message) DisplayTime() string {
	return m.CreatedAt.UTC().Format(DisplayTimeLayout)
}

// NewStatusMessage builds the public notice emitted when name joins or leaves.
func NewStatusMessage(name, text string, at time.Time) Message {
	return Message{
		From:      name,
		To:        Everyone,
		Text:      text,
		Type:      StatusMessage,
		CreatedAt: at.UTC(),
	}
}

// Visible decides whether viewer may read msg. Broadcast and status messages
// are public, private ones only reach their sender and recipient.
func Visible(viewer string, msg Message) bool {
	if msg.Type != PrivateMessage {
		return true
	}
	return viewer == msg.From || viewer == msg.To
}
