// Package domain contains core concepts of the chat system.
// This file defines Message records and the rules of their lifecycle.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MutabilityWindow is how long after creation a sender may still edit or
// delete a message.
const MutabilityWindow = 5 * time.Minute

// DeletedPlaceholder is what clients render in place of a tombstone.
const DeletedPlaceholder = "message deleted"

// Message is a persisted direct message between two users.
// It is never physically removed: deletion turns it into a tombstone.
type Message struct {
	ID        uuid.UUID `json:"_id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Text      string    `json:"text"`
	File      *string   `json:"file"`
	IsDeleted bool      `json:"isDeleted"`
	IsEdited  bool      `json:"isEdited"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewMessage builds a fresh record. The id is a UUIDv7 so that it sorts by
// creation time and carries that time as a fallback source.
func NewMessage(sender, recipient, text string, file *string, at time.Time) (Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Message{}, err
	}
	at = at.UTC()
	return Message{
		ID:        id,
		Sender:    sender,
		Recipient: recipient,
		Text:      text,
		File:      file,
		CreatedAt: at,
		UpdatedAt: at,
	}, nil
}

// HasContent reports whether a send intent carries something to deliver.
func HasContent(text string, file *string) bool {
	return text != "" || (file != nil && *file != "")
}

// CreationTime is the single source of a message's age, shared by the
// server-side authorization and the client-side action display.
// The stored CreatedAt wins; the time embedded in a UUIDv7 id is used only
// when CreatedAt was never set.
func CreationTime(m Message) time.Time {
	if !m.CreatedAt.IsZero() {
		return m.CreatedAt
	}
	return IDTime(m.ID)
}

// IDTime extracts the creation time embedded in a time-based UUID.
// It returns the zero time for ids that carry none.
func IDTime(id uuid.UUID) time.Time {
	switch id.Version() {
	case 1, 2, 6, 7:
		sec, nsec := id.Time().UnixTime()
		return time.Unix(sec, nsec).UTC()
	default:
		return time.Time{}
	}
}

// WithinWindow reports whether the message is still mutable at now.
// The boundary itself is inclusive.
func WithinWindow(m Message, now time.Time, window time.Duration) bool {
	created := CreationTime(m)
	if created.IsZero() {
		return false
	}
	return now.Sub(created) <= window
}

// CanEditOrDelete tells whether requester may change the message at now.
// Tombstones are never mutable again.
func CanEditOrDelete(m Message, requester string, now time.Time, window time.Duration) bool {
	return !m.IsDeleted && m.Sender == requester && WithinWindow(m, now, window)
}

// Edit replaces the text and marks the message as edited for good.
func (m *Message) Edit(text string, at time.Time) {
	m.Text = text
	m.IsEdited = true
	m.UpdatedAt = at.UTC()
}

// Tombstone clears the content while keeping the record in history.
func (m *Message) Tombstone(at time.Time) {
	m.Text = ""
	m.File = nil
	m.IsDeleted = true
	m.UpdatedAt = at.UTC()
}

// Involves reports whether user is one side of the conversation.
func (m Message) Involves(user string) bool {
	return m.Sender == user || m.Recipient == user
}

// PairKey returns both participants in a stable order so that (a, b) and
// (b, a) address the same conversation.
func PairKey(a, b string) (string, string) {
	if a <= b {
		return a, b
	}
	return b, a
}
