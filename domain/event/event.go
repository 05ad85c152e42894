// Package event defines the frames exchanged over the persistent connection.
// Every frame is a JSON envelope {"type": ..., "data": ...}.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"nexchat/domain"
	"nexchat/domain/chat"
	"nexchat/errors"

	"github.com/google/uuid"
)

type Type string

const (
	// Client -> server
	SendMessage   Type = "send-message"
	UpdateMessage Type = "update-message"
	DeleteMessage Type = "delete-message"

	// Server -> client
	OnlineUsersType    Type = "online-users"
	ReceiveMessageType Type = "receive-message"
	MessageUpdatedType Type = "message-updated"
	MessageDeletedType Type = "message-deleted"
	ErrorType          Type = "error"
)

type Envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ServerEvent is anything the server pushes to a live connection.
type ServerEvent interface {
	EventType() Type
}

// OnlineUsers is the full presence snapshot, one entry per online user.
type OnlineUsers []domain.Identity

func (OnlineUsers) EventType() Type { return OnlineUsersType }

// ReceiveMessage carries a freshly persisted message.
type ReceiveMessage struct {
	domain.Message
}

func (ReceiveMessage) EventType() Type { return ReceiveMessageType }

type MessageUpdated struct {
	ID        uuid.UUID `json:"_id"`
	Text      string    `json:"text"`
	IsEdited  bool      `json:"isEdited"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (MessageUpdated) EventType() Type { return MessageUpdatedType }

type MessageDeleted struct {
	ID        uuid.UUID `json:"_id"`
	IsDeleted bool      `json:"isDeleted"`
}

func (MessageDeleted) EventType() Type { return MessageDeletedType }

// Error reports a rejected intent to the connection that sent it.
// Action and the optional references let a client roll back the matching
// optimistic change.
type Error struct {
	Message   string `json:"message"`
	Action    Type   `json:"action,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Recipient string `json:"recipient,omitempty"`
}

func (Error) EventType() Type { return ErrorType }

func NewReceiveMessage(m domain.Message) ReceiveMessage {
	return ReceiveMessage{Message: m}
}

func NewMessageUpdated(m domain.Message) MessageUpdated {
	return MessageUpdated{ID: m.ID, Text: m.Text, IsEdited: m.IsEdited, UpdatedAt: m.UpdatedAt}
}

func NewMessageDeleted(m domain.Message) MessageDeleted {
	return MessageDeleted{ID: m.ID, IsDeleted: m.IsDeleted}
}

// Encode wraps a server event into its wire envelope.
func Encode(evt ServerEvent) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: evt.EventType(), Data: data})
}

// Decode parses a server frame. It is the client-side counterpart of Encode.
func Decode(frame []byte) (ServerEvent, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, err
	}
	var evt ServerEvent
	switch env.Type {
	case OnlineUsersType:
		var e OnlineUsers
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		evt = e
	case ReceiveMessageType:
		var e ReceiveMessage
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		evt = e
	case MessageUpdatedType:
		var e MessageUpdated
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		evt = e
	case MessageDeletedType:
		var e MessageDeleted
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		evt = e
	case ErrorType:
		var e Error
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, err
		}
		evt = e
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, env.Type)
	}
	return evt, nil
}

// EncodeIntent wraps a client intent into its wire envelope.
func EncodeIntent(t Type, intent any) ([]byte, error) {
	data, err := json.Marshal(intent)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: t, Data: data})
}

// DecodeIntent parses a client frame into one of the chat commands.
func DecodeIntent(frame []byte) (Type, any, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errors.ErrInvalidIntent, err)
	}
	var intent any
	var err error
	switch env.Type {
	case SendMessage:
		var cmd chat.SendMessageCommand
		err = json.Unmarshal(env.Data, &cmd)
		intent = cmd
	case UpdateMessage:
		var cmd chat.UpdateMessageCommand
		err = json.Unmarshal(env.Data, &cmd)
		intent = cmd
	case DeleteMessage:
		var cmd chat.DeleteMessageCommand
		err = json.Unmarshal(env.Data, &cmd)
		intent = cmd
	default:
		return env.Type, nil, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, env.Type)
	}
	if err != nil {
		return env.Type, nil, fmt.Errorf("%w: %v", errors.ErrInvalidIntent, err)
	}
	return env.Type, intent, nil
}
