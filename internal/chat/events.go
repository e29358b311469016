package chat

import (
	"encoding/json"
	"fmt"
	"time"
)

// Wire events exchanged with the chat service.
const (
	EventJoinUser             = "joinUser"
	EventSendDirectMessage    = "sendDirectMessage"
	EventReceiveDirectMessage = "receiveDirectMessage"
	EventMessageSent          = "messageSent"
)

// Envelope is the tagged frame carried over the socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

type JoinUser struct {
	UserID string `json:"userId"`
}

// OutgoingMessage is the sendDirectMessage payload.
type OutgoingMessage struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	SenderType string `json:"senderType"`
	LocalID    string `json:"localId,omitempty"`
}

// IncomingMessage is the payload of receiveDirectMessage and messageSent.
// The service may send its id as either id or _id.
type IncomingMessage struct {
	ID         string    `json:"id"`
	MongoID    string    `json:"_id"`
	LocalID    string    `json:"localId"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Message    string    `json:"message"`
	SenderType string    `json:"senderType"`
	Timestamp  time.Time `json:"timestamp"`
}

func (m IncomingMessage) serverID() string {
	if m.ID != "" {
		return m.ID
	}
	return m.MongoID
}
