package chat

import (
	"sort"
	"strings"
	"time"
)

const tempIDPrefix = "temp-"

type Status string

const (
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusDelivered Status = "delivered"
)

// Message is one entry of the conversation history.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Message    string    `json:"message"`
	SenderType string    `json:"senderType"`
	Timestamp  time.Time `json:"timestamp"`
	Status     Status    `json:"status"`
}

// Queued reports whether the server has not confirmed the message yet.
func (m Message) Queued() bool {
	return m.Status != StatusDelivered
}

func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// QueuedMessage is an outbound message waiting for a connection.
type QueuedMessage struct {
	LocalID  string          `json:"localId"`
	Payload  OutgoingMessage `json:"payload"`
	QueuedAt time.Time       `json:"queuedAt"`
}

// Day is a calendar day of messages.
type Day struct {
	Date     string    `json:"date"`
	Messages []Message `json:"messages"`
}

// GroupByDay orders messages by timestamp and buckets them by calendar day in loc.
func GroupByDay(messages []Message, loc *time.Location) []Day {
	if loc == nil {
		loc = time.Local
	}
	sorted := append([]Message(nil), messages...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var days []Day
	for _, m := range sorted {
		date := m.Timestamp.In(loc).Format(time.DateOnly)
		if n := len(days); n > 0 && days[n-1].Date == date {
			days[n-1].Messages = append(days[n-1].Messages, m)
			continue
		}
		days = append(days, Day{Date: date, Messages: []Message{m}})
	}
	return days
}
