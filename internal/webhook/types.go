package webhook

import "time"

// Payload is the envelope the messaging provider posts to the webhook
// endpoint: the destination bot user id plus a batch of events.
type Payload struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event is one inbound webhook event.
type Event struct {
	Type       string    `json:"type"`
	WebhookID  string    `json:"webhookEventId"`
	Mode       string    `json:"mode"`
	Timestamp  int64     `json:"timestamp"`
	Source     Source    `json:"source"`
	ReplyToken string    `json:"replyToken"`
	Message    *Message  `json:"message,omitempty"`
	Postback   *Postback `json:"postback,omitempty"`
}

// OccurredAt converts the provider's millisecond timestamp.
func (e Event) OccurredAt() time.Time {
	return time.UnixMilli(e.Timestamp).UTC()
}

type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

type Message struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Text      string  `json:"text,omitempty"`
	FileName  string  `json:"fileName,omitempty"`
	Title     string  `json:"title,omitempty"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

type Postback struct {
	Data string `json:"data"`
}
