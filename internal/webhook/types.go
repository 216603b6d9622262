package webhook

import "github.com/mattjoyce/linedesk/internal/inbox"

// Delivery is one webhook POST body: a batch of events.
type Delivery struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event is one unit within a delivery. Only the fields the bridge reads are
// declared; unknown fields are ignored.
type Event struct {
	Type            string           `json:"type"`
	Mode            string           `json:"mode,omitempty"`
	Timestamp       int64            `json:"timestamp,omitempty"`
	WebhookEventID  string           `json:"webhookEventId,omitempty"`
	ReplyToken      string           `json:"replyToken,omitempty"`
	Source          *Source          `json:"source,omitempty"`
	Message         *EventMessage    `json:"message,omitempty"`
	DeliveryContext *DeliveryContext `json:"deliveryContext,omitempty"`
}

// Source identifies who sent the event.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// EventMessage is the message object of a "message" event.
type EventMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// DeliveryContext flags redeliveries of an event already sent once.
type DeliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

// Event and message type names handled by the filter.
const (
	EventTypeMessage = "message"
	MessageTypeText  = "text"
)

// OKResponse is returned after a delivery has been processed.
type OKResponse struct {
	Status string `json:"status"`
}

// DrainResponse is returned by the polling read.
type DrainResponse struct {
	Messages []inbox.Message `json:"messages"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// BufferedNotice is published for each buffered message. It has no text.
type BufferedNotice struct {
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id"`
	Buffered  int    `json:"buffered"`
}
