package webhook

import "github.com/mattjoyce/linedesk/internal/inbox"

// Accepted is a user text message pulled out of a delivery.
type Accepted struct {
	Message        inbox.Message
	ReplyToken     string
	WebhookEventID string
	Redelivery     bool
}

// Extract keeps user-originated text messages and drops everything else
// (follow, postback, stickers, images, and events missing a sender or text).
func Extract(events []Event) []Accepted {
	out := make([]Accepted, 0, len(events))
	for _, ev := range events {
		if ev.Type != EventTypeMessage || ev.Message == nil || ev.Message.Type != MessageTypeText {
			continue
		}
		if ev.Message.Text == "" || ev.Source == nil || ev.Source.UserID == "" {
			continue
		}

		out = append(out, Accepted{
			Message: inbox.Message{
				ID:       ev.Message.ID,
				SenderID: ev.Source.UserID,
				Text:     ev.Message.Text,
			},
			ReplyToken:     ev.ReplyToken,
			WebhookEventID: ev.WebhookEventID,
			Redelivery:     ev.DeliveryContext != nil && ev.DeliveryContext.IsRedelivery,
		})
	}
	return out
}
