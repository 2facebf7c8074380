package core

import "time"

// MessageStatus represents the delivery state of one alert message.
type MessageStatus string

const (
	// MessageStatusPending indicates the message is queued but not yet sent.
	MessageStatusPending MessageStatus = "pending"
	// MessageStatusSent indicates the provider accepted the message.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusFailed indicates the send attempt failed.
	MessageStatusFailed MessageStatus = "failed"
	// MessageStatusDelivered indicates the provider confirmed delivery.
	MessageStatusDelivered MessageStatus = "delivered"
)

// IsValid checks if the status is valid.
func (s MessageStatus) IsValid() bool {
	switch s {
	case MessageStatusPending, MessageStatusSent, MessageStatusFailed, MessageStatusDelivered:
		return true
	default:
		return false
	}
}

// AlertMessage records one (detection, recipient, channel) delivery attempt.
// The full append-only sequence of these records is the audit ledger for
// outbound notifications.
type AlertMessage struct {
	ID                string        `json:"id"`
	EventID           string        `json:"event_id"`
	RecipientID       string        `json:"recipient_id"`
	RecipientName     string        `json:"recipient_name"`
	Channel           Channel       `json:"channel"`
	Status            MessageStatus `json:"status"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	Error             string        `json:"error,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}
