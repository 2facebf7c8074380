package core

import "time"

// AckStatus represents the processing status recorded on an acknowledgment.
type AckStatus string

const (
	// AckStatusReceived indicates the submission was accepted but not yet processed.
	AckStatusReceived AckStatus = "received"
	// AckStatusProcessed indicates the detection was fully persisted.
	AckStatusProcessed AckStatus = "processed"
	// AckStatusFailed indicates processing failed after acceptance.
	AckStatusFailed AckStatus = "failed"
)

// IsValid checks if the status is valid.
func (s AckStatus) IsValid() bool {
	switch s {
	case AckStatusReceived, AckStatusProcessed, AckStatusFailed:
		return true
	default:
		return false
	}
}

// Acknowledgment is the durable receipt issued to a device for one accepted
// event id. At most one acknowledgment exists per event id while the id is
// inside the deduplication window; acknowledgments themselves are retained
// for a longer, capacity-bounded window.
type Acknowledgment struct {
	AckID       string    `json:"ack_id"`
	EventID     string    `json:"event_id"`
	DeviceID    string    `json:"device_id"`
	ReceivedAt  time.Time `json:"received_at"`
	ProcessedAt time.Time `json:"processed_at"`
	Status      AckStatus `json:"status"`
	Checksum    string    `json:"checksum,omitempty"`
}
