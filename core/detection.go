package core

import "time"

// Detection represents one observed wildlife event uploaded by a field
// device. Detections are immutable once accepted by the intake gateway and
// are retained in a bounded most-recent-first history buffer.
type Detection struct {
	// DetectionID is the device-local numeric identifier.
	DetectionID int64 `json:"detection_id"`
	// EventID is the globally unique idempotency key. Supplied by the
	// device, or synthesized by the gateway when absent.
	EventID    string  `json:"event_id"`
	DeviceID   string  `json:"device_id"`
	DeviceName string  `json:"device_name,omitempty"`
	CameraID   string  `json:"camera_id,omitempty"`
	// Timestamp is the event time reported by the device, distinct from
	// ReceivedAt in Metadata.
	Timestamp  time.Time         `json:"timestamp"`
	Species    string            `json:"species"`
	Confidence float64           `json:"confidence"`
	BBox       [4]float64        `json:"bbox"`
	ImageRef   string            `json:"image_ref,omitempty"`
	Location   *GeoLocation      `json:"location,omitempty"`
	Metadata   DetectionMetadata `json:"metadata"`
}

// GeoLocation is an optional named coordinate attached to detections and
// devices.
type GeoLocation struct {
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DetectionMetadata carries processing annotations stamped during intake.
type DetectionMetadata struct {
	Priority            string    `json:"priority,omitempty"`
	ProcessingLatencyMS float64   `json:"processing_latency_ms,omitempty"`
	UploadedAt          time.Time `json:"uploaded_at,omitempty"`
	AckID               string    `json:"ack_id,omitempty"`
	ReceivedAt          time.Time `json:"received_at,omitempty"`
}
