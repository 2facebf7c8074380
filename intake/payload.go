package intake

import (
	"time"

	"trailguard/core"
)

// DetectionPayload is the wire shape devices upload. Field names follow the
// device firmware's JSON contract.
type DetectionPayload struct {
	EventID     string            `json:"event_id,omitempty"`
	DetectionID int64             `json:"detection_id"`
	DeviceID    string            `json:"device_id"`
	DeviceName  string            `json:"device_name,omitempty"`
	CameraID    string            `json:"camera_id,omitempty"`
	Timestamp   float64           `json:"timestamp,omitempty"`
	ClassName   string            `json:"class_name"`
	Confidence  float64           `json:"confidence" validate:"gte=0,lte=1"`
	BBox        []float64         `json:"bbox,omitempty" validate:"omitempty,len=4"`
	ImageBase64 string            `json:"image_base64,omitempty"`
	Location    *core.GeoLocation `json:"location,omitempty"`
	Metadata    PayloadMetadata   `json:"metadata,omitempty"`
	Checksum    string            `json:"checksum,omitempty"`
}

// PayloadMetadata carries optional device-side processing annotations.
type PayloadMetadata struct {
	Priority            string  `json:"priority,omitempty"`
	ProcessingLatencyMS float64 `json:"processing_latency_ms,omitempty"`
	UploadedAt          float64 `json:"uploaded_at,omitempty"`
}

func (p DetectionPayload) toDetection(deviceID, eventID string, eventTime time.Time) core.Detection {
	d := core.Detection{
		DetectionID: p.DetectionID,
		EventID:     eventID,
		DeviceID:    deviceID,
		DeviceName:  p.DeviceName,
		CameraID:    p.CameraID,
		Timestamp:   eventTime,
		Species:     p.ClassName,
		Confidence:  p.Confidence,
		ImageRef:    p.ImageBase64,
		Location:    p.Location,
		Metadata: core.DetectionMetadata{
			Priority:            p.Metadata.Priority,
			ProcessingLatencyMS: p.Metadata.ProcessingLatencyMS,
		},
	}
	if len(p.BBox) == 4 {
		copy(d.BBox[:], p.BBox)
	}
	if p.Metadata.UploadedAt > 0 {
		d.Metadata.UploadedAt = timeFromEpoch(p.Metadata.UploadedAt, time.Time{})
	}
	return d
}

// HeartbeatPayload is the wire shape of a device's periodic status report.
type HeartbeatPayload struct {
	DeviceID  string         `json:"device_id"`
	Timestamp float64        `json:"timestamp,omitempty"`
	Status    string         `json:"status,omitempty"`
	Info      string         `json:"info,omitempty"`
	Stats     HeartbeatStats `json:"stats"`
}

// HeartbeatStats mirrors the firmware's nested stats block.
type HeartbeatStats struct {
	System struct {
		CPUPercent    float64 `json:"cpu_percent"`
		MemoryPercent float64 `json:"memory_percent"`
		TemperatureC  float64 `json:"temperature_celsius"`
		DiskPercent   float64 `json:"disk_percent"`
	} `json:"system"`
	Power struct {
		Source         string   `json:"source,omitempty"`
		BatteryPercent *float64 `json:"battery_percent,omitempty"`
	} `json:"power"`
	Network struct {
		LatencyMS *int64 `json:"latency_ms,omitempty"`
	} `json:"network"`
	Cameras        []core.Camera `json:"cameras,omitempty"`
	UptimeSeconds  int64         `json:"uptime_seconds,omitempty"`
	DetectionCount int64         `json:"detection_count,omitempty"`
}

func (s HeartbeatStats) toDeviceStats() core.DeviceStats {
	return core.DeviceStats{
		CPUPercent:       s.System.CPUPercent,
		MemoryPercent:    s.System.MemoryPercent,
		TemperatureC:     s.System.TemperatureC,
		DiskPercent:      s.System.DiskPercent,
		PowerSource:      s.Power.Source,
		BatteryPercent:   s.Power.BatteryPercent,
		NetworkLatencyMS: s.Network.LatencyMS,
		UptimeSeconds:    s.UptimeSeconds,
	}
}

// RegisterPayload announces a device's identity and placement.
type RegisterPayload struct {
	DeviceID    string            `json:"device_id"`
	Name        string            `json:"name,omitempty"`
	Location    *core.GeoLocation `json:"location,omitempty"`
	Firmware    string            `json:"firmware,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
}
