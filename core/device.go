package core

import "time"

// DeviceStatus represents the reported liveness of a field device.
type DeviceStatus string

const (
	// DeviceStatusOnline indicates the device has been heard from recently.
	DeviceStatusOnline DeviceStatus = "online"
	// DeviceStatusOffline indicates the device has gone stale.
	DeviceStatusOffline DeviceStatus = "offline"
)

// Device is the registry record for one field device. Devices are never
// deleted; staleness is derived on read from LastSeen, not written back.
type Device struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Status         DeviceStatus      `json:"status"`
	LastSeen       time.Time         `json:"last_seen"`
	Location       *GeoLocation      `json:"location,omitempty"`
	Stats          DeviceStats       `json:"stats"`
	Cameras        []Camera          `json:"cameras,omitempty"`
	Firmware       string            `json:"firmware,omitempty"`
	Environment    map[string]string `json:"environment,omitempty"`
	DetectionCount int64             `json:"detection_count"`
}

// EffectiveStatus derives the device's liveness against a staleness
// threshold. A device not heard from past the threshold is reported offline
// without mutating the stored record.
func (d *Device) EffectiveStatus(now time.Time, staleAfter time.Duration) DeviceStatus {
	if d.LastSeen.IsZero() || now.Sub(d.LastSeen) > staleAfter {
		return DeviceStatusOffline
	}
	return d.Status
}

// DeviceStats is the telemetry snapshot carried on heartbeats.
type DeviceStats struct {
	CPUPercent       float64  `json:"cpu_percent"`
	MemoryPercent    float64  `json:"memory_percent"`
	TemperatureC     float64  `json:"temperature_celsius"`
	DiskPercent      float64  `json:"disk_percent"`
	PowerSource      string   `json:"power_source,omitempty"`
	BatteryPercent   *float64 `json:"battery_percent,omitempty"`
	NetworkLatencyMS *int64   `json:"network_latency_ms,omitempty"`
	UptimeSeconds    int64    `json:"uptime_seconds,omitempty"`
}

// Camera describes one camera attached to a device.
type Camera struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// TelemetrySample is one point of short-horizon device history kept by the
// broadcast hub's per-device ring buffer.
type TelemetrySample struct {
	DeviceID       string       `json:"device_id"`
	At             time.Time    `json:"at"`
	CPUPercent     float64      `json:"cpu_percent"`
	MemoryPercent  float64      `json:"memory_percent"`
	TemperatureC   float64      `json:"temperature_celsius"`
	DiskPercent    float64      `json:"disk_percent"`
	PowerSource    string       `json:"power_source,omitempty"`
	BatteryPercent *float64     `json:"battery_percent,omitempty"`
	Status         DeviceStatus `json:"status"`
}

// SampleOf derives a telemetry sample from the device's current snapshot.
func SampleOf(d *Device, at time.Time) TelemetrySample {
	return TelemetrySample{
		DeviceID:       d.ID,
		At:             at,
		CPUPercent:     d.Stats.CPUPercent,
		MemoryPercent:  d.Stats.MemoryPercent,
		TemperatureC:   d.Stats.TemperatureC,
		DiskPercent:    d.Stats.DiskPercent,
		PowerSource:    d.Stats.PowerSource,
		BatteryPercent: d.Stats.BatteryPercent,
		Status:         d.Status,
	}
}
