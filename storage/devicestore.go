package storage

import (
	"sort"
	"sync"
	"time"

	"trailguard/core"
)

// DeviceStore is the in-memory device registry. Devices are created on
// first contact and never deleted; staleness is derived on read.
type DeviceStore struct {
	mu      sync.RWMutex
	devices map[string]*core.Device
}

// NewDeviceStore creates an empty device registry.
func NewDeviceStore() *DeviceStore {
	return &DeviceStore{devices: make(map[string]*core.Device)}
}

// Get returns a copy of the device record.
func (s *DeviceStore) Get(id string) (*core.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	cp := *d
	return &cp, nil
}

// List returns copies of all devices ordered by id, with Status derived
// against the staleness threshold.
func (s *DeviceStore) List(now time.Time, staleAfter time.Duration) []core.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Device, 0, len(s.devices))
	for _, d := range s.devices {
		cp := *d
		cp.Status = cp.EffectiveStatus(now, staleAfter)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Register upserts display metadata for a device without touching its
// counters or liveness.
func (s *DeviceStore) Register(id, name string, location *core.GeoLocation, firmware string, env map[string]string) *core.Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.ensureLocked(id)
	if name != "" {
		d.Name = name
	}
	if location != nil {
		d.Location = location
	}
	if firmware != "" {
		d.Firmware = firmware
	}
	if env != nil {
		d.Environment = env
	}
	cp := *d
	return &cp
}

// RecordDetection bumps the device's detection counter and last-seen time.
// Returns a snapshot of the updated device for broadcasting.
func (s *DeviceStore) RecordDetection(id string, at time.Time) *core.Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.ensureLocked(id)
	d.DetectionCount++
	d.LastSeen = at
	d.Status = core.DeviceStatusOnline
	cp := *d
	return &cp
}

// ApplyHeartbeat merges a heartbeat's stats into the device record. Returns
// a snapshot of the updated device for broadcasting.
func (s *DeviceStore) ApplyHeartbeat(id string, at time.Time, status core.DeviceStatus, stats core.DeviceStats, cameras []core.Camera) *core.Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.ensureLocked(id)
	d.LastSeen = at
	if status != "" {
		d.Status = status
	} else {
		d.Status = core.DeviceStatusOnline
	}
	d.Stats = stats
	if cameras != nil {
		d.Cameras = cameras
	}
	cp := *d
	return &cp
}

func (s *DeviceStore) ensureLocked(id string) *core.Device {
	d, ok := s.devices[id]
	if !ok {
		d = &core.Device{ID: id, Name: id, Status: core.DeviceStatusOffline}
		s.devices[id] = d
	}
	return d
}
