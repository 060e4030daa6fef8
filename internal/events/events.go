package events

import (
	"context"
	"time"

	"github.com/groblegark/footfall/internal/model"
)

// Event topic constants
const (
	TopicCycleLogged      = "footfall.cycle.logged"
	TopicDeviceStationary = "footfall.device.stationary"
	TopicSaltRotated      = "footfall.salt.rotated"
)

// CycleLogged is published for every cycle the gate lets through.
type CycleLogged struct {
	Record *model.CycleRecord `json:"record"`
}

// DeviceStationary is published when a device first crosses the
// stationary threshold. Carries the truncated token only.
type DeviceStationary struct {
	Token     string    `json:"token"`
	FirstSeen time.Time `json:"first_seen"`
	DwellSecs float64   `json:"dwell_secs"`
}

// SaltRotated is published after a successful salt rotation.
type SaltRotated struct {
	RotatedAt      time.Time `json:"rotated_at"`
	DevicesDropped int       `json:"devices_dropped"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
