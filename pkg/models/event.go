package models

import "time"

// Command types accepted on the control bus.
const (
	CommandForceRefresh     = "force_refresh"
	CommandSetBrightness    = "set_brightness"
	CommandSetMode          = "set_mode"
	CommandSetFrameDuration = "set_frame_duration"
)

// Command is an operator instruction consumed from the Redis command stream.
type Command struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
	Value    int    `json:"value,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

// CycleResult is the per-cycle report: which cameras made it into the
// artifact, which failed, and how the device calls went. Published to the
// device channel when the control bus is up.
type CycleResult struct {
	DeviceID      string    `json:"device_id"`
	Trigger       string    `json:"trigger"`
	Mode          string    `json:"mode"`
	Frames        []string  `json:"frames,omitempty"`         // labels, artifact order
	FailedCameras []string  `json:"failed_cameras,omitempty"` // isolated per-camera failures
	ArtifactBytes int       `json:"artifact_bytes,omitempty"`
	Theme         int       `json:"theme,omitempty"` // builtin mode: current firmware theme
	Error         string    `json:"error,omitempty"`
	CompletedAt   time.Time `json:"completed_at"`
}

// OK reports whether the cycle completed without a cycle-level failure.
// Per-camera failures alone do not fail a cycle.
func (r *CycleResult) OK() bool {
	return r.Error == ""
}

// DeviceStatus is the operator-facing view of one device.
type DeviceStatus struct {
	ID           string       `json:"id"`
	Host         string       `json:"host"`
	Firmware     string       `json:"firmware,omitempty"`
	Options      Options      `json:"options"`
	LastSuccess  time.Time    `json:"last_success,omitempty"`
	LastResult   *CycleResult `json:"last_result,omitempty"`
	StorageTotal int64        `json:"storage_total,omitempty"`
	StorageFree  int64        `json:"storage_free,omitempty"`
}
