package models

import "errors"

// Display modes. ModeCameras drives the snapshot upload pipeline, ModeBuiltin
// leaves the device on its firmware themes and reduces the cycle to a status
// read.
const (
	ModeCameras = "cameras"
	ModeBuiltin = "builtin"
)

// Bounds for the mutable runtime options.
const (
	MinRefreshInterval     = 60
	MaxRefreshInterval     = 3600
	DefaultRefreshInterval = 300

	MinFrameDuration     = 1
	MaxFrameDuration     = 10
	DefaultFrameDuration = 1

	MinBrightness     = 0
	MaxBrightness     = 100
	DefaultBrightness = 100
)

// ErrInvalidConfig marks operator-supplied values that fail validation before
// anything is written to a device or store.
var ErrInvalidConfig = errors.New("invalid configuration")

// Options is the per-device runtime configuration the coordinator reads once
// per cycle. Brightness is tracked here because the device has no read-back
// endpoint; the store is the source of truth for its current value.
type Options struct {
	Mode            string `json:"mode"`
	RefreshInterval int    `json:"refresh_interval"` // seconds between cycles
	FrameDuration   int    `json:"frame_duration"`   // seconds each frame is shown
	Brightness      int    `json:"brightness"`       // percent 0-100
}

// ValidMode reports whether m names a known display mode.
func ValidMode(m string) bool {
	return m == ModeCameras || m == ModeBuiltin
}

// SettingsUpdate is a partial update to the numeric options; nil fields are
// left untouched.
type SettingsUpdate struct {
	RefreshInterval *int `json:"refresh_interval,omitempty"`
	FrameDuration   *int `json:"frame_duration,omitempty"`
}
