package models

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CameraConfig names one snapshot source attached to a device entry.
type CameraConfig struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	SnapshotURL string `yaml:"snapshot_url" json:"snapshotUrl"`
}

// Label returns the text rendered onto the camera's frames: the configured
// name, or the ID with underscores spaced out.
func (c CameraConfig) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return strings.ReplaceAll(c.ID, "_", " ")
}

// DeviceConfig is one device entry from the devices file.
type DeviceConfig struct {
	ID              string         `yaml:"id" json:"id"`
	Host            string         `yaml:"host" json:"host"`
	Mode            string         `yaml:"mode" json:"mode"`
	RefreshInterval int            `yaml:"refresh_interval" json:"refresh_interval"`
	FrameDuration   int            `yaml:"frame_duration" json:"frame_duration"`
	Cameras         []CameraConfig `yaml:"cameras" json:"cameras"`
}

// deviceFile is the top-level structure of devices.yaml.
type deviceFile struct {
	Devices []DeviceConfig `yaml:"devices"`
}

// Validate fills defaults and rejects values outside the supported ranges.
func (d *DeviceConfig) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: device entry is missing an id", ErrInvalidConfig)
	}
	if d.Host == "" {
		return fmt.Errorf("%w: device %q is missing a host", ErrInvalidConfig, d.ID)
	}
	if d.Mode == "" {
		d.Mode = ModeCameras
	}
	if !ValidMode(d.Mode) {
		return fmt.Errorf("%w: device %q has unknown mode %q", ErrInvalidConfig, d.ID, d.Mode)
	}
	if d.RefreshInterval == 0 {
		d.RefreshInterval = DefaultRefreshInterval
	}
	if d.RefreshInterval < MinRefreshInterval || d.RefreshInterval > MaxRefreshInterval {
		return fmt.Errorf("%w: device %q refresh_interval %d outside [%d,%d]",
			ErrInvalidConfig, d.ID, d.RefreshInterval, MinRefreshInterval, MaxRefreshInterval)
	}
	if d.FrameDuration == 0 {
		d.FrameDuration = DefaultFrameDuration
	}
	if d.FrameDuration < MinFrameDuration || d.FrameDuration > MaxFrameDuration {
		return fmt.Errorf("%w: device %q frame_duration %d outside [%d,%d]",
			ErrInvalidConfig, d.ID, d.FrameDuration, MinFrameDuration, MaxFrameDuration)
	}
	seen := make(map[string]bool, len(d.Cameras))
	for _, cam := range d.Cameras {
		if cam.ID == "" || cam.SnapshotURL == "" {
			return fmt.Errorf("%w: device %q has a camera entry without id or snapshot_url",
				ErrInvalidConfig, d.ID)
		}
		if seen[cam.ID] {
			return fmt.Errorf("%w: device %q lists camera %q twice", ErrInvalidConfig, d.ID, cam.ID)
		}
		seen[cam.ID] = true
	}
	return nil
}

// LoadDevices reads the devices file. Entries are returned as parsed; the
// caller runs Validate per entry and decides whether to skip or abort.
func LoadDevices(path string) ([]DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read devices file: %w", err)
	}

	var file deviceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse devices file: %w", err)
	}

	return file.Devices, nil
}
