// Package settings holds the mutable runtime options for each device. The
// coordinator reads a snapshot once per cycle; the control surfaces write.
package settings

import (
	"sync"

	"github.com/kizs/smalltv-cameras/pkg/models"
)

// Store is the settings store for one device, seeded from its devices.yaml
// entry. All accessors are safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	opts models.Options
}

// NewStore seeds a store from a validated device entry.
func NewStore(cfg models.DeviceConfig) *Store {
	return &Store{
		opts: models.Options{
			Mode:            cfg.Mode,
			RefreshInterval: cfg.RefreshInterval,
			FrameDuration:   cfg.FrameDuration,
			Brightness:      models.DefaultBrightness,
		},
	}
}

// Options returns a snapshot of the current options.
func (s *Store) Options() models.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// SetMode records the display mode.
func (s *Store) SetMode(mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Mode = mode
}

// SetRefreshInterval records the seconds between cycles. Takes effect when
// the coordinator arms its next timer.
func (s *Store) SetRefreshInterval(seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.RefreshInterval = seconds
}

// SetFrameDuration records the seconds each frame is displayed.
func (s *Store) SetFrameDuration(seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.FrameDuration = seconds
}

// SetBrightness records the last brightness pushed to the device.
func (s *Store) SetBrightness(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.Brightness = percent
}
