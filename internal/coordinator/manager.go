package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kizs/smalltv-cameras/internal/camera"
	"github.com/kizs/smalltv-cameras/internal/config"
	"github.com/kizs/smalltv-cameras/internal/settings"
	"github.com/kizs/smalltv-cameras/internal/smalltv"
	"github.com/kizs/smalltv-cameras/pkg/models"
)

// ErrUnknownDevice is returned for operations against a device ID that is not
// configured.
var ErrUnknownDevice = errors.New("unknown device")

// entry bundles everything owned for one configured device.
type entry struct {
	cfg    models.DeviceConfig
	client *smalltv.Client
	store  *settings.Store
	coord  *Coordinator
	cancel context.CancelFunc
}

// Manager owns one coordinator per configured device: it loads the devices
// file, validates and probes entries, runs their refresh loops, and exposes
// the operations the control surfaces dispatch.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger
	sink   func(*models.CycleResult)

	mu      sync.Mutex
	runCtx  context.Context
	entries map[string]*entry
	wg      sync.WaitGroup
}

// NewManager creates a manager; Start loads devices and begins cycling.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// SetResultSink installs an optional sink for cycle results (the Redis
// publisher). Must be called before Start.
func (m *Manager) SetResultSink(fn func(*models.CycleResult)) {
	m.sink = fn
}

// Start loads the devices file and starts a coordinator per valid entry.
// Invalid entries are logged and skipped so one bad device cannot take down
// the rest.
func (m *Manager) Start(ctx context.Context) error {
	devices, err := models.LoadDevices(m.cfg.Devices.Path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.runCtx = ctx

	for _, dc := range devices {
		m.startDeviceLocked(ctx, dc)
	}

	m.logger.Info("Device manager started",
		zap.Int("devices", len(m.entries)),
		zap.String("devices_path", m.cfg.Devices.Path))
	return nil
}

// Stop cancels every coordinator and waits for their loops to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	for _, e := range m.entries {
		e.cancel()
	}
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("Device manager stopped")
}

// Reload re-reads the devices file and rebuilds all coordinators.
func (m *Manager) Reload(ctx context.Context) error {
	devices, err := models.LoadDevices(m.cfg.Devices.Path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		e.cancel()
	}
	m.entries = make(map[string]*entry)

	for _, dc := range devices {
		m.startDeviceLocked(m.runCtx, dc)
	}

	m.logger.Info("Device manager reloaded", zap.Int("devices", len(m.entries)))
	return nil
}

// startDeviceLocked validates, probes and launches one device entry. Callers
// hold m.mu.
func (m *Manager) startDeviceLocked(ctx context.Context, dc models.DeviceConfig) {
	if err := dc.Validate(); err != nil {
		m.logger.Error("Skipping invalid device entry", zap.Error(err))
		return
	}
	if _, exists := m.entries[dc.ID]; exists {
		m.logger.Error("Skipping duplicate device entry", zap.String("device_id", dc.ID))
		return
	}

	client := smalltv.NewClient(dc.Host,
		time.Duration(m.cfg.Device.RequestTimeout)*time.Second,
		time.Duration(m.cfg.Device.UploadTimeout)*time.Second,
		m.logger)

	// Setup-time probe: reject entries that point at something that is not a
	// SmallTV; an unreachable device still gets an entry and is retried on
	// its schedule.
	probeCtx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.Device.RequestTimeout)*time.Second)
	info, err := client.Info(probeCtx)
	cancel()
	switch {
	case err != nil:
		m.logger.Warn("Device not reachable at startup, will retry on schedule",
			zap.String("device_id", dc.ID),
			zap.String("host", dc.Host),
			zap.Error(err))
	case !strings.Contains(info.Model, "SmallTV"):
		m.logger.Error("Host did not identify as a SmallTV, skipping entry",
			zap.String("device_id", dc.ID),
			zap.String("host", dc.Host),
			zap.String("model", info.Model))
		return
	default:
		m.logger.Info("Device probe ok",
			zap.String("device_id", dc.ID),
			zap.String("model", info.Model),
			zap.String("firmware", info.Firmware))
	}

	store := settings.NewStore(dc)
	sources := make([]camera.Source, 0, len(dc.Cameras))
	for _, cam := range dc.Cameras {
		sources = append(sources, camera.NewHTTPSource(cam, time.Duration(m.cfg.Camera.FetchTimeout)*time.Second))
	}

	coord := New(dc.ID, client, sources, store,
		time.Duration(m.cfg.Camera.FetchTimeout)*time.Second, m.logger)
	if m.sink != nil {
		coord.SetResultSink(m.sink)
	}

	devCtx, devCancel := context.WithCancel(ctx)
	m.entries[dc.ID] = &entry{
		cfg:    dc,
		client: client,
		store:  store,
		coord:  coord,
		cancel: devCancel,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		coord.Run(devCtx)
	}()
}

func (m *Manager) entryFor(id string) (*entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	return e, ok
}

// Statuses returns the status of every configured device.
func (m *Manager) Statuses(ctx context.Context) []models.DeviceStatus {
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	statuses := make([]models.DeviceStatus, 0, len(entries))
	for _, e := range entries {
		statuses = append(statuses, m.status(ctx, e))
	}
	return statuses
}

// Status returns one device's status.
func (m *Manager) Status(ctx context.Context, id string) (models.DeviceStatus, bool) {
	e, ok := m.entryFor(id)
	if !ok {
		return models.DeviceStatus{}, false
	}
	return m.status(ctx, e), true
}

func (m *Manager) status(ctx context.Context, e *entry) models.DeviceStatus {
	status := models.DeviceStatus{
		ID:          e.cfg.ID,
		Host:        e.cfg.Host,
		Firmware:    e.coord.Firmware(),
		Options:     e.store.Options(),
		LastSuccess: e.coord.LastSuccess(),
		LastResult:  e.coord.LastResult(),
	}
	// Flash usage is nice to have; skip silently when the device is away.
	if storage, err := e.client.Storage(ctx); err == nil {
		status.StorageTotal = storage.Total
		status.StorageFree = storage.Free
	}
	return status
}

// ForceRefresh queues an init-resetting refresh for one device.
func (m *Manager) ForceRefresh(id string) error {
	e, ok := m.entryFor(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	e.coord.ForceRefresh()
	return nil
}

// SetBrightness validates and pushes a brightness change, then records it in
// the store (the device cannot be read back).
func (m *Manager) SetBrightness(ctx context.Context, id string, percent int) error {
	if percent < models.MinBrightness || percent > models.MaxBrightness {
		return fmt.Errorf("%w: brightness %d outside [%d,%d]",
			models.ErrInvalidConfig, percent, models.MinBrightness, models.MaxBrightness)
	}
	e, ok := m.entryFor(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	if err := e.client.SetBrightness(ctx, percent); err != nil {
		return err
	}
	e.store.SetBrightness(percent)
	return nil
}

// SetMode switches the display mode. The firmware theme is flipped
// best-effort right away (matching what the next cycle would do); the forced
// refresh then settles the device into the new mode.
func (m *Manager) SetMode(ctx context.Context, id, mode string) error {
	if !models.ValidMode(mode) {
		return fmt.Errorf("%w: unknown mode %q", models.ErrInvalidConfig, mode)
	}
	e, ok := m.entryFor(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	e.store.SetMode(mode)

	theme := smalltv.ThemeBuiltinDefault
	if mode == models.ModeCameras {
		theme = smalltv.ThemePhotoAlbum
	}
	if err := e.client.SetTheme(ctx, theme); err != nil {
		m.logger.Warn("Best-effort theme flip failed, next cycle will settle it",
			zap.String("device_id", id),
			zap.Error(err))
	}

	e.coord.ForceRefresh()
	return nil
}

// ApplySettings validates and applies a partial settings update. A frame
// duration change is additionally pushed to the device best-effort; the
// artifact's embedded timing stays authoritative.
func (m *Manager) ApplySettings(ctx context.Context, id string, update models.SettingsUpdate) error {
	if update.RefreshInterval != nil {
		if v := *update.RefreshInterval; v < models.MinRefreshInterval || v > models.MaxRefreshInterval {
			return fmt.Errorf("%w: refresh_interval %d outside [%d,%d]",
				models.ErrInvalidConfig, v, models.MinRefreshInterval, models.MaxRefreshInterval)
		}
	}
	if update.FrameDuration != nil {
		if v := *update.FrameDuration; v < models.MinFrameDuration || v > models.MaxFrameDuration {
			return fmt.Errorf("%w: frame_duration %d outside [%d,%d]",
				models.ErrInvalidConfig, v, models.MinFrameDuration, models.MaxFrameDuration)
		}
	}

	e, ok := m.entryFor(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}

	if update.RefreshInterval != nil {
		e.store.SetRefreshInterval(*update.RefreshInterval)
	}
	if update.FrameDuration != nil {
		e.store.SetFrameDuration(*update.FrameDuration)
		if err := e.client.SetAlbumOptions(ctx, *update.FrameDuration, 1); err != nil {
			m.logger.Warn("Best-effort album option push failed",
				zap.String("device_id", id),
				zap.Error(err))
		}
	}
	return nil
}
