// Package coordinator drives the per-device refresh pipeline: gather camera
// frames, encode the artifact, run the album-init sequence when needed, and
// push the result to the device.
package coordinator

import (
	"context"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kizs/smalltv-cameras/internal/camera"
	"github.com/kizs/smalltv-cameras/internal/imaging"
	"github.com/kizs/smalltv-cameras/internal/settings"
	"github.com/kizs/smalltv-cameras/internal/smalltv"
	"github.com/kizs/smalltv-cameras/pkg/models"
)

// artifactName is the fixed remote filename. Always overwriting the same file
// bounds flash wear on the device.
const artifactName = "cameras.gif"

// Trigger identifies what started a cycle.
type Trigger int

const (
	// TriggerScheduled is the periodic timer.
	TriggerScheduled Trigger = iota
	// TriggerForced is an operator force-refresh; it re-runs album init.
	TriggerForced
	// TriggerManual is an on-demand refresh without an init reset.
	TriggerManual
)

func (t Trigger) String() string {
	switch t {
	case TriggerScheduled:
		return "scheduled"
	case TriggerForced:
		return "forced"
	case TriggerManual:
		return "manual"
	default:
		return "unknown"
	}
}

// DeviceAPI is the slice of the device client the coordinator drives.
type DeviceAPI interface {
	Host() string
	Info(ctx context.Context) (*smalltv.Info, error)
	AppInfo(ctx context.Context) (*smalltv.AppInfo, error)
	SetTheme(ctx context.Context, n int) error
	ClearImages(ctx context.Context) error
	Upload(ctx context.Context, filename string, data []byte, contentType string) error
	ShowGIF(ctx context.Context, name string) error
}

// Coordinator runs refresh cycles for one device. All cycles execute on the
// Run goroutine, which is the single-flight guarantee: device session state is
// only ever touched between cycles.
type Coordinator struct {
	deviceID     string
	device       DeviceAPI
	sources      []camera.Source
	store        *settings.Store
	fetchTimeout time.Duration
	logger       *zap.Logger

	init *initTracker

	// trigger is buffered to one slot; a trigger arriving while a cycle is
	// in flight coalesces into exactly one follow-up cycle.
	trigger chan Trigger

	publish func(*models.CycleResult)

	mu          sync.RWMutex
	firmware    string
	lastResult  *models.CycleResult
	lastSuccess time.Time
}

// New creates a coordinator for one device.
func New(deviceID string, device DeviceAPI, sources []camera.Source, store *settings.Store,
	fetchTimeout time.Duration, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		deviceID:     deviceID,
		device:       device,
		sources:      sources,
		store:        store,
		fetchTimeout: fetchTimeout,
		logger:       logger.With(zap.String("device_id", deviceID)),
		init:         newInitTracker(),
		trigger:      make(chan Trigger, 1),
	}
}

// SetResultSink installs an optional callback invoked with every cycle
// result. Must be set before Run starts.
func (c *Coordinator) SetResultSink(fn func(*models.CycleResult)) {
	c.publish = fn
}

// Run executes cycles until ctx is cancelled. The interval is re-read from
// the settings store every time the timer is re-armed, so interval changes
// apply from the next cycle.
func (c *Coordinator) Run(ctx context.Context) {
	c.logger.Info("Coordinator started",
		zap.String("host", c.device.Host()),
		zap.Int("cameras", len(c.sources)))

	for {
		interval := time.Duration(c.store.Options().RefreshInterval) * time.Second
		timer := time.NewTimer(interval)

		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("Coordinator stopped")
			return
		case <-timer.C:
			c.execute(ctx, TriggerScheduled)
		case trig := <-c.trigger:
			timer.Stop()
			c.execute(ctx, trig)
		}
	}
}

// ForceRefresh queues a refresh that re-runs the album-init sequence.
// Triggers arriving while a cycle is in flight coalesce into one; the init
// reset happens here, not in the cycle, so it holds even when this trigger
// folds into one that is already queued.
func (c *Coordinator) ForceRefresh() {
	c.init.Reset()
	c.queue(TriggerForced)
}

// Refresh queues an on-demand refresh without an init reset.
func (c *Coordinator) Refresh() {
	c.queue(TriggerManual)
}

func (c *Coordinator) queue(trig Trigger) {
	select {
	case c.trigger <- trig:
	default:
		// A cycle is already queued; this trigger folds into it.
	}
}

// Firmware returns the firmware version from the last successful probe.
func (c *Coordinator) Firmware() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.firmware
}

// LastResult returns the most recent cycle result, or nil before the first
// cycle completes.
func (c *Coordinator) LastResult() *models.CycleResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastResult
}

// LastSuccess returns when the last fully successful cycle completed.
func (c *Coordinator) LastSuccess() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// InitState exposes the album-init state.
func (c *Coordinator) InitState() InitState {
	return c.init.State()
}

func (c *Coordinator) execute(ctx context.Context, trig Trigger) {
	result := c.runCycle(ctx, trig)

	c.mu.Lock()
	c.lastResult = result
	if result.OK() {
		c.lastSuccess = result.CompletedAt
	}
	c.mu.Unlock()

	if result.OK() {
		c.logger.Info("Cycle completed",
			zap.String("trigger", result.Trigger),
			zap.String("mode", result.Mode),
			zap.Int("frames", len(result.Frames)),
			zap.Strings("failed_cameras", result.FailedCameras),
			zap.Int("artifact_bytes", result.ArtifactBytes))
	} else {
		c.logger.Warn("Cycle failed",
			zap.String("trigger", result.Trigger),
			zap.String("mode", result.Mode),
			zap.String("error", result.Error))
	}

	if c.publish != nil {
		c.publish(result)
	}
}

// runCycle performs one refresh cycle. Failures are reported in the result,
// never panicked or retried here; the scheduler always arms the next attempt.
func (c *Coordinator) runCycle(ctx context.Context, trig Trigger) *models.CycleResult {
	opts := c.store.Options()
	result := &models.CycleResult{
		DeviceID: c.deviceID,
		Trigger:  trig.String(),
		Mode:     opts.Mode,
	}
	fail := func(msg string, err error) *models.CycleResult {
		result.Error = msg + ": " + err.Error()
		result.CompletedAt = time.Now()
		return result
	}

	if opts.Mode == models.ModeBuiltin {
		// Lightweight status read only: no frame work, no upload, no device
		// mutation. Album init must re-run when cameras mode resumes.
		app, err := c.device.AppInfo(ctx)
		if err != nil {
			return fail("reading builtin theme", err)
		}
		result.Theme = app.Theme
		c.init.Reset()
		result.CompletedAt = time.Now()
		return result
	}

	info, err := c.device.Info(ctx)
	if err != nil {
		// Unreachable device: report and wait for the next scheduled cycle.
		// Album-init state is left as-is.
		return fail("device probe", err)
	}
	c.mu.Lock()
	c.firmware = info.Firmware
	c.mu.Unlock()

	if len(c.sources) == 0 {
		result.Error = "no cameras configured"
		result.CompletedAt = time.Now()
		return result
	}

	frames, labels, failed := c.gatherFrames(ctx)
	result.FailedCameras = failed
	if len(frames) == 0 {
		// Never upload an empty artifact.
		result.Error = "no camera frames available"
		result.CompletedAt = time.Now()
		return result
	}
	result.Frames = labels

	artifact, err := imaging.EncodeGIF(frames, time.Duration(opts.FrameDuration)*time.Second)
	if err != nil {
		return fail("encoding artifact", err)
	}
	result.ArtifactBytes = len(artifact)

	// Cancellation checkpoint: a superseded cycle must abandon before it
	// starts mutating the device.
	if ctx.Err() != nil {
		return fail("cycle cancelled", ctx.Err())
	}

	state, gen := c.init.Snapshot()
	if state == NeedsInit {
		if err := c.device.SetTheme(ctx, smalltv.ThemePhotoAlbum); err != nil {
			return fail("switching to album mode", err)
		}
		if err := c.device.ClearImages(ctx); err != nil {
			return fail("clearing stored images", err)
		}
	}

	if err := c.device.Upload(ctx, artifactName, artifact, "image/gif"); err != nil {
		return fail("uploading artifact", err)
	}
	if err := c.device.ShowGIF(ctx, artifactName); err != nil {
		return fail("displaying artifact", err)
	}

	c.init.MarkInitialized(gen)
	result.CompletedAt = time.Now()
	return result
}

// gatherFrames fetches and composes every camera concurrently and waits for
// all of them to settle. A failed camera is logged and skipped; survivors keep
// their original relative order.
func (c *Coordinator) gatherFrames(ctx context.Context) ([]image.Image, []string, []string) {
	type frameResult struct {
		img image.Image
		err error
	}
	results := make([]frameResult, len(c.sources))

	var wg sync.WaitGroup
	for i, src := range c.sources {
		wg.Add(1)
		go func(i int, src camera.Source) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
			defer cancel()

			raw, err := src.Snapshot(fetchCtx)
			if err != nil {
				results[i] = frameResult{err: err}
				return
			}
			img, err := imaging.Compose(raw, src.Label())
			results[i] = frameResult{img: img, err: err}
		}(i, src)
	}
	wg.Wait()

	var frames []image.Image
	var labels, failed []string
	for i, res := range results {
		src := c.sources[i]
		if res.err != nil {
			c.logger.Warn("Camera failed, continuing without it",
				zap.String("camera_id", src.ID()),
				zap.Error(res.err))
			failed = append(failed, src.ID())
			continue
		}
		frames = append(frames, res.img)
		labels = append(labels, src.Label())
	}
	return frames, labels, failed
}
