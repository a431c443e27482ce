package coordinator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kizs/smalltv-cameras/internal/camera"
	"github.com/kizs/smalltv-cameras/internal/settings"
	"github.com/kizs/smalltv-cameras/internal/smalltv"
	"github.com/kizs/smalltv-cameras/pkg/models"
)

type fakeDevice struct {
	mu    sync.Mutex
	calls []string

	infoErr   error
	appErr    error
	themeErr  error
	clearErr  error
	uploadErr error
	showErr   error

	theme    int
	uploaded [][]byte
}

func (f *fakeDevice) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeDevice) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDevice) Host() string { return "fake-device" }

func (f *fakeDevice) Info(ctx context.Context) (*smalltv.Info, error) {
	f.record("Info")
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return &smalltv.Info{Model: "SmallTV-Ultra", Firmware: "Ultra-V9.0.45"}, nil
}

func (f *fakeDevice) AppInfo(ctx context.Context) (*smalltv.AppInfo, error) {
	f.record("AppInfo")
	if f.appErr != nil {
		return nil, f.appErr
	}
	return &smalltv.AppInfo{Theme: f.theme}, nil
}

func (f *fakeDevice) SetTheme(ctx context.Context, n int) error {
	f.record("SetTheme")
	return f.themeErr
}

func (f *fakeDevice) ClearImages(ctx context.Context) error {
	f.record("ClearImages")
	return f.clearErr
}

func (f *fakeDevice) Upload(ctx context.Context, filename string, data []byte, contentType string) error {
	f.record("Upload:" + filename)
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.mu.Lock()
	f.uploaded = append(f.uploaded, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeDevice) ShowGIF(ctx context.Context, name string) error {
	f.record("ShowGIF:" + name)
	return f.showErr
}

type fakeSource struct {
	id    string
	label string
	data  []byte
	err   error
}

func (s *fakeSource) ID() string    { return s.id }
func (s *fakeSource) Label() string { return s.label }
func (s *fakeSource) Snapshot(ctx context.Context) ([]byte, error) {
	return s.data, s.err
}

// snapshotJPEG encodes a solid-color test snapshot.
func snapshotJPEG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding snapshot: %v", err)
	}
	return buf.Bytes()
}

func newTestCoordinator(device DeviceAPI, sources []camera.Source, mode string) (*Coordinator, *settings.Store) {
	store := settings.NewStore(models.DeviceConfig{
		ID:              "tv",
		Host:            "fake-device",
		Mode:            mode,
		RefreshInterval: 3600,
		FrameDuration:   2,
	})
	coord := New("tv", device, sources, store, time.Second, zap.NewNop())
	return coord, store
}

func TestRunCycleBuiltinMode(t *testing.T) {
	device := &fakeDevice{theme: 4}
	coord, _ := newTestCoordinator(device, nil, models.ModeBuiltin)
	_, gen := coord.init.Snapshot()
	coord.init.MarkInitialized(gen)

	result := coord.runCycle(context.Background(), TriggerScheduled)

	if !result.OK() {
		t.Fatalf("builtin cycle failed: %s", result.Error)
	}
	if result.Theme != 4 {
		t.Errorf("got theme %d, want 4", result.Theme)
	}
	if calls := device.Calls(); len(calls) != 1 || calls[0] != "AppInfo" {
		t.Errorf("builtin mode must only read status, got calls %v", calls)
	}
	if coord.InitState() != NeedsInit {
		t.Error("builtin cycle must require re-init when cameras mode resumes")
	}
}

func TestRunCycleProbeFailure(t *testing.T) {
	device := &fakeDevice{infoErr: smalltv.ErrUnreachable}
	sources := []camera.Source{&fakeSource{id: "cam1", label: "cam one", data: []byte("x")}}
	coord, _ := newTestCoordinator(device, sources, models.ModeCameras)
	_, gen := coord.init.Snapshot()
	coord.init.MarkInitialized(gen)

	result := coord.runCycle(context.Background(), TriggerScheduled)

	if result.OK() {
		t.Fatal("expected cycle failure for unreachable device")
	}
	if calls := device.Calls(); len(calls) != 1 || calls[0] != "Info" {
		t.Errorf("unreachable probe must end the cycle, got calls %v", calls)
	}
	if coord.InitState() != Initialized {
		t.Error("probe failure must not alter album-init state")
	}
}

func TestRunCycleZeroFramesSkipsUpload(t *testing.T) {
	device := &fakeDevice{}
	sources := []camera.Source{
		&fakeSource{id: "cam1", label: "cam one", err: errors.New("offline")},
		&fakeSource{id: "cam2", label: "cam two", err: errors.New("offline")},
	}
	coord, _ := newTestCoordinator(device, sources, models.ModeCameras)
	before := coord.InitState()

	result := coord.runCycle(context.Background(), TriggerScheduled)

	if result.OK() {
		t.Fatal("expected failure when no frames survive")
	}
	for _, call := range device.Calls() {
		if call != "Info" {
			t.Errorf("unexpected device call %q after total camera failure", call)
		}
	}
	if coord.InitState() != before {
		t.Error("album-init state changed on a frameless cycle")
	}
}

func TestRunCyclePartialFailureKeepsOrder(t *testing.T) {
	device := &fakeDevice{}
	sources := []camera.Source{
		&fakeSource{id: "cam1", label: "cam one", data: snapshotJPEG(t, color.RGBA{R: 200, A: 255})},
		&fakeSource{id: "cam2", label: "cam two", err: errors.New("offline")},
		&fakeSource{id: "cam3", label: "cam three", data: snapshotJPEG(t, color.RGBA{B: 200, A: 255})},
	}
	coord, _ := newTestCoordinator(device, sources, models.ModeCameras)

	result := coord.runCycle(context.Background(), TriggerScheduled)

	if !result.OK() {
		t.Fatalf("cycle failed: %s", result.Error)
	}
	if len(result.Frames) != 2 || result.Frames[0] != "cam one" || result.Frames[1] != "cam three" {
		t.Errorf("got frames %v, want [cam one, cam three]", result.Frames)
	}
	if len(result.FailedCameras) != 1 || result.FailedCameras[0] != "cam2" {
		t.Errorf("got failed cameras %v, want [cam2]", result.FailedCameras)
	}

	if len(device.uploaded) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(device.uploaded))
	}
	decoded, err := gif.DecodeAll(bytes.NewReader(device.uploaded[0]))
	if err != nil {
		t.Fatalf("uploaded artifact not a gif: %v", err)
	}
	if len(decoded.Image) != 2 {
		t.Errorf("artifact has %d frames, want 2", len(decoded.Image))
	}
	// Frame order matches surviving camera order: red first, blue second.
	r0, _, b0, _ := decoded.Image[0].At(10, 10).RGBA()
	r1, _, b1, _ := decoded.Image[1].At(10, 10).RGBA()
	if r0 <= b0 || b1 <= r1 {
		t.Error("artifact frames out of order")
	}
}

func TestRunCycleInitSequence(t *testing.T) {
	device := &fakeDevice{}
	sources := []camera.Source{
		&fakeSource{id: "cam1", label: "cam one", data: snapshotJPEG(t, color.RGBA{G: 200, A: 255})},
	}
	coord, _ := newTestCoordinator(device, sources, models.ModeCameras)

	t.Run("first cycle runs init before upload", func(t *testing.T) {
		result := coord.runCycle(context.Background(), TriggerScheduled)
		if !result.OK() {
			t.Fatalf("cycle failed: %s", result.Error)
		}
		want := []string{"Info", "SetTheme", "ClearImages", "Upload:cameras.gif", "ShowGIF:cameras.gif"}
		got := device.Calls()
		if len(got) != len(want) {
			t.Fatalf("got calls %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("got calls %v, want %v", got, want)
			}
		}
		if coord.InitState() != Initialized {
			t.Error("successful cycle must mark the device initialized")
		}
	})

	t.Run("second cycle skips init", func(t *testing.T) {
		device.calls = nil
		result := coord.runCycle(context.Background(), TriggerScheduled)
		if !result.OK() {
			t.Fatalf("cycle failed: %s", result.Error)
		}
		for _, call := range device.Calls() {
			if call == "SetTheme" || call == "ClearImages" {
				t.Errorf("init step %q re-ran on an initialized device", call)
			}
		}
	})

	t.Run("forced refresh re-runs init exactly once", func(t *testing.T) {
		device.calls = nil
		coord.ForceRefresh()
		coord.execute(context.Background(), <-coord.trigger)

		var themes, clears int
		for _, call := range device.Calls() {
			switch call {
			case "SetTheme":
				themes++
			case "ClearImages":
				clears++
			}
		}
		if themes != 1 || clears != 1 {
			t.Errorf("got %d SetTheme / %d ClearImages, want exactly 1 each", themes, clears)
		}
	})
}

func TestRunCycleInitFailureAborts(t *testing.T) {
	device := &fakeDevice{clearErr: smalltv.ErrUnreachable}
	sources := []camera.Source{
		&fakeSource{id: "cam1", label: "cam one", data: snapshotJPEG(t, color.RGBA{G: 200, A: 255})},
	}
	coord, _ := newTestCoordinator(device, sources, models.ModeCameras)

	result := coord.runCycle(context.Background(), TriggerScheduled)

	if result.OK() {
		t.Fatal("expected failure when init cannot complete")
	}
	for _, call := range device.Calls() {
		if call == "Upload:cameras.gif" {
			t.Error("upload issued after a failed init sequence")
		}
	}
	if coord.InitState() != NeedsInit {
		t.Error("partial init must not be treated as stuck")
	}
}

func TestForcedRefreshFoldsIntoQueuedTrigger(t *testing.T) {
	device := &fakeDevice{}
	sources := []camera.Source{
		&fakeSource{id: "cam1", label: "cam one", data: snapshotJPEG(t, color.RGBA{G: 200, A: 255})},
	}
	coord, _ := newTestCoordinator(device, sources, models.ModeCameras)

	if result := coord.runCycle(context.Background(), TriggerScheduled); !result.OK() {
		t.Fatalf("cycle failed: %s", result.Error)
	}
	if coord.InitState() != Initialized {
		t.Fatal("device not initialized after first cycle")
	}

	// An on-demand refresh is already queued when the forced one arrives;
	// the forced trigger folds into it but its init reset must stick.
	device.calls = nil
	coord.Refresh()
	coord.ForceRefresh()

	if n := len(coord.trigger); n != 1 {
		t.Fatalf("got %d queued triggers, want 1", n)
	}
	if coord.InitState() != NeedsInit {
		t.Fatal("forced refresh did not reset album-init state")
	}

	coord.execute(context.Background(), <-coord.trigger)

	var themes, clears int
	for _, call := range device.Calls() {
		switch call {
		case "SetTheme":
			themes++
		case "ClearImages":
			clears++
		}
	}
	if themes != 1 || clears != 1 {
		t.Errorf("got %d SetTheme / %d ClearImages, want exactly 1 each", themes, clears)
	}
	if coord.InitState() != Initialized {
		t.Error("folded cycle did not complete init")
	}
}

func TestTriggerCoalescing(t *testing.T) {
	device := &fakeDevice{}
	coord, _ := newTestCoordinator(device, nil, models.ModeCameras)

	coord.ForceRefresh()
	coord.ForceRefresh()
	coord.ForceRefresh()

	if n := len(coord.trigger); n != 1 {
		t.Errorf("got %d queued triggers, want 1", n)
	}
}

func TestRunProcessesQueuedTriggerAndStops(t *testing.T) {
	device := &fakeDevice{theme: 1}
	coord, _ := newTestCoordinator(device, nil, models.ModeBuiltin)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(done)
	}()

	coord.Refresh()

	deadline := time.After(5 * time.Second)
	for coord.LastResult() == nil {
		select {
		case <-deadline:
			t.Fatal("queued trigger was never processed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}

	if result := coord.LastResult(); result.Trigger != "manual" {
		t.Errorf("got trigger %q, want manual", result.Trigger)
	}
}
