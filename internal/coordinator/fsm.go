package coordinator

import "sync"

// InitState tracks whether the device's photo-album mode must be
// (re-)initialized (theme switch + stored-image wipe) before the next upload.
type InitState int

const (
	// NeedsInit means the init sequence must run before the next upload.
	NeedsInit InitState = iota
	// Initialized means the device accepted theme switch and wipe and at
	// least one upload has landed since.
	Initialized
)

func (s InitState) String() string {
	switch s {
	case NeedsInit:
		return "needs_init"
	case Initialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// initTracker is the album-init state machine. Resets happen from outside the
// cycle (process start, forced refresh, mode change), so transitions to
// Initialized are generation-checked: a mark taken against a stale snapshot is
// dropped rather than clobbering a reset that arrived mid-cycle.
type initTracker struct {
	mu    sync.Mutex
	state InitState
	gen   uint64
}

// newInitTracker starts in NeedsInit.
func newInitTracker() *initTracker {
	return &initTracker{state: NeedsInit}
}

// Snapshot returns the current state and its generation token.
func (t *initTracker) Snapshot() (InitState, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, t.gen
}

// State returns the current state.
func (t *initTracker) State() InitState {
	s, _ := t.Snapshot()
	return s
}

// Reset forces the machine back to NeedsInit and invalidates outstanding
// snapshots.
func (t *initTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = NeedsInit
	t.gen++
}

// MarkInitialized transitions to Initialized if gen is still current. Returns
// false when a reset superseded the snapshot the caller ran its init sequence
// under.
func (t *initTracker) MarkInitialized(gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gen != gen {
		return false
	}
	t.state = Initialized
	return true
}
