package coordinator

import "testing"

func TestInitTracker(t *testing.T) {
	t.Run("starts needing init", func(t *testing.T) {
		tracker := newInitTracker()
		if tracker.State() != NeedsInit {
			t.Errorf("got %v, want NeedsInit", tracker.State())
		}
	})

	t.Run("mark transitions to initialized", func(t *testing.T) {
		tracker := newInitTracker()
		_, gen := tracker.Snapshot()
		if !tracker.MarkInitialized(gen) {
			t.Fatal("MarkInitialized rejected a current generation")
		}
		if tracker.State() != Initialized {
			t.Errorf("got %v, want Initialized", tracker.State())
		}
	})

	t.Run("reset returns to needs init", func(t *testing.T) {
		tracker := newInitTracker()
		_, gen := tracker.Snapshot()
		tracker.MarkInitialized(gen)
		tracker.Reset()
		if tracker.State() != NeedsInit {
			t.Errorf("got %v, want NeedsInit after reset", tracker.State())
		}
	})

	t.Run("stale mark loses to a reset", func(t *testing.T) {
		tracker := newInitTracker()
		_, gen := tracker.Snapshot()
		tracker.Reset() // reset arrives while a cycle is in flight
		if tracker.MarkInitialized(gen) {
			t.Error("stale generation was accepted")
		}
		if tracker.State() != NeedsInit {
			t.Errorf("got %v, want NeedsInit", tracker.State())
		}
	})

	t.Run("mark is idempotent", func(t *testing.T) {
		tracker := newInitTracker()
		_, gen := tracker.Snapshot()
		tracker.MarkInitialized(gen)
		_, gen2 := tracker.Snapshot()
		if !tracker.MarkInitialized(gen2) {
			t.Error("re-marking the current generation failed")
		}
		if tracker.State() != Initialized {
			t.Errorf("got %v, want Initialized", tracker.State())
		}
	})
}

func TestInitStateString(t *testing.T) {
	if NeedsInit.String() != "needs_init" || Initialized.String() != "initialized" {
		t.Error("unexpected state names")
	}
	if InitState(42).String() != "unknown" {
		t.Error("unexpected name for out-of-range state")
	}
}
