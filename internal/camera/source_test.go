package camera

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kizs/smalltv-cameras/pkg/models"
)

func TestHTTPSourceSnapshot(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, "jpeg-bytes")
		}))
		defer server.Close()

		src := NewHTTPSource(models.CameraConfig{
			ID:          "front_door",
			SnapshotURL: server.URL + "/snapshot.jpg",
		}, 5*time.Second)

		data, err := src.Snapshot(context.Background())
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		if string(data) != "jpeg-bytes" {
			t.Errorf("got %q, want jpeg-bytes", data)
		}
		if src.Label() != "front door" {
			t.Errorf("got label %q, want %q", src.Label(), "front door")
		}
	})

	t.Run("non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "camera offline", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		src := NewHTTPSource(models.CameraConfig{ID: "cam", SnapshotURL: server.URL}, 5*time.Second)
		if _, err := src.Snapshot(context.Background()); err == nil {
			t.Error("expected error for HTTP 503")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		src := NewHTTPSource(models.CameraConfig{ID: "cam", SnapshotURL: server.URL}, 5*time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := src.Snapshot(ctx); err == nil {
			t.Error("expected error for timed-out snapshot")
		}
	})
}
