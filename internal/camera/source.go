// Package camera provides the snapshot sources the coordinator pulls frames
// from. Each source is fetched once per cycle and may fail independently.
package camera

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kizs/smalltv-cameras/pkg/models"
)

// Source produces a raw still image on demand.
type Source interface {
	ID() string
	Label() string
	Snapshot(ctx context.Context) ([]byte, error)
}

// maxSnapshotBytes caps a single snapshot read; anything larger than this is
// not going to fit on the device anyway.
const maxSnapshotBytes = 8 << 20

// HTTPSource fetches snapshots from a camera's still-image URL.
type HTTPSource struct {
	id     string
	label  string
	url    string
	client *http.Client
}

// NewHTTPSource builds a source from a camera entry. The timeout bounds each
// snapshot fetch independently of the other cameras in the cycle.
func NewHTTPSource(cfg models.CameraConfig, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		id:     cfg.ID,
		label:  cfg.Label(),
		url:    cfg.SnapshotURL,
		client: &http.Client{Timeout: timeout},
	}
}

// ID returns the camera identifier.
func (s *HTTPSource) ID() string {
	return s.id
}

// Label returns the text rendered onto this camera's frames.
func (s *HTTPSource) Label() string {
	return s.label
}

// Snapshot fetches one still image.
func (s *HTTPSource) Snapshot(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request for %s: %w", s.id, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot for %s: %w", s.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot for %s returned HTTP %d", s.id, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot for %s: %w", s.id, err)
	}
	return data, nil
}
