// Package smalltv is the HTTP client for the GeekMagic SmallTV Ultra stock
// firmware. All firmware quirks (duplicate framing headers on upload, the
// doubled path separator, mode-gated endpoints) are contained here; callers
// see clean errors classified by kind.
package smalltv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Firmware theme indices. Theme 3 is the photo album, the only theme that
// displays uploaded files. Theme 1 (weather clock) is the default builtin.
const (
	ThemePhotoAlbum     = 3
	ThemeBuiltinDefault = 1
)

// remoteImageDir is the fixed upload directory on the device.
const remoteImageDir = "/image/"

var (
	// ErrUnreachable covers network failures, timeouts and unexpected
	// statuses. Retried only via the next scheduled cycle.
	ErrUnreachable = errors.New("device unreachable")

	// ErrUploadRejected means the device explicitly refused an upload.
	ErrUploadRejected = errors.New("device rejected upload")
)

// Info is the GET /v.json response.
type Info struct {
	Model    string `json:"m"`
	Firmware string `json:"v"`
}

// AppInfo is the GET /app.json response.
type AppInfo struct {
	Theme int `json:"theme"`
}

// AlbumInfo is the GET /album.json response.
type AlbumInfo struct {
	Autoplay      int `json:"autoplay"`
	CycleInterval int `json:"i_i"`
}

// Storage is the GET /space.json response, in bytes.
type Storage struct {
	Total int64 `json:"total"`
	Free  int64 `json:"free"`
}

// Client talks to one SmallTV Ultra device. Requests reuse a single shared
// transport. There is no retry logic here; retry policy belongs to the
// coordinator.
type Client struct {
	host         string
	httpClient   *http.Client
	uploadClient *http.Client
	logger       *zap.Logger
}

// NewClient creates a client for the device at host (IP or hostname).
func NewClient(host string, requestTimeout, uploadTimeout time.Duration, logger *zap.Logger) *Client {
	transport := &http.Transport{
		// The ESP8266 webserver handles very few sockets; keep at most one
		// idle connection around.
		MaxIdleConnsPerHost: 1,
	}
	return &Client{
		host:         host,
		httpClient:   &http.Client{Transport: transport, Timeout: requestTimeout},
		uploadClient: &http.Client{Transport: transport, Timeout: uploadTimeout},
		logger:       logger,
	}
}

// Host returns the configured device host.
func (c *Client) Host() string {
	return c.host
}

// Info fetches the model and firmware version. Doubles as the liveness probe.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.getJSON(ctx, "/v.json", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// AppInfo reads the currently active firmware theme.
func (c *Client) AppInfo(ctx context.Context) (*AppInfo, error) {
	var app AppInfo
	if err := c.getJSON(ctx, "/app.json", &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// AlbumInfo reads the photo-album settings.
func (c *Client) AlbumInfo(ctx context.Context) (*AlbumInfo, error) {
	var album AlbumInfo
	if err := c.getJSON(ctx, "/album.json", &album); err != nil {
		return nil, err
	}
	return &album, nil
}

// Storage reads total and free flash space.
func (c *Client) Storage(ctx context.Context) (*Storage, error) {
	var storage Storage
	if err := c.getJSON(ctx, "/space.json", &storage); err != nil {
		return nil, err
	}
	return &storage, nil
}

// SetTheme switches the display to theme n. Idempotent.
func (c *Client) SetTheme(ctx context.Context, n int) error {
	return c.set(ctx, fmt.Sprintf("theme=%d", n))
}

// SetBrightness sets display brightness as a percentage. The device provides
// no read-back; the caller is the source of truth for the current value.
func (c *Client) SetBrightness(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("brightness %d out of range [0,100]", percent)
	}
	return c.set(ctx, fmt.Sprintf("brt=%d", percent))
}

// SetAlbumOptions configures the photo album: seconds per image and autoplay.
// Best-effort cosmetic sync on devices with per-frame timing control; the
// artifact's embedded frame timing remains authoritative.
func (c *Client) SetAlbumOptions(ctx context.Context, cycleSeconds, autoplay int) error {
	return c.set(ctx, fmt.Sprintf("i_i=%d&autoplay=%d", cycleSeconds, autoplay))
}

// ClearImages deletes every file in the device's image directory. Idempotent.
func (c *Client) ClearImages(ctx context.Context) error {
	return c.set(ctx, "clear=image")
}

// SetImage displays a single uploaded image by name.
func (c *Client) SetImage(ctx context.Context, name string) error {
	return c.set(ctx, "img="+displayPath(name))
}

// ShowGIF selects and displays an uploaded GIF by name.
func (c *Client) ShowGIF(ctx context.Context, name string) error {
	return c.set(ctx, "gif="+displayPath(name))
}

// displayPath builds the path the /set endpoint expects. The firmware's path
// parser requires a doubled separator between directory and filename; a single
// slash is not found.
func displayPath(name string) string {
	return remoteImageDir + "/" + name
}

// uploadBoundary is fixed so request framing is reproducible against the
// firmware's fragile multipart parser.
const uploadBoundary = "----SmallTVBoundary7MA4YWxkTrZu0gW"

// Upload sends a file to the device's image directory via POST /doUpload.
//
// The multipart body is built by hand: form-writer helpers emit framing the
// ESP8266 rejects with HTTP 400. On the response side the firmware sends
// duplicate Content-Length headers on success; the transport surfaces that as
// an error even though the upload completed, so it is reclassified as success
// here and never reaches retry logic.
func (c *Client) Upload(ctx context.Context, filename string, data []byte, contentType string) error {
	var body bytes.Buffer
	fmt.Fprintf(&body, "--%s\r\n", uploadBoundary)
	fmt.Fprintf(&body, "Content-Disposition: form-data; name=\"file\"; filename=%q\r\n", filename)
	fmt.Fprintf(&body, "Content-Type: %s\r\n\r\n", contentType)
	body.Write(data)
	fmt.Fprintf(&body, "\r\n--%s--\r\n", uploadBoundary)

	url := fmt.Sprintf("http://%s/doUpload?dir=%s", c.host, remoteImageDir)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body.Bytes()))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+uploadBoundary)

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		if isDuplicateLengthErr(err) {
			c.logger.Debug("upload response carried duplicate framing header, treating as success",
				zap.String("host", c.host),
				zap.String("filename", filename))
			return nil
		}
		return fmt.Errorf("%w: upload %q: %v", ErrUnreachable, filename, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: upload %q returned HTTP %d", ErrUploadRejected, filename, resp.StatusCode)
	}
	return nil
}

// isDuplicateLengthErr reports whether err is the transport failure raised for
// the firmware's duplicate Content-Length response headers. When this happens
// the device has already stored the file.
func isDuplicateLengthErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Content-Length")
}

// getJSON performs GET host+path and decodes the JSON body. The device labels
// JSON responses text/plain, so the content type is ignored.
func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.host+path, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrUnreachable, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s returned HTTP %d", ErrUnreachable, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: GET %s: decoding response: %v", ErrUnreachable, path, err)
	}
	return nil
}

// set performs GET /set?<query>. The query is passed through literally: the
// firmware parses it naively and path values must keep their slashes
// unescaped.
func (c *Client) set(ctx context.Context, query string) error {
	url := fmt.Sprintf("http://%s/set?%s", c.host, query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request for /set: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET /set?%s: %v", ErrUnreachable, query, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET /set?%s returned HTTP %d", ErrUnreachable, query, resp.StatusCode)
	}
	return nil
}
