// Package imaging turns raw camera snapshots into the animated artifact the
// device displays: per-frame normalization to the 240x240 panel, then paletted
// GIF assembly.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	// Snapshot formats the compositor accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// FrameSize is the panel resolution; every canonical frame is FrameSize square.
const FrameSize = 240

const (
	labelBarHeight = 30
	labelMaxRunes  = 22
	labelBarAlpha  = 160
)

// ErrDecode marks a snapshot that could not be decoded. Per-frame: the caller
// drops the frame and continues the batch.
var ErrDecode = errors.New("image decode failed")

// Compose converts one raw snapshot into a canonical frame: decode, largest
// centered square crop (no stretching), Lanczos resize to the panel size, and
// an alpha-blended label bar along the bottom.
func Compose(raw []byte, label string) (image.Image, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	cropped := centerSquare(src)
	scaled := resize.Resize(FrameSize, FrameSize, cropped, resize.Lanczos3)

	frame := image.NewRGBA(image.Rect(0, 0, FrameSize, FrameSize))
	draw.Draw(frame, frame.Bounds(), scaled, scaled.Bounds().Min, draw.Src)

	if label != "" {
		drawLabel(frame, label)
	}
	return frame, nil
}

// centerSquare returns the largest centered square region of src as a new
// image with origin (0,0).
func centerSquare(src image.Image) image.Image {
	b := src.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	offset := image.Pt(b.Min.X+(b.Dx()-side)/2, b.Min.Y+(b.Dy()-side)/2)

	cropped := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(cropped, cropped.Bounds(), src, offset, draw.Src)
	return cropped
}

// drawLabel composites a semi-transparent bar across the bottom of the frame
// and centers the label text in it. The bar is blended over the pixels, not
// painted opaque.
func drawLabel(frame *image.RGBA, label string) {
	barTop := FrameSize - labelBarHeight
	bar := image.Rect(0, barTop, FrameSize, FrameSize)
	draw.Draw(frame, bar, image.NewUniform(color.NRGBA{A: labelBarAlpha}), image.Point{}, draw.Over)

	text := truncateRunes(label, labelMaxRunes)
	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  frame,
		Src:  image.NewUniform(color.White),
		Face: face,
	}

	width := drawer.MeasureString(text)
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	height := ascent + metrics.Descent.Ceil()

	drawer.Dot = fixed.Point26_6{
		X: (fixed.I(FrameSize) - width) / 2,
		Y: fixed.I(barTop + (labelBarHeight-height)/2 + ascent),
	}
	drawer.DrawString(text)
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
