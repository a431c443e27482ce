package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"time"

	"github.com/ericpauley/go-quantize/quantize"
)

// ErrNoFrames is returned when there is nothing to encode. The cycle must
// fail rather than upload a degenerate artifact.
var ErrNoFrames = errors.New("no frames to encode")

// gifTimeUnit is the GIF delay granularity (centiseconds).
const gifTimeUnit = 10 * time.Millisecond

// EncodeGIF assembles canonical frames into one looping animated GIF. Each
// frame is quantized to its own median-cut palette; a palette shared across
// frames would wash out colors between unrelated camera scenes. The
// quantizer emits only the palette entries a frame actually uses, so frames
// carry no redundant color-table data.
func EncodeGIF(frames []image.Image, frameDuration time.Duration) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}

	delay := int(frameDuration / gifTimeUnit)
	quantizer := quantize.MedianCutQuantizer{}

	anim := &gif.GIF{
		LoopCount: 0, // loop forever
	}
	for _, frame := range frames {
		palette := quantizer.Quantize(make(color.Palette, 0, 256), frame)
		paletted := image.NewPaletted(frame.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, frame.Bounds(), frame, image.Point{})

		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, delay)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("encoding gif: %w", err)
	}
	return buf.Bytes(), nil
}
