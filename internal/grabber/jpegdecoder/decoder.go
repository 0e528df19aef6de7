// Package jpegdecoder provides the injected JpegDecoder capability
// (spec §6). A cgo binding to libjpeg-turbo tied to ASI hardware buffers
// is not portable and cannot be adapted into a decode-only adapter, so
// this uses the standard library's image/jpeg decoder instead — the one
// place in this module where no third-party library could serve (see
// DESIGN.md).
package jpegdecoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/warpcomdev/ipvideograbber/internal/grabber/frameslot"
)

// Decoder decodes a complete JPEG payload into a PixelBuffer.
type Decoder interface {
	Decode(data []byte) (frameslot.PixelBuffer, error)
}

// Stdlib decodes via image/jpeg and converts to RGB24.
type Stdlib struct{}

// NewStdlib returns the standard-library-backed Decoder.
func NewStdlib() Stdlib { return Stdlib{} }

func (Stdlib) Decode(data []byte) (pb frameslot.PixelBuffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("jpeg decode panic: %v", r)
		}
	}()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return frameslot.PixelBuffer{}, err
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]byte, 0, w*h*3)
	out = genericToRGB24(img, out)
	return frameslot.PixelBuffer{
		Width:  w,
		Height: h,
		Format: frameslot.RGB24,
		Bytes:  out,
	}, nil
}

func genericToRGB24(img image.Image, out []byte) []byte {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			out = append(out, byte(r>>8), byte(g>>8), byte(b>>8))
		}
	}
	return out
}

