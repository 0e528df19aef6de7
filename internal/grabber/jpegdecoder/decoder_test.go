package jpegdecoder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/warpcomdev/ipvideograbber/internal/grabber/frameslot"
)

func encodeSolid(w, h int, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func TestDecodeProducesMatchingDimensions(t *testing.T) {
	data := encodeSolid(16, 12, color.RGBA{R: 200, G: 50, B: 50, A: 255})
	pb, err := NewStdlib().Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if pb.Width != 16 || pb.Height != 12 {
		t.Fatalf("decoded dims = %dx%d, want 16x12", pb.Width, pb.Height)
	}
	if pb.Format != frameslot.RGB24 {
		t.Fatalf("Format = %v, want RGB24", pb.Format)
	}
	if len(pb.Bytes) != 16*12*3 {
		t.Fatalf("len(Bytes) = %d, want %d", len(pb.Bytes), 16*12*3)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := NewStdlib().Decode([]byte("not a jpeg")); err == nil {
		t.Fatalf("expected an error decoding non-JPEG data")
	}
}
