package mjpegparser

import (
	"bytes"
	"testing"
)

// validJPEG builds an SOI..EOI payload of exactly n bytes (n must be >= 4).
func validJPEG(n int) []byte {
	buf := make([]byte, n)
	buf[0], buf[1] = soi0, soi1
	for i := 2; i < n-2; i++ {
		buf[i] = byte(i)
	}
	buf[n-2], buf[n-1] = eoi0, eoi1
	return buf
}

func buildBody(boundary string, frames [][]byte) []byte {
	var buf bytes.Buffer
	for _, f := range frames {
		buf.WriteString(boundary)
		buf.WriteString("\r\n")
		buf.WriteString("Content-Type: image/jpeg\r\n")
		buf.WriteString("\r\n")
		buf.Write(f)
		buf.WriteString("\r\n")
	}
	buf.WriteString(boundary)
	buf.WriteString("--")
	return buf.Bytes()
}

func TestSingleFrameHappyPath(t *testing.T) {
	frame := validJPEG(200)
	body := buildBody("--myboundary", [][]byte{frame})

	var got [][]byte
	p := New("--myboundary", 1<<20, Events{
		FrameComplete: func(f []byte) {
			cp := append([]byte(nil), f...)
			got = append(got, cp)
		},
	})
	p.Feed(body)

	if len(got) != 1 {
		t.Fatalf("expected 1 FrameComplete, got %d", len(got))
	}
	if !bytes.Equal(got[0], frame) {
		t.Fatalf("frame bytes mismatch")
	}
}

func TestChunkIndependence(t *testing.T) {
	frames := [][]byte{validJPEG(150), validJPEG(400), validJPEG(200)}
	body := buildBody("--myboundary", frames)

	runWithChunkSize := func(chunk int) [][]byte {
		var got [][]byte
		p := New("--myboundary", 1<<20, Events{
			FrameComplete: func(f []byte) {
				cp := append([]byte(nil), f...)
				got = append(got, cp)
			},
		})
		if chunk <= 0 {
			p.Feed(body)
			return got
		}
		for i := 0; i < len(body); i += chunk {
			end := i + chunk
			if end > len(body) {
				end = len(body)
			}
			p.Feed(body[i:end])
		}
		return got
	}

	whole := runWithChunkSize(0)
	for _, chunk := range []int{1, 2, 3, 7, 64} {
		got := runWithChunkSize(chunk)
		if len(got) != len(whole) {
			t.Fatalf("chunk=%d: got %d frames, want %d", chunk, len(got), len(whole))
		}
		for i := range got {
			if !bytes.Equal(got[i], whole[i]) {
				t.Fatalf("chunk=%d: frame %d mismatch", chunk, i)
			}
		}
	}
}

func TestRuntSuppression(t *testing.T) {
	runt := []byte{soi0, soi1, eoi0, eoi1} // 4 bytes, well under MinJpegSize
	body := buildBody("--myboundary", [][]byte{runt})

	frameCount := 0
	p := New("--myboundary", 1<<20, Events{
		FrameComplete: func(f []byte) { frameCount++ },
	})
	p.Feed(body)

	if frameCount != 0 {
		t.Fatalf("expected 0 FrameComplete for runt payload, got %d", frameCount)
	}
}

func TestConsecutiveEOI(t *testing.T) {
	// SOI, enough filler to clear MinJpegSize, EOI, EOI again with no SOI.
	var payload []byte
	payload = append(payload, soi0, soi1)
	for i := 0; i < MinJpegSize; i++ {
		payload = append(payload, 0x00)
	}
	payload = append(payload, eoi0, eoi1)
	payload = append(payload, eoi0, eoi1)

	frameCount := 0
	p := New("--myboundary", 1<<20, Events{
		FrameComplete: func(f []byte) { frameCount++ },
	})
	p.Feed(payload)

	if frameCount != 1 {
		t.Fatalf("expected exactly 1 FrameComplete for consecutive EOI, got %d", frameCount)
	}
}

func TestOverflowResynchronizes(t *testing.T) {
	// A JPEG payload that never reaches EOI within maxFrameBytes triggers
	// Overflow, then the parser must still frame a subsequent well-formed
	// part correctly.
	oversized := make([]byte, 400)
	oversized[0], oversized[1] = soi0, soi1 // starts a JPEG payload, never closes
	// The well-formed part fits under the 300-byte cap below.
	good := validJPEG(200)

	var buf bytes.Buffer
	buf.Write(oversized)
	buf.WriteString("\r\n--myboundary\r\nContent-Type: image/jpeg\r\n\r\n")
	buf.Write(good)
	buf.WriteString("\r\n--myboundary--")

	overflowed := false
	var frames [][]byte
	p := New("--myboundary", 300, Events{
		Overflow: func() { overflowed = true },
		FrameComplete: func(f []byte) {
			frames = append(frames, append([]byte(nil), f...))
		},
	})
	p.Feed(buf.Bytes())

	if !overflowed {
		t.Fatalf("expected Overflow to fire")
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], good) {
		t.Fatalf("expected parser to resynchronize and frame the following part")
	}
}

func TestNonStandardBoundaryNormalization(t *testing.T) {
	if got := NormalizeBoundary("X"); got != "--X" {
		t.Fatalf("NormalizeBoundary(%q) = %q, want %q", "X", got, "--X")
	}
	if got := NormalizeBoundary("--X"); got != "--X" {
		t.Fatalf("NormalizeBoundary(%q) = %q, want %q", "--X", got, "--X")
	}
}

func TestHeaderEventFires(t *testing.T) {
	body := buildBody("--myboundary", [][]byte{validJPEG(150)})

	var gotKey, gotValue string
	p := New("--myboundary", 1<<20, Events{
		Header: func(key, value string) {
			gotKey, gotValue = key, value
		},
	})
	p.Feed(body)

	if gotKey != "Content-Type" || gotValue != "image/jpeg" {
		t.Fatalf("Header event = (%q, %q), want (%q, %q)", gotKey, gotValue, "Content-Type", "image/jpeg")
	}
}

func TestBoundaryHitEventFires(t *testing.T) {
	body := buildBody("--myboundary", [][]byte{validJPEG(150), validJPEG(150)})

	hits := 0
	p := New("--myboundary", 1<<20, Events{
		BoundaryHit: func() { hits++ },
	})
	p.Feed(body)

	if hits != 2 {
		t.Fatalf("expected 2 BoundaryHit events, got %d", hits)
	}
}

func TestBoundaryHitMatchesLineWithTrailingWhitespace(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("--myboundary \t\r\n")
	buf.WriteString("Content-Type: image/jpeg\r\n\r\n")
	buf.Write(validJPEG(150))
	buf.WriteString("\r\n--myboundary--")

	hits := 0
	p := New("--myboundary", 1<<20, Events{
		BoundaryHit: func() { hits++ },
	})
	p.Feed(buf.Bytes())

	if hits != 1 {
		t.Fatalf("expected 1 BoundaryHit event for a boundary line with trailing whitespace, got %d", hits)
	}
}
