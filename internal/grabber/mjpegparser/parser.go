// Package mjpegparser implements the byte-driven state machine that turns
// a multipart/x-mixed-replace HTTP body into a sequence of JPEG frames.
// It is grounded on the original ofxIpVideoGrabber::threadedFunction byte
// loop (MODE_HEADER / MODE_JPEG, MIN_JPEG_SIZE, boundary-line matching),
// restated with Go-native event callbacks instead of member-variable
// side effects.
package mjpegparser

// MinJpegSize is the minimum length, in bytes, of a complete SOI..EOI
// payload for it to be treated as a real frame rather than a runt.
const MinJpegSize = 134

const (
	soi0 byte = 0xFF
	soi1 byte = 0xD8
	eoi0 byte = 0xFF
	eoi1 byte = 0xD9
)

// State is the parser's current scanning mode.
type State int

const (
	// Header scans CRLF-delimited header/boundary lines.
	Header State = iota
	// Jpeg accumulates bytes of a JPEG payload between SOI and EOI.
	Jpeg
)

// Events is the set of callbacks invoked synchronously as bytes are fed
// to the parser. Any nil callback is simply skipped. Callbacks must not
// retain the byte slices passed to them without copying: the parser reuses
// its internal scratch buffer.
type Events struct {
	// Header fires for each "key: value" line seen while in Header state.
	Header func(key, value string)
	// BoundaryHit fires when a line exactly equals the boundary marker.
	BoundaryHit func()
	// FrameComplete fires with the full SOI..EOI payload once it reaches
	// at least MinJpegSize bytes.
	FrameComplete func(frame []byte)
	// Overflow fires when the scratch buffer would exceed MaxFrameBytes
	// before an EOI was observed.
	Overflow func()
}

// Parser is a single-stream MJPEG byte parser. It is not safe for
// concurrent use; the spec's concurrency model gives each GrabberWorker
// its own Parser, fed only from the worker goroutine.
type Parser struct {
	boundary string
	maxBytes int
	events   Events

	state State
	// scratch accumulates the current line (Header state) or the current
	// JPEG payload (Jpeg state).
	scratch []byte
	// lastByte is the previous byte fed to the parser, used to detect the
	// two-byte SOI/EOI markers and CRLF sequences without lookahead.
	lastByte     byte
	havePrevByte bool
}

// New builds a Parser. boundary must already be normalized to start with
// "--" (see NormalizeBoundary). maxFrameBytes bounds the scratch buffer;
// a non-positive value means no explicit cap beyond Go's slice growth
// (callers should always pass CameraConfig.MaxFrameBytes in practice).
func New(boundary string, maxFrameBytes int, events Events) *Parser {
	return &Parser{
		boundary: boundary,
		maxBytes: maxFrameBytes,
		events:   events,
		state:    Header,
		scratch:  make([]byte, 0, 4096),
	}
}

// NormalizeBoundary ensures marker begins with "--", prepending it if the
// server supplied a bare boundary value (spec §4.1, scenario 6).
func NormalizeBoundary(marker string) string {
	if len(marker) >= 2 && marker[0] == '-' && marker[1] == '-' {
		return marker
	}
	return "--" + marker
}

// Feed processes an arbitrary-length chunk of bytes. Parsing a stream in
// one Feed call or as any sequence of chunked Feed calls yields identical
// event sequences (chunk-independence, spec §8).
func (p *Parser) Feed(data []byte) {
	for _, b := range data {
		p.feedByte(b)
	}
}

func (p *Parser) feedByte(b byte) {
	switch p.state {
	case Jpeg:
		p.feedJpegByte(b)
	case Header:
		p.feedHeaderByte(b)
	}
}

func (p *Parser) feedHeaderByte(b byte) {
	// SOI detection takes priority: "FF D8" starts a payload even though
	// it arrives mid "line" as far as the header scanner is concerned.
	if p.havePrevByte && p.lastByte == soi0 && b == soi1 {
		p.state = Jpeg
		p.scratch = p.scratch[:0]
		p.scratch = append(p.scratch, soi0, soi1)
		p.havePrevByte = false
		return
	}
	if b == '\n' && p.havePrevByte && p.lastByte == '\r' {
		// CRLF closes the accumulated line; drop the trailing CR already
		// appended to scratch.
		line := p.scratch
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		p.handleHeaderLine(string(line))
		p.scratch = p.scratch[:0]
		p.havePrevByte = false
		return
	}
	if p.appendScratch(b) {
		return
	}
	p.lastByte = b
	p.havePrevByte = true
}

func (p *Parser) handleHeaderLine(line string) {
	if trimSpace(line) == p.boundary {
		if p.events.BoundaryHit != nil {
			p.events.BoundaryHit()
		}
		return
	}
	if line == "" {
		return
	}
	idx := -1
	for i := 0; i < len(line); i++ {
		if line[i] == ':' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	key := trimSpace(line[:idx])
	value := trimSpace(line[idx+1:])
	if p.events.Header != nil {
		p.events.Header(key, value)
	}
}

func (p *Parser) feedJpegByte(b byte) {
	if p.havePrevByte && p.lastByte == eoi0 && b == eoi1 {
		p.appendScratch(b)
		if len(p.scratch) >= MinJpegSize {
			if p.events.FrameComplete != nil {
				p.events.FrameComplete(p.scratch)
			}
		}
		p.state = Header
		p.scratch = p.scratch[:0]
		p.havePrevByte = false
		return
	}
	if p.appendScratch(b) {
		return
	}
	p.lastByte = b
	p.havePrevByte = true
}

// appendScratch appends b to the scratch buffer, or triggers Overflow and
// resets to Header state if that would exceed maxBytes. It returns true
// when an overflow reset occurred, telling the caller not to update
// lastByte/havePrevByte against a buffer that no longer exists.
func (p *Parser) appendScratch(b byte) bool {
	if p.maxBytes > 0 && len(p.scratch) >= p.maxBytes {
		if p.events.Overflow != nil {
			p.events.Overflow()
		}
		p.scratch = p.scratch[:0]
		p.state = Header
		p.havePrevByte = false
		return true
	}
	p.scratch = append(p.scratch, b)
	return false
}

// State returns the parser's current scanning mode, mostly useful in
// tests.
func (p *Parser) State() State { return p.state }

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t'
}
