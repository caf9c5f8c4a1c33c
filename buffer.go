package saw

import (
	"encoding/hex"
	"fmt"
)

// ByteBuffer is the byte-container contract shared between the I/O layer
// and whatever codec sits above it: a readable region followed by a
// writable region, each exposed as a contiguous segment so syscalls and
// codecs can work on plain slices. Producers fill WriteSegment and commit
// with WriteAdvance; consumers drain ReadSegment and commit with
// ReadAdvance. A segment is only one contiguous run: a ring buffer whose
// free space wraps reports the run up to the wrap point and the remainder
// on the next call.
type ByteBuffer interface {
	// Len reports how many readable bytes are stored, across all segments.
	Len() int
	// Space reports how many bytes can still be written without growing.
	Space() int

	// ReadSegment returns the next contiguous run of readable bytes. It is
	// empty iff Len() == 0.
	ReadSegment() []byte
	// ReadSegmentAt returns the contiguous run of readable bytes starting
	// offset bytes past the read position; empty when offset >= Len().
	ReadSegmentAt(offset int) []byte
	// ReadAdvance marks n bytes as consumed; n must not exceed Len().
	ReadAdvance(n int)

	// WriteSegment returns the next contiguous run of writable bytes. It
	// is empty iff Space() == 0.
	WriteSegment() []byte
	// WriteAdvance marks n bytes as produced; n must not exceed Space().
	WriteAdvance(n int)

	// RequireSpace makes sure at least n bytes are writable, growing if
	// the implementation can and returning a recoverable error if it
	// cannot.
	RequireSpace(n int) error
}

// PushBytes copies p into b, growing it if needed (and possible).
func PushBytes(b ByteBuffer, p []byte) error {
	if err := b.RequireSpace(len(p)); err != nil {
		return err
	}
	for len(p) > 0 {
		seg := b.WriteSegment()
		n := copy(seg, p)
		b.WriteAdvance(n)
		p = p[n:]
	}
	return nil
}

// PopBytes removes and returns the next n readable bytes from b; it
// returns a recoverable error if fewer are stored.
func PopBytes(b ByteBuffer, n int) ([]byte, error) {
	if b.Len() < n {
		return nil, RecoverableError("buffer holds fewer bytes than requested")
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		seg := b.ReadSegment()
		take := n - len(out)
		if take > len(seg) {
			take = len(seg)
		}
		out = append(out, seg[:take]...)
		b.ReadAdvance(take)
	}
	return out, nil
}

// BufferToHex renders b's readable bytes as hex without consuming them,
// for debugging and log output.
func BufferToHex(b ByteBuffer) string {
	view := NewBufferView(b)
	raw, err := PopBytes(view, view.Len())
	if err != nil {
		return fmt.Sprintf("<buffer error: %v>", err)
	}
	return hex.EncodeToString(raw)
}

// ringDefaultSize is the default allocation of a RingBuffer; the type does
// not resize, so callers with known framing pass an explicit size.
const ringDefaultSize = 4096

// RingBuffer is a fixed-capacity byte buffer whose write position wraps
// around once the read position has moved on.
type RingBuffer struct {
	buf  []byte
	rpos int
	wpos int
	full bool
}

// NewRingBuffer allocates a ring of the given capacity; size <= 0 gets the
// default.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = ringDefaultSize
	}
	return &RingBuffer{buf: make([]byte, size)}
}

func (r *RingBuffer) Len() int {
	if r.full {
		return len(r.buf)
	}
	if r.wpos >= r.rpos {
		return r.wpos - r.rpos
	}
	return len(r.buf) - r.rpos + r.wpos
}

func (r *RingBuffer) Space() int { return len(r.buf) - r.Len() }

func (r *RingBuffer) ReadSegment() []byte { return r.ReadSegmentAt(0) }

func (r *RingBuffer) ReadSegmentAt(offset int) []byte {
	total := r.Len()
	if offset >= total {
		return nil
	}
	pos := (r.rpos + offset) % len(r.buf)
	end := pos + (total - offset)
	if end > len(r.buf) {
		end = len(r.buf)
	}
	return r.buf[pos:end]
}

func (r *RingBuffer) ReadAdvance(n int) {
	if n > r.Len() {
		panic("saw: ReadAdvance past stored bytes")
	}
	if n > 0 {
		r.full = false
	}
	r.rpos = (r.rpos + n) % len(r.buf)
}

func (r *RingBuffer) WriteSegment() []byte {
	if r.full {
		return nil
	}
	if r.wpos >= r.rpos {
		return r.buf[r.wpos:]
	}
	return r.buf[r.wpos:r.rpos]
}

func (r *RingBuffer) WriteAdvance(n int) {
	if n > r.Space() {
		panic("saw: WriteAdvance past available space")
	}
	r.wpos = (r.wpos + n) % len(r.buf)
	if n > 0 && r.wpos == r.rpos {
		r.full = true
	}
}

// RequireSpace reports a recoverable error when the ring cannot hold n
// more bytes; rings do not grow.
func (r *RingBuffer) RequireSpace(n int) error {
	if n > r.Space() {
		return RecoverableError("ring buffer too small for requested length")
	}
	return nil
}

// ArrayBuffer is a growable one-time buffer: bytes are written at the
// tail, read from an advancing front, and the backing array is never
// reused once consumed.
type ArrayBuffer struct {
	buf  []byte
	rpos int
	wpos int
}

// NewArrayBuffer allocates an array buffer with room for size bytes.
func NewArrayBuffer(size int) *ArrayBuffer {
	if size < 0 {
		size = 0
	}
	return &ArrayBuffer{buf: make([]byte, size)}
}

func (a *ArrayBuffer) Len() int   { return a.wpos - a.rpos }
func (a *ArrayBuffer) Space() int { return len(a.buf) - a.wpos }

func (a *ArrayBuffer) ReadSegment() []byte { return a.buf[a.rpos:a.wpos] }

func (a *ArrayBuffer) ReadSegmentAt(offset int) []byte {
	if a.rpos+offset >= a.wpos {
		return nil
	}
	return a.buf[a.rpos+offset : a.wpos]
}

func (a *ArrayBuffer) ReadAdvance(n int) {
	if n > a.Len() {
		panic("saw: ReadAdvance past stored bytes")
	}
	a.rpos += n
}

func (a *ArrayBuffer) WriteSegment() []byte { return a.buf[a.wpos:] }

func (a *ArrayBuffer) WriteAdvance(n int) {
	if n > a.Space() {
		panic("saw: WriteAdvance past available space")
	}
	a.wpos += n
}

// RequireSpace grows the backing array as needed; it never fails.
func (a *ArrayBuffer) RequireSpace(n int) error {
	if need := n - a.Space(); need > 0 {
		a.buf = append(a.buf, make([]byte, need)...)
	}
	return nil
}

// ChainBuffer strings ArrayBuffers together so writers can keep appending
// without moving already-stored bytes; exhausted links are dropped as the
// reader advances past them.
type ChainBuffer struct {
	links    []*ArrayBuffer
	linkSize int
}

// NewChainBuffer builds a chain whose links are allocated linkSize bytes
// at a time; linkSize <= 0 gets the ring default.
func NewChainBuffer(linkSize int) *ChainBuffer {
	if linkSize <= 0 {
		linkSize = ringDefaultSize
	}
	return &ChainBuffer{linkSize: linkSize}
}

func (c *ChainBuffer) Len() int {
	total := 0
	for _, l := range c.links {
		total += l.Len()
	}
	return total
}

func (c *ChainBuffer) Space() int {
	if len(c.links) == 0 {
		return 0
	}
	return c.links[len(c.links)-1].Space()
}

func (c *ChainBuffer) ReadSegment() []byte { return c.ReadSegmentAt(0) }

func (c *ChainBuffer) ReadSegmentAt(offset int) []byte {
	for _, l := range c.links {
		n := l.Len()
		if offset < n {
			return l.ReadSegmentAt(offset)
		}
		offset -= n
	}
	return nil
}

func (c *ChainBuffer) ReadAdvance(n int) {
	for n > 0 {
		if len(c.links) == 0 {
			panic("saw: ReadAdvance past stored bytes")
		}
		head := c.links[0]
		take := head.Len()
		if take > n {
			take = n
		}
		head.ReadAdvance(take)
		n -= take
		if head.Len() == 0 && head.Space() == 0 {
			c.links = c.links[1:]
		} else if take == 0 {
			panic("saw: ReadAdvance past stored bytes")
		}
	}
}

func (c *ChainBuffer) WriteSegment() []byte {
	if len(c.links) == 0 {
		return nil
	}
	return c.links[len(c.links)-1].WriteSegment()
}

func (c *ChainBuffer) WriteAdvance(n int) {
	if len(c.links) == 0 {
		panic("saw: WriteAdvance past available space")
	}
	c.links[len(c.links)-1].WriteAdvance(n)
}

// RequireSpace appends a fresh link when the current tail is short; the
// new link is sized to hold n outright if n exceeds the chain's link size.
func (c *ChainBuffer) RequireSpace(n int) error {
	if c.Space() >= n {
		return nil
	}
	size := c.linkSize
	if n > size {
		size = n
	}
	c.links = append(c.links, NewArrayBuffer(size))
	return nil
}

// BufferView is a non-consuming cursor over another buffer: reads advance
// only the view's own offsets. Writing through a view is not supported;
// mutating the underlying buffer invalidates the view.
type BufferView struct {
	base       ByteBuffer
	readOffset int
}

// NewBufferView wraps base without consuming from it.
func NewBufferView(base ByteBuffer) *BufferView {
	return &BufferView{base: base}
}

func (v *BufferView) Len() int   { return v.base.Len() - v.readOffset }
func (v *BufferView) Space() int { return 0 }

func (v *BufferView) ReadSegment() []byte { return v.ReadSegmentAt(0) }

func (v *BufferView) ReadSegmentAt(offset int) []byte {
	return v.base.ReadSegmentAt(v.readOffset + offset)
}

func (v *BufferView) ReadAdvance(n int) {
	if n > v.Len() {
		panic("saw: ReadAdvance past stored bytes")
	}
	v.readOffset += n
}

func (v *BufferView) WriteSegment() []byte { return nil }
func (v *BufferView) WriteAdvance(n int) {
	if n > 0 {
		panic("saw: BufferView is read-only")
	}
}

func (v *BufferView) RequireSpace(n int) error {
	if n > 0 {
		return RecoverableError("buffer view is read-only")
	}
	return nil
}

// ReadOffset reports how far the view has advanced past the base's read
// position.
func (v *BufferView) ReadOffset() int { return v.readOffset }
