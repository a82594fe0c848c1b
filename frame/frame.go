// Package frame defines the per-frame and per-animation vocabulary shared
// by every animated-format codec (GIF, APNG, WebP, AVIF image sequences),
// generalizing the WebP-only dispose/blend/cursor types of the WebP
// animation package this module's WebP code derives from, so one set of
// types serves all four formats.
package frame

// Dispose controls how the frame region is treated after rendering,
// before the next frame is composited.
type Dispose int

const (
	// DisposeNone leaves the canvas as-is after this frame is rendered.
	DisposeNone Dispose = iota
	// DisposeBackground clears the frame region to the canvas background
	// color after this frame is rendered.
	DisposeBackground
	// DisposePrevious restores the canvas to its state immediately before
	// this frame was rendered (requires a pre-render snapshot).
	DisposePrevious
)

// Blend controls how a frame's sub-image is composited onto the canvas at
// render time.
type Blend int

const (
	// BlendOver alpha-composites the frame's sub-image onto the canvas.
	BlendOver Blend = iota
	// BlendSource replaces the destination region with the frame's
	// sub-image verbatim, ignoring the canvas's existing content.
	BlendSource
)

// Descriptor is a per-frame read-only record.
type Descriptor struct {
	DurationMS int
	OffsetX    int
	OffsetY    int
	Width      int
	Height     int
	Dispose    Dispose
	Blend      Blend
}

// Header is the animation-level header every animated format exposes.
type Header struct {
	CanvasWidth  int
	CanvasHeight int
	FrameCount   int
	LoopCount    int
	DurationMS   int
	Background   uint32 // 32-bit RGBA
	ICC          []byte
	XMP          []byte
}

// CursorState is the animation decoder's one-way state.
type CursorState int

const (
	HeaderParsed CursorState = iota
	Decoding
	Done
)

// Cursor tracks an animation decoder's one-way frame progression:
// HeaderParsed -> FrameN (N in [0,count)) -> Done. DecodeInto on state Done
// must fail with ErrEOF; this type only tracks the index, the fail path is
// the caller's responsibility so each format can attach its own error type.
type Cursor struct {
	count int
	index int
	state CursorState
}

// NewCursor creates a cursor for an animation with the given frame count.
func NewCursor(count int) *Cursor {
	c := &Cursor{count: count}
	if count == 0 {
		c.state = Done
	} else {
		c.state = HeaderParsed
	}
	return c
}

// HasMore reports whether Advance can still be called.
func (c *Cursor) HasMore() bool { return c.state != Done }

// Index returns the index of the frame that the next Advance call will
// consume.
func (c *Cursor) Index() int { return c.index }

// Advance consumes the current frame and moves to the next one (or Done).
// It panics if called when HasMore is false — callers must check HasMore
// (or translate to ErrEOF) before calling — calling Advance once Done is a
// programmer error, not a recoverable one, at the format layer.
func (c *Cursor) Advance() {
	if c.state == Done {
		panic("frame: Advance called on exhausted cursor")
	}
	c.index++
	c.state = Decoding
	if c.index >= c.count {
		c.state = Done
	}
}

// EncodeMode is the animation encoder's state machine:
// Empty -> SingleStill -> Animation -> Finalized.
type EncodeMode int

const (
	Empty EncodeMode = iota
	SingleStill
	Animation
	Finalized
)

// EncodeCursor tracks an animation encoder's mode transitions. Write(Empty)
// -> SingleStill; a second Write -> Animation (with re-wrap of the stored
// first frame, left to the format package); further Writes stay in
// Animation. Flush from SingleStill or Animation -> Finalized; Finalized
// rejects further operations.
type EncodeCursor struct {
	mode       EncodeMode
	frameCount int
}

// Mode returns the current encode mode.
func (c *EncodeCursor) Mode() EncodeMode { return c.mode }

// FrameCount returns the number of frames written so far.
func (c *EncodeCursor) FrameCount() int { return c.frameCount }

// RecordWrite advances the mode on a Write call and reports whether this
// write is the "upgrade" transition (Empty->SingleStill->Animation, i.e.
// the second frame) that requires re-wrapping the stored first frame.
func (c *EncodeCursor) RecordWrite() (upgrade bool, err error) {
	switch c.mode {
	case Finalized:
		return false, ErrFinalized
	case Empty:
		c.mode = SingleStill
	case SingleStill:
		c.mode = Animation
		upgrade = true
	case Animation:
		// stays Animation
	}
	c.frameCount++
	return upgrade, nil
}

// RecordFlush transitions to Finalized, or fails if already finalized or
// if no frame has been written yet: flushing an encoder before any write
// is a caller error, not an empty-but-valid animation.
func (c *EncodeCursor) RecordFlush() error {
	switch c.mode {
	case Finalized:
		return ErrFinalized
	case Empty:
		return ErrNoFrames
	}
	c.mode = Finalized
	return nil
}
