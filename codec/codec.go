// Package codec defines the vocabulary shared by every per-format decoder
// and encoder in this module: the option/error-code wire types from the
// external interface, and the small set of interfaces a concrete codec
// implements.
package codec

import (
	"errors"
	"fmt"

	"github.com/deepteams/imagecodec/pixelmatrix"
)

// ErrorCode is the integer failure taxonomy every encoder reports, shared
// across formats so callers can switch on a single numeric space.
type ErrorCode int

const (
	Success              ErrorCode = 0
	InvalidChannelCount  ErrorCode = 1
	NullMatrix           ErrorCode = 2
	InvalidDimensions    ErrorCode = 3
	BufferTooSmall       ErrorCode = 4
	InvalidArg           ErrorCode = 5
	Unknown              ErrorCode = 6
)

func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "success"
	case InvalidChannelCount:
		return "invalid channel count"
	case NullMatrix:
		return "null matrix"
	case InvalidDimensions:
		return "invalid dimensions"
	case BufferTooSmall:
		return "buffer too small"
	case InvalidArg:
		return "invalid argument"
	default:
		return "unknown"
	}
}

// Error wraps an ErrorCode as a Go error, preserving the integer taxonomy
// at the API boundary while remaining usable with errors.Is.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(op string, code ErrorCode, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}

// Sentinel errors for the encoder failure taxonomy, so callers can also use
// errors.Is without pulling apart an *Error.
var (
	ErrInvalidChannelCount = errors.New("codec: invalid channel count")
	ErrNullMatrix          = errors.New("codec: null matrix")
	ErrInvalidDimensions   = errors.New("codec: invalid dimensions")
	ErrBufferTooSmall      = errors.New("codec: buffer too small")
	ErrInvalidArg          = errors.New("codec: invalid argument")
	ErrUnknown             = errors.New("codec: unknown failure")
)

// Decoder failure taxonomy: decoders fail with one of these
// four structured errors and do not retry.
var (
	ErrTruncated           = errors.New("codec: truncated input")
	ErrUnsupportedFeature  = errors.New("codec: unsupported feature")
	ErrCorruptFrame        = errors.New("codec: corrupt frame")
	ErrEOF                 = errors.New("codec: no more frames")
)

// Option is a single (key, value) pair: options are passed as an array of
// integer pairs, not a Go options struct, so that every format shares one
// calling convention at the codec boundary.
type Option struct {
	Key   int
	Value int
}

// Options is a flat array of Option pairs, the shape every encoder's
// Write/Encode call accepts.
type Options []Option

// Get returns the value for key and true if present.
func (o Options) Get(key int) (int, bool) {
	for _, opt := range o {
		if opt.Key == key {
			return opt.Value, true
		}
	}
	return 0, false
}

// GetOr returns the value for key, or def if not present.
func (o Options) GetOr(key, def int) int {
	if v, ok := o.Get(key); ok {
		return v
	}
	return def
}

// StillDecoder is the contract every still-image decoder exposes: header
// fields are available immediately after construction, and DecodeInto is a
// one-shot fill of the caller's matrix.
type StillDecoder interface {
	Width() int
	Height() int
	PixelType() pixelmatrix.PixelType
	Orientation() int
	DecodeInto(dst *pixelmatrix.Matrix) error
	ICC(buf []byte) int
}

// AnimationDecoder is the contract every animated-format decoder exposes:
// a header plus a one-way frame cursor.
type AnimationDecoder interface {
	CanvasWidth() int
	CanvasHeight() int
	FrameCount() int
	LoopCount() int
	TotalDurationMS() int
	BackgroundColor() uint32
	ICC() []byte
	XMP() []byte

	// HasMoreFrames reports whether DecodeInto can still be called.
	HasMoreFrames() bool

	// DecodeInto decodes the current frame into dst (sized to the full
	// canvas, per the animation decoder's own canvas size) and advances
	// the cursor. It returns the frame's descriptor.
	DecodeInto(dst *pixelmatrix.Matrix) (FrameDescriptor, error)
}

// FrameDescriptor mirrors frame.Descriptor for codec-package consumers that
// don't want a direct dependency on the frame package's dispose/blend enum
// types; format packages construct it from frame.Descriptor directly.
type FrameDescriptor struct {
	DurationMS int
	OffsetX    int
	OffsetY    int
	Width      int
	Height     int
	Dispose    int
	Blend      int
}

// StillEncoder is the contract every still-image encoder exposes:
// constructed over a fixed output buffer, one-shot Encode call, no
// reallocation.
type StillEncoder interface {
	Encode(src *pixelmatrix.Matrix, opts Options) (n int, err error)
}

// AnimationEncoder is the contract every animated-format encoder exposes:
// sequential Write calls accumulate frames, a terminal Flush finalizes, and
// the instance is single-shot thereafter.
type AnimationEncoder interface {
	Write(src *pixelmatrix.Matrix, durationMS int, opts Options) error
	Flush() (n int, err error)
}
