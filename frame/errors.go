package frame

import "errors"

var (
	// ErrFinalized is returned by Write or Flush once the encoder has
	// already been finalized; Finalized rejects all further operations.
	ErrFinalized = errors.New("frame: encoder already finalized")

	// ErrNoFrames is returned by Flush when called before any frame has
	// been written.
	ErrNoFrames = errors.New("frame: flush called with no frames written")

	// ErrEOF names the exhausted-cursor condition. The format decoders'
	// DecodeInto methods report that condition with codec.ErrEOF, not with
	// this value.
	ErrEOF = errors.New("frame: no more frames to decode")
)
