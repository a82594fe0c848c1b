package webpcodec

import (
	"bytes"
	"encoding/binary"

	"github.com/deepteams/imagecodec/codec"
	"github.com/deepteams/imagecodec/frame"
	"github.com/deepteams/imagecodec/pixelmatrix"
	"github.com/deepteams/imagecodec/webpcodec/internal/container"
	"github.com/deepteams/imagecodec/webpcodec/mux"
)

// OptWebPQuality is the WEBP_QUALITY option key: values 0-100
// select lossy encoding at that quality, values above 100 select lossless.
const OptWebPQuality = 1

const defaultQuality = 75

// Encoder writes a single still image to a caller-supplied fixed buffer,
// with no reallocation; this split between construction and a one-shot
// Encode call mirrors the other still-image encoders in this module.
type Encoder struct {
	dst []byte
	icc []byte
}

// NewEncoder records dst as the fixed output buffer.
func NewEncoder(dst []byte) *Encoder {
	return &Encoder{dst: dst}
}

// SetICC records an ICC profile to embed via the ICCP chunk.
func (e *Encoder) SetICC(icc []byte) { e.icc = icc }

// Encode compresses src into the encoder's output buffer, returning the
// number of bytes written. 1-channel input is first promoted to BGR.
func (e *Encoder) Encode(src *pixelmatrix.Matrix, opts codec.Options) (int, error) {
	if src == nil {
		return 0, codec.NewError("webpcodec.Encoder.Encode", codec.NullMatrix, codec.ErrNullMatrix)
	}
	if src.Width() <= 0 || src.Height() <= 0 {
		return 0, codec.NewError("webpcodec.Encoder.Encode", codec.InvalidDimensions, codec.ErrInvalidDimensions)
	}

	work := src
	if src.PixelType() == pixelmatrix.Gray8 {
		promoted, err := promoteGrayToBGR(src)
		if err != nil {
			return 0, codec.NewError("webpcodec.Encoder.Encode", codec.Unknown, err)
		}
		work = promoted
	}

	q := opts.GetOr(OptWebPQuality, defaultQuality)
	lossless := q > 100
	quality := float32(q)
	if lossless {
		quality = 100
	}

	img := matrixToNRGBA(work)
	eopts := &EncoderOptions{Lossless: lossless, Quality: quality, Method: 4, ICC: e.icc}

	var buf bytes.Buffer
	if err := Encode(&buf, img, eopts); err != nil {
		return 0, codec.NewError("webpcodec.Encoder.Encode", codec.Unknown, err)
	}
	if buf.Len() > len(e.dst) {
		return 0, codec.NewError("webpcodec.Encoder.Encode", codec.BufferTooSmall, codec.ErrBufferTooSmall)
	}
	return copy(e.dst, buf.Bytes()), nil
}

// promoteGrayToBGR expands a Gray8 matrix to BGR24 by replicating the
// luma channel across all three color channels.
func promoteGrayToBGR(src *pixelmatrix.Matrix) (*pixelmatrix.Matrix, error) {
	dst, err := pixelmatrix.Create(src.Width(), src.Height(), pixelmatrix.BGR24)
	if err != nil {
		return nil, err
	}
	for y := 0; y < src.Height(); y++ {
		srcRow := src.Row(y)
		dstRow := dst.Row(y)
		for x := 0; x < src.Width(); x++ {
			g := srcRow[x]
			dstRow[x*3+0], dstRow[x*3+1], dstRow[x*3+2] = g, g, g
		}
	}
	return dst, nil
}

// AnimEncoder assembles an animated WebP file over a fixed output buffer.
// The first Write is a still container; the second tears it down, rebuilds
// an animation container, replays the stored first frame, then appends the
// new one. Subsequent writes simply append.
//
// This is a literal rebuild-on-upgrade implementation: every frame is
// stored at its full size, with no sub-frame diffing or keyframe-similarity
// optimization, so the encoder makes no implicit frame-skipping decisions
// for the caller.
type AnimEncoder struct {
	dst    []byte
	cursor frame.EncodeCursor

	bgColor   uint32
	loopCount int
	icc       []byte

	firstFrame  []byte
	firstDesc   codec.FrameDescriptor
	firstIsLossless bool

	muxer *mux.Muxer
}

// NewAnimEncoder records dst as the fixed output buffer and the animation
// parameters applied once the encoder upgrades past a single still frame.
func NewAnimEncoder(dst []byte, bgColor uint32, loopCount int) *AnimEncoder {
	return &AnimEncoder{dst: dst, bgColor: bgColor, loopCount: loopCount}
}

// SetICC records an ICC profile to embed via the ICCP chunk.
func (e *AnimEncoder) SetICC(icc []byte) { e.icc = icc }

// Write encodes src as the next frame at the given duration and options
// (codec.Option key OptWebPQuality, same as Encoder.Encode).
func (e *AnimEncoder) Write(src *pixelmatrix.Matrix, durationMS int, opts codec.Options) error {
	upgrade, err := e.cursor.RecordWrite()
	if err != nil {
		return codec.NewError("webpcodec.AnimEncoder.Write", codec.InvalidArg, err)
	}

	work := src
	if src.PixelType() == pixelmatrix.Gray8 {
		promoted, perr := promoteGrayToBGR(src)
		if perr != nil {
			return codec.NewError("webpcodec.AnimEncoder.Write", codec.Unknown, perr)
		}
		work = promoted
	}

	q := opts.GetOr(OptWebPQuality, defaultQuality)
	lossless := q > 100
	quality := q
	if lossless {
		quality = 100
	}

	img := matrixToNRGBA(work)
	bs, aerr := encodeFrameForAnimation(img, lossless, quality)
	if aerr != nil {
		return codec.NewError("webpcodec.AnimEncoder.Write", codec.Unknown, aerr)
	}

	desc := codec.FrameDescriptor{
		DurationMS: durationMS,
		Width:      src.Width(),
		Height:     src.Height(),
		Dispose:    int(frame.DisposeNone),
		Blend:      int(frame.BlendOver),
	}

	switch e.cursor.Mode() {
	case frame.SingleStill:
		// First write: remember the frame in case a second Write arrives.
		e.firstFrame = bs
		e.firstDesc = desc
		e.firstIsLossless = lossless
		return nil
	case frame.Animation:
		if upgrade {
			e.muxer = mux.NewMuxer()
			e.muxer.SetBackgroundColor(e.bgColor)
			e.muxer.SetLoopCount(e.loopCount)
			if e.icc != nil {
				e.muxer.SetICCProfile(e.icc)
			}
			if err := e.muxer.AddFrame(packFrameData(e.firstFrame, nil), frameOptions(e.firstDesc)); err != nil {
				return codec.NewError("webpcodec.AnimEncoder.Write", codec.Unknown, err)
			}
		}
		if err := e.muxer.AddFrame(packFrameData(bs, nil), frameOptions(desc)); err != nil {
			return codec.NewError("webpcodec.AnimEncoder.Write", codec.Unknown, err)
		}
		return nil
	default:
		return codec.NewError("webpcodec.AnimEncoder.Write", codec.Unknown, codec.ErrUnknown)
	}
}

// Flush assembles the container (still or animation, whichever mode the
// encoder ended in) into the fixed output buffer.
func (e *AnimEncoder) Flush() (int, error) {
	if err := e.cursor.RecordFlush(); err != nil {
		return 0, codec.NewError("webpcodec.AnimEncoder.Flush", codec.InvalidArg, err)
	}

	var buf bytes.Buffer
	switch {
	case e.muxer != nil:
		if err := e.muxer.Assemble(&buf); err != nil {
			return 0, codec.NewError("webpcodec.AnimEncoder.Flush", codec.Unknown, err)
		}
	default:
		// Never upgraded past SingleStill: assemble the lone frame as a
		// simple (non-animated) container.
		m := mux.NewMuxer()
		if e.icc != nil {
			m.SetICCProfile(e.icc)
		}
		if err := m.AddFrame(packFrameData(e.firstFrame, nil), nil); err != nil {
			return 0, codec.NewError("webpcodec.AnimEncoder.Flush", codec.Unknown, err)
		}
		if err := m.Assemble(&buf); err != nil {
			return 0, codec.NewError("webpcodec.AnimEncoder.Flush", codec.Unknown, err)
		}
	}

	if buf.Len() > len(e.dst) {
		return 0, codec.NewError("webpcodec.AnimEncoder.Flush", codec.BufferTooSmall, codec.ErrBufferTooSmall)
	}
	return copy(e.dst, buf.Bytes()), nil
}

// frameOptions translates a codec.FrameDescriptor to mux.FrameOptions.
func frameOptions(d codec.FrameDescriptor) *mux.FrameOptions {
	fo := &mux.FrameOptions{Duration: d.DurationMS, OffsetX: d.OffsetX, OffsetY: d.OffsetY}
	if frame.Dispose(d.Dispose) == frame.DisposeBackground {
		fo.DisposeMode = mux.DisposeBackground
	}
	if frame.Blend(d.Blend) == frame.BlendSource {
		fo.BlendMode = mux.BlendNone
	}
	return fo
}

// packFrameData prepends an ALPH chunk header to alphaData (if present) so
// the result matches mux.Muxer.AddFrame's expected data layout: an
// optional ALPH-chunk-wrapped alpha payload directly followed by the raw
// VP8/VP8L bitstream (mux.go's splitAlphaAndBitstream unwraps exactly this
// shape). This WebP encoder only produces lossless/lossy frames without a
// separately-encoded alpha plane (VP8L carries alpha natively, and the
// animation path does not call the lossy+ALPH encode variant), so
// alphaData is always nil in current use; the helper is kept general
// since mux.Muxer's documented contract allows it.
func packFrameData(bitstream, alphaData []byte) []byte {
	if len(alphaData) == 0 {
		return bitstream
	}
	hdr := make([]byte, container.ChunkHeaderSize)
	binary.LittleEndian.PutUint32(hdr[0:4], container.FourCCALPH)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(alphaData)))
	out := make([]byte, 0, len(hdr)+len(alphaData)+1+len(bitstream))
	out = append(out, hdr...)
	out = append(out, alphaData...)
	if len(alphaData)%2 != 0 {
		out = append(out, 0)
	}
	out = append(out, bitstream...)
	return out
}
