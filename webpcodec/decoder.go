package webpcodec

import (
	"github.com/deepteams/imagecodec/codec"
	"github.com/deepteams/imagecodec/exifutil"
	"github.com/deepteams/imagecodec/frame"
	"github.com/deepteams/imagecodec/pixelmatrix"
	"github.com/deepteams/imagecodec/webpcodec/internal/container"
)

// Decoder decodes a single-frame (non-animated) WebP image into the
// pixel-buffer abstraction, adapting container.Parser and the lossy/
// lossless decode paths (decodeFrame) to fill a *pixelmatrix.Matrix instead
// of returning an image.Image. Satisfies codec.StillDecoder.
type Decoder struct {
	parser      *container.Parser
	frame0      container.FrameInfo
	pixType     pixelmatrix.PixelType
	orientation int
}

// NewDecoder parses a still WebP file's header. It does not decode pixel
// data; header fields are available immediately after construction, and
// DecodeInto fills the pixel buffer on demand.
func NewDecoder(data []byte) (*Decoder, error) {
	p, err := container.NewParser(data)
	if err != nil {
		return nil, codec.NewError("webpcodec.NewDecoder", codec.InvalidDimensions, err)
	}
	frames := p.Frames()
	if len(frames) == 0 {
		return nil, codec.NewError("webpcodec.NewDecoder", codec.InvalidDimensions, codec.ErrCorruptFrame)
	}

	f0 := frames[0]
	pt := pixelmatrix.BGR24
	if f0.HasAlpha {
		pt = pixelmatrix.BGRA32
	}

	orientation := 1
	for _, c := range p.Chunks() {
		if c.FourCC == container.FourCCEXIF {
			orientation = exifutil.Orientation(exifutil.StripEXIFHeader(c.Payload))
			break
		}
	}

	return &Decoder{parser: p, frame0: f0, pixType: pt, orientation: orientation}, nil
}

func (d *Decoder) Width() int                       { return d.parser.Features().Width }
func (d *Decoder) Height() int                       { return d.parser.Features().Height }
func (d *Decoder) PixelType() pixelmatrix.PixelType { return d.pixType }
func (d *Decoder) Orientation() int                  { return d.orientation }

// DecodeInto fills dst (must already be sized to Width()xHeight() of
// PixelType(), or larger) with the decoded first frame.
func (d *Decoder) DecodeInto(dst *pixelmatrix.Matrix) error {
	img, err := decodeFrame(d.frame0)
	if err != nil {
		return codec.NewError("webpcodec.Decoder.DecodeInto", codec.Unknown, err)
	}
	return fillMatrixFromImage(dst, img)
}

// ICC copies the embedded ICC profile (from the ICCP chunk) into buf,
// returning the number of bytes copied, or 0 if no profile is present or
// buf is too small.
func (d *Decoder) ICC(buf []byte) int {
	for _, c := range d.parser.Chunks() {
		if c.FourCC == container.FourCCICCP {
			if len(c.Payload) > len(buf) {
				return 0
			}
			return copy(buf, c.Payload)
		}
	}
	return 0
}

// AnimDecoder decodes an animated WebP's frame sequence from
// container.Parser's ANMF frame table, exposed through the frame.Cursor one-way state machine shared by every animated
// codec. Satisfies codec.AnimationDecoder.
type AnimDecoder struct {
	parser *container.Parser
	feat   container.Features
	cursor *frame.Cursor
	iccp   []byte
	xmp    []byte
}

// NewAnimDecoder parses an animated WebP file's header and frame table.
func NewAnimDecoder(data []byte) (*AnimDecoder, error) {
	p, err := container.NewParser(data)
	if err != nil {
		return nil, codec.NewError("webpcodec.NewAnimDecoder", codec.InvalidDimensions, err)
	}
	feat := p.Features()
	if !feat.HasAnim {
		return nil, codec.NewError("webpcodec.NewAnimDecoder", codec.InvalidArg, codec.ErrUnsupportedFeature)
	}

	d := &AnimDecoder{parser: p, feat: feat, cursor: frame.NewCursor(len(p.Frames()))}
	for _, c := range p.Chunks() {
		switch c.FourCC {
		case container.FourCCICCP:
			d.iccp = c.Payload
		case container.FourCCXMP:
			d.xmp = c.Payload
		}
	}
	return d, nil
}

func (d *AnimDecoder) CanvasWidth() int  { return d.feat.CanvasWidth }
func (d *AnimDecoder) CanvasHeight() int { return d.feat.CanvasHeight }
func (d *AnimDecoder) FrameCount() int   { return len(d.parser.Frames()) }
func (d *AnimDecoder) LoopCount() int    { return d.feat.LoopCount }
func (d *AnimDecoder) BackgroundColor() uint32 { return d.feat.BGColor }
func (d *AnimDecoder) ICC() []byte       { return d.iccp }
func (d *AnimDecoder) XMP() []byte       { return d.xmp }

// TotalDurationMS sums every frame's delay.
func (d *AnimDecoder) TotalDurationMS() int {
	total := 0
	for _, f := range d.parser.Frames() {
		total += f.Duration
	}
	return total
}

func (d *AnimDecoder) HasMoreFrames() bool { return d.cursor.HasMore() }

// DecodeInto decodes the current frame into dst (sized to the full
// canvas) and advances the cursor.
func (d *AnimDecoder) DecodeInto(dst *pixelmatrix.Matrix) (codec.FrameDescriptor, error) {
	if !d.cursor.HasMore() {
		return codec.FrameDescriptor{}, codec.ErrEOF
	}
	idx := d.cursor.Index()
	f := d.parser.Frames()[idx]

	img, err := decodeFrame(f)
	if err != nil {
		return codec.FrameDescriptor{}, codec.NewError("webpcodec.AnimDecoder.DecodeInto", codec.Unknown, err)
	}
	if err := fillMatrixFromImage(dst, img); err != nil {
		return codec.FrameDescriptor{}, err
	}

	dispose := frame.DisposeNone
	if f.DisposeMethod == container.DisposeBackground {
		dispose = frame.DisposeBackground
	}
	blend := frame.BlendOver
	if f.BlendMethod == container.BlendNone {
		blend = frame.BlendSource
	}

	desc := codec.FrameDescriptor{
		DurationMS: f.Duration,
		OffsetX:    f.XOffset,
		OffsetY:    f.YOffset,
		Width:      f.Width,
		Height:     f.Height,
		Dispose:    int(dispose),
		Blend:      int(blend),
	}
	d.cursor.Advance()
	return desc, nil
}
