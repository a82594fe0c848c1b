package pngcodec

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/png"

	"github.com/deepteams/imagecodec/codec"
	"github.com/deepteams/imagecodec/frame"
	"github.com/deepteams/imagecodec/pixelmatrix"
)

// apngFrame is one decoded animation frame plus its fcTL metadata.
type apngFrame struct {
	ctl fcTLChunk
	img *image.NRGBA
}

// AnimDecoder decodes an animated PNG (APNG), satisfying
// codec.AnimationDecoder. Stdlib image/png has no APNG support at all
// (acTL/fcTL/fdAT are simply unknown ancillary chunks to it), so the
// container is parsed by hand, grounded on 6632322c_shutej-apng's chunk
// layout; each frame's own IDAT/fdAT payload is still inflated with
// stdlib compress/zlib and defiltered with the same per-scanline filter
// rules as a still PNG (reusing image/png.Decode on a synthesized
// single-frame file per frame, rather than reimplementing the PNG filter
// byte unfiltering pass).
type AnimDecoder struct {
	canvasWidth, canvasHeight int
	loopCount                 int
	bgColor                   uint32
	icc                       []byte
	frames                    []apngFrame
	cursor                    *frame.Cursor
	canvas                    *image.NRGBA // composited state carried across frames
	prevSnapshot              *image.NRGBA // pre-render snapshot for DisposePrevious
}

// NewAnimDecoder parses an APNG file's acTL/fcTL/IDAT/fdAT chunk sequence.
func NewAnimDecoder(data []byte) (*AnimDecoder, error) {
	chunks, err := readChunks(data)
	if err != nil {
		return nil, codec.NewError("pngcodec.NewAnimDecoder", codec.InvalidDimensions, err)
	}

	var hdr ihdr
	var act acTLChunk
	haveIHDR, haveACTL := false, false
	var icc []byte

	// Non-fcTL-tagged leading IDAT chunks form the default image, which is
	// also the first animation frame when acTL's first fcTL precedes IDAT
	// (the APNG convention this module always assumes).
	var currentCTL *fcTLChunk
	var dataChunks [][]byte // fdAT/IDAT payloads for the current frame
	var rawFrames []apngFrame

	flush := func() error {
		if currentCTL == nil || len(dataChunks) == 0 {
			return nil
		}
		img, err := inflateFrame(hdr, *currentCTL, dataChunks)
		if err != nil {
			return err
		}
		rawFrames = append(rawFrames, apngFrame{ctl: *currentCTL, img: img})
		return nil
	}

	for _, c := range chunks {
		switch c.typ {
		case "IHDR":
			h, perr := parseIHDR(c.data)
			if perr != nil {
				return nil, codec.NewError("pngcodec.NewAnimDecoder", codec.InvalidDimensions, perr)
			}
			hdr = h
			haveIHDR = true
		case "acTL":
			a, perr := parseACTL(c.data)
			if perr != nil {
				return nil, codec.NewError("pngcodec.NewAnimDecoder", codec.InvalidArg, perr)
			}
			act = a
			haveACTL = true
		case "iCCP":
			if p, ierr := decodeICCP(c.data); ierr == nil {
				icc = p
			}
		case "fcTL":
			if err := flush(); err != nil {
				return nil, codec.NewError("pngcodec.NewAnimDecoder", codec.Unknown, err)
			}
			fc, perr := parseFCTL(c.data)
			if perr != nil {
				return nil, codec.NewError("pngcodec.NewAnimDecoder", codec.InvalidArg, perr)
			}
			currentCTL = &fc
			dataChunks = nil
		case "IDAT":
			if currentCTL == nil {
				// Default image with no preceding fcTL: not an animation
				// frame.
				continue
			}
			dataChunks = append(dataChunks, c.data)
		case "fdAT":
			if len(c.data) < 4 {
				return nil, codec.NewError("pngcodec.NewAnimDecoder", codec.InvalidArg, fmt.Errorf("pngcodec: short fdAT"))
			}
			dataChunks = append(dataChunks, c.data[4:])
		}
	}
	if err := flush(); err != nil {
		return nil, codec.NewError("pngcodec.NewAnimDecoder", codec.Unknown, err)
	}

	if !haveIHDR {
		return nil, codec.NewError("pngcodec.NewAnimDecoder", codec.InvalidDimensions, fmt.Errorf("pngcodec: missing IHDR"))
	}
	if !haveACTL || len(rawFrames) == 0 {
		return nil, codec.NewError("pngcodec.NewAnimDecoder", codec.InvalidArg, fmt.Errorf("pngcodec: not an animated PNG"))
	}

	d := &AnimDecoder{
		canvasWidth:  int(hdr.width),
		canvasHeight: int(hdr.height),
		loopCount:    int(act.numPlays),
		icc:          icc,
		frames:       rawFrames,
		cursor:       frame.NewCursor(len(rawFrames)),
		canvas:       image.NewNRGBA(image.Rect(0, 0, int(hdr.width), int(hdr.height))),
	}
	return d, nil
}

func inflateFrame(hdr ihdr, ctl fcTLChunk, dataChunks [][]byte) (*image.NRGBA, error) {
	var idat bytes.Buffer
	for _, dc := range dataChunks {
		idat.Write(dc)
	}

	var synth bytes.Buffer
	writeSignature(&synth)
	ihdrPayload := encodeIHDR(ctl.width, ctl.height, hdr.bitDepth, hdr.colorType)
	writeChunk(&synth, "IHDR", ihdrPayload)
	writeChunk(&synth, "IDAT", idat.Bytes())
	writeChunk(&synth, "IEND", nil)

	img, err := png.Decode(bytes.NewReader(synth.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("pngcodec: decoding frame sub-image: %w", err)
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := out.PixOffset(x, y)
			out.Pix[i+0] = byte(r >> 8)
			out.Pix[i+1] = byte(g >> 8)
			out.Pix[i+2] = byte(bl >> 8)
			out.Pix[i+3] = byte(a >> 8)
		}
	}
	return out, nil
}

func (d *AnimDecoder) CanvasWidth() int        { return d.canvasWidth }
func (d *AnimDecoder) CanvasHeight() int       { return d.canvasHeight }
func (d *AnimDecoder) FrameCount() int         { return len(d.frames) }
func (d *AnimDecoder) LoopCount() int          { return d.loopCount }
func (d *AnimDecoder) BackgroundColor() uint32 { return 0 } // PNG has no bKGD-as-animation-bg convention APNG uses
func (d *AnimDecoder) ICC() []byte             { return d.icc }
func (d *AnimDecoder) XMP() []byte             { return nil }
func (d *AnimDecoder) HasMoreFrames() bool     { return d.cursor.HasMore() }

func (d *AnimDecoder) TotalDurationMS() int {
	total := 0
	for _, f := range d.frames {
		total += delayMS(f.ctl)
	}
	return total
}

func delayMS(ctl fcTLChunk) int {
	den := ctl.delayDen
	if den == 0 {
		den = 100
	}
	return int(ctl.delayNum) * 1000 / int(den)
}

// DecodeInto composites the current frame onto the running canvas state
// and writes the full canvas into dst, applying the Over blend formula
// when the frame's blend op calls for it, and handling the
// three dispose operations before the next call.
func (d *AnimDecoder) DecodeInto(dst *pixelmatrix.Matrix) (codec.FrameDescriptor, error) {
	if !d.cursor.HasMore() {
		return codec.FrameDescriptor{}, codec.NewError("pngcodec.AnimDecoder.DecodeInto", codec.InvalidArg, codec.ErrEOF)
	}
	idx := d.cursor.Index()
	f := d.frames[idx]

	if f.ctl.dispose == DisposePrevious {
		d.prevSnapshot = cloneNRGBA(d.canvas)
	}

	compositeFrame(d.canvas, f)

	if err := fillMatrixFromNRGBA(dst, d.canvas); err != nil {
		return codec.FrameDescriptor{}, codec.NewError("pngcodec.AnimDecoder.DecodeInto", codec.Unknown, err)
	}

	switch f.ctl.dispose {
	case DisposeBackground:
		clearRegion(d.canvas, int(f.ctl.xOffset), int(f.ctl.yOffset), int(f.ctl.width), int(f.ctl.height))
	case DisposePrevious:
		if d.prevSnapshot != nil {
			d.canvas = d.prevSnapshot
		}
	}

	desc := codec.FrameDescriptor{
		DurationMS: delayMS(f.ctl),
		OffsetX:    int(f.ctl.xOffset),
		OffsetY:    int(f.ctl.yOffset),
		Width:      int(f.ctl.width),
		Height:     int(f.ctl.height),
		Dispose:    int(disposeToFrame(f.ctl.dispose)),
		Blend:      int(blendToFrame(f.ctl.blend)),
	}
	d.cursor.Advance()
	return desc, nil
}

func disposeToFrame(d DisposeOp) frame.Dispose {
	switch d {
	case DisposeBackground:
		return frame.DisposeBackground
	case DisposePrevious:
		return frame.DisposePrevious
	default:
		return frame.DisposeNone
	}
}

func blendToFrame(b BlendOp) frame.Blend {
	if b == BlendSource {
		return frame.BlendSource
	}
	return frame.BlendOver
}

func cloneNRGBA(img *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	copy(out.Pix, img.Pix)
	return out
}

func clearRegion(canvas *image.NRGBA, x, y, w, h int) {
	for yy := y; yy < y+h; yy++ {
		off := canvas.PixOffset(x, yy)
		for i := 0; i < w*4; i++ {
			canvas.Pix[off+i] = 0
		}
	}
}

// compositeFrame blends f's sub-image onto canvas at its recorded offset,
// using straight-alpha Porter-Duff Over for BlendOver and a verbatim
// overwrite for BlendSource.
//
// The canvas starts fully transparent and stays that way outside every
// frame's rectangle, so unlike compose.AlphaOver (which assumes an
// always-opaque destination) the destination alpha here can be anything,
// including 0. compositeOverStraight computes its own output alpha instead
// of assuming 255.
func compositeFrame(canvas *image.NRGBA, f apngFrame) {
	x0, y0 := int(f.ctl.xOffset), int(f.ctl.yOffset)
	w, h := f.img.Bounds().Dx(), f.img.Bounds().Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			si := f.img.PixOffset(x, y)
			sr, sg, sb, sa := f.img.Pix[si+0], f.img.Pix[si+1], f.img.Pix[si+2], f.img.Pix[si+3]
			di := canvas.PixOffset(x0+x, y0+y)
			if f.ctl.blend == BlendSource {
				canvas.Pix[di+0], canvas.Pix[di+1], canvas.Pix[di+2], canvas.Pix[di+3] = sr, sg, sb, sa
				continue
			}
			dr, dg, db, da := canvas.Pix[di+0], canvas.Pix[di+1], canvas.Pix[di+2], canvas.Pix[di+3]
			canvas.Pix[di+0], canvas.Pix[di+1], canvas.Pix[di+2], canvas.Pix[di+3] =
				compositeOverStraight(sr, sg, sb, sa, dr, dg, db, da)
		}
	}
}

// compositeOverStraight computes the non-premultiplied (straight-alpha)
// Porter-Duff Over operator:
//
//	a_out = a_src + a_dst·(1 - a_src)
//	c_out = (c_src·a_src + c_dst·a_dst·(1 - a_src)) / a_out
//
// with the a_out == 0 edge case returning transparent black, matching the
// fact that an RGB value has no meaning behind zero alpha.
func compositeOverStraight(sr, sg, sb, sa, dr, dg, db, da uint8) (r, g, b, a uint8) {
	if sa == 255 {
		return sr, sg, sb, sa
	}
	if sa == 0 {
		return dr, dg, db, da
	}

	s, d := int(sa), int(da)
	inv := 255 - s

	outA := s + (d*inv+127)/255
	if outA == 0 {
		return 0, 0, 0, 0
	}

	blend := func(sc, dc uint8) uint8 {
		num := int(sc)*s + (int(dc)*d*inv+127)/255
		return uint8((num + outA/2) / outA)
	}
	return blend(sr, dr), blend(sg, dg), blend(sb, db), uint8(outA)
}

func fillMatrixFromNRGBA(dst *pixelmatrix.Matrix, img *image.NRGBA) error {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if w > dst.Width() || h > dst.Height() {
		return fmt.Errorf("pngcodec: canvas %dx%d exceeds destination %dx%d", w, h, dst.Width(), dst.Height())
	}
	for y := 0; y < h; y++ {
		row := dst.Row(y)
		for x := 0; x < w; x++ {
			si := img.PixOffset(x, y)
			switch dst.PixelType() {
			case pixelmatrix.BGRA32:
				row[x*4+0] = img.Pix[si+2]
				row[x*4+1] = img.Pix[si+1]
				row[x*4+2] = img.Pix[si+0]
				row[x*4+3] = img.Pix[si+3]
			case pixelmatrix.BGR24:
				row[x*3+0] = img.Pix[si+2]
				row[x*3+1] = img.Pix[si+1]
				row[x*3+2] = img.Pix[si+0]
			case pixelmatrix.Gray8:
				r, g, b := img.Pix[si+0], img.Pix[si+1], img.Pix[si+2]
				row[x] = byte((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
			}
		}
	}
	return nil
}

// AnimEncoder assembles an APNG file over a fixed output buffer. Unlike
// webpcodec's AnimEncoder, each Write computes its own minimal changed-
// region rectangle against the running canvas, rather than always encoding
// the full canvas; this is the one
// animated format in this module whose encoder produces sub-canvas frames.
type AnimEncoder struct {
	dst    []byte
	cursor frame.EncodeCursor

	width, height int
	bgColor       uint32
	loopCount     int
	icc           []byte

	canvas *image.NRGBA
	seq    uint32

	firstFrame  []byte
	firstCTL    fcTLChunk
	bitDepth    uint8
	colorType   uint8

	chunks bytes.Buffer // acTL + fcTL/IDAT/fdAT chunks written so far, once upgraded
}

// NewAnimEncoder records dst as the fixed output buffer and the animation's
// canvas size and loop count.
func NewAnimEncoder(dst []byte, width, height int, bgColor uint32, loopCount int) *AnimEncoder {
	return &AnimEncoder{dst: dst, width: width, height: height, bgColor: bgColor, loopCount: loopCount}
}

// SetICC records an ICC profile to embed via an iCCP chunk.
func (e *AnimEncoder) SetICC(icc []byte) { e.icc = icc }

// Write encodes src as the next frame, diffing it against the running
// canvas to find the minimal changed rectangle (full canvas on the first
// frame, since there is no prior state to diff against).
func (e *AnimEncoder) Write(src *pixelmatrix.Matrix, durationMS int, opts codec.Options) error {
	upgrade, err := e.cursor.RecordWrite()
	if err != nil {
		return codec.NewError("pngcodec.AnimEncoder.Write", codec.InvalidArg, err)
	}

	img := toNRGBA(src)
	if e.canvas == nil {
		e.canvas = image.NewNRGBA(image.Rect(0, 0, e.width, e.height))
	}

	x0, y0, w, h := diffRect(e.canvas, img, e.cursor.FrameCount() == 1)
	sub := subImage(img, x0, y0, w, h)
	copy(e.canvas.Pix, img.Pix)

	bitDepth, colorType := uint8(8), uint8(6) // truecolor + alpha, matching NRGBA
	e.bitDepth, e.colorType = bitDepth, colorType

	payload, err := deflateRaw(sub, bitDepth, colorType)
	if err != nil {
		return codec.NewError("pngcodec.AnimEncoder.Write", codec.Unknown, err)
	}

	ctl := fcTLChunk{
		sequenceNumber: 0, // assigned when actually written, below
		width:          uint32(w),
		height:         uint32(h),
		xOffset:        uint32(x0),
		yOffset:        uint32(y0),
		delayNum:       uint16(durationMS),
		delayDen:       1000,
		dispose:        DisposeNone,
		blend:          BlendOver,
	}

	switch e.cursor.Mode() {
	case frame.SingleStill:
		e.firstFrame = payload
		e.firstCTL = ctl
		return nil
	case frame.Animation:
		if upgrade {
			// The first frame's own fcTL (sequence 0) is written from
			// e.firstCTL directly in Flush, alongside its IDAT; only its
			// sequence number is finalized here, in file order.
			e.firstCTL.sequenceNumber = e.seq
			e.seq++
		}
		ctl.sequenceNumber = e.seq
		e.seq++
		fcTLBytes := encodeFCTL(ctl)
		fdatBytes := encodeFDAT(e.seq, payload)
		e.seq++
		writeChunk(&e.chunks, "fcTL", fcTLBytes)
		writeChunk(&e.chunks, "fdAT", fdatBytes)
		return nil
	default:
		return codec.NewError("pngcodec.AnimEncoder.Write", codec.Unknown, codec.ErrUnknown)
	}
}

// Flush assembles the PNG file: signature, IHDR, iCCP (if set), acTL (if
// animated), the first frame's fcTL + IDAT, any further fcTL/fdAT pairs,
// and IEND.
func (e *AnimEncoder) Flush() (int, error) {
	isAnimation := e.cursor.FrameCount() >= 2
	if err := e.cursor.RecordFlush(); err != nil {
		return 0, codec.NewError("pngcodec.AnimEncoder.Flush", codec.InvalidArg, err)
	}
	if e.firstFrame == nil {
		return 0, codec.NewError("pngcodec.AnimEncoder.Flush", codec.InvalidArg, fmt.Errorf("pngcodec: Flush called before any Write"))
	}

	var out bytes.Buffer
	writeSignature(&out)
	writeChunk(&out, "IHDR", encodeIHDR(uint32(e.width), uint32(e.height), e.bitDepth, e.colorType))
	if e.icc != nil {
		if payload, err := encodeICCP(e.icc); err == nil {
			writeChunk(&out, "iCCP", payload)
		}
	}

	if isAnimation {
		writeChunk(&out, "acTL", encodeACTL(uint32(e.cursor.FrameCount()), uint32(e.loopCount)))
		writeChunk(&out, "fcTL", encodeFCTL(e.firstCTL))
		writeChunk(&out, "IDAT", e.firstFrame)
		out.Write(e.chunks.Bytes())
	} else {
		writeChunk(&out, "IDAT", e.firstFrame)
	}
	writeChunk(&out, "IEND", nil)

	if out.Len() > len(e.dst) {
		return 0, codec.NewError("pngcodec.AnimEncoder.Flush", codec.BufferTooSmall, codec.ErrBufferTooSmall)
	}
	return copy(e.dst, out.Bytes()), nil
}

// diffRect returns the minimal bounding rectangle of pixels that differ
// between prev and next, or the full canvas if full is true (Write passes
// true for the first frame).
func diffRect(prev, next *image.NRGBA, full bool) (x0, y0, w, h int) {
	b := next.Bounds()
	if full {
		return 0, 0, b.Dx(), b.Dy()
	}
	minX, minY, maxX, maxY := b.Dx(), b.Dy(), -1, -1
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			pi := prev.PixOffset(x, y)
			ni := next.PixOffset(x, y)
			if prev.Pix[pi+0] != next.Pix[ni+0] || prev.Pix[pi+1] != next.Pix[ni+1] ||
				prev.Pix[pi+2] != next.Pix[ni+2] || prev.Pix[pi+3] != next.Pix[ni+3] {
				if x < minX {
					minX = x
				}
				if y < minY {
					minY = y
				}
				if x > maxX {
					maxX = x
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if maxX < 0 {
		// No change at all: encode a single unchanged pixel rather than an
		// empty rectangle, since fcTL requires width/height >= 1.
		return 0, 0, 1, 1
	}
	return minX, minY, maxX - minX + 1, maxY - minY + 1
}

func subImage(img *image.NRGBA, x0, y0, w, h int) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		si := img.PixOffset(x0, y0+y)
		di := out.PixOffset(0, y)
		copy(out.Pix[di:di+w*4], img.Pix[si:si+w*4])
	}
	return out
}

// deflateRaw encodes img as a zlib-compressed, filter-byte-0-prefixed PNG
// scanline stream (the IDAT payload format) of 8-bit RGBA samples, the
// truecolor+alpha layout Write declares in IHDR, whether or not img is
// opaque. bitDepth and colorType are not consulted.
func deflateRaw(img *image.NRGBA, bitDepth, colorType uint8) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	rowLen := img.Bounds().Dx() * 4
	for y := 0; y < img.Bounds().Dy(); y++ {
		off := y * img.Stride
		if _, err := zw.Write(append([]byte{0}, img.Pix[off:off+rowLen]...)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
