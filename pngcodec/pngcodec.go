package pngcodec

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/deepteams/imagecodec/codec"
	"github.com/deepteams/imagecodec/exifutil"
	"github.com/deepteams/imagecodec/pixelmatrix"
)

// Option keys recognized by Encoder.Encode.
const (
	// OptCompressionLevel selects a zlib compression level: 0 (default),
	// -1 (no compression), -2 (best speed), -3 (best compression).
	OptCompressionLevel = 1
)

// Decoder decodes a single still PNG image, satisfying codec.StillDecoder.
type Decoder struct {
	data        []byte
	width       int
	height      int
	pixType     pixelmatrix.PixelType
	orientation int
	icc         []byte
}

// NewDecoder parses a PNG file's header and ancillary chunks (ICC profile
// via iCCP, EXIF orientation via eXIf) without decoding pixel data.
func NewDecoder(data []byte) (*Decoder, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, codec.NewError("pngcodec.NewDecoder", codec.InvalidDimensions, fmt.Errorf("%w: %v", codec.ErrCorruptFrame, err))
	}

	pt := pixelmatrix.BGR24
	switch cfg.ColorModel {
	case color.GrayModel, color.Gray16Model:
		pt = pixelmatrix.Gray8
	case color.NRGBAModel, color.NRGBA64Model:
		pt = pixelmatrix.BGRA32
	}

	d := &Decoder{data: data, width: cfg.Width, height: cfg.Height, pixType: pt, orientation: 1}

	chunks, cerr := readChunks(data)
	if cerr != nil {
		return nil, codec.NewError("pngcodec.NewDecoder", codec.InvalidDimensions, cerr)
	}
	for _, c := range chunks {
		switch c.typ {
		case "iCCP":
			if icc, ierr := decodeICCP(c.data); ierr == nil {
				d.icc = icc
			}
		case "eXIf":
			d.orientation = exifutil.Orientation(c.data)
		}
	}
	return d, nil
}

func (d *Decoder) Width() int                       { return d.width }
func (d *Decoder) Height() int                      { return d.height }
func (d *Decoder) PixelType() pixelmatrix.PixelType { return d.pixType }
func (d *Decoder) Orientation() int                 { return d.orientation }

// DecodeInto decodes the full image into dst.
func (d *Decoder) DecodeInto(dst *pixelmatrix.Matrix) error {
	img, err := png.Decode(bytes.NewReader(d.data))
	if err != nil {
		return codec.NewError("pngcodec.Decoder.DecodeInto", codec.Unknown, err)
	}
	return fillFromImage(dst, img)
}

// ICC copies the decoded ICC profile into buf, returning bytes copied, or 0
// if absent or buf is too small.
func (d *Decoder) ICC(buf []byte) int {
	if len(d.icc) == 0 || len(d.icc) > len(buf) {
		return 0
	}
	return copy(buf, d.icc)
}

func fillFromImage(dst *pixelmatrix.Matrix, img image.Image) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > dst.Width() || h > dst.Height() {
		return fmt.Errorf("pngcodec: decoded %dx%d exceeds destination %dx%d", w, h, dst.Width(), dst.Height())
	}
	switch dst.PixelType() {
	case pixelmatrix.Gray8:
		for y := 0; y < h; y++ {
			row := dst.Row(y)
			for x := 0; x < w; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				row[x] = byte((299*int(r>>8) + 587*int(g>>8) + 114*int(bl>>8)) / 1000)
			}
		}
	case pixelmatrix.BGR24:
		for y := 0; y < h; y++ {
			row := dst.Row(y)
			for x := 0; x < w; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				row[x*3+0] = byte(bl >> 8)
				row[x*3+1] = byte(g >> 8)
				row[x*3+2] = byte(r >> 8)
			}
		}
	case pixelmatrix.BGRA32:
		for y := 0; y < h; y++ {
			row := dst.Row(y)
			for x := 0; x < w; x++ {
				r, g, bl, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				row[x*4+0] = byte(bl >> 8)
				row[x*4+1] = byte(g >> 8)
				row[x*4+2] = byte(r >> 8)
				row[x*4+3] = byte(a >> 8)
			}
		}
	default:
		return fmt.Errorf("pngcodec: unsupported destination pixel type %s", dst.PixelType())
	}
	return nil
}

func toNRGBA(src *pixelmatrix.Matrix) *image.NRGBA {
	w, h := src.Width(), src.Height()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		row := src.Row(y)
		di := y * img.Stride
		switch src.PixelType() {
		case pixelmatrix.Gray8:
			for x := 0; x < w; x++ {
				g := row[x]
				img.Pix[di+x*4+0], img.Pix[di+x*4+1], img.Pix[di+x*4+2], img.Pix[di+x*4+3] = g, g, g, 255
			}
		case pixelmatrix.BGR24:
			for x := 0; x < w; x++ {
				si := x * 3
				img.Pix[di+x*4+0] = row[si+2]
				img.Pix[di+x*4+1] = row[si+1]
				img.Pix[di+x*4+2] = row[si+0]
				img.Pix[di+x*4+3] = 255
			}
		case pixelmatrix.BGRA32:
			for x := 0; x < w; x++ {
				si := x * 4
				img.Pix[di+x*4+0] = row[si+2]
				img.Pix[di+x*4+1] = row[si+1]
				img.Pix[di+x*4+2] = row[si+0]
				img.Pix[di+x*4+3] = row[si+3]
			}
		}
	}
	return img
}

// Encoder writes a single still PNG image into a caller-supplied fixed
// buffer.
type Encoder struct {
	dst []byte
	icc []byte
}

// NewEncoder records dst as the fixed output buffer.
func NewEncoder(dst []byte) *Encoder { return &Encoder{dst: dst} }

// SetICC records an ICC profile to embed as an iCCP chunk.
func (e *Encoder) SetICC(icc []byte) { e.icc = icc }

// Encode compresses src into the encoder's output buffer.
func (e *Encoder) Encode(src *pixelmatrix.Matrix, opts codec.Options) (int, error) {
	if src == nil {
		return 0, codec.NewError("pngcodec.Encoder.Encode", codec.NullMatrix, codec.ErrNullMatrix)
	}
	if src.Width() <= 0 || src.Height() <= 0 {
		return 0, codec.NewError("pngcodec.Encoder.Encode", codec.InvalidDimensions, codec.ErrInvalidDimensions)
	}

	var img image.Image
	switch src.PixelType() {
	case pixelmatrix.Gray8:
		g := image.NewGray(image.Rect(0, 0, src.Width(), src.Height()))
		for y := 0; y < src.Height(); y++ {
			copy(g.Pix[y*g.Stride:y*g.Stride+src.Width()], src.Row(y))
		}
		img = g
	default:
		img = toNRGBA(src)
	}

	var buf bytes.Buffer
	enc := &png.Encoder{CompressionLevel: png.CompressionLevel(opts.GetOr(OptCompressionLevel, 0))}
	if err := enc.Encode(&buf, img); err != nil {
		return 0, codec.NewError("pngcodec.Encoder.Encode", codec.Unknown, err)
	}

	out := buf.Bytes()
	if len(e.icc) > 0 {
		var ierr error
		out, ierr = insertICCP(out, e.icc)
		if ierr != nil {
			return 0, codec.NewError("pngcodec.Encoder.Encode", codec.Unknown, ierr)
		}
	}
	if len(out) > len(e.dst) {
		return 0, codec.NewError("pngcodec.Encoder.Encode", codec.BufferTooSmall, codec.ErrBufferTooSmall)
	}
	return copy(e.dst, out), nil
}

// decodeICCP decodes an iCCP chunk payload: a null-terminated profile name,
// a single compression-method byte (always 0, zlib), then the zlib-
// compressed ICC profile.
func decodeICCP(data []byte) ([]byte, error) {
	nul := bytes.IndexByte(data, 0)
	if nul < 0 || nul+2 > len(data) {
		return nil, fmt.Errorf("pngcodec: malformed iCCP chunk")
	}
	r, err := zlib.NewReader(bytes.NewReader(data[nul+2:]))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// encodeICCP builds an iCCP chunk payload for the given profile under a
// fixed name, since this module has no notion of a human-readable profile
// name to preserve.
func encodeICCP(icc []byte) ([]byte, error) {
	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write(icc); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	out.WriteString("ICC Profile")
	out.WriteByte(0)
	out.WriteByte(0) // compression method: zlib
	out.Write(compressed.Bytes())
	return out.Bytes(), nil
}

// insertICCP splices an iCCP chunk into a complete PNG file immediately
// after IHDR, the position PNG's chunk-ordering rules require for
// colour-information chunks.
func insertICCP(pngData, icc []byte) ([]byte, error) {
	chunks, err := readChunks(pngData)
	if err != nil {
		return nil, err
	}
	payload, err := encodeICCP(icc)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := writeSignature(&out); err != nil {
		return nil, err
	}
	inserted := false
	for _, c := range chunks {
		if err := writeChunk(&out, c.typ, c.data); err != nil {
			return nil, err
		}
		if !inserted && c.typ == "IHDR" {
			if err := writeChunk(&out, "iCCP", payload); err != nil {
				return nil, err
			}
			inserted = true
		}
	}
	return out.Bytes(), nil
}
