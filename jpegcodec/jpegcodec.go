// Package jpegcodec implements the still JPEG decoder and encoder
//. Decoding is delegated to the standard library's
// image/jpeg, since the retrieval pack carries no complete third-party
// JPEG decoder (google-wuffs/lib/lowleveljpeg and dlecorfec/progjpeg are
// encoder-only); APP1 (EXIF) and APP2 (ICC) segment extraction is done by
// a hand-rolled marker walk, grounded on f46dccbf_jrm-1535-jpeg__jpeg.go's
// state-machine description of the marker stream. Encoding is delegated to
// github.com/dlecorfec/progjpeg, which additionally supports progressive
// scans that image/jpeg's encoder cannot produce.
package jpegcodec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/dlecorfec/progjpeg"

	"github.com/deepteams/imagecodec/codec"
	"github.com/deepteams/imagecodec/exifutil"
	"github.com/deepteams/imagecodec/pixelmatrix"
)

// Option keys recognized by Encoder.Encode.
const (
	OptQuality     = 1
	OptProgressive = 2
)

const defaultQuality = 95

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP1 = 0xE1
	markerAPP2 = 0xE2
)

var iccSig = []byte("ICC_PROFILE\x00")

// segment is one marker segment found while walking a JPEG byte stream.
type segment struct {
	marker  byte
	payload []byte // excludes the 2-byte length field itself
}

// walkMarkers scans data's marker segments up to (and not including) the
// first entropy-coded scan (SOS), since no metadata of interest to this
// module follows that point.
func walkMarkers(data []byte) []segment {
	var segs []segment
	i := 0
	for i+1 < len(data) {
		if data[i] != 0xFF {
			i++
			continue
		}
		marker := data[i+1]
		i += 2
		if marker == 0 || marker == 0xFF {
			continue // fill byte or stuffed 0xFF
		}
		if marker == markerSOI {
			continue
		}
		if marker == markerEOI || marker == markerSOS {
			break
		}
		// RST0-RST7 (0xD0-0xD7) carry no length field; not expected before
		// SOS, but skip defensively.
		if marker >= 0xD0 && marker <= 0xD7 {
			continue
		}
		if i+2 > len(data) {
			break
		}
		length := int(binary.BigEndian.Uint16(data[i : i+2]))
		if length < 2 || i+length > len(data) {
			break
		}
		segs = append(segs, segment{marker: marker, payload: data[i+2 : i+length]})
		i += length
	}
	return segs
}

// Decoder decodes a single JPEG image, satisfying codec.StillDecoder.
type Decoder struct {
	data        []byte
	width       int
	height      int
	pixType     pixelmatrix.PixelType
	orientation int
	icc         []byte
}

// NewDecoder parses a JPEG file's header (dimensions, color model, ICC
// profile, EXIF orientation) without decoding pixel data.
func NewDecoder(data []byte) (*Decoder, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, codec.NewError("jpegcodec.NewDecoder", codec.InvalidDimensions, fmt.Errorf("%w: %v", codec.ErrCorruptFrame, err))
	}

	pt := pixelmatrix.BGR24
	if cfg.ColorModel == color.GrayModel {
		pt = pixelmatrix.Gray8
	}

	d := &Decoder{data: data, width: cfg.Width, height: cfg.Height, pixType: pt, orientation: 1}

	for _, seg := range walkMarkers(data) {
		switch seg.marker {
		case markerAPP1:
			if bytes.HasPrefix(seg.payload, []byte("Exif\x00\x00")) {
				d.orientation = exifutil.Orientation(exifutil.StripEXIFHeader(seg.payload))
			}
		case markerAPP2:
			if bytes.HasPrefix(seg.payload, iccSig) {
				d.icc = append(d.icc, seg.payload[len(iccSig)+2:]...)
			}
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
	img, err := jpeg.Decode(bytes.NewReader(d.data))
	if err != nil {
		return codec.NewError("jpegcodec.Decoder.DecodeInto", codec.Unknown, err)
	}
	return fillFromImage(dst, img)
}

// ICC copies the reassembled ICC profile (from possibly multiple chunked
// APP2 segments) into buf, returning the number of bytes copied, or 0 if
// absent or buf is too small.
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
		return fmt.Errorf("jpegcodec: decoded %dx%d exceeds destination %dx%d", w, h, dst.Width(), dst.Height())
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
		return fmt.Errorf("jpegcodec: unsupported destination pixel type %s", dst.PixelType())
	}
	return nil
}

// Encoder writes a single JPEG image into a caller-supplied fixed buffer,
// with no reallocation.
type Encoder struct {
	dst []byte
	icc []byte
}

// NewEncoder records dst as the fixed output buffer.
func NewEncoder(dst []byte) *Encoder { return &Encoder{dst: dst} }

// SetICC records an ICC profile to embed as chunked APP2 segments.
func (e *Encoder) SetICC(icc []byte) { e.icc = icc }

// Encode compresses src (1, 3, or 4 channels; 4-channel input discards
// alpha) into the encoder's output buffer.
func (e *Encoder) Encode(src *pixelmatrix.Matrix, opts codec.Options) (int, error) {
	if src == nil {
		return 0, codec.NewError("jpegcodec.Encoder.Encode", codec.NullMatrix, codec.ErrNullMatrix)
	}
	if src.Width() <= 0 || src.Height() <= 0 {
		return 0, codec.NewError("jpegcodec.Encoder.Encode", codec.InvalidDimensions, codec.ErrInvalidDimensions)
	}

	img, err := toEncodeImage(src)
	if err != nil {
		return 0, codec.NewError("jpegcodec.Encoder.Encode", codec.InvalidChannelCount, err)
	}

	quality := opts.GetOr(OptQuality, defaultQuality)
	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}
	progressive := opts.GetOr(OptProgressive, 0) != 0

	var buf bytes.Buffer
	if err := progjpeg.Encode(&buf, img, &progjpeg.Options{Quality: quality, Progressive: progressive}); err != nil {
		return 0, codec.NewError("jpegcodec.Encoder.Encode", codec.Unknown, err)
	}

	out := buf.Bytes()
	if len(e.icc) > 0 {
		out = insertAPP2ICC(out, e.icc)
	}
	if len(out) > len(e.dst) {
		return 0, codec.NewError("jpegcodec.Encoder.Encode", codec.BufferTooSmall, codec.ErrBufferTooSmall)
	}
	return copy(e.dst, out), nil
}

func toEncodeImage(src *pixelmatrix.Matrix) (image.Image, error) {
	w, h := src.Width(), src.Height()
	switch src.PixelType() {
	case pixelmatrix.Gray8:
		img := image.NewGray(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			copy(img.Pix[y*img.Stride:y*img.Stride+w], src.Row(y))
		}
		return img, nil
	case pixelmatrix.BGR24:
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			row := src.Row(y)
			di := y * img.Stride
			for x := 0; x < w; x++ {
				si := x * 3
				img.Pix[di+x*4+0] = row[si+2]
				img.Pix[di+x*4+1] = row[si+1]
				img.Pix[di+x*4+2] = row[si+0]
				img.Pix[di+x*4+3] = 255
			}
		}
		return img, nil
	case pixelmatrix.BGRA32:
		// 4-channel input discards alpha.
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			row := src.Row(y)
			di := y * img.Stride
			for x := 0; x < w; x++ {
				si := x * 4
				img.Pix[di+x*4+0] = row[si+2]
				img.Pix[di+x*4+1] = row[si+1]
				img.Pix[di+x*4+2] = row[si+0]
				img.Pix[di+x*4+3] = 255
			}
		}
		return img, nil
	default:
		return nil, fmt.Errorf("invalid channel count for pixel type %s", src.PixelType())
	}
}

// insertAPP2ICC splices one or more APP2 "ICC_PROFILE" segments right
// after the SOI marker, chunking icc into at most 65519-byte payloads per
// the ICC-in-JPEG convention (12-byte "ICC_PROFILE\0" signature + 1-byte
// sequence number + 1-byte chunk count precede each chunk's data).
func insertAPP2ICC(jpegData, icc []byte) []byte {
	const maxChunk = 65535 - 2 - 12 - 2 // length field + "ICC_PROFILE\0" + seq/count bytes
	numChunks := (len(icc) + maxChunk - 1) / maxChunk
	if numChunks == 0 {
		numChunks = 1
	}

	var segs bytes.Buffer
	for i := 0; i < numChunks; i++ {
		start := i * maxChunk
		end := start + maxChunk
		if end > len(icc) {
			end = len(icc)
		}
		chunk := icc[start:end]

		payloadLen := len(iccSig) + 2 + len(chunk)
		segs.WriteByte(0xFF)
		segs.WriteByte(markerAPP2)
		var lenBuf [2]byte
		binary.BigEndian.PutUint16(lenBuf[:], uint16(payloadLen+2))
		segs.Write(lenBuf[:])
		segs.Write(iccSig)
		segs.WriteByte(byte(i + 1))
		segs.WriteByte(byte(numChunks))
		segs.Write(chunk)
	}

	out := make([]byte, 0, len(jpegData)+segs.Len())
	out = append(out, jpegData[:2]...) // SOI
	out = append(out, segs.Bytes()...)
	out = append(out, jpegData[2:]...)
	return out
}
