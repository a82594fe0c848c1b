package avifcodec

import (
	"fmt"

	"github.com/deepteams/imagecodec/codec"
	"github.com/deepteams/imagecodec/frame"
	"github.com/deepteams/imagecodec/pixelmatrix"
)

// OptQuality and OptSpeed are the AVIF encoder option keys,
// numbered after AvifEncoderOptions::QUALITY/SPEED in avif.hpp.
const (
	OptQuality = 1
	OptSpeed   = 2
)

const defaultQuality = 60 // avif_encoder_create's default, per avif.cpp
const defaultSpeed = 6    // AVIF_SPEED_DEFAULT

// DecodedPicture is what an AV1Decoder hands back for one coded frame: its
// planar RGB samples at the bitstream's native bit depth, plus the CICP
// color description needed to decide whether HDR tone-mapping applies
//. This package owns no AV1 parsing of its own — the
// retrieval pack's one AVIF file delegates entirely to cgo-wrapped
// libavif/dav1d, so there is no pure-Go AV1 bitstream reader to adapt —
// and instead treats the codec as an injected dependency, the same
// boundary libavif itself draws between container and dav1d/rav1e.
type DecodedPicture struct {
	Width, Height int
	BitDepth      int
	R, G, B       []uint16 // row-major, length Width*Height, each sample in [0, 2^BitDepth)
	Alpha         []uint16 // optional; nil if the frame carries no alpha plane
	Primaries     uint16   // CICP color primaries
	Transfer      uint16   // CICP transfer characteristics
	Matrix        uint16   // CICP matrix coefficients
}

// AV1Decoder decodes one AV1 OBU stream (a single coded frame) into planar
// RGB. Supplied by the caller; this package never parses AV1 itself.
type AV1Decoder interface {
	DecodeFrame(obu []byte) (*DecodedPicture, error)
}

// AV1Encoder compresses one pixelmatrix.Matrix frame into an AV1 OBU
// stream, and reports the codec configuration bytes av1C should carry.
// Supplied by the caller; this package never encodes AV1 itself.
type AV1Encoder interface {
	EncodeFrame(src *pixelmatrix.Matrix, quality, speed int, forceKeyframe bool) (obu []byte, err error)
	CodecConfig() []byte
}

func to8Bit(plane []uint16, bitDepth int) []uint8 {
	out := make([]uint8, len(plane))
	if bitDepth <= 8 {
		for i, v := range plane {
			out[i] = uint8(v)
		}
		return out
	}
	max := float64((uint32(1) << uint(bitDepth)) - 1)
	for i, v := range plane {
		out[i] = uint8(float64(v) * 255.0 / max + 0.5)
	}
	return out
}

// toRGB8 resolves a decoded picture to 8-bit sRGB-gamma R/G/B planes,
// applying avif.cpp's HDR tone-mapping pipeline when the source qualifies
// (bit depth above 8 with BT.2020 primaries or a PQ/HLG transfer curve),
// and a plain bit-depth scale-down otherwise.
func toRGB8(pic *DecodedPicture) (r, g, b []uint8) {
	if isHDRSource(pic.BitDepth, pic.Primaries, pic.Transfer) {
		return toneMapToSRGB8(pic.R, pic.G, pic.B, pic.BitDepth, pic.Transfer, pic.Primaries)
	}
	return to8Bit(pic.R, pic.BitDepth), to8Bit(pic.G, pic.BitDepth), to8Bit(pic.B, pic.BitDepth)
}

// fillMatrix writes 8-bit R/G/B(/A) planes into dst's BGR/BGRA layout.
func fillMatrix(dst *pixelmatrix.Matrix, width, height int, r, g, b, a []uint8) error {
	bpp := dst.PixelType().BytesPerPixel()
	hasAlpha := dst.PixelType() == pixelmatrix.BGRA32
	for y := 0; y < height; y++ {
		row := dst.Row(y)
		for x := 0; x < width; x++ {
			i := y*width + x
			px := row[x*bpp : x*bpp+bpp]
			switch dst.PixelType() {
			case pixelmatrix.Gray8:
				px[0] = g[i]
			case pixelmatrix.BGR24:
				px[0], px[1], px[2] = b[i], g[i], r[i]
			case pixelmatrix.BGRA32:
				av := uint8(255)
				if hasAlpha && a != nil {
					av = a[i]
				}
				px[0], px[1], px[2], px[3] = b[i], g[i], r[i], av
			}
		}
	}
	return nil
}

// itemProperties resolves the ipco/ipma property list for one item ID into
// its decoded ispe/pixi/av1C/colr/clap/auxC boxes.
type itemProperties struct {
	width, height int
	channels      int
	codecConfig   []byte
	color         colorInfo
	hasColor      bool
	clap          cleanAperture
	hasClap       bool
	isAlphaAux    bool
}

func resolveItemProperties(ipcoBoxes []box, indices []uint8) itemProperties {
	var p itemProperties
	for _, idx := range indices {
		if int(idx) < 1 || int(idx) > len(ipcoBoxes) {
			continue
		}
		prop := ipcoBoxes[idx-1]
		switch prop.typ {
		case "ispe":
			if w, h, err := parseISPE(prop.payload); err == nil {
				p.width, p.height = int(w), int(h)
			}
		case "pixi":
			if len(prop.payload) >= 5 {
				p.channels = int(prop.payload[4])
			}
		case "av1C":
			p.codecConfig = parseAV1C(prop.payload)
		case "colr":
			if ci, err := parseColr(prop.payload); err == nil {
				p.color = ci
				p.hasColor = true
			}
		case "clap":
			if c, err := parseCLAP(prop.payload); err == nil {
				p.clap = c
				p.hasClap = true
			}
		case "auxC":
			p.isAlphaAux = isAlphaAuxC(prop.payload)
		}
	}
	return p
}

// clapCrop resolves a clean-aperture property to an integer crop rectangle
// within a decodedWidth x decodedHeight frame, per ISO/IEC 14496-12's
// clap semantics (width/height in clapUnit, offsets measured from center).
func clapCrop(c cleanAperture, decodedWidth, decodedHeight int) (x, y, w, h int) {
	if c.widthD == 0 || c.heightD == 0 {
		return 0, 0, decodedWidth, decodedHeight
	}
	w = int(c.widthN / c.widthD)
	h = int(c.heightN / c.heightD)
	if w <= 0 || w > decodedWidth {
		w = decodedWidth
	}
	if h <= 0 || h > decodedHeight {
		h = decodedHeight
	}
	horizOff := 0
	vertOff := 0
	if c.horizOffD != 0 {
		horizOff = int(c.horizOffN / c.horizOffD)
	}
	if c.vertOffD != 0 {
		vertOff = int(c.vertOffN / c.vertOffD)
	}
	x = (decodedWidth-w)/2 + horizOff
	y = (decodedHeight-h)/2 + vertOff
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x+w > decodedWidth {
		w = decodedWidth - x
	}
	if y+h > decodedHeight {
		h = decodedHeight - y
	}
	return x, y, w, h
}

// stillContainer bundles the parsed still-image meta box state both Decoder and
// the ICC/XMP lookups need.
type stillContainer struct {
	width, height int
	hasAlpha      bool
	colorOBU      []byte
	alphaOBU      []byte
	color         itemProperties
	alpha         itemProperties
	icc           []byte
	xmp           []byte
	exif          []byte
}

func parseStillMeta(data []byte, metaPayload []byte) (stillContainer, error) {
	var sc stillContainer
	if len(metaPayload) < 4 {
		return sc, fmt.Errorf("avifcodec: %w: meta", ErrTruncatedBox)
	}
	boxes, err := readBoxes(metaPayload[4:])
	if err != nil {
		return sc, err
	}

	var primaryItem uint16
	var ilocItems []ilocItem
	var infeEntries []infeEntry
	var refs []itemRef
	var ipcoBoxes []box
	var ipmaMap map[uint16][]uint8

	for _, b := range boxes {
		switch b.typ {
		case "pitm":
			primaryItem, _ = parsePITM(b.payload)
		case "iloc":
			ilocItems, err = parseILOC(b.payload)
			if err != nil {
				return sc, err
			}
		case "iinf":
			infeEntries, err = parseIINF(b.payload)
			if err != nil {
				return sc, err
			}
		case "iref":
			refs, err = parseIREF(b.payload)
			if err != nil {
				return sc, err
			}
		case "iprp":
			inner, err := readBoxes(b.payload)
			if err != nil {
				return sc, err
			}
			for _, ib := range inner {
				switch ib.typ {
				case "ipco":
					ipcoBoxes, err = readBoxes(ib.payload)
					if err != nil {
						return sc, err
					}
				case "ipma":
					ipmaMap, err = parseIPMA(ib.payload)
					if err != nil {
						return sc, err
					}
				}
			}
		}
	}

	if primaryItem == 0 {
		return sc, fmt.Errorf("avifcodec: %w: no primary item", codec.ErrCorruptFrame)
	}

	extentFor := func(id uint16) ([]byte, error) {
		for _, it := range ilocItems {
			if it.itemID == id {
				end := uint64(it.offset) + uint64(it.length)
				if end > uint64(len(data)) {
					return nil, ErrTruncatedBox
				}
				return data[it.offset:end], nil
			}
		}
		return nil, fmt.Errorf("avifcodec: item %d has no iloc entry", id)
	}

	sc.colorOBU, err = extentFor(primaryItem)
	if err != nil {
		return sc, err
	}
	sc.color = resolveItemProperties(ipcoBoxes, ipmaMap[primaryItem])
	sc.width, sc.height = sc.color.width, sc.color.height

	var alphaItem uint16
	for _, r := range refs {
		if r.refType == "auxl" {
			for _, to := range r.to {
				if to == primaryItem {
					alphaItem = r.from
				}
			}
		}
		if r.refType == "cdsc" {
			// Metadata items (Exif/XMP) reference the primary item via cdsc.
			for _, e := range infeEntries {
				if e.itemID != r.from {
					continue
				}
				payload, perr := extentFor(e.itemID)
				if perr != nil {
					continue
				}
				switch e.itemType {
				case "Exif":
					if len(payload) > 4 {
						sc.exif = payload[4:] // skip exif_tiff_header_offset
					}
				case "mime":
					sc.xmp = payload
				}
			}
		}
	}
	if alphaItem != 0 {
		sc.alpha = resolveItemProperties(ipcoBoxes, ipmaMap[alphaItem])
		if sc.alpha.isAlphaAux {
			sc.alphaOBU, err = extentFor(alphaItem)
			if err == nil {
				sc.hasAlpha = true
			}
		}
	}
	if sc.color.hasColor && sc.color.color.iccProfile != nil {
		sc.icc = sc.color.color.iccProfile
	}
	return sc, nil
}

// Decoder decodes a single still AVIF image, delegating AV1 sample decode
// to an injected AV1Decoder and applying this package's own ISO-BMFF/HEIF
// item-model parsing and (when the source is HDR) tone-mapping. Satisfies
// codec.StillDecoder.
type Decoder struct {
	av1 AV1Decoder
	sc  stillContainer
}

// NewDecoder parses a still AVIF file's container and item properties. It
// does not decode AV1 samples yet; call DecodeInto for that.
func NewDecoder(data []byte, av1 AV1Decoder) (*Decoder, error) {
	boxes, err := readBoxes(data)
	if err != nil {
		return nil, codec.NewError("avifcodec.NewDecoder", codec.InvalidDimensions, err)
	}
	ftypPayload, ok := findBox(boxes, "ftyp")
	if !ok {
		return nil, codec.NewError("avifcodec.NewDecoder", codec.InvalidDimensions, codec.ErrCorruptFrame)
	}
	ft, err := parseFTYP(ftypPayload)
	if err != nil {
		return nil, codec.NewError("avifcodec.NewDecoder", codec.InvalidDimensions, err)
	}
	if !ft.hasBrand("avif") && !ft.hasBrand("mif1") {
		return nil, codec.NewError("avifcodec.NewDecoder", codec.InvalidArg, codec.ErrUnsupportedFeature)
	}
	metaPayload, ok := findBox(boxes, "meta")
	if !ok {
		return nil, codec.NewError("avifcodec.NewDecoder", codec.InvalidDimensions, codec.ErrCorruptFrame)
	}
	sc, err := parseStillMeta(data, metaPayload)
	if err != nil {
		return nil, codec.NewError("avifcodec.NewDecoder", codec.InvalidDimensions, err)
	}
	return &Decoder{av1: av1, sc: sc}, nil
}

func (d *Decoder) Width() int  { return d.sc.width }
func (d *Decoder) Height() int { return d.sc.height }

func (d *Decoder) PixelType() pixelmatrix.PixelType {
	if d.sc.hasAlpha {
		return pixelmatrix.BGRA32
	}
	return pixelmatrix.BGR24
}

// Orientation is always 1: AVIF carries no EXIF orientation tag convention
// in this module's scope, unlike JPEG/WebP's APP1/EXIF chunk.
func (d *Decoder) Orientation() int { return 1 }

// DecodeInto decodes the primary item (and, if present, its alpha
// auxiliary item) and fills dst, applying Clean Aperture cropping and HDR
// tone-mapping as needed.
func (d *Decoder) DecodeInto(dst *pixelmatrix.Matrix) error {
	pic, err := d.av1.DecodeFrame(d.sc.colorOBU)
	if err != nil {
		return codec.NewError("avifcodec.Decoder.DecodeInto", codec.Unknown, err)
	}
	if d.sc.color.hasColor {
		pic.Primaries, pic.Transfer, pic.Matrix = d.sc.color.color.primaries, d.sc.color.color.transfer, d.sc.color.color.matrix
	}
	r, g, b := toRGB8(pic)

	var a []uint8
	if d.sc.hasAlpha {
		alphaPic, err := d.av1.DecodeFrame(d.sc.alphaOBU)
		if err != nil {
			return codec.NewError("avifcodec.Decoder.DecodeInto", codec.Unknown, err)
		}
		a = to8Bit(alphaPic.R, alphaPic.BitDepth)
	}

	width, height := pic.Width, pic.Height
	if d.sc.color.hasClap {
		x, y, w, h := clapCrop(d.sc.color.clap, width, height)
		r, g, b = cropPlane(r, width, x, y, w, h), cropPlane(g, width, x, y, w, h), cropPlane(b, width, x, y, w, h)
		if a != nil {
			a = cropPlane(a, width, x, y, w, h)
		}
		width, height = w, h
	}

	return fillMatrix(dst, width, height, r, g, b, a)
}

func cropPlane(plane []uint8, srcWidth, x, y, w, h int) []uint8 {
	out := make([]uint8, w*h)
	for row := 0; row < h; row++ {
		srcOff := (y+row)*srcWidth + x
		copy(out[row*w:row*w+w], plane[srcOff:srcOff+w])
	}
	return out
}

// ICC copies the still image's embedded ICC profile into buf, returning the
// number of bytes copied, or 0 if no profile is present or buf is too
// small.
func (d *Decoder) ICC(buf []byte) int {
	if len(d.sc.icc) == 0 || len(d.sc.icc) > len(buf) {
		return 0
	}
	return copy(buf, d.sc.icc)
}

// AnimDecoder decodes an animated ("avis" brand) AVIF image sequence: an
// ISO-BMFF movie (moov/trak/stbl) rather than the item-based still-image
// model, walked by sequence.go's parseMOOV/parseTRAK. Satisfies
// codec.AnimationDecoder.
type AnimDecoder struct {
	av1        AV1Decoder
	data       []byte
	colorTrack parsedTrak
	alphaTrack *parsedTrak
	loopCount  int
	cursor     *frame.Cursor
	icc        []byte
	xmp        []byte
}

// NewAnimDecoder parses an animated AVIF file's moov box and per-track
// sample tables.
func NewAnimDecoder(data []byte, av1 AV1Decoder) (*AnimDecoder, error) {
	boxes, err := readBoxes(data)
	if err != nil {
		return nil, codec.NewError("avifcodec.NewAnimDecoder", codec.InvalidDimensions, err)
	}
	ftypPayload, ok := findBox(boxes, "ftyp")
	if !ok {
		return nil, codec.NewError("avifcodec.NewAnimDecoder", codec.InvalidDimensions, codec.ErrCorruptFrame)
	}
	ft, err := parseFTYP(ftypPayload)
	if err != nil {
		return nil, codec.NewError("avifcodec.NewAnimDecoder", codec.InvalidDimensions, err)
	}
	if !ft.hasBrand("avis") {
		return nil, codec.NewError("avifcodec.NewAnimDecoder", codec.InvalidArg, codec.ErrUnsupportedFeature)
	}
	moovPayload, ok := findBox(boxes, "moov")
	if !ok {
		return nil, codec.NewError("avifcodec.NewAnimDecoder", codec.InvalidDimensions, codec.ErrCorruptFrame)
	}
	traks, loopCount, err := parseMOOV(moovPayload)
	if err != nil {
		return nil, codec.NewError("avifcodec.NewAnimDecoder", codec.InvalidDimensions, err)
	}

	var color *parsedTrak
	var alpha *parsedTrak
	for i := range traks {
		if traks[i].auxOf == 0 && color == nil {
			color = &traks[i]
		}
	}
	if color == nil {
		return nil, codec.NewError("avifcodec.NewAnimDecoder", codec.InvalidDimensions, codec.ErrCorruptFrame)
	}
	for i := range traks {
		if traks[i].auxOf == color.trackID {
			alpha = &traks[i]
		}
	}

	var icc, xmp []byte
	if metaPayload, ok := findBox(boxes, "meta"); ok {
		if sc, err := parseStillMeta(data, metaPayload); err == nil {
			icc, xmp = sc.icc, sc.xmp
		}
	}

	d := &AnimDecoder{
		av1:        av1,
		data:       data,
		colorTrack: *color,
		alphaTrack: alpha,
		loopCount:  loopCount,
		cursor:     frame.NewCursor(len(color.sampleSizes)),
		icc:        icc,
		xmp:        xmp,
	}
	return d, nil
}

func (d *AnimDecoder) CanvasWidth() int  { return int(d.colorTrack.width) }
func (d *AnimDecoder) CanvasHeight() int { return int(d.colorTrack.height) }
func (d *AnimDecoder) FrameCount() int   { return len(d.colorTrack.sampleSizes) }
func (d *AnimDecoder) LoopCount() int    { return d.loopCount }
func (d *AnimDecoder) ICC() []byte       { return d.icc }
func (d *AnimDecoder) XMP() []byte       { return d.xmp }

// BackgroundColor is always 0: AVIF image sequences carry no background
// color convention the way GIF's global color table does.
func (d *AnimDecoder) BackgroundColor() uint32 { return 0 }

func (d *AnimDecoder) TotalDurationMS() int {
	total := 0
	for _, ms := range d.colorTrack.durationsMS {
		total += int(ms)
	}
	return total
}

func (d *AnimDecoder) HasMoreFrames() bool { return d.cursor.HasMore() }

func sampleAt(offsets []byte, track parsedTrak, idx int) []byte {
	// track.sampleOffset is the file-absolute offset of the first sample in
	// a single contiguous chunk (this package always lays out one chunk);
	// successive samples follow immediately, each track.sampleSizes[i] bytes.
	off := track.sampleOffset
	for i := 0; i < idx; i++ {
		off += track.sampleSizes[i]
	}
	return offsets[off : off+track.sampleSizes[idx]]
}

// DecodeInto decodes the current sample (and its alpha counterpart, if the
// sequence has one) into dst and advances the cursor. Dispose/blend are
// not carried by the AVIF track model; they are deduced from alpha
// presence per avif.cpp's get_frame_dispose/get_frame_blend heuristic:
// alpha present -> DisposeNone/BlendOver, opaque -> DisposeNone/BlendSource.
func (d *AnimDecoder) DecodeInto(dst *pixelmatrix.Matrix) (codec.FrameDescriptor, error) {
	if !d.cursor.HasMore() {
		return codec.FrameDescriptor{}, codec.ErrEOF
	}
	idx := d.cursor.Index()

	obu := sampleAt(d.data, d.colorTrack, idx)
	pic, err := d.av1.DecodeFrame(obu)
	if err != nil {
		return codec.FrameDescriptor{}, codec.NewError("avifcodec.AnimDecoder.DecodeInto", codec.Unknown, err)
	}
	r, g, b := toRGB8(pic)

	var a []uint8
	hasAlpha := false
	if d.alphaTrack != nil && idx < len(d.alphaTrack.sampleSizes) {
		alphaOBU := sampleAt(d.data, *d.alphaTrack, idx)
		alphaPic, err := d.av1.DecodeFrame(alphaOBU)
		if err != nil {
			return codec.FrameDescriptor{}, codec.NewError("avifcodec.AnimDecoder.DecodeInto", codec.Unknown, err)
		}
		a = to8Bit(alphaPic.R, alphaPic.BitDepth)
		hasAlpha = true
	}

	if err := fillMatrix(dst, pic.Width, pic.Height, r, g, b, a); err != nil {
		return codec.FrameDescriptor{}, err
	}

	dispose := frame.DisposeNone
	blend := frame.BlendSource
	if hasAlpha {
		blend = frame.BlendOver
	}

	desc := codec.FrameDescriptor{
		DurationMS: int(d.colorTrack.durationsMS[idx]),
		Width:      pic.Width,
		Height:     pic.Height,
		Dispose:    int(dispose),
		Blend:      int(blend),
	}
	d.cursor.Advance()
	return desc, nil
}

// Encoder writes a single still AVIF image over a fixed output buffer,
// delegating AV1 compression to an injected AV1Encoder. Satisfies
// codec.StillEncoder.
type Encoder struct {
	dst []byte
	av1 AV1Encoder
	icc []byte
}

// NewEncoder records dst as the fixed output buffer and av1 as the AV1
// compressor this encoder's Encode calls delegate to.
func NewEncoder(dst []byte, av1 AV1Encoder) *Encoder {
	return &Encoder{dst: dst, av1: av1}
}

// SetICC records an ICC profile to embed via a colr/prof property.
func (e *Encoder) SetICC(icc []byte) { e.icc = icc }

// Encode compresses src as a still AVIF file into the encoder's output
// buffer, returning the number of bytes written.
func (e *Encoder) Encode(src *pixelmatrix.Matrix, opts codec.Options) (int, error) {
	if src == nil {
		return 0, codec.NewError("avifcodec.Encoder.Encode", codec.NullMatrix, codec.ErrNullMatrix)
	}
	if src.Width() <= 0 || src.Height() <= 0 {
		return 0, codec.NewError("avifcodec.Encoder.Encode", codec.InvalidDimensions, codec.ErrInvalidDimensions)
	}
	quality := opts.GetOr(OptQuality, defaultQuality)
	speed := opts.GetOr(OptSpeed, defaultSpeed)

	obu, err := e.av1.EncodeFrame(src, quality, speed, true)
	if err != nil {
		return 0, codec.NewError("avifcodec.Encoder.Encode", codec.Unknown, err)
	}

	var alphaOBU []byte
	if src.PixelType() == pixelmatrix.BGRA32 {
		alphaMatrix, aerr := extractAlpha(src)
		if aerr != nil {
			return 0, codec.NewError("avifcodec.Encoder.Encode", codec.Unknown, aerr)
		}
		alphaOBU, err = e.av1.EncodeFrame(alphaMatrix, quality, speed, true)
		if err != nil {
			return 0, codec.NewError("avifcodec.Encoder.Encode", codec.Unknown, err)
		}
	}

	out := buildStillAVIF(src.Width(), src.Height(), obu, alphaOBU, e.av1.CodecConfig(), e.icc)
	if len(out) > len(e.dst) {
		return 0, codec.NewError("avifcodec.Encoder.Encode", codec.BufferTooSmall, codec.ErrBufferTooSmall)
	}
	return copy(e.dst, out), nil
}

// extractAlpha copies a BGRA32 matrix's alpha channel into a Gray8 matrix,
// the per-channel shape an AV1Encoder expects for the auxiliary alpha item.
func extractAlpha(src *pixelmatrix.Matrix) (*pixelmatrix.Matrix, error) {
	dst, err := pixelmatrix.Create(src.Width(), src.Height(), pixelmatrix.Gray8)
	if err != nil {
		return nil, err
	}
	for y := 0; y < src.Height(); y++ {
		srcRow := src.Row(y)
		dstRow := dst.Row(y)
		for x := 0; x < src.Width(); x++ {
			dstRow[x] = srcRow[x*4+3]
		}
	}
	return dst, nil
}

// buildStillAVIF assembles ftyp+meta+mdat for a single-item (plus optional
// alpha auxiliary item) still AVIF file.
func buildStillAVIF(width, height int, colorOBU, alphaOBU, codecConfig []byte, icc []byte) []byte {
	ftyp := encodeFTYP(ftyp{majorBrand: "avif", minorVer: 0, compatible: []string{"avif", "mif1", "miaf"}})

	const colorItemID = 1
	const alphaItemID = 2
	hasAlpha := len(alphaOBU) > 0

	pb := &propertyBuilder{}
	ispeIdx := pb.add("ispe", encodeISPE(uint32(width), uint32(height)))
	pixiIdx := pb.add("pixi", encodePIXI(3))
	av1cIdx := pb.add("av1C", encodeAV1C(codecConfig))
	assocs := []ipmaAssoc{{itemID: colorItemID, indices: []uint8{ispeIdx, pixiIdx, av1cIdx}}}
	if icc != nil {
		colrIdx := pb.add("colr", encodeColrICC(icc))
		assocs[0].indices = append(assocs[0].indices, colrIdx)
	}

	iinfEntries := [][]byte{encodeINFE(colorItemID, "av01", false, "")}

	items := []ilocItem{{itemID: colorItemID, length: uint32(len(colorOBU))}}
	var mdat []byte
	mdat = append(mdat, colorOBU...)

	var irefs []itemRef
	if hasAlpha {
		auxcIdx := pb.add("auxC", encodeAUXC(alphaAuxType))
		assocs = append(assocs, ipmaAssoc{itemID: alphaItemID, indices: []uint8{ispeIdx, auxcIdx, av1cIdx}})
		iinfEntries = append(iinfEntries, encodeINFE(alphaItemID, "av01", true, ""))
		irefs = append(irefs, itemRef{refType: "auxl", from: alphaItemID, to: []uint16{colorItemID}})
		items = append(items, ilocItem{itemID: alphaItemID, length: uint32(len(alphaOBU))})
		mdat = append(mdat, alphaOBU...)
	}

	ipco := pb.encode()
	ipma := encodeIPMA(assocs)

	meta := fullBoxHeader(0, 0)
	meta = writeBox(meta, "hdlr", encodeHDLR("pict"))
	meta = writeBox(meta, "pitm", encodePITM(colorItemID))
	meta = writeBox(meta, "iloc", encodeILOC(items))
	meta = writeBox(meta, "iinf", encodeIINF(iinfEntries))
	if len(irefs) > 0 {
		meta = writeBox(meta, "iref", encodeIREF(irefs))
	}
	meta = writeBox(meta, "iprp", encodeIPRP(ipco, ipma))

	// iloc offsets are file-absolute; patch them in a second pass once
	// ftyp+meta sizes (and therefore mdat's start) are known. Fixed-width
	// (4-byte) iloc offset/length fields never change size when patched.
	ftypBoxLen := 8 + len(ftyp)
	metaBoxLen := 8 + len(meta)
	mdatStart := ftypBoxLen + metaBoxLen + 8
	items[0].offset = uint32(mdatStart)
	if hasAlpha {
		items[1].offset = uint32(mdatStart + len(colorOBU))
	}

	meta = fullBoxHeader(0, 0)
	meta = writeBox(meta, "hdlr", encodeHDLR("pict"))
	meta = writeBox(meta, "pitm", encodePITM(colorItemID))
	meta = writeBox(meta, "iloc", encodeILOC(items))
	meta = writeBox(meta, "iinf", encodeIINF(iinfEntries))
	if len(irefs) > 0 {
		meta = writeBox(meta, "iref", encodeIREF(irefs))
	}
	meta = writeBox(meta, "iprp", encodeIPRP(ipco, ipma))

	var out []byte
	out = writeBox(out, "ftyp", ftyp)
	out = writeBox(out, "meta", meta)
	out = writeBox(out, "mdat", mdat)
	return out
}

// AnimEncoder assembles an animated ("avis" brand) AVIF image sequence over
// a fixed output buffer. The first Write stores its frame; a second Write upgrades to a
// multi-sample "avis" movie and replays it, exactly as frame.EncodeCursor's
// Empty->SingleStill->Animation transition requires.
type AnimEncoder struct {
	dst       []byte
	av1       AV1Encoder
	cursor    frame.EncodeCursor
	loopCount int

	width, height int
	samples       [][]byte
	alphaSamples  [][]byte // one entry per Write call that carried alpha; see Flush
	durationsMS   []uint32
}

// NewAnimEncoder records dst as the fixed output buffer, av1 as the AV1
// compressor, and the sequence's loop count (0 = infinite).
func NewAnimEncoder(dst []byte, av1 AV1Encoder, loopCount int) *AnimEncoder {
	return &AnimEncoder{dst: dst, av1: av1, loopCount: loopCount}
}

// Write encodes src as the next frame at the given duration. blend=OVER
// (i.e. the frame carries alpha and is composited rather than replacing the
// canvas) marks the sample as a forced keyframe.
func (e *AnimEncoder) Write(src *pixelmatrix.Matrix, durationMS int, opts codec.Options) error {
	if _, err := e.cursor.RecordWrite(); err != nil {
		return codec.NewError("avifcodec.AnimEncoder.Write", codec.InvalidArg, err)
	}
	if src == nil {
		return codec.NewError("avifcodec.AnimEncoder.Write", codec.NullMatrix, codec.ErrNullMatrix)
	}
	if e.width == 0 {
		e.width, e.height = src.Width(), src.Height()
	}

	hasAlpha := src.PixelType() == pixelmatrix.BGRA32

	quality := opts.GetOr(OptQuality, defaultQuality)
	speed := opts.GetOr(OptSpeed, defaultSpeed)
	obu, err := e.av1.EncodeFrame(src, quality, speed, hasAlpha)
	if err != nil {
		return codec.NewError("avifcodec.AnimEncoder.Write", codec.Unknown, err)
	}
	e.samples = append(e.samples, obu)
	e.durationsMS = append(e.durationsMS, uint32(durationMS))

	// Alpha is carried as a second AV1-coded track, auxl-referencing the
	// color track, the same per-item split still AVIF uses. Only wired when
	// every frame in the sequence carries alpha (see Flush); an alpha
	// sample is still recorded per-frame here so that case can be detected
	// without re-encoding afterwards.
	if hasAlpha {
		alphaMatrix, aerr := extractAlpha(src)
		if aerr != nil {
			return codec.NewError("avifcodec.AnimEncoder.Write", codec.Unknown, aerr)
		}
		alphaOBU, aerr := e.av1.EncodeFrame(alphaMatrix, quality, speed, true)
		if aerr != nil {
			return codec.NewError("avifcodec.AnimEncoder.Write", codec.Unknown, aerr)
		}
		e.alphaSamples = append(e.alphaSamples, alphaOBU)
	}
	return nil
}

// Flush assembles the sequence (a single still meta box if Write was only
// called once, or an "avis" movie if the encoder upgraded) into the fixed
// output buffer.
func (e *AnimEncoder) Flush() (int, error) {
	if err := e.cursor.RecordFlush(); err != nil {
		return 0, codec.NewError("avifcodec.AnimEncoder.Flush", codec.InvalidArg, err)
	}

	// An alpha track is only built when every frame in the sequence carried
	// alpha; a mix of opaque and alpha frames falls back to encoding the
	// color samples alone, per avif.cpp's own sequences (which always
	// encode alpha uniformly across a clip or not at all).
	uniformAlpha := len(e.alphaSamples) == len(e.samples)

	var out []byte
	if len(e.samples) == 1 {
		var alphaOBU []byte
		if uniformAlpha {
			alphaOBU = e.alphaSamples[0]
		}
		out = buildStillAVIF(e.width, e.height, e.samples[0], alphaOBU, e.av1.CodecConfig(), nil)
	} else {
		var alphaSamples [][]byte
		if uniformAlpha {
			alphaSamples = e.alphaSamples
		}
		out = buildSequenceAVIF(e.width, e.height, e.samples, alphaSamples, e.durationsMS, e.av1.CodecConfig(), e.loopCount)
	}

	if len(out) > len(e.dst) {
		return 0, codec.NewError("avifcodec.AnimEncoder.Flush", codec.BufferTooSmall, codec.ErrBufferTooSmall)
	}
	return copy(e.dst, out), nil
}

// buildSequenceAVIF assembles ftyp+moov+mdat for a multi-sample "avis"
// image sequence, with color samples (then, if alphaSamples is non-nil,
// alpha samples) laid out back-to-back in mdat, in the same order as each
// track's sample table. Offsets are patched in a second pass once
// ftyp+moov sizes are known, per sequence.go's doc comment.
func buildSequenceAVIF(width, height int, samples, alphaSamples [][]byte, durationsMS []uint32, codecConfig []byte, loopCount int) []byte {
	ftypBox := encodeFTYP(ftyp{majorBrand: "avis", minorVer: 0, compatible: []string{"avis", "avif", "msf1", "miaf"}})

	sizeOf := func(bufs [][]byte) []uint32 {
		sizes := make([]uint32, len(bufs))
		for i, s := range bufs {
			sizes[i] = uint32(len(s))
		}
		return sizes
	}

	colorTrack := seqTrack{
		trackID:     1,
		width:       uint32(width),
		height:      uint32(height),
		durationsMS: durationsMS,
		sampleSizes: sizeOf(samples),
		codecConfig: codecConfig,
	}
	hasAlpha := len(alphaSamples) == len(samples) && len(alphaSamples) > 0
	alphaTrack := seqTrack{
		trackID:     2,
		width:       uint32(width),
		height:      uint32(height),
		durationsMS: durationsMS,
		sampleSizes: sizeOf(alphaSamples),
		codecConfig: codecConfig,
		auxOf:       1,
	}

	tracks := func(colorOffset, alphaOffset uint32) []seqTrack {
		colorTrack.sampleOffset = colorOffset
		if !hasAlpha {
			return []seqTrack{colorTrack}
		}
		alphaTrack.sampleOffset = alphaOffset
		return []seqTrack{colorTrack, alphaTrack}
	}

	// First pass: measure moov's size with placeholder offsets (stco's
	// entry count and width never change regardless of the offset value).
	moovSize := len(encodeMOOV(tracks(0, 0), colorTrack.totalDurationMS(), loopCount)) + 8
	mdatStart := len(ftypBox) + 8 + moovSize + 8

	var colorSize uint32
	for _, s := range samples {
		colorSize += uint32(len(s))
	}
	moov := encodeMOOV(tracks(uint32(mdatStart), uint32(mdatStart)+colorSize), colorTrack.totalDurationMS(), loopCount)

	var mdat []byte
	for _, s := range samples {
		mdat = append(mdat, s...)
	}
	if hasAlpha {
		for _, s := range alphaSamples {
			mdat = append(mdat, s...)
		}
	}

	var out []byte
	out = writeBox(out, "ftyp", ftypBox)
	out = writeBox(out, "moov", moov)
	out = writeBox(out, "mdat", mdat)
	return out
}
