package mux

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/deepteams/imagecodec/webpcodec/internal/container"
)

// --- Chunk tests ---

func TestFourCCString(t *testing.T) {
	tests := []struct {
		id   ChunkID
		want string
	}{
		{FourCCVP8, "VP8 "},
		{FourCCVP8L, "VP8L"},
		{FourCCVP8X, "VP8X"},
		{FourCCALPH, "ALPH"},
		{FourCCANIM, "ANIM"},
		{FourCCANMF, "ANMF"},
		{FourCCICCP, "ICCP"},
		{FourCCEXIF, "EXIF"},
		{FourCCXMP, "XMP "},
	}
	for _, tt := range tests {
		got := fourCCString(tt.id)
		if got != tt.want {
			t.Errorf("fourCCString(0x%08x) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestReadChunkHeader(t *testing.T) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], FourCCVP8L)
	binary.LittleEndian.PutUint32(buf[4:8], 42)

	id, size, err := ReadChunkHeader(buf)
	if err != nil {
		t.Fatalf("ReadChunkHeader: %v", err)
	}
	if id != FourCCVP8L {
		t.Errorf("id = 0x%08x, want VP8L 0x%08x", id, FourCCVP8L)
	}
	if size != 42 {
		t.Errorf("size = %d, want 42", size)
	}
}

func TestReadChunkHeaderTooShort(t *testing.T) {
	_, _, err := ReadChunkHeader([]byte{1, 2, 3})
	if err != ErrInvalidChunkHeader {
		t.Errorf("expected ErrInvalidChunkHeader, got %v", err)
	}
}

func TestReadChunk(t *testing.T) {
	payload := []byte("hello")
	buf := make([]byte, container.ChunkHeaderSize+len(payload)+1) // +1 for padding
	writeChunkHeader(buf[0:8], FourCCEXIF, uint32(len(payload)))
	copy(buf[8:], payload)
	buf[13] = 0 // padding byte

	c, consumed, err := ReadChunk(buf)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if c.ID != FourCCEXIF {
		t.Errorf("chunk ID = 0x%08x, want EXIF", c.ID)
	}
	if c.Size != 5 {
		t.Errorf("chunk Size = %d, want 5", c.Size)
	}
	if !bytes.Equal(c.Data, payload) {
		t.Errorf("chunk Data = %q, want %q", c.Data, payload)
	}
	// 8 header + 5 payload + 1 padding = 14
	if consumed != 14 {
		t.Errorf("consumed = %d, want 14", consumed)
	}
}

func TestReadChunkEvenPayload(t *testing.T) {
	payload := []byte("hi")
	buf := make([]byte, container.ChunkHeaderSize+len(payload))
	writeChunkHeader(buf[0:8], FourCCEXIF, uint32(len(payload)))
	copy(buf[8:], payload)

	_, consumed, err := ReadChunk(buf)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	// 8 header + 2 payload, no padding
	if consumed != 10 {
		t.Errorf("consumed = %d, want 10", consumed)
	}
}

// --- Helper to build raw VP8 frame data ---

func makeVP8Keyframe(width, height int) []byte {
	// Minimal VP8 keyframe: 3-byte frame tag + signature + dimensions.
	data := make([]byte, 10)
	data[0] = 0 // keyframe bit=0
	data[1] = 0
	data[2] = 0
	data[3] = 0x9d // VP8 signature
	data[4] = 0x01
	data[5] = 0x2a
	binary.LittleEndian.PutUint16(data[6:8], uint16(width))
	binary.LittleEndian.PutUint16(data[8:10], uint16(height))
	return data
}

func makeVP8LData(width, height int, hasAlpha bool) []byte {
	data := make([]byte, 5)
	data[0] = container.VP8LMagicByte
	bits := uint32(width-1) | uint32(height-1)<<14
	if hasAlpha {
		bits |= 1 << 28
	}
	binary.LittleEndian.PutUint32(data[1:5], bits)
	return data
}

// --- Helper to build a minimal WebP file ---

func buildSimpleWebP(bitstreamChunkID ChunkID, bitstreamData []byte) []byte {
	chunkSize := uint32(len(bitstreamData))
	paddedSize := chunkSize
	if chunkSize%2 != 0 {
		paddedSize++
	}
	riffPayload := 4 + container.ChunkHeaderSize + paddedSize
	total := container.RIFFHeaderSize + container.ChunkHeaderSize + int(paddedSize)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], FourCCRIFF)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(riffPayload))
	binary.LittleEndian.PutUint32(buf[8:12], FourCCWEBP)
	writeChunkHeader(buf[12:20], bitstreamChunkID, chunkSize)
	copy(buf[20:], bitstreamData)
	return buf
}

func buildVP8XWebP(flags byte, canvasW, canvasH int, chunks ...Chunk) []byte {
	var buf bytes.Buffer

	// Placeholder for RIFF header â€” written at end.
	buf.Write(make([]byte, container.RIFFHeaderSize))

	// VP8X chunk.
	vp8x := make([]byte, container.ChunkHeaderSize+container.VP8XChunkSize)
	writeChunkHeader(vp8x[0:8], FourCCVP8X, container.VP8XChunkSize)
	vp8x[8] = flags
	putLE24(vp8x[12:15], canvasW-1)
	putLE24(vp8x[15:18], canvasH-1)
	buf.Write(vp8x)

	// Write additional chunks.
	for _, c := range chunks {
		hdr := make([]byte, container.ChunkHeaderSize)
		writeChunkHeader(hdr, c.ID, c.Size)
		buf.Write(hdr)
		buf.Write(c.Data)
		if c.Size%2 != 0 {
			buf.WriteByte(0)
		}
	}

	data := buf.Bytes()
	riffPayload := uint32(len(data) - 8) // total - "RIFF" - size field
	binary.LittleEndian.PutUint32(data[0:4], FourCCRIFF)
	binary.LittleEndian.PutUint32(data[4:8], riffPayload)
	binary.LittleEndian.PutUint32(data[8:12], FourCCWEBP)
	return data
}

// --- Mux tests ---
//
// The container's own parser (internal/container.Parser) is the only live
// WebP reader in this module, so it doubles as the roundtrip oracle for
// verifying Muxer.Assemble output; these tests used to drive a
// mux-package-local Demuxer that duplicated container.Parser's job and was
// never used by any decode path, so it was deleted rather than kept.

func findChunk(chunks []container.Chunk, id uint32) ([]byte, bool) {
	for _, c := range chunks {
		if c.FourCC == id {
			return c.Payload, true
		}
	}
	return nil, false
}

func TestMuxSimpleVP8(t *testing.T) {
	bs := makeVP8Keyframe(320, 240)

	m := NewMuxer()
	if err := m.AddFrame(bs, nil); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}

	var buf bytes.Buffer
	if err := m.Assemble(&buf); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	p, err := container.NewParser(buf.Bytes())
	if err != nil {
		t.Fatalf("container.NewParser roundtrip: %v", err)
	}
	feat := p.Features()
	if feat.Width != 320 || feat.Height != 240 {
		t.Errorf("roundtrip dimensions = %dx%d, want 320x240", feat.Width, feat.Height)
	}
	if feat.Format != container.FormatVP8 {
		t.Errorf("roundtrip format = %v, want FormatVP8", feat.Format)
	}
}

func TestMuxSimpleVP8L(t *testing.T) {
	bs := makeVP8LData(128, 64, false)

	m := NewMuxer()
	if err := m.AddFrame(bs, nil); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}

	var buf bytes.Buffer
	if err := m.Assemble(&buf); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	p, err := container.NewParser(buf.Bytes())
	if err != nil {
		t.Fatalf("container.NewParser roundtrip: %v", err)
	}
	feat := p.Features()
	if feat.Width != 128 || feat.Height != 64 {
		t.Errorf("roundtrip dimensions = %dx%d, want 128x64", feat.Width, feat.Height)
	}
	if feat.Format != container.FormatVP8L {
		t.Errorf("roundtrip format = %v, want FormatVP8L", feat.Format)
	}
}

func TestMuxWithMetadata(t *testing.T) {
	bs := makeVP8Keyframe(640, 480)
	iccData := []byte("fake-icc-profile")
	exifData := []byte("fake-exif-data")
	xmpData := []byte("fake-xmp-data")

	m := NewMuxer()
	m.SetICCProfile(iccData)
	m.SetEXIF(exifData)
	m.SetXMP(xmpData)
	if err := m.AddFrame(bs, nil); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}

	var buf bytes.Buffer
	if err := m.Assemble(&buf); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	p, err := container.NewParser(buf.Bytes())
	if err != nil {
		t.Fatalf("container.NewParser roundtrip: %v", err)
	}

	feat := p.Features()
	if feat.Format != container.FormatVP8X {
		t.Errorf("format = %v, want FormatVP8X", feat.Format)
	}
	if !feat.HasICCP {
		t.Error("HasICCP should be true")
	}
	if !feat.HasEXIF {
		t.Error("HasEXIF should be true")
	}
	if !feat.HasXMP {
		t.Error("HasXMP should be true")
	}

	icc, ok := findChunk(p.Chunks(), container.FourCCICCP)
	if !ok {
		t.Fatal("ICCP chunk not found")
	}
	if !bytes.Equal(icc, iccData) {
		t.Errorf("ICC roundtrip mismatch")
	}

	exif, ok := findChunk(p.Chunks(), container.FourCCEXIF)
	if !ok {
		t.Fatal("EXIF chunk not found")
	}
	if !bytes.Equal(exif, exifData) {
		t.Errorf("EXIF roundtrip mismatch")
	}

	xmp, ok := findChunk(p.Chunks(), container.FourCCXMP)
	if !ok {
		t.Fatal("XMP chunk not found")
	}
	if !bytes.Equal(xmp, xmpData) {
		t.Errorf("XMP roundtrip mismatch")
	}
}

func TestMuxAnimated(t *testing.T) {
	frame1 := makeVP8Keyframe(100, 100)
	frame2 := makeVP8Keyframe(100, 100)

	m := NewMuxer()
	m.SetLoopCount(3)
	m.SetBackgroundColor(0xFF000000)

	if err := m.AddFrame(frame1, &FrameOptions{Duration: 50}); err != nil {
		t.Fatalf("AddFrame 1: %v", err)
	}
	if err := m.AddFrame(frame2, &FrameOptions{Duration: 100, BlendMode: BlendNone, DisposeMode: DisposeBackground}); err != nil {
		t.Fatalf("AddFrame 2: %v", err)
	}

	var buf bytes.Buffer
	if err := m.Assemble(&buf); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	p, err := container.NewParser(buf.Bytes())
	if err != nil {
		t.Fatalf("container.NewParser animated roundtrip: %v", err)
	}

	feat := p.Features()
	if !feat.HasAnim {
		t.Error("HasAnim should be true")
	}
	frames := p.Frames()
	if len(frames) != 2 {
		t.Fatalf("len(Frames) = %d, want 2", len(frames))
	}
	if feat.LoopCount != 3 {
		t.Errorf("LoopCount = %d, want 3", feat.LoopCount)
	}
	if feat.BGColor != 0xFF000000 {
		t.Errorf("BGColor = 0x%08x, want 0xFF000000", feat.BGColor)
	}

	if frames[0].Duration != 50 {
		t.Errorf("frame 0 duration = %d, want 50", frames[0].Duration)
	}

	if frames[1].Duration != 100 {
		t.Errorf("frame 1 duration = %d, want 100", frames[1].Duration)
	}
	if frames[1].BlendMethod != container.BlendNone {
		t.Errorf("frame 1 blend = %v, want BlendNone", frames[1].BlendMethod)
	}
	if frames[1].DisposeMethod != container.DisposeBackground {
		t.Errorf("frame 1 dispose = %v, want DisposeBackground", frames[1].DisposeMethod)
	}
}

func TestMuxNoFrames(t *testing.T) {
	m := NewMuxer()
	var buf bytes.Buffer
	err := m.Assemble(&buf)
	if err != ErrNoFrames {
		t.Errorf("expected ErrNoFrames, got %v", err)
	}
}

func TestMuxEmptyFrame(t *testing.T) {
	m := NewMuxer()
	err := m.AddFrame(nil, nil)
	if err != ErrFrameEmpty {
		t.Errorf("expected ErrFrameEmpty, got %v", err)
	}
}

func TestMuxAddChunk(t *testing.T) {
	m := NewMuxer()
	if err := m.AddChunk(FourCCICCP, []byte("icc")); err != nil {
		t.Fatal(err)
	}
	if err := m.AddChunk(FourCCEXIF, []byte("exif")); err != nil {
		t.Fatal(err)
	}
	if err := m.AddChunk(FourCCXMP, []byte("xmp")); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(m.iccData, []byte("icc")) {
		t.Error("AddChunk(ICCP) did not set iccData")
	}
	if !bytes.Equal(m.exifData, []byte("exif")) {
		t.Error("AddChunk(EXIF) did not set exifData")
	}
	if !bytes.Equal(m.xmpData, []byte("xmp")) {
		t.Error("AddChunk(XMP) did not set xmpData")
	}
}

func TestMuxOddPayloadPadding(t *testing.T) {
	// VP8L with odd-length payload to verify RIFF padding.
	bs := makeVP8LData(3, 3, false)
	extra := append(bs, 0xFF) // Make it 6 bytes (even).

	m := NewMuxer()
	if err := m.AddFrame(extra, nil); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}

	var buf bytes.Buffer
	if err := m.Assemble(&buf); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	// Should be parseable.
	if _, err := container.NewParser(buf.Bytes()); err != nil {
		t.Fatalf("container.NewParser roundtrip: %v", err)
	}
}

// --- HasAlpha propagation through the VP8X container builders ---

func TestHasAlpha_SimpleVP8L_Alpha(t *testing.T) {
	bs := makeVP8LData(64, 64, true)
	webp := buildSimpleWebP(FourCCVP8L, bs)
	p, err := container.NewParser(webp)
	if err != nil {
		t.Fatalf("container.NewParser: %v", err)
	}
	if !p.Frames()[0].HasAlpha {
		t.Error("VP8L frame with alpha bit should have HasAlpha=true")
	}
}

func TestHasAlpha_SimpleVP8L_NoAlpha(t *testing.T) {
	bs := makeVP8LData(64, 64, false)
	webp := buildSimpleWebP(FourCCVP8L, bs)
	p, err := container.NewParser(webp)
	if err != nil {
		t.Fatalf("container.NewParser: %v", err)
	}
	if p.Frames()[0].HasAlpha {
		t.Error("VP8L frame without alpha bit should have HasAlpha=false")
	}
}

func TestHasAlpha_SimpleVP8_NoAlpha(t *testing.T) {
	bs := makeVP8Keyframe(64, 64)
	webp := buildSimpleWebP(FourCCVP8, bs)
	p, err := container.NewParser(webp)
	if err != nil {
		t.Fatalf("container.NewParser: %v", err)
	}
	if p.Frames()[0].HasAlpha {
		t.Error("VP8 lossy frame without ALPH chunk should have HasAlpha=false")
	}
}

func TestHasAlpha_AnimatedVP8L_Alpha(t *testing.T) {
	// Build an animated WebP with VP8L frames that have the alpha bit set.
	frame1 := makeVP8LData(50, 50, true)
	frame2 := makeVP8LData(50, 50, false)

	animData := make([]byte, container.ANIMChunkSize)
	anmf1 := buildANMFData(0, 0, 50, 50, 50, BlendAlpha, DisposeNone, FourCCVP8L, frame1)
	anmf2 := buildANMFData(0, 0, 50, 50, 50, BlendAlpha, DisposeNone, FourCCVP8L, frame2)

	chunks := []Chunk{
		{ID: FourCCANIM, Size: uint32(len(animData)), Data: animData},
		{ID: FourCCANMF, Size: uint32(len(anmf1)), Data: anmf1},
		{ID: FourCCANMF, Size: uint32(len(anmf2)), Data: anmf2},
	}
	webp := buildVP8XWebP(byte(flagAnimation), 50, 50, chunks...)

	p, err := container.NewParser(webp)
	if err != nil {
		t.Fatalf("container.NewParser: %v", err)
	}
	frames := p.Frames()

	if !frames[0].HasAlpha {
		t.Error("VP8L frame 0 with alpha bit should have HasAlpha=true")
	}
	if frames[1].HasAlpha {
		t.Error("VP8L frame 1 without alpha bit should have HasAlpha=false")
	}
}

// --- Bounds clamping tests (DIFF-AN9) ---

func TestClampDuration(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"negative", -1, 0},
		{"zero", 0, 0},
		{"normal", 100, 100},
		{"at_max", 0xFFFFFF, 0xFFFFFF},
		{"over_max", 0x1000000, 0xFFFFFF},
		{"way_over", 0x7FFFFFFF, 0xFFFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := clampDuration(tt.in)
			if got != tt.want {
				t.Errorf("clampDuration(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetLoopCountClamping(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"negative", -1, 0},
		{"zero_infinite", 0, 0},
		{"normal", 3, 3},
		{"at_max", 0xFFFF, 0xFFFF},
		{"over_max", 0x10000, 0xFFFF},
		{"way_over", 0x7FFFFFFF, 0xFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMuxer()
			m.SetLoopCount(tt.in)
			if m.loopCount != tt.want {
				t.Errorf("SetLoopCount(%d): loopCount = %d, want %d", tt.in, m.loopCount, tt.want)
			}
		})
	}
}

func TestAddFrameDurationClamping(t *testing.T) {
	bs := makeVP8Keyframe(10, 10)
	m := NewMuxer()
	if err := m.AddFrame(bs, &FrameOptions{Duration: 0x1000000}); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}
	got := m.FrameDuration(0)
	if got != 0xFFFFFF {
		t.Errorf("duration after AddFrame with overflow = %d, want %d", got, 0xFFFFFF)
	}
}

func TestAddFrameDurationNegativeClamping(t *testing.T) {
	bs := makeVP8Keyframe(10, 10)
	m := NewMuxer()
	if err := m.AddFrame(bs, &FrameOptions{Duration: -50}); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}
	got := m.FrameDuration(0)
	if got != 0 {
		t.Errorf("duration after AddFrame with negative = %d, want 0", got)
	}
}

func TestSetFrameDurationClamping(t *testing.T) {
	bs := makeVP8Keyframe(10, 10)
	m := NewMuxer()
	if err := m.AddFrame(bs, &FrameOptions{Duration: 100}); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}
	m.SetFrameDuration(0, 0x2000000)
	got := m.FrameDuration(0)
	if got != 0xFFFFFF {
		t.Errorf("duration after SetFrameDuration overflow = %d, want %d", got, 0xFFFFFF)
	}
}

func TestLoopCountRoundtrip(t *testing.T) {
	// Verify that a loop count of 0xFFFF survives mux -> parse roundtrip.
	frame := makeVP8Keyframe(10, 10)
	m := NewMuxer()
	m.SetLoopCount(0xFFFF)
	if err := m.AddFrame(frame, &FrameOptions{Duration: 100}); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}
	var buf bytes.Buffer
	if err := m.Assemble(&buf); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	p, err := container.NewParser(buf.Bytes())
	if err != nil {
		t.Fatalf("container.NewParser: %v", err)
	}
	if p.Features().LoopCount != 0xFFFF {
		t.Errorf("roundtrip loopCount = %d, want %d", p.Features().LoopCount, 0xFFFF)
	}
}

func TestDurationMaxRoundtrip(t *testing.T) {
	// Verify that a duration of 0xFFFFFF survives mux -> parse roundtrip.
	frame := makeVP8Keyframe(10, 10)
	m := NewMuxer()
	if err := m.AddFrame(frame, &FrameOptions{Duration: 0xFFFFFF}); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}
	var buf bytes.Buffer
	if err := m.Assemble(&buf); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	p, err := container.NewParser(buf.Bytes())
	if err != nil {
		t.Fatalf("container.NewParser: %v", err)
	}
	frames := p.Frames()
	if len(frames) != 1 {
		t.Fatalf("len(Frames) = %d, want 1", len(frames))
	}
	if frames[0].Duration != 0xFFFFFF {
		t.Errorf("roundtrip duration = %d, want %d", frames[0].Duration, 0xFFFFFF)
	}
}

// --- SetCanvasSize tests ---

// TestCanvasSizeExplicitTakesPriority verifies that when SetCanvasSize is called
// on the Muxer, the explicit dimensions are used in the VP8X chunk instead of
// the computed frame extent. This matches C libwebp behavior where the VP8X
// canvas size is authoritative.
func TestCanvasSizeExplicitTakesPriority(t *testing.T) {
	bs := makeVP8Keyframe(100, 80)
	m := NewMuxer()
	m.SetICCProfile([]byte{0x00}) // Force VP8X extended format.
	m.SetCanvasSize(200, 160)     // Larger than frame (100x80).
	if err := m.AddFrame(bs, nil); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}
	var buf bytes.Buffer
	if err := m.Assemble(&buf); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	// Parse back and verify the canvas size is 200x160, not 100x80.
	p, err := container.NewParser(buf.Bytes())
	if err != nil {
		t.Fatalf("container.NewParser: %v", err)
	}
	feat := p.Features()
	if feat.CanvasWidth != 200 || feat.CanvasHeight != 160 {
		t.Errorf("canvas = %dx%d, want 200x160", feat.CanvasWidth, feat.CanvasHeight)
	}
}

// TestCanvasSizeFallbackFromFrameExtent verifies that when SetCanvasSize is NOT
// called, the canvas size is computed from frame extents (backward compatible).
func TestCanvasSizeFallbackFromFrameExtent(t *testing.T) {
	bs := makeVP8Keyframe(100, 80)
	m := NewMuxer()
	m.SetICCProfile([]byte{0x00}) // Force VP8X extended format.
	// No SetCanvasSize call -- should fall back to frame extent.
	if err := m.AddFrame(bs, nil); err != nil {
		t.Fatalf("AddFrame: %v", err)
	}
	var buf bytes.Buffer
	if err := m.Assemble(&buf); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	p, err := container.NewParser(buf.Bytes())
	if err != nil {
		t.Fatalf("container.NewParser: %v", err)
	}
	feat := p.Features()
	if feat.Width != 100 || feat.Height != 80 {
		t.Errorf("canvas = %dx%d, want 100x80", feat.Width, feat.Height)
	}
}

// TestCanvasSizeSmallerThanFrameExtent verifies that when SetCanvasSize specifies
// a canvas smaller than the frame extent, the explicit canvas is still used.
// The validate() check will catch frames exceeding the canvas, but
// canvasSize() itself should return the explicit value.
func TestCanvasSizeSmallerThanFrameExtent(t *testing.T) {
	m := NewMuxer()
	m.SetCanvasSize(50, 40)
	// canvasSize should return the explicit value even though no frames exist yet.
	w, h := m.canvasSize()
	if w != 50 || h != 40 {
		t.Errorf("canvasSize = %dx%d, want 50x40", w, h)
	}
}

// TestCanvasSizeAnimationExplicit verifies that a canvas size set on the
// muxer of an animated file is written to the VP8X chunk, so the VP8X canvas
// reflects that size and not just the frame extent.
func TestCanvasSizeAnimationExplicit(t *testing.T) {
	bs1 := makeVP8Keyframe(50, 50)
	bs2 := makeVP8Keyframe(50, 50)
	m := NewMuxer()
	m.SetCanvasSize(100, 100) // Canvas larger than frames.
	if err := m.AddFrame(bs1, &FrameOptions{Duration: 100}); err != nil {
		t.Fatalf("AddFrame(0): %v", err)
	}
	if err := m.AddFrame(bs2, &FrameOptions{Duration: 100, OffsetX: 50, OffsetY: 50}); err != nil {
		t.Fatalf("AddFrame(1): %v", err)
	}
	var buf bytes.Buffer
	if err := m.Assemble(&buf); err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	p, err := container.NewParser(buf.Bytes())
	if err != nil {
		t.Fatalf("container.NewParser: %v", err)
	}
	feat := p.Features()
	if feat.Width != 100 || feat.Height != 100 {
		t.Errorf("canvas = %dx%d, want 100x100", feat.Width, feat.Height)
	}
}

// --- Test helpers ---

// buildANMFData constructs raw ANMF payload (16-byte header + sub-chunk).
func buildANMFData(offsetX, offsetY, width, height, duration int, blend BlendMode, dispose DisposeMode, subID ChunkID, subData []byte) []byte {
	var buf bytes.Buffer

	// 16-byte ANMF header.
	hdr := make([]byte, container.ANMFChunkSize)
	putLE24(hdr[0:3], offsetX/2)
	putLE24(hdr[3:6], offsetY/2)
	putLE24(hdr[6:9], width-1)
	putLE24(hdr[9:12], height-1)
	putLE24(hdr[12:15], duration)
	var flagByte byte
	if dispose == DisposeBackground {
		flagByte |= 0x01
	}
	if blend == BlendNone {
		flagByte |= 0x02
	}
	hdr[15] = flagByte
	buf.Write(hdr)

	// Sub-chunk: header + data.
	subHdr := make([]byte, container.ChunkHeaderSize)
	writeChunkHeader(subHdr, subID, uint32(len(subData)))
	buf.Write(subHdr)
	buf.Write(subData)
	if len(subData)%2 != 0 {
		buf.WriteByte(0)
	}

	return buf.Bytes()
}
