package avifcodec

import (
	"fmt"
	"testing"

	"github.com/deepteams/imagecodec/codec"
	"github.com/deepteams/imagecodec/frame"
	"github.com/deepteams/imagecodec/pixelmatrix"
)

// fakeAV1 is a test-only stand-in for a real AV1 codec: it round-trips a
// pixelmatrix.Matrix's raw samples through a tiny fixed header instead of
// an actual AV1 bitstream, so these tests exercise avifcodec's own
// container assembly/parsing (box.go/meta.go/sequence.go/avifcodec.go)
// without needing a real AV1 encoder/decoder wired in.
type fakeAV1 struct{}

func (fakeAV1) EncodeFrame(src *pixelmatrix.Matrix, quality, speed int, forceKeyframe bool) ([]byte, error) {
	w, h := src.Width(), src.Height()
	pt := src.PixelType()
	channels := pt.Channels()
	buf := make([]byte, 9, 9+w*h*channels)
	buf[0], buf[1], buf[2], buf[3] = byte(w>>24), byte(w>>16), byte(w>>8), byte(w)
	buf[4], buf[5], buf[6], buf[7] = byte(h>>24), byte(h>>16), byte(h>>8), byte(h)
	buf[8] = byte(channels)

	bpp := pt.BytesPerPixel()
	for y := 0; y < h; y++ {
		row := src.Row(y)
		for x := 0; x < w; x++ {
			px := row[x*bpp : x*bpp+bpp]
			switch pt {
			case pixelmatrix.Gray8:
				buf = append(buf, px[0])
			case pixelmatrix.BGR24:
				buf = append(buf, px[2], px[1], px[0])
			case pixelmatrix.BGRA32:
				buf = append(buf, px[2], px[1], px[0], px[3])
			}
		}
	}
	return buf, nil
}

func (fakeAV1) CodecConfig() []byte { return []byte{0xAA, 0xBB} }

func (fakeAV1) DecodeFrame(obu []byte) (*DecodedPicture, error) {
	if len(obu) < 9 {
		return nil, fmt.Errorf("fakeAV1: truncated frame")
	}
	w := int(obu[0])<<24 | int(obu[1])<<16 | int(obu[2])<<8 | int(obu[3])
	h := int(obu[4])<<24 | int(obu[5])<<16 | int(obu[6])<<8 | int(obu[7])
	channels := int(obu[8])
	p := obu[9:]

	n := w * h
	r := make([]uint16, n)
	g := make([]uint16, n)
	b := make([]uint16, n)
	var alpha []uint16
	if channels == 4 {
		alpha = make([]uint16, n)
	}
	idx := 0
	for i := 0; i < n; i++ {
		switch channels {
		case 1:
			v := uint16(p[idx])
			r[i], g[i], b[i] = v, v, v
			idx++
		case 3:
			r[i], g[i], b[i] = uint16(p[idx]), uint16(p[idx+1]), uint16(p[idx+2])
			idx += 3
		case 4:
			r[i], g[i], b[i] = uint16(p[idx]), uint16(p[idx+1]), uint16(p[idx+2])
			alpha[i] = uint16(p[idx+3])
			idx += 4
		}
	}
	return &DecodedPicture{Width: w, Height: h, BitDepth: 8, R: r, G: g, B: b, Alpha: alpha}, nil
}

func solidMatrix(t *testing.T, w, h int, pt pixelmatrix.PixelType, r, g, b, a uint8) *pixelmatrix.Matrix {
	t.Helper()
	m, err := pixelmatrix.Create(w, h, pt)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.SetFill(r, g, b, a)
	return m
}

func TestStillEncodeDecodeRoundTrip(t *testing.T) {
	src := solidMatrix(t, 16, 8, pixelmatrix.BGR24, 10, 20, 30, 255)
	dst := make([]byte, 16*1024)

	enc := NewEncoder(dst, fakeAV1{})
	n, err := enc.Encode(src, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := NewDecoder(dst[:n], fakeAV1{})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if dec.Width() != 16 || dec.Height() != 8 {
		t.Fatalf("dims = %dx%d, want 16x8", dec.Width(), dec.Height())
	}
	if dec.PixelType() != pixelmatrix.BGR24 {
		t.Fatalf("PixelType = %v, want BGR24", dec.PixelType())
	}

	out, err := pixelmatrix.Create(dec.Width(), dec.Height(), dec.PixelType())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := dec.DecodeInto(out); err != nil {
		t.Fatalf("DecodeInto: %v", err)
	}
	row := out.Row(0)
	if row[0] != 30 || row[1] != 20 || row[2] != 10 {
		t.Fatalf("pixel = %v, want BGR(30,20,10)", row[0:3])
	}
}

func TestStillEncodeDecodeRoundTripWithAlpha(t *testing.T) {
	src := solidMatrix(t, 4, 4, pixelmatrix.BGRA32, 1, 2, 3, 128)
	dst := make([]byte, 16*1024)

	enc := NewEncoder(dst, fakeAV1{})
	n, err := enc.Encode(src, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := NewDecoder(dst[:n], fakeAV1{})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if dec.PixelType() != pixelmatrix.BGRA32 {
		t.Fatalf("PixelType = %v, want BGRA32 (alpha auxiliary item present)", dec.PixelType())
	}

	out, err := pixelmatrix.Create(dec.Width(), dec.Height(), dec.PixelType())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := dec.DecodeInto(out); err != nil {
		t.Fatalf("DecodeInto: %v", err)
	}
	row := out.Row(0)
	if row[3] != 128 {
		t.Fatalf("alpha = %d, want 128", row[3])
	}
}

func TestStillEncoderBufferTooSmall(t *testing.T) {
	src := solidMatrix(t, 64, 64, pixelmatrix.BGR24, 1, 2, 3, 255)
	dst := make([]byte, 4)
	enc := NewEncoder(dst, fakeAV1{})
	_, err := enc.Encode(src, nil)
	if err == nil {
		t.Fatal("expected BufferTooSmall error")
	}
	ce, ok := err.(*codec.Error)
	if !ok || ce.Code != codec.BufferTooSmall {
		t.Fatalf("err = %v, want BufferTooSmall", err)
	}
}

func TestStillEncoderNullMatrix(t *testing.T) {
	enc := NewEncoder(make([]byte, 1024), fakeAV1{})
	if _, err := enc.Encode(nil, nil); err == nil {
		t.Fatal("expected NullMatrix error")
	}
}

func TestSequenceEncodeDecodeRoundTrip(t *testing.T) {
	frameA := solidMatrix(t, 8, 6, pixelmatrix.BGR24, 5, 6, 7, 255)
	frameB := solidMatrix(t, 8, 6, pixelmatrix.BGR24, 8, 9, 10, 255)

	dst := make([]byte, 64*1024)
	enc := NewAnimEncoder(dst, fakeAV1{}, 5)
	if err := enc.Write(frameA, 100, nil); err != nil {
		t.Fatalf("write frameA: %v", err)
	}
	if err := enc.Write(frameB, 150, nil); err != nil {
		t.Fatalf("write frameB: %v", err)
	}
	n, err := enc.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}

	dec, err := NewAnimDecoder(dst[:n], fakeAV1{})
	if err != nil {
		t.Fatalf("NewAnimDecoder: %v", err)
	}
	if dec.FrameCount() != 2 {
		t.Fatalf("FrameCount = %d, want 2", dec.FrameCount())
	}
	if dec.CanvasWidth() != 8 || dec.CanvasHeight() != 6 {
		t.Fatalf("dims = %dx%d, want 8x6", dec.CanvasWidth(), dec.CanvasHeight())
	}
	if dec.LoopCount() != 5 {
		t.Fatalf("LoopCount = %d, want 5", dec.LoopCount())
	}
	if dec.TotalDurationMS() != 250 {
		t.Fatalf("TotalDurationMS = %d, want 250", dec.TotalDurationMS())
	}

	out, err := pixelmatrix.Create(dec.CanvasWidth(), dec.CanvasHeight(), pixelmatrix.BGR24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var durations []int
	for dec.HasMoreFrames() {
		desc, err := dec.DecodeInto(out)
		if err != nil {
			t.Fatalf("DecodeInto: %v", err)
		}
		durations = append(durations, desc.DurationMS)
	}
	if len(durations) != 2 || durations[0] != 100 || durations[1] != 150 {
		t.Fatalf("durations = %v, want [100 150]", durations)
	}

	row := out.Row(0)
	if row[0] != 10 || row[1] != 9 || row[2] != 8 {
		t.Fatalf("final pixel = %v, want BGR(10,9,8) (last frame wins)", row[0:3])
	}
}

func TestSequenceDecodeIntoAfterDoneReturnsEOF(t *testing.T) {
	frameA := solidMatrix(t, 2, 2, pixelmatrix.BGR24, 1, 1, 1, 255)
	dst := make([]byte, 16*1024)
	enc := NewAnimEncoder(dst, fakeAV1{}, 0)
	if err := enc.Write(frameA, 10, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Write(frameA, 10, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := enc.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}

	dec, err := NewAnimDecoder(dst[:n], fakeAV1{})
	if err != nil {
		t.Fatalf("NewAnimDecoder: %v", err)
	}
	out, err := pixelmatrix.Create(2, 2, pixelmatrix.BGR24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for dec.HasMoreFrames() {
		if _, err := dec.DecodeInto(out); err != nil {
			t.Fatalf("DecodeInto: %v", err)
		}
	}
	if _, err := dec.DecodeInto(out); err == nil {
		t.Fatal("expected EOF error after all frames consumed")
	}
}

func TestSequenceDisposeBlendDeducedFromAlpha(t *testing.T) {
	opaque := solidMatrix(t, 4, 4, pixelmatrix.BGR24, 1, 2, 3, 255)
	withAlpha := solidMatrix(t, 4, 4, pixelmatrix.BGRA32, 1, 2, 3, 200)

	dst := make([]byte, 64*1024)
	enc := NewAnimEncoder(dst, fakeAV1{}, 0)
	if err := enc.Write(opaque, 10, nil); err != nil {
		t.Fatalf("write opaque: %v", err)
	}
	if err := enc.Write(withAlpha, 10, nil); err != nil {
		t.Fatalf("write withAlpha: %v", err)
	}
	n, err := enc.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}

	dec, err := NewAnimDecoder(dst[:n], fakeAV1{})
	if err != nil {
		t.Fatalf("NewAnimDecoder: %v", err)
	}
	out, err := pixelmatrix.Create(4, 4, pixelmatrix.BGRA32)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	desc, err := dec.DecodeInto(out)
	if err != nil {
		t.Fatalf("DecodeInto: %v", err)
	}
	if frame.Dispose(desc.Dispose) != frame.DisposeNone {
		t.Fatalf("Dispose = %v, want DisposeNone", desc.Dispose)
	}
	if frame.Blend(desc.Blend) != frame.BlendSource {
		t.Fatalf("Blend = %v, want BlendSource (no alpha track present)", desc.Blend)
	}
}

func TestSequenceUniformAlphaRoundTrip(t *testing.T) {
	frameA := solidMatrix(t, 4, 4, pixelmatrix.BGRA32, 1, 2, 3, 64)
	frameB := solidMatrix(t, 4, 4, pixelmatrix.BGRA32, 4, 5, 6, 192)

	dst := make([]byte, 64*1024)
	enc := NewAnimEncoder(dst, fakeAV1{}, 0)
	if err := enc.Write(frameA, 10, nil); err != nil {
		t.Fatalf("write frameA: %v", err)
	}
	if err := enc.Write(frameB, 10, nil); err != nil {
		t.Fatalf("write frameB: %v", err)
	}
	n, err := enc.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}

	dec, err := NewAnimDecoder(dst[:n], fakeAV1{})
	if err != nil {
		t.Fatalf("NewAnimDecoder: %v", err)
	}
	out, err := pixelmatrix.Create(4, 4, pixelmatrix.BGRA32)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	desc, err := dec.DecodeInto(out)
	if err != nil {
		t.Fatalf("DecodeInto frame 0: %v", err)
	}
	if frame.Blend(desc.Blend) != frame.BlendOver {
		t.Fatalf("Blend = %v, want BlendOver (alpha track present)", desc.Blend)
	}
	row := out.Row(0)
	if row[3] != 64 {
		t.Fatalf("alpha = %d, want 64", row[3])
	}

	desc, err = dec.DecodeInto(out)
	if err != nil {
		t.Fatalf("DecodeInto frame 1: %v", err)
	}
	row = out.Row(0)
	if row[3] != 192 {
		t.Fatalf("alpha = %d, want 192", row[3])
	}
}

func TestSequenceFlushBeforeWriteFails(t *testing.T) {
	dst := make([]byte, 1024)
	enc := NewAnimEncoder(dst, fakeAV1{}, 0)
	if _, err := enc.Flush(); err == nil {
		t.Fatal("expected error flushing with no frames written")
	}
}

func TestHDRSourceDetection(t *testing.T) {
	cases := []struct {
		name      string
		bitDepth  int
		primaries uint16
		transfer  uint16
		want      bool
	}{
		{"sdr 8-bit bt709", 8, 1, 1, false},
		{"10-bit bt2020 bt709-transfer", 10, primariesBT2020, 1, true},
		{"10-bit bt709 pq-transfer", 10, 1, transferPQ, true},
		{"10-bit bt709 hlg-transfer", 10, 1, transferHLG, true},
		{"10-bit bt709 sdr-transfer", 10, 1, 1, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := isHDRSource(c.bitDepth, c.primaries, c.transfer); got != c.want {
				t.Fatalf("isHDRSource(%d,%d,%d) = %v, want %v", c.bitDepth, c.primaries, c.transfer, got, c.want)
			}
		})
	}
}
