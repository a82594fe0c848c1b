package pngcodec

import (
	"testing"

	"github.com/deepteams/imagecodec/codec"
	"github.com/deepteams/imagecodec/pixelmatrix"
)

func solidMatrix(t *testing.T, w, h int, pt pixelmatrix.PixelType, r, g, b, a uint8) *pixelmatrix.Matrix {
	t.Helper()
	m, err := pixelmatrix.Create(w, h, pt)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	m.SetFill(r, g, b, a)
	return m
}

func TestEncodeDecodeRoundTripOpaque(t *testing.T) {
	src := solidMatrix(t, 12, 9, pixelmatrix.BGR24, 10, 20, 30, 255)

	dst := make([]byte, 64*1024)
	enc := NewEncoder(dst)
	n, err := enc.Encode(src, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := NewDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if dec.Width() != 12 || dec.Height() != 9 {
		t.Fatalf("dims = %dx%d, want 12x9", dec.Width(), dec.Height())
	}

	out, err := pixelmatrix.Create(dec.Width(), dec.Height(), dec.PixelType())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := dec.DecodeInto(out); err != nil {
		t.Fatalf("DecodeInto: %v", err)
	}
}

func TestEncodeWithICCProfileRoundTrips(t *testing.T) {
	src := solidMatrix(t, 4, 4, pixelmatrix.BGRA32, 5, 6, 7, 200)
	icc := []byte("fake icc profile payload for round-trip testing")

	dst := make([]byte, 64*1024)
	enc := NewEncoder(dst)
	enc.SetICC(icc)
	n, err := enc.Encode(src, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := NewDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	buf := make([]byte, len(icc))
	got := dec.ICC(buf)
	if got != len(icc) || string(buf) != string(icc) {
		t.Fatalf("ICC = %q (%d bytes), want %q", buf[:got], got, icc)
	}
}

func TestEncoderBufferTooSmall(t *testing.T) {
	src := solidMatrix(t, 64, 64, pixelmatrix.BGR24, 1, 2, 3, 255)
	dst := make([]byte, 4)
	enc := NewEncoder(dst)
	_, err := enc.Encode(src, nil)
	if err == nil {
		t.Fatal("expected BufferTooSmall error")
	}
	ce, ok := err.(*codec.Error)
	if !ok || ce.Code != codec.BufferTooSmall {
		t.Fatalf("err = %v, want BufferTooSmall", err)
	}
}

func TestAPNGUpgradeAndDiffRect(t *testing.T) {
	frameA := solidMatrix(t, 8, 8, pixelmatrix.BGRA32, 255, 0, 0, 255)
	frameB := solidMatrix(t, 8, 8, pixelmatrix.BGRA32, 255, 0, 0, 255)
	// Change only the bottom-right quadrant in frame B.
	for y := 4; y < 8; y++ {
		row := frameB.Row(y)
		for x := 4; x < 8; x++ {
			px := row[x*4 : x*4+4]
			px[0], px[1], px[2], px[3] = 0, 255, 0, 255
		}
	}

	dst := make([]byte, 256*1024)
	enc := NewAnimEncoder(dst, 8, 8, 0, 0)
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

	ad, err := NewAnimDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewAnimDecoder: %v", err)
	}
	if ad.FrameCount() != 2 {
		t.Fatalf("FrameCount = %d, want 2", ad.FrameCount())
	}

	out, err := pixelmatrix.Create(ad.CanvasWidth(), ad.CanvasHeight(), pixelmatrix.BGRA32)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var durations []int
	for ad.HasMoreFrames() {
		desc, err := ad.DecodeInto(out)
		if err != nil {
			t.Fatalf("DecodeInto: %v", err)
		}
		durations = append(durations, desc.DurationMS)
	}
	if len(durations) != 2 {
		t.Fatalf("decoded %d frames, want 2", len(durations))
	}

	// After both frames, the bottom-right quadrant should be green and the
	// rest still red.
	row := out.Row(7)
	px := row[7*4 : 7*4+4]
	if px[0] != 0 || px[1] != 255 || px[2] != 0 {
		t.Fatalf("bottom-right pixel = %v, want green", px)
	}
	row0 := out.Row(0)
	px0 := row0[0:4]
	if px0[0] != 0 || px0[1] != 0 || px0[2] != 255 {
		t.Fatalf("top-left pixel = %v, want red", px0)
	}
}

func TestAPNGSingleFrameStaysStill(t *testing.T) {
	frameA := solidMatrix(t, 4, 4, pixelmatrix.BGR24, 9, 9, 9, 255)
	dst := make([]byte, 64*1024)
	enc := NewAnimEncoder(dst, 4, 4, 0, 0)
	if err := enc.Write(frameA, 50, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := enc.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// A single-frame APNG encode degrades to a plain still PNG: it must
	// decode via the still Decoder, not AnimDecoder.
	dec, err := NewDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewDecoder on single-frame output: %v", err)
	}
	if dec.Width() != 4 || dec.Height() != 4 {
		t.Fatalf("dims = %dx%d, want 4x4", dec.Width(), dec.Height())
	}
}

func TestCompositeOverStraightOntoTransparentDest(t *testing.T) {
	// A semi-transparent source blended onto a fully transparent canvas
	// pixel must come out as exactly the source's own color and alpha.
	// compose.AlphaOver (which assumes an opaque destination) would instead
	// give roughly half the correct value here.
	r, g, b, a := compositeOverStraight(200, 100, 50, 128, 0, 0, 0, 0)
	if r != 200 || g != 100 || b != 50 || a != 128 {
		t.Fatalf("composite over transparent dest = (%d,%d,%d,%d), want (200,100,50,128)", r, g, b, a)
	}
}

func TestCompositeOverStraightOntoSemiTransparentDest(t *testing.T) {
	sr, sg, sb, sa := uint8(255), uint8(0), uint8(0), uint8(128)
	dr, dg, db, da := uint8(0), uint8(0), uint8(255), uint8(128)
	r, _, b, a := compositeOverStraight(sr, sg, sb, sa, dr, dg, db, da)
	// a_out = a_src + a_dst*(1-a_src) ~= 128 + 128*127/255 ~= 192.
	if a < 188 || a > 196 {
		t.Fatalf("outA = %d, want ~192", a)
	}
	if r <= b {
		t.Fatalf("r=%d b=%d, want source-dominant red over destination blue", r, b)
	}
}

func TestCompositeOverStraightZeroAlphaOut(t *testing.T) {
	r, g, b, a := compositeOverStraight(0, 0, 0, 0, 0, 0, 0, 0)
	if r != 0 || g != 0 || b != 0 || a != 0 {
		t.Fatalf("fully transparent over fully transparent = (%d,%d,%d,%d), want all zero", r, g, b, a)
	}
}

func TestAPNGFlushBeforeWriteFails(t *testing.T) {
	dst := make([]byte, 1024)
	enc := NewAnimEncoder(dst, 4, 4, 0, 0)
	if _, err := enc.Flush(); err == nil {
		t.Fatal("expected error flushing with no frames written")
	}
}
