package jpegcodec

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

func TestEncodeDecodeRoundTripBaseline(t *testing.T) {
	src := solidMatrix(t, 32, 16, pixelmatrix.BGR24, 40, 90, 180, 255)

	dst := make([]byte, 128*1024)
	enc := NewEncoder(dst)
	n, err := enc.Encode(src, codec.Options{{Key: OptQuality, Value: 90}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := NewDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if dec.Width() != 32 || dec.Height() != 16 {
		t.Fatalf("dims = %dx%d, want 32x16", dec.Width(), dec.Height())
	}
	if dec.Orientation() != 1 {
		t.Fatalf("Orientation = %d, want 1 (no EXIF written)", dec.Orientation())
	}

	out, err := pixelmatrix.Create(dec.Width(), dec.Height(), dec.PixelType())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := dec.DecodeInto(out); err != nil {
		t.Fatalf("DecodeInto: %v", err)
	}
}

func TestEncodeProgressiveRoundTrip(t *testing.T) {
	src := solidMatrix(t, 24, 24, pixelmatrix.BGR24, 10, 200, 60, 255)

	dst := make([]byte, 128*1024)
	enc := NewEncoder(dst)
	n, err := enc.Encode(src, codec.Options{
		{Key: OptQuality, Value: 80},
		{Key: OptProgressive, Value: 1},
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := NewDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewDecoder on progressive output: %v", err)
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
	src := solidMatrix(t, 8, 8, pixelmatrix.BGR24, 5, 5, 5, 255)
	icc := make([]byte, 70000) // forces chunking across multiple APP2 segments
	for i := range icc {
		icc[i] = byte(i)
	}

	dst := make([]byte, 256*1024)
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
	if got != len(icc) {
		t.Fatalf("ICC length = %d, want %d", got, len(icc))
	}
	for i := range icc {
		if buf[i] != icc[i] {
			t.Fatalf("ICC byte %d = %d, want %d", i, buf[i], icc[i])
		}
	}
}

func TestEncoderGray8DiscardsToSingleChannel(t *testing.T) {
	src := solidMatrix(t, 4, 4, pixelmatrix.Gray8, 128, 128, 128, 255)
	dst := make([]byte, 32*1024)
	enc := NewEncoder(dst)
	n, err := enc.Encode(src, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	dec, err := NewDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if dec.PixelType() != pixelmatrix.Gray8 {
		t.Fatalf("PixelType = %v, want Gray8", dec.PixelType())
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

func TestEncoderRejectsNilMatrix(t *testing.T) {
	enc := NewEncoder(make([]byte, 1024))
	_, err := enc.Encode(nil, nil)
	ce, ok := err.(*codec.Error)
	if !ok || ce.Code != codec.NullMatrix {
		t.Fatalf("err = %v, want NullMatrix", err)
	}
}

func TestWalkMarkersStopsAtSOS(t *testing.T) {
	data := []byte{
		0xFF, 0xD8, // SOI
		0xFF, 0xE1, 0x00, 0x06, 'a', 'b', 'c', 'd', // APP1, 4-byte payload
		0xFF, 0xDA, 0x00, 0x02, // SOS (should halt the walk)
		0xFF, 0xE2, 0x00, 0x06, 'e', 'f', 'g', 'h', // never reached
	}
	segs := walkMarkers(data)
	if len(segs) != 1 {
		t.Fatalf("len(segs) = %d, want 1", len(segs))
	}
	if segs[0].marker != markerAPP1 {
		t.Fatalf("marker = %#x, want APP1", segs[0].marker)
	}
	if string(segs[0].payload) != "abcd" {
		t.Fatalf("payload = %q, want %q", segs[0].payload, "abcd")
	}
}
