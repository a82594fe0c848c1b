package webpcodec

import (
	"reflect"
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
	src := solidMatrix(t, 16, 8, pixelmatrix.BGR24, 10, 20, 30, 255)

	dst := make([]byte, 64*1024)
	enc := NewEncoder(dst)
	n, err := enc.Encode(src, codec.Options{{Key: OptWebPQuality, Value: 90}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := NewDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if dec.Width() != 16 || dec.Height() != 8 {
		t.Fatalf("dims = %dx%d, want 16x8", dec.Width(), dec.Height())
	}
	if dec.PixelType() != pixelmatrix.BGR24 {
		t.Fatalf("PixelType = %v, want BGR24", dec.PixelType())
	}

	out, err := pixelmatrix.Create(16, 8, dec.PixelType())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := dec.DecodeInto(out); err != nil {
		t.Fatalf("DecodeInto: %v", err)
	}
}

func TestEncodeLosslessRoundTripAlpha(t *testing.T) {
	src := solidMatrix(t, 4, 4, pixelmatrix.BGRA32, 200, 100, 50, 128)

	dst := make([]byte, 64*1024)
	enc := NewEncoder(dst)
	n, err := enc.Encode(src, codec.Options{{Key: OptWebPQuality, Value: 101}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	dec, err := NewDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	if dec.PixelType() != pixelmatrix.BGRA32 {
		t.Fatalf("PixelType = %v, want BGRA32", dec.PixelType())
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
	var ce *codec.Error
	if !asCodecError(err, &ce) || ce.Code != codec.BufferTooSmall {
		t.Fatalf("err = %v, want BufferTooSmall", err)
	}
}

func TestAnimEncoderUpgradeAndFlush(t *testing.T) {
	frameA := solidMatrix(t, 8, 8, pixelmatrix.BGR24, 255, 0, 0, 255)
	frameB := solidMatrix(t, 8, 8, pixelmatrix.BGR24, 0, 255, 0, 255)

	dst := make([]byte, 256*1024)
	enc := NewAnimEncoder(dst, 0xFFFFFFFF, 0)

	if err := enc.Write(frameA, 100, nil); err != nil {
		t.Fatalf("write frameA: %v", err)
	}
	if enc.cursor.FrameCount() != 1 {
		t.Fatalf("FrameCount = %d, want 1", enc.cursor.FrameCount())
	}

	if err := enc.Write(frameB, 200, nil); err != nil {
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

	var delays []int
	out, err := pixelmatrix.Create(ad.CanvasWidth(), ad.CanvasHeight(), pixelmatrix.BGR24)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for ad.HasMoreFrames() {
		desc, err := ad.DecodeInto(out)
		if err != nil {
			t.Fatalf("DecodeInto: %v", err)
		}
		delays = append(delays, desc.DurationMS)
	}
	if !reflect.DeepEqual(delays, []int{100, 200}) {
		t.Fatalf("delays = %v, want [100 200]", delays)
	}
}

func TestAnimEncoderFlushBeforeWriteFails(t *testing.T) {
	dst := make([]byte, 1024)
	enc := NewAnimEncoder(dst, 0, 0)
	if _, err := enc.Flush(); err == nil {
		t.Fatal("expected error flushing with no frames written")
	}
}

func TestAnimEncoderSingleFrameStillStaysSimple(t *testing.T) {
	frameA := solidMatrix(t, 4, 4, pixelmatrix.BGR24, 1, 1, 1, 255)
	dst := make([]byte, 64*1024)
	enc := NewAnimEncoder(dst, 0, 0)
	if err := enc.Write(frameA, 50, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := enc.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	dec, err := NewDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewDecoder on single-frame still container: %v", err)
	}
	if dec.Width() != 4 || dec.Height() != 4 {
		t.Fatalf("dims = %dx%d, want 4x4", dec.Width(), dec.Height())
	}
}

func asCodecError(err error, out **codec.Error) bool {
	ce, ok := err.(*codec.Error)
	if ok {
		*out = ce
	}
	return ok
}
