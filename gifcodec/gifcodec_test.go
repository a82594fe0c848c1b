package gifcodec

import (
	"testing"

	"github.com/deepteams/imagecodec/codec"
	"github.com/deepteams/imagecodec/frame"
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

func TestEncodeDecodeRoundTripTwoFrames(t *testing.T) {
	frameA := solidMatrix(t, 10, 6, pixelmatrix.BGR24, 255, 0, 0, 255)
	frameB := solidMatrix(t, 10, 6, pixelmatrix.BGR24, 0, 255, 0, 255)

	dst := make([]byte, 128*1024)
	enc := NewAnimEncoder(dst, 3)
	if err := enc.Write(frameA, 100, nil); err != nil {
		t.Fatalf("write frameA: %v", err)
	}
	if err := enc.Write(frameB, 200, nil); err != nil {
		t.Fatalf("write frameB: %v", err)
	}
	n, err := enc.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}

	dec, err := NewAnimDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewAnimDecoder: %v", err)
	}
	if dec.FrameCount() != 2 {
		t.Fatalf("FrameCount = %d, want 2", dec.FrameCount())
	}
	if dec.CanvasWidth() != 10 || dec.CanvasHeight() != 6 {
		t.Fatalf("dims = %dx%d, want 10x6", dec.CanvasWidth(), dec.CanvasHeight())
	}
	// loopCount 3 round-trips through GIF's loop-count field as-is.
	if dec.LoopCount() != 3 {
		t.Fatalf("LoopCount = %d, want 3", dec.LoopCount())
	}

	out, err := pixelmatrix.Create(dec.CanvasWidth(), dec.CanvasHeight(), pixelmatrix.BGRA32)
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
	if len(durations) != 2 {
		t.Fatalf("decoded %d frames, want 2", len(durations))
	}
	// GIF delays are quantized to centiseconds, so 100ms/200ms survive exactly.
	if durations[0] != 100 || durations[1] != 200 {
		t.Fatalf("durations = %v, want [100 200]", durations)
	}

	row := out.Row(0)
	if row[0] != 0 || row[1] != 255 || row[2] != 0 {
		t.Fatalf("final pixel = %v, want green (last frame wins)", row[0:4])
	}
}

func TestLoopCountInfiniteRoundTrips(t *testing.T) {
	frameA := solidMatrix(t, 4, 4, pixelmatrix.BGR24, 1, 2, 3, 255)
	frameB := solidMatrix(t, 4, 4, pixelmatrix.BGR24, 4, 5, 6, 255)

	dst := make([]byte, 64*1024)
	enc := NewAnimEncoder(dst, 0)
	if err := enc.Write(frameA, 50, nil); err != nil {
		t.Fatalf("write frameA: %v", err)
	}
	if err := enc.Write(frameB, 50, nil); err != nil {
		t.Fatalf("write frameB: %v", err)
	}
	n, err := enc.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}

	dec, err := NewAnimDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewAnimDecoder: %v", err)
	}
	if dec.LoopCount() != 0 {
		t.Fatalf("LoopCount = %d, want 0 (infinite)", dec.LoopCount())
	}
}

func TestDisposalBackgroundClearsRegion(t *testing.T) {
	frameA := solidMatrix(t, 4, 4, pixelmatrix.BGRA32, 255, 0, 0, 255)
	dst := make([]byte, 64*1024)
	enc := NewAnimEncoder(dst, 0)
	if err := enc.Write(frameA, 30, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Write(frameA, 30, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	n, err := enc.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}

	dec, err := NewAnimDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewAnimDecoder: %v", err)
	}
	out, err := pixelmatrix.Create(dec.CanvasWidth(), dec.CanvasHeight(), pixelmatrix.BGRA32)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	desc, err := dec.DecodeInto(out)
	if err != nil {
		t.Fatalf("DecodeInto: %v", err)
	}
	if frame.Dispose(desc.Dispose) != frame.DisposeNone {
		t.Fatalf("Dispose = %v, want DisposeNone (gif.EncodeAll always uses DisposalNone)", desc.Dispose)
	}
}

func TestEncoderBufferTooSmall(t *testing.T) {
	src := solidMatrix(t, 64, 64, pixelmatrix.BGR24, 1, 2, 3, 255)
	dst := make([]byte, 4)
	enc := NewAnimEncoder(dst, 0)
	if err := enc.Write(src, 100, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := enc.Flush()
	if err == nil {
		t.Fatal("expected BufferTooSmall error")
	}
	ce, ok := err.(*codec.Error)
	if !ok || ce.Code != codec.BufferTooSmall {
		t.Fatalf("err = %v, want BufferTooSmall", err)
	}
}

func TestFlushBeforeWriteFails(t *testing.T) {
	dst := make([]byte, 1024)
	enc := NewAnimEncoder(dst, 0)
	if _, err := enc.Flush(); err == nil {
		t.Fatal("expected error flushing with no frames written")
	}
}

func TestDecodeIntoAfterDoneReturnsEOF(t *testing.T) {
	frameA := solidMatrix(t, 2, 2, pixelmatrix.BGR24, 9, 9, 9, 255)
	dst := make([]byte, 16*1024)
	enc := NewAnimEncoder(dst, 0)
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

	dec, err := NewAnimDecoder(dst[:n])
	if err != nil {
		t.Fatalf("NewAnimDecoder: %v", err)
	}
	out, err := pixelmatrix.Create(dec.CanvasWidth(), dec.CanvasHeight(), pixelmatrix.BGRA32)
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

func TestQuantizeRespectsNumColorsOption(t *testing.T) {
	src := solidMatrix(t, 8, 8, pixelmatrix.BGR24, 20, 40, 60, 255)
	dst := make([]byte, 64*1024)
	enc := NewAnimEncoder(dst, 0)
	opts := codec.Options{{Key: OptNumColors, Value: 2}}
	if err := enc.Write(src, 100, opts); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Write(src, 100, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := enc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(enc.images[0].Palette) != 2 {
		t.Fatalf("palette size = %d, want 2", len(enc.images[0].Palette))
	}
}
