package imagecodec

import (
	"testing"

	"github.com/deepteams/imagecodec/jpegcodec"
	"github.com/deepteams/imagecodec/pixelmatrix"
	"github.com/deepteams/imagecodec/pngcodec"
	"github.com/deepteams/imagecodec/sniff"
	"github.com/deepteams/imagecodec/webpcodec"
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

func TestOpenDecoderDispatchesStillFormats(t *testing.T) {
	cases := []struct {
		name   string
		format sniff.Format
		encode func(src *pixelmatrix.Matrix, dst []byte) (int, error)
	}{
		{"jpeg", sniff.JPEG, func(src *pixelmatrix.Matrix, dst []byte) (int, error) {
			return jpegcodec.NewEncoder(dst).Encode(src, nil)
		}},
		{"png", sniff.PNG, func(src *pixelmatrix.Matrix, dst []byte) (int, error) {
			return pngcodec.NewEncoder(dst).Encode(src, nil)
		}},
		{"webp", sniff.WebP, func(src *pixelmatrix.Matrix, dst []byte) (int, error) {
			return webpcodec.NewEncoder(dst).Encode(src, nil)
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			src := solidMatrix(t, 16, 12, pixelmatrix.BGR24, 1, 2, 3, 255)
			buf := make([]byte, 256*1024)
			n, err := c.encode(src, buf)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}

			still, anim, format, err := OpenDecoder(buf[:n], AV1Codec{})
			if err != nil {
				t.Fatalf("OpenDecoder: %v", err)
			}
			if format != c.format {
				t.Fatalf("format = %v, want %v", format, c.format)
			}
			if anim != nil {
				t.Fatal("expected a still decoder, got an animation decoder")
			}
			if still == nil {
				t.Fatal("expected a still decoder, got nil")
			}
			if still.Width() != 16 || still.Height() != 12 {
				t.Fatalf("dims = %dx%d, want 16x12", still.Width(), still.Height())
			}
		})
	}
}

func TestOpenDecoderDispatchesAnimatedFormats(t *testing.T) {
	t.Run("gif", func(t *testing.T) {
		frameA := solidMatrix(t, 8, 8, pixelmatrix.BGR24, 10, 10, 10, 255)
		buf := make([]byte, 256*1024)
		enc, err := NewAnimationEncoder(sniff.GIF, buf, AnimationOptions{LoopCount: 0}, AV1Codec{})
		if err != nil {
			t.Fatalf("NewAnimationEncoder: %v", err)
		}
		if err := enc.Write(frameA, 50, nil); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := enc.Write(frameA, 50, nil); err != nil {
			t.Fatalf("Write: %v", err)
		}
		n, err := enc.Flush()
		if err != nil {
			t.Fatalf("Flush: %v", err)
		}

		still, anim, format, err := OpenDecoder(buf[:n], AV1Codec{})
		if err != nil {
			t.Fatalf("OpenDecoder: %v", err)
		}
		if format != sniff.GIF {
			t.Fatalf("format = %v, want gif", format)
		}
		if still != nil {
			t.Fatal("expected an animation decoder, got a still decoder")
		}
		if anim == nil || anim.FrameCount() != 2 {
			t.Fatalf("anim = %v, want 2 frames", anim)
		}
	})

	t.Run("png apng", func(t *testing.T) {
		frameA := solidMatrix(t, 6, 6, pixelmatrix.BGRA32, 1, 2, 3, 255)
		buf := make([]byte, 256*1024)
		enc, err := NewAnimationEncoder(sniff.PNG, buf, AnimationOptions{Width: 6, Height: 6, LoopCount: 0}, AV1Codec{})
		if err != nil {
			t.Fatalf("NewAnimationEncoder: %v", err)
		}
		if err := enc.Write(frameA, 40, nil); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := enc.Write(frameA, 40, nil); err != nil {
			t.Fatalf("Write: %v", err)
		}
		n, err := enc.Flush()
		if err != nil {
			t.Fatalf("Flush: %v", err)
		}

		still, anim, format, err := OpenDecoder(buf[:n], AV1Codec{})
		if err != nil {
			t.Fatalf("OpenDecoder: %v", err)
		}
		if format != sniff.PNG {
			t.Fatalf("format = %v, want png", format)
		}
		if still != nil {
			t.Fatal("expected an animation decoder for an APNG file, got a still decoder")
		}
		if anim == nil || anim.FrameCount() != 2 {
			t.Fatalf("anim = %v, want 2 frames", anim)
		}
	})
}

func TestOpenDecoderUnknownFormat(t *testing.T) {
	_, _, format, err := OpenDecoder([]byte("not an image"), AV1Codec{})
	if err == nil {
		t.Fatal("expected ErrUnknownFormat")
	}
	if format != sniff.Unknown {
		t.Fatalf("format = %v, want Unknown", format)
	}
}

func TestOpenDecoderAVIFWithoutCodecFails(t *testing.T) {
	ftypAVIF := []byte{
		0, 0, 0, 20, 'f', 't', 'y', 'p',
		'a', 'v', 'i', 'f', 0, 0, 0, 0,
		'm', 'i', 'f', '1',
	}
	_, _, format, err := OpenDecoder(ftypAVIF, AV1Codec{})
	if err != ErrAVIFCodecMissing {
		t.Fatalf("err = %v, want ErrAVIFCodecMissing", err)
	}
	if format != sniff.AVIF {
		t.Fatalf("format = %v, want avif", format)
	}
}

func TestNewStillEncoderUnknownFormat(t *testing.T) {
	if _, err := NewStillEncoder(sniff.GIF, make([]byte, 16), AV1Codec{}); err == nil {
		t.Fatal("expected an error constructing a still encoder for GIF")
	}
}

func TestNewAnimationEncoderJPEGFails(t *testing.T) {
	_, err := NewAnimationEncoder(sniff.JPEG, make([]byte, 16), AnimationOptions{}, AV1Codec{})
	if err == nil {
		t.Fatal("expected ErrNoAnimatedEncoder")
	}
}
