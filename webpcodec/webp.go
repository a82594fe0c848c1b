package webpcodec

import (
	"fmt"
	"image"

	"github.com/deepteams/imagecodec/webpcodec/internal/container"
	"github.com/deepteams/imagecodec/webpcodec/internal/dsp"
	"github.com/deepteams/imagecodec/webpcodec/internal/lossless"
	"github.com/deepteams/imagecodec/webpcodec/internal/lossy"
)

// encodeFrameForAnimation encodes a single animation frame as a bare VP8 or
// VP8L bitstream (no RIFF framing) for AnimEncoder.Write, which wraps the
// result in an ANMF chunk via mux.Muxer itself.
func encodeFrameForAnimation(img image.Image, lossless bool, quality int) ([]byte, error) {
	opts := &EncoderOptions{Lossless: lossless, Quality: float32(quality), Method: 4}
	if lossless {
		bs, _, err := encodeLossless(img, opts)
		return bs, err
	}
	bs, _, err := encodeLossy(img, opts)
	return bs, err
}

// decodeFrame decodes a single image frame.
func decodeFrame(frame container.FrameInfo) (image.Image, error) {
	if frame.IsLossless {
		return decodeLossless(frame.Payload)
	}
	return decodeLossy(frame.Payload, frame.AlphaData)
}

// decodeLossless decodes a VP8L lossless bitstream.
func decodeLossless(data []byte) (image.Image, error) {
	img, err := lossless.DecodeVP8L(data)
	if err != nil {
		return nil, fmt.Errorf("webp: lossless decode: %w", err)
	}
	return img, nil
}

// decodeLossy decodes a VP8 lossy bitstream.
// Without alpha data it returns *image.YCbCr (4:2:0) — no colour-space
// conversion needed, just a plane copy.  With alpha it falls back to
// *image.NRGBA using fancy chroma upsampling.
func decodeLossy(data []byte, alphaData []byte) (image.Image, error) {
	dec, width, height, yPlane, yStride, uPlane, vPlane, uvStride, err := lossy.DecodeFrame(data)
	if err != nil {
		return nil, fmt.Errorf("webp: lossy decode: %w", err)
	}
	defer lossy.ReleaseDecoder(dec)

	// Decode alpha plane if present.
	var alphaPlane []byte
	if len(alphaData) > 0 {
		alphaPlane, err = lossy.DecodeAlpha(alphaData, width, height)
		if err != nil {
			return nil, fmt.Errorf("webp: alpha decode: %w", err)
		}
	}

	// Fast path: no alpha → return *image.YCbCr directly.
	if alphaPlane == nil {
		return buildYCbCr(width, height, yPlane, yStride, uPlane, vPlane, uvStride), nil
	}

	// Slow path: alpha present → NRGBA with fancy chroma upsampling.
	return buildNRGBA(width, height, yPlane, yStride, uPlane, vPlane, uvStride, alphaPlane), nil
}

// buildYCbCr copies the decoder's Y/U/V cache planes into an image.YCbCr.
// The decoder's slab is returned to the pool after this function, so the
// data must be copied out.
func buildYCbCr(width, height int, yPlane []byte, yStride int, uPlane, vPlane []byte, uvStride int) *image.YCbCr {
	chromaH := (height + 1) / 2

	yLen := height * yStride
	cLen := chromaH * uvStride
	buf := make([]byte, yLen+2*cLen)

	copy(buf[:yLen], yPlane[:yLen])
	copy(buf[yLen:yLen+cLen], uPlane[:cLen])
	copy(buf[yLen+cLen:], vPlane[:cLen])

	return &image.YCbCr{
		Y:              buf[:yLen],
		Cb:             buf[yLen : yLen+cLen],
		Cr:             buf[yLen+cLen:],
		YStride:        yStride,
		CStride:        uvStride,
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, width, height),
	}
}

// buildNRGBA constructs an *image.NRGBA from raw YUV planes + alpha using
// the diamond-shaped 4-tap fancy upsampler (FANCY_UPSAMPLING from libwebp).
func buildNRGBA(width, height int, yPlane []byte, yStride int, uPlane, vPlane []byte, uvStride int, alphaPlane []byte) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	yRow := func(row int) []byte {
		off := row * yStride
		return yPlane[off : off+width]
	}
	uRow := func(row int) []byte {
		off := row * uvStride
		return uPlane[off : off+(width+1)/2]
	}
	vRow := func(row int) []byte {
		off := row * uvStride
		return vPlane[off : off+(width+1)/2]
	}
	aRow := func(row int) []byte {
		if alphaPlane == nil {
			return nil
		}
		off := row * width
		return alphaPlane[off : off+width]
	}
	dstRow := func(row int) []byte {
		off := row * img.Stride
		return img.Pix[off : off+width*4]
	}

	if height == 1 {
		dsp.UpsampleLinePairNRGBA(
			yRow(0), nil, uRow(0), vRow(0), uRow(0), vRow(0),
			dstRow(0), nil, aRow(0), nil, width,
		)
		return img
	}

	// Row 0: mirror chroma.
	dsp.UpsampleLinePairNRGBA(
		yRow(0), nil, uRow(0), vRow(0), uRow(0), vRow(0),
		dstRow(0), nil, aRow(0), nil, width,
	)

	// Overlapping pairs.
	y := 0
	for y+2 < height {
		chromaTop := y / 2
		chromaBot := chromaTop + 1
		dsp.UpsampleLinePairNRGBA(
			yRow(y+1), yRow(y+2),
			uRow(chromaTop), vRow(chromaTop),
			uRow(chromaBot), vRow(chromaBot),
			dstRow(y+1), dstRow(y+2),
			aRow(y+1), aRow(y+2),
			width,
		)
		y += 2
	}

	// Last row for even-height images.
	if height&1 == 0 {
		lastChroma := (height - 1) / 2
		dsp.UpsampleLinePairNRGBA(
			yRow(height-1), nil,
			uRow(lastChroma), vRow(lastChroma),
			uRow(lastChroma), vRow(lastChroma),
			dstRow(height-1), nil,
			aRow(height-1), nil,
			width,
		)
	}

	return img
}
