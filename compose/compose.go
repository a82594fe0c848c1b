// Package compose implements the region composer: an
// alpha-blended or straight copy of a source matrix onto a rectangular
// region of a destination matrix, with bilinear resize when the source's
// dimensions differ from the requested region.
//
// The resize-then-blend loop shape is grounded on
// webpcodec/internal/dsp/upsample.go's chroma upsampler
// (UpsampleLinePairNRGBA), which walks destination rows and samples from
// lower-resolution source planes using the same kind of fixed neighbor
// lookup this package uses for bilinear taps.
package compose

import (
	"errors"

	"github.com/deepteams/imagecodec/pixelmatrix"
)

var ErrOutOfBounds = errors.New("compose: region exceeds destination bounds")

// Copy composes src onto dst at (xOffset, yOffset). The region must lie
// within dst's bounds; otherwise Copy returns ErrOutOfBounds and leaves dst
// unchanged. dst must be a 3-channel (BGR24) matrix. If src is 4-channel
// (BGRA32), each pixel is alpha-blended: dst = src·α + dst·(1−α). If src is
// 3-channel, an unblended copy is used. If src's dimensions differ from
// the destination region (regionW, regionH), src (and its alpha channel,
// if present) is bilinearly resized to the region size before blending.
func Copy(dst *pixelmatrix.Matrix, src *pixelmatrix.Matrix, xOffset, yOffset, regionW, regionH int) error {
	if dst.PixelType() != pixelmatrix.BGR24 {
		return errors.New("compose: destination must be 3-channel")
	}
	if xOffset < 0 || yOffset < 0 || xOffset+regionW > dst.Width() || yOffset+regionH > dst.Height() {
		return ErrOutOfBounds
	}

	resized := src
	if src.Width() != regionW || src.Height() != regionH {
		r, err := bilinearResize(src, regionW, regionH)
		if err != nil {
			return err
		}
		resized = r
	}

	switch resized.PixelType() {
	case pixelmatrix.BGR24:
		copyOpaque(dst, resized, xOffset, yOffset)
	case pixelmatrix.BGRA32:
		blendAlpha(dst, resized, xOffset, yOffset)
	default:
		return errors.New("compose: source must be 3- or 4-channel")
	}
	return nil
}

func copyOpaque(dst, src *pixelmatrix.Matrix, xOff, yOff int) {
	for y := 0; y < src.Height(); y++ {
		srcRow := src.Row(y)
		dstRow := dst.Row(yOff + y)
		copy(dstRow[xOff*3:xOff*3+src.Width()*3], srcRow)
	}
}

// blendAlpha applies dst = src·α + dst·(1−α) per pixel using AlphaOver.
func blendAlpha(dst, src *pixelmatrix.Matrix, xOff, yOff int) {
	for y := 0; y < src.Height(); y++ {
		srcRow := src.Row(y)
		dstRow := dst.Row(yOff + y)
		for x := 0; x < src.Width(); x++ {
			sp := srcRow[x*4 : x*4+4]
			dp := dstRow[(xOff+x)*3 : (xOff+x)*3+3]
			a := sp[3]
			for c := 0; c < 3; c++ {
				dp[c] = AlphaOver(sp[c], dp[c], a)
			}
		}
	}
}

// AlphaOver applies the standard fixed-point Over formula to a single
// channel: u = α·src, v = (255-α)·dst, output = (u+v+127)/255. This assumes
// the destination is always opaque, which holds for this package's region
// copy (copying onto an already-fully-rendered image) but not for
// compositing onto a destination that may itself be partially transparent,
// such as APNG's canvas — that case needs its own output-alpha computation
// and uses a different operator.
func AlphaOver(src, dst, alpha uint8) uint8 {
	u := int(alpha) * int(src)
	v := (255 - int(alpha)) * int(dst)
	return uint8((u + v + 127) / 255)
}

// bilinearResize produces a new matrix of src's pixel type, sized w×h,
// resampled from src using bilinear interpolation. For BGRA32 sources the
// alpha channel is resampled independently from the color channels, which
// this implementation satisfies naturally since all channels are interpolated
// from the same four neighbor pixels together.
func bilinearResize(src *pixelmatrix.Matrix, w, h int) (*pixelmatrix.Matrix, error) {
	dst, err := pixelmatrix.Create(w, h, src.PixelType())
	if err != nil {
		return nil, err
	}
	sw, sh := src.Width(), src.Height()
	bpp := src.PixelType().BytesPerPixel()

	xRatio := float64(sw) / float64(w)
	yRatio := float64(sh) / float64(h)

	for y := 0; y < h; y++ {
		sy := (float64(y) + 0.5) * yRatio - 0.5
		if sy < 0 {
			sy = 0
		}
		y0 := int(sy)
		y1 := y0 + 1
		if y1 >= sh {
			y1 = sh - 1
		}
		fy := sy - float64(y0)

		row0 := src.Row(y0)
		row1 := src.Row(y1)
		dstRow := dst.Row(y)

		for x := 0; x < w; x++ {
			sx := (float64(x) + 0.5) * xRatio - 0.5
			if sx < 0 {
				sx = 0
			}
			x0 := int(sx)
			x1 := x0 + 1
			if x1 >= sw {
				x1 = sw - 1
			}
			fx := sx - float64(x0)

			for c := 0; c < bpp; c++ {
				v00 := float64(row0[x0*bpp+c])
				v10 := float64(row0[x1*bpp+c])
				v01 := float64(row1[x0*bpp+c])
				v11 := float64(row1[x1*bpp+c])
				top := v00 + (v10-v00)*fx
				bot := v01 + (v11-v01)*fx
				v := top + (bot-top)*fy
				dstRow[x*bpp+c] = uint8(v + 0.5)
			}
		}
	}
	return dst, nil
}
