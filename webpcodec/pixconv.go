package webpcodec

import (
	"fmt"
	"image"
	"image/color"

	"github.com/deepteams/imagecodec/pixelmatrix"
)

// fillMatrixFromImage copies img's pixels into dst, converting to dst's
// pixel type (BGR24 or BGRA32). dst must already be sized to img's bounds;
// this mirrors the buildNRGBA/buildYCbCr pattern of writing directly into
// a pre-allocated destination rather than returning a new image,
// generalized from image.Image to the pixel-buffer abstraction.
func fillMatrixFromImage(dst *pixelmatrix.Matrix, img image.Image) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > dst.Width() || h > dst.Height() {
		return fmt.Errorf("webpcodec: decoded %dx%d exceeds destination %dx%d", w, h, dst.Width(), dst.Height())
	}

	switch dst.PixelType() {
	case pixelmatrix.BGR24:
		if nrgba, ok := img.(*image.NRGBA); ok {
			for y := 0; y < h; y++ {
				srcOff := y * nrgba.Stride
				row := dst.Row(y)
				for x := 0; x < w; x++ {
					si := srcOff + x*4
					row[x*3+0] = nrgba.Pix[si+2]
					row[x*3+1] = nrgba.Pix[si+1]
					row[x*3+2] = nrgba.Pix[si+0]
				}
			}
			return nil
		}
		if ycbcr, ok := img.(*image.YCbCr); ok {
			fillBGRFromYCbCr(dst, ycbcr)
			return nil
		}
		for y := 0; y < h; y++ {
			row := dst.Row(y)
			for x := 0; x < w; x++ {
				r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				row[x*3+0] = byte(bl >> 8)
				row[x*3+1] = byte(g >> 8)
				row[x*3+2] = byte(r >> 8)
			}
		}
		return nil
	case pixelmatrix.BGRA32:
		for y := 0; y < h; y++ {
			row := dst.Row(y)
			for x := 0; x < w; x++ {
				nc := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				row[x*4+0] = nc.B
				row[x*4+1] = nc.G
				row[x*4+2] = nc.R
				row[x*4+3] = nc.A
			}
		}
		return nil
	default:
		return fmt.Errorf("webpcodec: unsupported destination pixel type %s", dst.PixelType())
	}
}

func fillBGRFromYCbCr(dst *pixelmatrix.Matrix, ycbcr *image.YCbCr) {
	w, h := ycbcr.Rect.Dx(), ycbcr.Rect.Dy()
	for y := 0; y < h; y++ {
		yi := y * ycbcr.YStride
		ci := (y >> 1) * ycbcr.CStride
		row := dst.Row(y)
		for x := 0; x < w; x++ {
			yy := int32(ycbcr.Y[yi+x])
			cb := int32(ycbcr.Cb[ci+(x>>1)]) - 128
			cr := int32(ycbcr.Cr[ci+(x>>1)]) - 128
			r := clamp8(yy + (91881*cr+32768)>>16)
			g := clamp8(yy - (22554*cb+46802*cr+32768)>>16)
			bl := clamp8(yy + (116130*cb+32768)>>16)
			row[x*3+0] = bl
			row[x*3+1] = g
			row[x*3+2] = r
		}
	}
}

func clamp8(v int32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// matrixToNRGBA copies src (BGR24 or BGRA32) into a freshly allocated
// *image.NRGBA, the image.Image type this package's own encode path consumes.
func matrixToNRGBA(src *pixelmatrix.Matrix) *image.NRGBA {
	w, h := src.Width(), src.Height()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	switch src.PixelType() {
	case pixelmatrix.BGR24:
		for y := 0; y < h; y++ {
			row := src.Row(y)
			di := y * img.Stride
			for x := 0; x < w; x++ {
				si := x * 3
				img.Pix[di+x*4+0] = row[si+2]
				img.Pix[di+x*4+1] = row[si+1]
				img.Pix[di+x*4+2] = row[si+0]
				img.Pix[di+x*4+3] = 255
			}
		}
	case pixelmatrix.BGRA32:
		for y := 0; y < h; y++ {
			row := src.Row(y)
			di := y * img.Stride
			for x := 0; x < w; x++ {
				si := x * 4
				img.Pix[di+x*4+0] = row[si+2]
				img.Pix[di+x*4+1] = row[si+1]
				img.Pix[di+x*4+2] = row[si+0]
				img.Pix[di+x*4+3] = row[si+3]
			}
		}
	}
	return img
}
