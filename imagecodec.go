// Package imagecodec is the module's root dispatch point:
// sniff a buffer's format, then construct the per-format decoder or encoder
// that knows how to handle it. Every concrete codec lives in its own
// package (jpegcodec, pngcodec, gifcodec, webpcodec, avifcodec); this
// package only wires sniff.Sniff's result to the right constructor, mirroring
// the way image.Decode dispatches over image.RegisterFormat entries except
// that here the registry is a fixed switch rather than a runtime table,
// since the module supports a closed set of five formats.
package imagecodec

import (
	"errors"
	"fmt"

	"github.com/deepteams/imagecodec/avifcodec"
	"github.com/deepteams/imagecodec/codec"
	"github.com/deepteams/imagecodec/gifcodec"
	"github.com/deepteams/imagecodec/jpegcodec"
	"github.com/deepteams/imagecodec/pngcodec"
	"github.com/deepteams/imagecodec/sniff"
	"github.com/deepteams/imagecodec/webpcodec"
)

var (
	// ErrUnknownFormat is returned when Sniff cannot classify the input.
	ErrUnknownFormat = errors.New("imagecodec: unrecognized image format")
	// ErrAVIFCodecMissing is returned when AVIF dispatch is attempted
	// without an AV1Codec (AVIF is the one format this module does not
	// implement a bitstream codec for itself; see avifcodec's doc comment).
	ErrAVIFCodecMissing = errors.New("imagecodec: AVIF support requires an AV1Codec")
	// ErrNoAnimatedEncoder is returned for NewAnimationEncoder(sniff.JPEG, ...):
	// JPEG has no animated form.
	ErrNoAnimatedEncoder = errors.New("imagecodec: format has no animated encoder")
)

// AV1Codec bundles the AV1 bitstream encode/decode implementation AVIF
// dispatch delegates to. Every other format's bitstream codec is available
// without caller input (jpegcodec uses image/jpeg and progjpeg, pngcodec
// image/png, gifcodec image/gif, webpcodec its own VP8/VP8L), so only AVIF
// needs a caller-supplied implementation. Leave a field nil to disable that half of AVIF support;
// Open*/New* then fail with ErrAVIFCodecMissing rather than panicking.
type AV1Codec struct {
	Decoder avifcodec.AV1Decoder
	Encoder avifcodec.AV1Encoder
}

// OpenDecoder sniffs data's format and constructs the matching decoder.
// Exactly one of the two return values is non-nil: still formats (JPEG,
// and still PNG/WebP/AVIF) return a codec.StillDecoder; GIF and animated
// PNG/WebP/AVIF return a codec.AnimationDecoder. Where a format's
// container can hold either shape (PNG, WebP, AVIF), this tries the
// animated constructor first and falls back to the still one, since each
// format's own animated constructor already fails cleanly on a non-animated
// file (pngcodec.NewAnimDecoder on a missing acTL, webpcodec.NewAnimDecoder
// on !Features.HasAnim, avifcodec.NewAnimDecoder on a missing "avis" brand).
func OpenDecoder(data []byte, av1 AV1Codec) (codec.StillDecoder, codec.AnimationDecoder, sniff.Format, error) {
	format := sniff.Sniff(data)
	switch format {
	case sniff.JPEG:
		d, err := jpegcodec.NewDecoder(data)
		if err != nil {
			return nil, nil, format, err
		}
		return d, nil, format, nil

	case sniff.PNG:
		if ad, err := pngcodec.NewAnimDecoder(data); err == nil {
			return nil, ad, format, nil
		}
		d, err := pngcodec.NewDecoder(data)
		if err != nil {
			return nil, nil, format, err
		}
		return d, nil, format, nil

	case sniff.GIF:
		ad, err := gifcodec.NewAnimDecoder(data)
		if err != nil {
			return nil, nil, format, err
		}
		return nil, ad, format, nil

	case sniff.WebP:
		if ad, err := webpcodec.NewAnimDecoder(data); err == nil {
			return nil, ad, format, nil
		}
		d, err := webpcodec.NewDecoder(data)
		if err != nil {
			return nil, nil, format, err
		}
		return d, nil, format, nil

	case sniff.AVIF:
		if av1.Decoder == nil {
			return nil, nil, format, ErrAVIFCodecMissing
		}
		if ad, err := avifcodec.NewAnimDecoder(data, av1.Decoder); err == nil {
			return nil, ad, format, nil
		}
		d, err := avifcodec.NewDecoder(data, av1.Decoder)
		if err != nil {
			return nil, nil, format, err
		}
		return d, nil, format, nil

	default:
		return nil, nil, format, ErrUnknownFormat
	}
}

// NewStillEncoder constructs the still-image encoder for format, writing
// into dst. GIF has no still encoder (use NewAnimationEncoder with a
// single Write+Flush for a one-frame GIF instead).
func NewStillEncoder(format sniff.Format, dst []byte, av1 AV1Codec) (codec.StillEncoder, error) {
	switch format {
	case sniff.JPEG:
		return jpegcodec.NewEncoder(dst), nil
	case sniff.PNG:
		return pngcodec.NewEncoder(dst), nil
	case sniff.WebP:
		return webpcodec.NewEncoder(dst), nil
	case sniff.AVIF:
		if av1.Encoder == nil {
			return nil, ErrAVIFCodecMissing
		}
		return avifcodec.NewEncoder(dst, av1.Encoder), nil
	default:
		return nil, fmt.Errorf("imagecodec: %w: %s", ErrUnknownFormat, format)
	}
}

// AnimationOptions bundles the animation-level parameters the per-format
// animated-encoder constructors need. Not every field applies to every
// format: Width/Height is only read by pngcodec (APNG's ihdr needs a
// canvas size up front); BackgroundColor is only read by webpcodec (GIF's
// own global-color-table background applies instead, and APNG has no bKGD-
// as-animation-background convention, per pngcodec/apng.go's own comment).
type AnimationOptions struct {
	Width, Height   int
	BackgroundColor uint32
	LoopCount       int
}

// NewAnimationEncoder constructs the animated encoder for format, writing
// into dst.
func NewAnimationEncoder(format sniff.Format, dst []byte, opts AnimationOptions, av1 AV1Codec) (codec.AnimationEncoder, error) {
	switch format {
	case sniff.PNG:
		return pngcodec.NewAnimEncoder(dst, opts.Width, opts.Height, opts.BackgroundColor, opts.LoopCount), nil
	case sniff.GIF:
		return gifcodec.NewAnimEncoder(dst, opts.LoopCount), nil
	case sniff.WebP:
		return webpcodec.NewAnimEncoder(dst, opts.BackgroundColor, opts.LoopCount), nil
	case sniff.AVIF:
		if av1.Encoder == nil {
			return nil, ErrAVIFCodecMissing
		}
		return avifcodec.NewAnimEncoder(dst, av1.Encoder, opts.LoopCount), nil
	case sniff.JPEG:
		return nil, fmt.Errorf("imagecodec: %w: jpeg", ErrNoAnimatedEncoder)
	default:
		return nil, fmt.Errorf("imagecodec: %w: %s", ErrUnknownFormat, format)
	}
}
