// Package webpcodec provides a pure Go encoder and decoder for the WebP
// image format, built on the pixelmatrix/codec/frame vocabulary shared by
// every format in this module rather than on image.Image.
//
// WebP is a modern image format developed by Google that provides superior
// lossless and lossy compression for images on the web. This package
// implements both lossy (VP8) and lossless (VP8L) encode/decode, alpha,
// the extended format (VP8X) with ICC/EXIF/XMP metadata, and animation
// (ANIM/ANMF), without any CGo dependencies.
//
// Basic usage for decoding a still image:
//
//	dec, err := webpcodec.NewDecoder(data)
//	dst, _ := pixelmatrix.Create(dec.Width(), dec.Height(), dec.PixelType())
//	err = dec.DecodeInto(dst)
//
// Basic usage for encoding:
//
//	enc := webpcodec.NewEncoder(dst)
//	n, err := enc.Encode(src, codec.Options{{webpcodec.OptWebPQuality, 80}})
package webpcodec
