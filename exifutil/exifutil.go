// Package exifutil extracts the EXIF orientation tag (TIFF tag 0x0112)
// from a raw TIFF IFD buffer, the common piece every still decoder's
// orientation() accessor needs (defaulting to 1 when absent). JPEG's APP1
// segment and WebP's EXIF chunk both carry this same TIFF structure, so one
// reader serves both.
package exifutil

import "encoding/binary"

const orientationTag = 0x0112

// Orientation walks a TIFF byte stream (starting at the "II"/"MM" byte
// order marker) and returns the IFD0 Orientation tag's value, or 1 if the
// tag is absent, the buffer is too short, or malformed.
func Orientation(data []byte) int {
	if len(data) < 8 {
		return 1
	}

	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return 1
	}

	if order.Uint16(data[2:4]) != 42 {
		return 1
	}

	ifdOffset := int(order.Uint32(data[4:8]))
	if ifdOffset < 0 || ifdOffset+2 > len(data) {
		return 1
	}

	count := int(order.Uint16(data[ifdOffset : ifdOffset+2]))
	entriesStart := ifdOffset + 2
	const entrySize = 12
	for i := 0; i < count; i++ {
		off := entriesStart + i*entrySize
		if off+entrySize > len(data) {
			break
		}
		tag := order.Uint16(data[off : off+2])
		if tag != orientationTag {
			continue
		}
		typ := order.Uint16(data[off+2 : off+4])
		// Orientation is always SHORT (type 3); the value sits in the
		// first two bytes of the 4-byte value field.
		if typ != 3 {
			return 1
		}
		v := int(order.Uint16(data[off+8 : off+10]))
		if v < 1 || v > 8 {
			return 1
		}
		return v
	}
	return 1
}

// StripEXIFHeader skips a leading "Exif\x00\x00" marker if present, so
// callers can pass either a raw TIFF buffer or a JPEG APP1/WebP EXIF
// chunk payload (which both conventionally prefix the TIFF data with
// this 6-byte ASCII header).
func StripEXIFHeader(data []byte) []byte {
	if len(data) >= 6 && string(data[0:4]) == "Exif" && data[4] == 0 && data[5] == 0 {
		return data[6:]
	}
	return data
}
