package avifcodec

import "fmt"

// Animated AVIF ("avis" brand, an image sequence) is carried as a
// conventional ISO-BMFF movie: ftyp + moov{mvhd, trak...} + mdat, the same
// box vocabulary box.go already implements for the still-image meta box.
// Real AVIF encoders (libavif) build a much richer moov than this —
// multiple sample description variants, edit lists for trimming, etc — but
// the shape here (one mvhd, one trak per plane, tkhd/mdia/minf/stbl per
// track, a private udta/lpct box carrying loop count since this module has
// no edit-list repetition convention to ground against) is sufficient for
// every operation this package's encoder and decoder need, and is
// internally consistent between the two.

type seqTrack struct {
	trackID      uint32
	width        uint32
	height       uint32
	durationsMS  []uint32
	sampleSizes  []uint32
	sampleOffset uint32 // absolute file offset of the first sample; patched in a second pass
	codecConfig  []byte
	auxOf        uint32 // 0 if this is the color track; else the color track's ID
}

func (t seqTrack) totalDurationMS() uint32 {
	var total uint32
	for _, d := range t.durationsMS {
		total += d
	}
	return total
}

func encodeMVHD(timescale, durationMS uint32) []byte {
	payload := fullBoxHeader(0, 0)
	payload = putBE32(payload, 0) // creation_time
	payload = putBE32(payload, 0) // modification_time
	payload = putBE32(payload, timescale)
	payload = putBE32(payload, durationMS)
	payload = putBE32(payload, 0x00010000) // rate 1.0
	payload = putBE16(payload, 0x0100)     // volume 1.0
	payload = putBE16(payload, 0)          // reserved
	payload = append(payload, make([]byte, 8)...)
	payload = append(payload, identityMatrix()...)
	payload = append(payload, make([]byte, 24)...) // pre_defined
	payload = putBE32(payload, 2)                  // next_track_ID
	return payload
}

func identityMatrix() []byte {
	var m []byte
	vals := []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	for _, v := range vals {
		m = putBE32(m, v)
	}
	return m
}

func encodeTKHD(trackID, width, height, durationMS uint32) []byte {
	payload := fullBoxHeader(0, 0x000007) // enabled | in-movie | in-preview
	payload = putBE32(payload, 0)         // creation_time
	payload = putBE32(payload, 0)         // modification_time
	payload = putBE32(payload, trackID)
	payload = putBE32(payload, 0) // reserved
	payload = putBE32(payload, durationMS)
	payload = append(payload, make([]byte, 8)...) // reserved
	payload = putBE16(payload, 0)                 // layer
	payload = putBE16(payload, 0)                 // alternate_group
	payload = putBE16(payload, 0)                 // volume
	payload = putBE16(payload, 0)                 // reserved
	payload = append(payload, identityMatrix()...)
	payload = putBE32(payload, width<<16)
	payload = putBE32(payload, height<<16)
	return payload
}

func encodeMDHD(timescale, durationMS uint32) []byte {
	payload := fullBoxHeader(0, 0)
	payload = putBE32(payload, 0) // creation_time
	payload = putBE32(payload, 0) // modification_time
	payload = putBE32(payload, timescale)
	payload = putBE32(payload, durationMS)
	payload = putBE16(payload, 0x55c4) // language "und"
	payload = putBE16(payload, 0)
	return payload
}

func encodeVMHD() []byte {
	payload := fullBoxHeader(0, 1)
	payload = putBE16(payload, 0) // graphicsmode
	payload = append(payload, make([]byte, 6)...)
	return payload
}

func encodeDINF() []byte {
	urlBox := fullBoxHeader(0, 1) // self-contained
	dref := fullBoxHeader(0, 0)
	dref = putBE32(dref, 1)
	dref = writeBox(dref, "url ", urlBox)
	return writeBox(nil, "dref", dref)
}

func encodeSTSD(width, height uint32, config []byte) []byte {
	entry := make([]byte, 0, 78)
	entry = append(entry, make([]byte, 6)...) // reserved
	entry = putBE16(entry, 1)                 // data_reference_index
	entry = putBE16(entry, 0)                 // pre_defined
	entry = putBE16(entry, 0)                 // reserved
	entry = append(entry, make([]byte, 12)...) // pre_defined[3]
	entry = putBE16(entry, uint16(width))
	entry = putBE16(entry, uint16(height))
	entry = putBE32(entry, 0x00480000) // horizresolution 72dpi
	entry = putBE32(entry, 0x00480000) // vertresolution 72dpi
	entry = putBE32(entry, 0)          // reserved
	entry = putBE16(entry, 1)          // frame_count
	entry = append(entry, make([]byte, 32)...) // compressorname
	entry = putBE16(entry, 0x0018)             // depth
	entry = putBE16(entry, 0xFFFF)             // pre_defined
	entry = writeBox(entry, "av1C", encodeAV1C(config))
	av01 := writeBox(nil, "av01", entry)

	payload := fullBoxHeader(0, 0)
	payload = putBE32(payload, 1)
	payload = append(payload, av01...)
	return payload
}

func encodeSTTS(durationsMS []uint32) []byte {
	payload := fullBoxHeader(0, 0)
	payload = putBE32(payload, uint32(len(durationsMS)))
	for _, d := range durationsMS {
		payload = putBE32(payload, 1)
		payload = putBE32(payload, d)
	}
	return payload
}

func encodeSTSZ(sizes []uint32) []byte {
	payload := fullBoxHeader(0, 0)
	payload = putBE32(payload, 0) // sample_size (0 = explicit per-sample sizes follow)
	payload = putBE32(payload, uint32(len(sizes)))
	for _, s := range sizes {
		payload = putBE32(payload, s)
	}
	return payload
}

func encodeSTSC(sampleCount uint32) []byte {
	payload := fullBoxHeader(0, 0)
	payload = putBE32(payload, 1)
	payload = putBE32(payload, 1)
	payload = putBE32(payload, sampleCount)
	payload = putBE32(payload, 1)
	return payload
}

func encodeSTCO(chunkOffset uint32) []byte {
	payload := fullBoxHeader(0, 0)
	payload = putBE32(payload, 1)
	payload = putBE32(payload, chunkOffset)
	return payload
}

func encodeTREF(refType string, toTrackIDs []uint32) []byte {
	var ref []byte
	for _, id := range toTrackIDs {
		ref = putBE32(ref, id)
	}
	return writeBox(nil, refType, ref)
}

func encodeTRAK(t seqTrack) []byte {
	stbl := writeBox(nil, "stsd", encodeSTSD(t.width, t.height, t.codecConfig))
	stbl = writeBox(stbl, "stts", encodeSTTS(t.durationsMS))
	stbl = writeBox(stbl, "stsc", encodeSTSC(uint32(len(t.sampleSizes))))
	stbl = writeBox(stbl, "stsz", encodeSTSZ(t.sampleSizes))
	stbl = writeBox(stbl, "stco", encodeSTCO(t.sampleOffset))

	minf := writeBox(nil, "vmhd", encodeVMHD())
	minf = writeBox(minf, "dinf", encodeDINF())
	minf = writeBox(minf, "stbl", stbl)

	mdia := writeBox(nil, "mdhd", encodeMDHD(1000, t.totalDurationMS()))
	mdia = writeBox(mdia, "hdlr", encodeHDLR("pict"))
	mdia = writeBox(mdia, "minf", minf)

	trak := writeBox(nil, "tkhd", encodeTKHD(t.trackID, t.width, t.height, t.totalDurationMS()))
	trak = writeBox(trak, "mdia", mdia)
	if t.auxOf != 0 {
		trak = writeBox(trak, "tref", encodeTREF("auxl", []uint32{t.auxOf}))
	}
	return trak
}

func encodeUDTALoopCount(loopCount int) []byte {
	payload := putBE32(nil, uint32(loopCount))
	return writeBox(nil, "udta", writeBox(nil, "lpct", payload))
}

func encodeMOOV(tracks []seqTrack, totalDurationMS uint32, loopCount int) []byte {
	moov := writeBox(nil, "mvhd", encodeMVHD(1000, totalDurationMS))
	for _, t := range tracks {
		moov = writeBox(moov, "trak", encodeTRAK(t))
	}
	moov = append(moov, encodeUDTALoopCount(loopCount)...)
	return moov
}

// parsedTrak is the subset of a parsed trak box this package needs back.
type parsedTrak struct {
	trackID     uint32
	width       uint32
	height      uint32
	durationsMS []uint32
	sampleSizes []uint32
	sampleOffset uint32
	codecConfig  []byte
	auxOf        uint32
}

func parseTRAK(payload []byte) (parsedTrak, error) {
	boxes, err := readBoxes(payload)
	if err != nil {
		return parsedTrak{}, err
	}
	var pt parsedTrak
	for _, b := range boxes {
		switch b.typ {
		case "tkhd":
			if len(b.payload) < 84 {
				return parsedTrak{}, fmt.Errorf("avifcodec: %w: tkhd", ErrTruncatedBox)
			}
			pt.trackID = be32(b.payload[12:16])
			pt.width = be32(b.payload[76:80]) >> 16
			pt.height = be32(b.payload[80:84]) >> 16
		case "tref":
			refs, err := readBoxes(b.payload)
			if err != nil {
				return parsedTrak{}, err
			}
			for _, r := range refs {
				if r.typ == "auxl" && len(r.payload) >= 4 {
					pt.auxOf = be32(r.payload[0:4])
				}
			}
		case "mdia":
			if err := parseMDIA(b.payload, &pt); err != nil {
				return parsedTrak{}, err
			}
		}
	}
	return pt, nil
}

func parseMDIA(payload []byte, pt *parsedTrak) error {
	boxes, err := readBoxes(payload)
	if err != nil {
		return err
	}
	for _, b := range boxes {
		if b.typ != "minf" {
			continue
		}
		inner, err := readBoxes(b.payload)
		if err != nil {
			return err
		}
		for _, ib := range inner {
			if ib.typ != "stbl" {
				continue
			}
			if err := parseSTBL(ib.payload, pt); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseSTBL(payload []byte, pt *parsedTrak) error {
	boxes, err := readBoxes(payload)
	if err != nil {
		return err
	}
	for _, b := range boxes {
		switch b.typ {
		case "stsd":
			if len(b.payload) < 8 {
				return fmt.Errorf("avifcodec: %w: stsd", ErrTruncatedBox)
			}
			entries, err := readBoxes(b.payload[8:])
			if err != nil {
				return err
			}
			for _, e := range entries {
				if e.typ != "av01" || len(e.payload) < 78 {
					continue
				}
				children, err := readBoxes(e.payload[78:])
				if err != nil {
					return err
				}
				for _, c := range children {
					if c.typ == "av1C" {
						pt.codecConfig = parseAV1C(c.payload)
					}
				}
			}
		case "stts":
			if len(b.payload) < 8 {
				return fmt.Errorf("avifcodec: %w: stts", ErrTruncatedBox)
			}
			count := int(be32(b.payload[4:8]))
			p := b.payload[8:]
			for i := 0; i < count && len(p) >= 8; i++ {
				n := be32(p[0:4])
				d := be32(p[4:8])
				for j := uint32(0); j < n; j++ {
					pt.durationsMS = append(pt.durationsMS, d)
				}
				p = p[8:]
			}
		case "stsz":
			if len(b.payload) < 12 {
				return fmt.Errorf("avifcodec: %w: stsz", ErrTruncatedBox)
			}
			// payload[4:8] is sample_size (0: per-sample sizes follow).
			count := int(be32(b.payload[8:12]))
			p := b.payload[12:]
			for i := 0; i < count && len(p) >= 4; i++ {
				pt.sampleSizes = append(pt.sampleSizes, be32(p[0:4]))
				p = p[4:]
			}
		case "stco":
			if len(b.payload) < 8 {
				return fmt.Errorf("avifcodec: %w: stco", ErrTruncatedBox)
			}
			if be32(b.payload[4:8]) > 0 {
				pt.sampleOffset = be32(b.payload[8:12])
			}
		}
	}
	return nil
}

func parseMOOV(payload []byte) ([]parsedTrak, int, error) {
	boxes, err := readBoxes(payload)
	if err != nil {
		return nil, 0, err
	}
	var traks []parsedTrak
	loopCount := 0
	for _, b := range boxes {
		switch b.typ {
		case "trak":
			pt, err := parseTRAK(b.payload)
			if err != nil {
				return nil, 0, err
			}
			traks = append(traks, pt)
		case "udta":
			inner, err := readBoxes(b.payload)
			if err != nil {
				return nil, 0, err
			}
			for _, ib := range inner {
				if ib.typ == "lpct" && len(ib.payload) >= 4 {
					loopCount = int(be32(ib.payload[0:4]))
				}
			}
		}
	}
	return traks, loopCount, nil
}
