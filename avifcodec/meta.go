package avifcodec

import "fmt"

// ilocItem is one item's single-extent location within mdat (construction
// method 0, file-relative offsets — the only form this module writes or
// reads).
type ilocItem struct {
	itemID uint16
	offset uint32
	length uint32
}

func encodeILOC(items []ilocItem) []byte {
	payload := fullBoxHeader(0, 0)
	payload = append(payload, 0x44) // offset_size=4, length_size=4
	payload = append(payload, 0x00) // base_offset_size=0, reserved=0
	payload = putBE16(payload, uint16(len(items)))
	for _, it := range items {
		payload = putBE16(payload, it.itemID)
		payload = putBE16(payload, 0) // data_reference_index
		payload = putBE16(payload, 1) // extent_count
		payload = putBE32(payload, it.offset)
		payload = putBE32(payload, it.length)
	}
	return payload
}

func parseILOC(payload []byte) ([]ilocItem, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("avifcodec: %w: iloc", ErrTruncatedBox)
	}
	offsetSize := int(payload[4] >> 4)
	lengthSize := int(payload[4] & 0xf)
	baseOffsetSize := int(payload[5] >> 4)
	count := int(be16(payload[6:8]))
	p := payload[8:]
	var items []ilocItem
	for i := 0; i < count; i++ {
		if len(p) < 6 {
			return nil, fmt.Errorf("avifcodec: %w: iloc item", ErrTruncatedBox)
		}
		itemID := be16(p[0:2])
		// p[2:4] data_reference_index, ignored.
		p = p[4:]
		p = p[baseOffsetSize:]
		if len(p) < 2 {
			return nil, fmt.Errorf("avifcodec: %w: iloc extent_count", ErrTruncatedBox)
		}
		extentCount := int(be16(p[0:2]))
		p = p[2:]
		if extentCount != 1 {
			return nil, fmt.Errorf("avifcodec: unsupported iloc item with %d extents", extentCount)
		}
		if len(p) < offsetSize+lengthSize {
			return nil, fmt.Errorf("avifcodec: %w: iloc extent", ErrTruncatedBox)
		}
		offset := readUintBE(p[:offsetSize])
		p = p[offsetSize:]
		length := readUintBE(p[:lengthSize])
		p = p[lengthSize:]
		items = append(items, ilocItem{itemID: itemID, offset: uint32(offset), length: uint32(length)})
	}
	return items, nil
}

func readUintBE(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// encodeINFE builds an infe (item info entry) box, version 2 (16-bit item
// IDs, 4-character item types). mimeContentType is only written when
// itemType == "mime".
func encodeINFE(itemID uint16, itemType string, hidden bool, mimeContentType string) []byte {
	var flags uint32
	if hidden {
		flags = 1
	}
	payload := fullBoxHeader(2, flags)
	payload = putBE16(payload, itemID)
	payload = putBE16(payload, 0) // item_protection_index
	payload = append(payload, []byte(itemType)...)
	payload = append(payload, 0) // empty item_name
	if itemType == "mime" {
		payload = append(payload, []byte(mimeContentType)...)
		payload = append(payload, 0)
	}
	return payload
}

type infeEntry struct {
	itemID   uint16
	itemType string
	hidden   bool
}

func parseINFE(payload []byte) (infeEntry, error) {
	if len(payload) < 8 {
		return infeEntry{}, fmt.Errorf("avifcodec: %w: infe", ErrTruncatedBox)
	}
	version := payload[0]
	flags := uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])
	if version < 2 {
		return infeEntry{}, fmt.Errorf("avifcodec: unsupported infe version %d", version)
	}
	itemID := be16(payload[4:6])
	itemType := string(payload[8:12])
	return infeEntry{itemID: itemID, itemType: itemType, hidden: flags&1 != 0}, nil
}

func encodeIINF(entries [][]byte) []byte {
	payload := fullBoxHeader(0, 0)
	payload = putBE16(payload, uint16(len(entries)))
	for _, e := range entries {
		payload = writeBox(payload, "infe", e)
	}
	return payload
}

func parseIINF(payload []byte) ([]infeEntry, error) {
	if len(payload) < 6 {
		return nil, fmt.Errorf("avifcodec: %w: iinf", ErrTruncatedBox)
	}
	boxes, err := readBoxes(payload[6:])
	if err != nil {
		return nil, err
	}
	var out []infeEntry
	for _, b := range boxes {
		if b.typ != "infe" {
			continue
		}
		e, err := parseINFE(b.payload)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

type itemRef struct {
	refType string
	from    uint16
	to      []uint16
}

func encodeIREF(refs []itemRef) []byte {
	payload := fullBoxHeader(0, 0)
	for _, r := range refs {
		var rp []byte
		rp = putBE16(rp, r.from)
		rp = putBE16(rp, uint16(len(r.to)))
		for _, to := range r.to {
			rp = putBE16(rp, to)
		}
		payload = writeBox(payload, r.refType, rp)
	}
	return payload
}

func parseIREF(payload []byte) ([]itemRef, error) {
	if len(payload) < 4 {
		return nil, fmt.Errorf("avifcodec: %w: iref", ErrTruncatedBox)
	}
	boxes, err := readBoxes(payload[4:])
	if err != nil {
		return nil, err
	}
	var out []itemRef
	for _, b := range boxes {
		if len(b.payload) < 4 {
			continue
		}
		from := be16(b.payload[0:2])
		count := int(be16(b.payload[2:4]))
		var to []uint16
		p := b.payload[4:]
		for i := 0; i < count && len(p) >= 2; i++ {
			to = append(to, be16(p[0:2]))
			p = p[2:]
		}
		out = append(out, itemRef{refType: b.typ, from: from, to: to})
	}
	return out, nil
}

// propertyBuilder accumulates ipco entries and returns each one's 1-based
// property index for use in ipma associations, per the ISO/IEC 23008-12
// item-property model DND-IT-avif-go__avif.go leaves entirely to libavif;
// this module assembles it by hand.
type propertyBuilder struct {
	props [][2]string // [0]=type, [1] unused; payload stored separately
	boxes []box
}

func (pb *propertyBuilder) add(typ string, payload []byte) uint8 {
	pb.boxes = append(pb.boxes, box{typ: typ, payload: payload})
	return uint8(len(pb.boxes))
}

func (pb *propertyBuilder) encode() []byte {
	var payload []byte
	for _, b := range pb.boxes {
		payload = writeBox(payload, b.typ, b.payload)
	}
	return payload
}

type ipmaAssoc struct {
	itemID  uint16
	indices []uint8
}

func encodeIPMA(assocs []ipmaAssoc) []byte {
	payload := fullBoxHeader(0, 0)
	payload = putBE32(payload, uint32(len(assocs)))
	for _, a := range assocs {
		payload = putBE16(payload, a.itemID)
		payload = append(payload, byte(len(a.indices)))
		for _, idx := range a.indices {
			payload = append(payload, idx&0x7f) // essential bit left unset
		}
	}
	return payload
}

func parseIPMA(payload []byte) (map[uint16][]uint8, error) {
	if len(payload) < 8 {
		return nil, fmt.Errorf("avifcodec: %w: ipma", ErrTruncatedBox)
	}
	count := int(be32(payload[4:8]))
	p := payload[8:]
	out := make(map[uint16][]uint8, count)
	for i := 0; i < count; i++ {
		if len(p) < 3 {
			return nil, fmt.Errorf("avifcodec: %w: ipma entry", ErrTruncatedBox)
		}
		itemID := be16(p[0:2])
		n := int(p[2])
		p = p[3:]
		indices := make([]uint8, 0, n)
		for j := 0; j < n && len(p) >= 1; j++ {
			indices = append(indices, p[0]&0x7f)
			p = p[1:]
		}
		out[itemID] = indices
	}
	return out, nil
}

func encodeIPRP(ipco, ipma []byte) []byte {
	var payload []byte
	payload = writeBox(payload, "ipco", ipco)
	payload = writeBox(payload, "ipma", ipma)
	return payload
}
