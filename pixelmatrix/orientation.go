package pixelmatrix

// OrientationTransform applies the EXIF orientation (1..8, TIFF 6.0) to the
// matrix in-place. Orientations that change aspect ratio
// (5, 6, 7, 8) allocate a temporary buffer and swap it in; the others
// operate directly on the existing storage.
func (m *Matrix) OrientationTransform(orientation int) error {
	if orientation < 1 || orientation > 8 {
		return ErrInvalidOrientation
	}
	if orientation == 1 {
		return nil
	}

	bpp := m.pixelType.BytesPerPixel()
	w, h := m.width, m.height

	switch orientation {
	case 2: // hflip
		for y := 0; y < h; y++ {
			row := m.Row(y)
			flipRowInPlace(row, w, bpp)
		}
		return nil
	case 3: // rot180
		for y := 0; y < h; y++ {
			flipRowInPlace(m.Row(y), w, bpp)
		}
		reverseRows(m)
		return nil
	case 4: // vflip
		reverseRows(m)
		return nil
	}

	// 5=transpose, 6=rot90-cw, 7=transverse, 8=rot270-cw: width/height swap.
	out := make([]byte, w*h*bpp)
	outStride := h * bpp // new width is old height

	for y := 0; y < h; y++ {
		srcRow := m.Row(y)
		for x := 0; x < w; x++ {
			px := srcRow[x*bpp : x*bpp+bpp]
			var nx, ny int
			switch orientation {
			case 5: // transpose: (x,y) -> (y,x)
				nx, ny = y, x
			case 6: // rot90 cw: (x,y) -> (h-1-y, x)
				nx, ny = h-1-y, x
			case 7: // transverse: (x,y) -> (h-1-y, w-1-x)
				nx, ny = h-1-y, w-1-x
			case 8: // rot270 cw: (x,y) -> (y, w-1-x)
				nx, ny = y, w-1-x
			}
			dstOff := ny*outStride + nx*bpp
			copy(out[dstOff:dstOff+bpp], px)
		}
	}

	newW, newH := h, w
	newStride := minStrideFor(newW, m.pixelType)
	if m.ownership == Owned {
		m.buf = out
	} else {
		// Wrapping/view destinations must already have enough capacity;
		// the caller is responsible for sizing the matrix for the
		// post-transform dimensions when orientation swaps aspect.
		if newStride*newH > m.capacity {
			return ErrBufferTooSmall
		}
		copy(m.buf, out)
	}
	m.width, m.height, m.stride, m.minStride = newW, newH, newStride, newStride
	return nil
}

func flipRowInPlace(row []byte, w, bpp int) {
	for i, j := 0, w-1; i < j; i, j = i+1, j-1 {
		a := row[i*bpp : i*bpp+bpp]
		b := row[j*bpp : j*bpp+bpp]
		for k := 0; k < bpp; k++ {
			a[k], b[k] = b[k], a[k]
		}
	}
}

func reverseRows(m *Matrix) {
	bpp := m.pixelType.BytesPerPixel()
	tmp := make([]byte, m.width*bpp)
	for i, j := 0, m.height-1; i < j; i, j = i+1, j-1 {
		ri, rj := m.Row(i), m.Row(j)
		copy(tmp, ri)
		copy(ri, rj)
		copy(rj, tmp)
	}
}

// orientationTable maps each EXIF orientation to its element of the
// dihedral group of the square (order 8), represented as (horizontal flip
// bool, then rotation 0..3 quarter turns cw); ComposeOrientations combines
// two elements so that applying a then b equals applying the composed EXIF
// orientation directly.
var orientationTable = [9]dihedral{
	0: {}, // unused
	1: {flip: false, rot: 0},
	2: {flip: true, rot: 0},
	3: {flip: false, rot: 2},
	4: {flip: true, rot: 2},
	5: {flip: true, rot: 3},
	6: {flip: false, rot: 1},
	7: {flip: true, rot: 1},
	8: {flip: false, rot: 3},
}

var dihedralToOrientation = func() map[dihedral]int {
	m := make(map[dihedral]int, 8)
	for o := 1; o <= 8; o++ {
		m[orientationTable[o]] = o
	}
	return m
}()

type dihedral struct {
	flip bool
	rot  int // quarter turns clockwise, 0..3
}

// compose returns the dihedral element for "apply d first, then e".
func (d dihedral) compose(e dihedral) dihedral {
	// Represent orientation as first optional flip then rotation.
	// Composing two such elements: (f1,r1) then (f2,r2).
	// If f2 is false: result flip=f1, rot=(r1+r2)%4.
	// If f2 is true: flipping reverses the sense of further rotation
	// composition, result flip = !f1, rot = (r2-r1+4)%4.
	if !e.flip {
		return dihedral{flip: d.flip, rot: (d.rot + e.rot) % 4}
	}
	return dihedral{flip: !d.flip, rot: (e.rot - d.rot + 4) % 4}
}

// ComposeOrientations returns the single EXIF orientation equivalent to
// applying a then b.
func ComposeOrientations(a, b int) int {
	return dihedralToOrientation[orientationTable[a].compose(orientationTable[b])]
}
