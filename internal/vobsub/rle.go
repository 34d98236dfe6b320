package vobsub

import "fmt"

type nibbleReader struct {
	buf []byte
	pos int // in nibbles
}

func (r *nibbleReader) next() (int, bool) {
	if r.pos >= len(r.buf)*2 {
		return 0, false
	}
	b := r.buf[r.pos>>1]
	shift := uint(1-(r.pos&1)) * 4
	r.pos++
	return int(b>>shift) & 0xf, true
}

// inflates one interlaced field into dst, starting at nibble offset and
// writing every stride bytes a row of width pixels. Each code is a run
// length and a 2-bit color index packed into 1 to 4 nibbles; a zero
// length fills the rest of the row. Rows are byte aligned.
func decodeRLE(dst []byte, stride, width, rows int, buf []byte, offset int) error {
	r := &nibbleReader{buf: buf, pos: offset}
	for y := 0; y < rows; y++ {
		row := dst[y*stride : y*stride+width]
		x := 0
		for x < width {
			v, ok := r.next()
			if !ok {
				return fmt.Errorf("%w: data ends at row %d", ErrRLE, y)
			}
			for _, limit := range []int{0x4, 0x10, 0x40} {
				if v >= limit {
					break
				}
				n, ok := r.next()
				if !ok {
					return fmt.Errorf("%w: data ends at row %d", ErrRLE, y)
				}
				v = v<<4 | n
			}

			length := v >> 2
			color := byte(v & 3)
			if length == 0 {
				length = width - x
			}
			if length > width-x {
				return fmt.Errorf("%w: run of %d overflows row %d at column %d", ErrRLE, length, y, x)
			}
			for i := x; i < x+length; i++ {
				row[i] = color
			}
			x += length
		}
		r.pos += r.pos & 1
	}
	return nil
}
