package teletext

import "math/bits"

// lookup tables filled at init
var (
	// Hamming 8/4 codeword to its 4 data bits, 0xff when uncorrectable
	unham84 [256]byte

	// 4 data bits to their Hamming 8/4 codeword
	ham84 [16]byte

	// 1 for bytes with odd parity
	parity8 [256]byte

	// bit-reversed byte, transmission order to LSB-first
	reverse8 [256]byte
)

func init() {
	for d := range 16 {
		d1, d2, d3, d4 := byte(d)&1, byte(d)>>1&1, byte(d)>>2&1, byte(d)>>3&1
		p1 := 1 ^ d1 ^ d3 ^ d4
		p2 := 1 ^ d1 ^ d2 ^ d4
		p3 := 1 ^ d1 ^ d2 ^ d3
		p4 := 1 ^ p1 ^ d1 ^ p2 ^ d2 ^ p3 ^ d3 ^ d4
		ham84[d] = p1 | d1<<1 | p2<<2 | d2<<3 | p3<<4 | d3<<5 | p4<<6 | d4<<7
	}

	for b := range 256 {
		unham84[b] = 0xff
		for d, c := range ham84 {
			// codewords are 4 bits apart, so one flip is correctable
			if bits.OnesCount8(byte(b)^c) <= 1 {
				unham84[b] = byte(d)
				break
			}
		}
		parity8[b] = byte(bits.OnesCount8(byte(b)) & 1)
		reverse8[b] = bits.Reverse8(byte(b))
	}
}

// Unham84 decodes a Hamming 8/4 byte, correcting one bit error. ok is
// false for two or more flipped bits.
func Unham84(b byte) (byte, bool) {
	v := unham84[b]
	return v & 0x0f, v != 0xff
}

// nibble of b, 0 when uncorrectable
func unham(b byte) byte {
	v, _ := Unham84(b)
	return v
}

// Unham2418 decodes a Hamming 24/18 triplet into its 18 data bits,
// correcting one bit error. ok is false for a double error.
func Unham2418(a uint32) (uint32, bool) {
	var test uint32
	for i := range 23 {
		test ^= (a >> i & 1) * uint32(i+33)
	}
	test ^= (a >> 23 & 1) * 32

	if test&0x1f != 0x1f {
		if test&0x20 == 0x20 {
			return 0, false
		}
		a ^= 1 << (30 - test)
	}
	return a&0x04>>2 | a&0x70>>3 | a&0x7f00>>4 | a&0x7f0000>>5, true
}

// odd parity check of a 7-bit character byte
func checkParity(b byte) bool {
	return parity8[b] == 1
}
