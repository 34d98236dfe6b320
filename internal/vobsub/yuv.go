package vobsub

// converts a packed 0x00YYVVUU DVD palette entry into packed 0xBBGGRR
// with the BT.601 integer approximation
func YUVToBGR(v uint32) uint32 {
	y := int(v>>16&0xff) - 16
	cr := int(v>>8&0xff) - 128
	cb := int(v&0xff) - 128

	r := clip8((298*y + 409*cr + 128) >> 8)
	g := clip8((298*y - 100*cb - 208*cr + 128) >> 8)
	b := clip8((298*y + 516*cb + 128) >> 8)
	return uint32(r) | uint32(g)<<8 | uint32(b)<<16
}

// converts a palette as stored in DVD program chains
func YUVPalette(src [16]uint32) [16]uint32 {
	var dst [16]uint32
	for i, v := range src {
		dst[i] = YUVToBGR(v)
	}
	return dst
}

func clip8(v int) int {
	return max(0, min(v, 255))
}
