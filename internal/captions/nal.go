package captions

// splits an Annex B byte stream on 3 and 4 byte start codes; units shorter
// than minLen are dropped
func nalUnits(data []byte, minLen int) [][]byte {
	n := len(data)
	if n < 4 {
		return nil
	}

	type startCode struct{ at, body int }
	var codes []startCode
	for i := 0; i < n-2; {
		if data[i] == 0 && data[i+1] == 0 {
			if i < n-3 && data[i+2] == 0 && data[i+3] == 1 {
				codes = append(codes, startCode{i, i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				codes = append(codes, startCode{i, i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	var units [][]byte
	for k, sc := range codes {
		end := n
		if k+1 < len(codes) {
			end = codes[k+1].at
		}
		if end-sc.body < minLen {
			continue
		}
		units = append(units, data[sc.body:end])
	}
	return units
}
