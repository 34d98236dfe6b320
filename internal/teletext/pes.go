package teletext

import "time"

// DecodePES splits the payload of a teletext PES packet (starting at the
// EBU data identifier) into data units and decodes the subtitle ones.
func (d *Decoder) DecodePES(payload []byte, pts time.Duration) {
	if len(payload) < 1 {
		return
	}
	if id := payload[0]; id < 0x10 || id > 0x1f {
		d.logger.Debugw("Not EBU teletext data", "data_identifier", id)
		return
	}

	var unit [UnitSize]byte
	for i := 1; i+2 <= len(payload); {
		id, size := payload[i], int(payload[i+1])
		i += 2
		if i+size > len(payload) {
			d.logger.Debugw("Truncated data unit", "id", id, "size", size)
			return
		}
		if (id == UnitNonSubtitle || id == UnitSubtitle) && size == UnitSize {
			for j, b := range payload[i : i+size] {
				unit[j] = reverse8[b]
			}
			d.Decode(id, unit[:], pts)
		}
		i += size
	}
}
