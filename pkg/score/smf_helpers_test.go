package score

import (
	"encoding/binary"
)

// rawEvent is a delta-tagged track event used to assemble test files byte by byte.
type rawEvent struct {
	delta int
	data  []byte
}

func varLen(n int) []byte {
	buf := []byte{byte(n & 0x7F)}
	n >>= 7
	for n > 0 {
		buf = append([]byte{byte(n&0x7F) | 0x80}, buf...)
		n >>= 7
	}
	return buf
}

func noteOn(ch, key, vel byte) []byte { return []byte{0x90 | ch, key, vel} }
func noteOff(ch, key byte) []byte     { return []byte{0x80 | ch, key, 0x40} }

func tempo(microsPerBeat int) []byte {
	return []byte{0xFF, 0x51, 0x03, byte(microsPerBeat >> 16), byte(microsPerBeat >> 8), byte(microsPerBeat)}
}

func trackName(name string) []byte {
	out := []byte{0xFF, 0x03}
	out = append(out, varLen(len(name))...)
	return append(out, name...)
}

// buildSMF writes a complete SMF with the given header values. Each track is
// terminated with an end-of-track meta event.
func buildSMF(format int, division uint16, tracks ...[]rawEvent) []byte {
	out := []byte("MThd")
	out = binary.BigEndian.AppendUint32(out, 6)
	out = binary.BigEndian.AppendUint16(out, uint16(format))
	out = binary.BigEndian.AppendUint16(out, uint16(len(tracks)))
	out = binary.BigEndian.AppendUint16(out, division)

	for _, track := range tracks {
		var body []byte
		for _, ev := range track {
			body = append(body, varLen(ev.delta)...)
			body = append(body, ev.data...)
		}
		body = append(body, 0x00, 0xFF, 0x2F, 0x00)

		out = append(out, "MTrk"...)
		out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
		out = append(out, body...)
	}
	return out
}
