package crypto

import "encoding/binary"

// AAD builds unambiguous associated data from a domain label and a list of
// string or integer parts. Every string is length-prefixed so that
// ("ab", "c") and ("a", "bc") never collide.
func AAD(label string, parts ...any) []byte {
	res := appendLenPrefix(nil, []byte(label))
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			res = appendLenPrefix(res, []byte(v))
		case []byte:
			res = appendLenPrefix(res, v)
		case int64:
			res = binary.BigEndian.AppendUint64(res, uint64(v))
		case int:
			res = binary.BigEndian.AppendUint32(res, uint32(v))
		}
	}
	return res
}

func appendLenPrefix(b, data []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(data)))
	return append(b, data...)
}
