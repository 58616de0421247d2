package codecs

import "encoding/binary"

// sealedExtraTag marks a zip entry whose stored data is an age stream
// wrapping data compressed with the recorded method.
const sealedExtraTag = 0x6963

const sealedExtraLen = 10

type sealedEntry struct {
	method uint16
	size   uint64
}

func appendSealedExtra(extra []byte, e sealedEntry) []byte {
	extra = binary.LittleEndian.AppendUint16(extra, sealedExtraTag)
	extra = binary.LittleEndian.AppendUint16(extra, sealedExtraLen)
	extra = binary.LittleEndian.AppendUint16(extra, e.method)
	return binary.LittleEndian.AppendUint64(extra, e.size)
}

// parseSealedExtra walks the extra field records of a zip header.
func parseSealedExtra(extra []byte) (sealedEntry, bool) {
	for len(extra) >= 4 {
		tag := binary.LittleEndian.Uint16(extra[0:2])
		size := int(binary.LittleEndian.Uint16(extra[2:4]))
		extra = extra[4:]
		if size > len(extra) {
			return sealedEntry{}, false
		}
		if tag == sealedExtraTag && size == sealedExtraLen {
			return sealedEntry{
				method: binary.LittleEndian.Uint16(extra[0:2]),
				size:   binary.LittleEndian.Uint64(extra[2:10]),
			}, true
		}
		extra = extra[size:]
	}
	return sealedEntry{}, false
}
