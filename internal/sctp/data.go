package sctp

import "encoding/binary"

// dataFixedLength is DATA's fixed portion ahead of the user payload: TSN
// (4), stream id (2), stream sequence number (2), payload protocol id (4).
const dataFixedLength = 12

type dataChunk struct {
	unordered  bool
	tsn        uint32
	streamID   uint16
	streamSeq  uint16
	ppid       PayloadProtocolID
	payload    []byte
}

// marshal always sets both FIRST_FRAG and LAST_FRAG (this profile never
// fragments a user message across multiple DATA chunks).
func (d dataChunk) marshal() []byte {
	value := make([]byte, dataFixedLength+len(d.payload))
	binary.BigEndian.PutUint32(value[0:4], d.tsn)
	binary.BigEndian.PutUint16(value[4:6], d.streamID)
	binary.BigEndian.PutUint16(value[6:8], d.streamSeq)
	binary.BigEndian.PutUint32(value[8:12], uint32(d.ppid))
	copy(value[12:], d.payload)

	flags := byte(dataFlagBeginning | dataFlagEnd)
	if d.unordered {
		flags |= dataFlagUnordered
	}
	return marshalChunk(ChunkTypeData, flags, value)
}

func parseDataChunk(raw []byte) (dataChunk, error) {
	value := chunkValue(raw)
	if len(value) < dataFixedLength {
		return dataChunk{}, ErrShortChunk
	}
	flags := chunkFlags(raw)
	d := dataChunk{
		unordered: flags&dataFlagUnordered != 0,
		tsn:       binary.BigEndian.Uint32(value[0:4]),
		streamID:  binary.BigEndian.Uint16(value[4:6]),
		streamSeq: binary.BigEndian.Uint16(value[6:8]),
		ppid:      PayloadProtocolID(binary.BigEndian.Uint32(value[8:12])),
		payload:   value[dataFixedLength:],
	}
	return d, nil
}

// tsnGreater reports whether a is "after" b in the 32-bit modulo TSN space
// (RFC 4960 §1.6): a > b iff (a - b) mod 2^32 < 2^31.
func tsnGreater(a, b uint32) bool {
	return uint32(a-b) < 1<<31 && a != b
}
