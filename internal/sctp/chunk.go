package sctp

import "encoding/binary"

// chunkHeaderLength is the fixed 4-byte chunk TLV header: type (1), flags
// (1), length (2). length covers the header itself plus the chunk's value,
// before 4-byte padding.
const chunkHeaderLength = 4

// marshalChunk builds one padded chunk from its type, flags, and value,
// ready to append directly into a packet's chunk list.
func marshalChunk(t ChunkType, flags byte, value []byte) []byte {
	length := chunkHeaderLength + len(value)
	out := make([]byte, paddedLength(length))
	out[0] = byte(t)
	out[1] = flags
	binary.BigEndian.PutUint16(out[2:4], uint16(length))
	copy(out[4:], value)
	return out
}

// chunkType/chunkFlags/chunkValue peel the header off one chunk's raw bytes
// (as returned by splitChunks), which already excludes any padding.
func chunkType(raw []byte) ChunkType { return ChunkType(raw[0]) }
func chunkFlags(raw []byte) byte     { return raw[1] }
func chunkValue(raw []byte) []byte   { return raw[chunkHeaderLength:] }

// marshalParam builds one TLV parameter, as carried in INIT/INIT_ACK/
// RE-CONFIG chunk values (same TLV shape as a chunk, but a 2-byte type).
func marshalParam(t ParamType, value []byte) []byte {
	length := 4 + len(value)
	out := make([]byte, paddedLength(length))
	binary.BigEndian.PutUint16(out[0:2], uint16(t))
	binary.BigEndian.PutUint16(out[2:4], uint16(length))
	copy(out[4:], value)
	return out
}

// splitParams walks a buffer of concatenated, 4-byte-padded TLV parameters.
func splitParams(buf []byte) ([]rawParam, error) {
	var params []rawParam
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, ErrShortChunk
		}
		t := ParamType(binary.BigEndian.Uint16(buf[0:2]))
		length := int(binary.BigEndian.Uint16(buf[2:4]))
		if length < 4 || length > len(buf) {
			return nil, ErrShortChunk
		}
		params = append(params, rawParam{paramType: t, value: buf[4:length]})
		padded := paddedLength(length)
		if padded > len(buf) {
			padded = len(buf)
		}
		buf = buf[padded:]
	}
	return params, nil
}

type rawParam struct {
	paramType ParamType
	value     []byte
}

func findParam(params []rawParam, t ParamType) (rawParam, bool) {
	for _, p := range params {
		if p.paramType == t {
			return p, true
		}
	}
	return rawParam{}, false
}
