package sctp

import "encoding/binary"

// initFixedLength is INIT/INIT_ACK's fixed portion: initiate tag (4),
// a_rwnd (4), number of outbound streams (2), number of inbound streams
// (2), initial TSN (4).
const initFixedLength = 16

type initChunk struct {
	initiateTag        uint32
	advertisedRwnd      uint32
	outboundStreams    uint16
	inboundStreams     uint16
	initialTSN         uint32
	stateCookie        []byte // only present on INIT_ACK
}

// supportedExtensionsParam lists the chunk types this association
// understands as extensions, advertised (but never the FORWARD-TSN half
// exercised, since fragmentation/partial reliability are out of scope).
func supportedExtensionsParam() []byte {
	return marshalParam(ParamSupportedChunkExt, []byte{byte(extForwardTSN), byte(extReconfig)})
}

func (c initChunk) marshal(chunkType ChunkType) []byte {
	value := make([]byte, 0, initFixedLength+32)
	var fixed [initFixedLength]byte
	binary.BigEndian.PutUint32(fixed[0:4], c.initiateTag)
	binary.BigEndian.PutUint32(fixed[4:8], c.advertisedRwnd)
	binary.BigEndian.PutUint16(fixed[8:10], c.outboundStreams)
	binary.BigEndian.PutUint16(fixed[10:12], c.inboundStreams)
	binary.BigEndian.PutUint32(fixed[12:16], c.initialTSN)
	value = append(value, fixed[:]...)

	value = append(value, marshalParam(ParamPRSCTPSupported, nil)...)
	value = append(value, supportedExtensionsParam()...)
	if len(c.stateCookie) > 0 {
		value = append(value, marshalParam(ParamStateCookie, c.stateCookie)...)
	}

	return marshalChunk(chunkType, 0, value)
}

func parseInitChunk(raw []byte) (initChunk, error) {
	value := chunkValue(raw)
	if len(value) < initFixedLength {
		return initChunk{}, ErrShortChunk
	}
	c := initChunk{
		initiateTag:     binary.BigEndian.Uint32(value[0:4]),
		advertisedRwnd:  binary.BigEndian.Uint32(value[4:8]),
		outboundStreams: binary.BigEndian.Uint16(value[8:10]),
		inboundStreams:  binary.BigEndian.Uint16(value[10:12]),
		initialTSN:      binary.BigEndian.Uint32(value[12:16]),
	}
	params, err := splitParams(value[initFixedLength:])
	if err != nil {
		return initChunk{}, err
	}
	if p, ok := findParam(params, ParamStateCookie); ok {
		c.stateCookie = p.value
	}
	return c, nil
}
