package sctp

import "encoding/binary"

// Re-configuration parameter types (RFC 6525 §4).
const (
	ParamOutgoingSSNResetRequest ParamType = 13
	ParamReconfigResponse        ParamType = 16
	ParamStreamAddOutgoing       ParamType = 17
)

// Re-configuration response result codes (RFC 6525 §4.4). Only the two
// outcomes this profile can actually produce are named; anything else
// parses into reconfigResult and is compared numerically.
const (
	ReconfigResultSuccessPerformed ReconfigResult = 1
	ReconfigResultDenied           ReconfigResult = 2
)

type ReconfigResult uint32

// marshalReconfig wraps one or more already-marshaled RE-CONFIG parameters
// into a chunk. RFC 6525 allows at most two parameters per chunk (a
// request and, when present, its matching response); this profile only
// ever sends a single outstanding request at a time, so it never needs
// more than that.
func marshalReconfig(params ...[]byte) []byte {
	var value []byte
	for _, p := range params {
		value = append(value, p...)
	}
	return marshalChunk(ChunkTypeReconfig, 0, value)
}

func parseReconfig(raw []byte) ([]rawParam, error) {
	return splitParams(chunkValue(raw))
}

type outgoingSSNResetRequest struct {
	reqSeqNo       uint32
	responseSeqNo  uint32
	lastAssignedTSN uint32
	streamIDs      []uint16
}

func (r outgoingSSNResetRequest) marshal() []byte {
	value := make([]byte, 12+2*len(r.streamIDs))
	binary.BigEndian.PutUint32(value[0:4], r.reqSeqNo)
	binary.BigEndian.PutUint32(value[4:8], r.responseSeqNo)
	binary.BigEndian.PutUint32(value[8:12], r.lastAssignedTSN)
	for i, id := range r.streamIDs {
		binary.BigEndian.PutUint16(value[12+2*i:], id)
	}
	return marshalParam(ParamOutgoingSSNResetRequest, value)
}

func parseOutgoingSSNResetRequest(p rawParam) (outgoingSSNResetRequest, error) {
	if len(p.value) < 12 {
		return outgoingSSNResetRequest{}, ErrShortChunk
	}
	r := outgoingSSNResetRequest{
		reqSeqNo:        binary.BigEndian.Uint32(p.value[0:4]),
		responseSeqNo:   binary.BigEndian.Uint32(p.value[4:8]),
		lastAssignedTSN: binary.BigEndian.Uint32(p.value[8:12]),
	}
	for off := 12; off+2 <= len(p.value); off += 2 {
		r.streamIDs = append(r.streamIDs, binary.BigEndian.Uint16(p.value[off:]))
	}
	return r, nil
}

type streamAddOutgoing struct {
	reqSeqNo   uint32
	numStreams uint16
}

func (s streamAddOutgoing) marshal() []byte {
	value := make([]byte, 8)
	binary.BigEndian.PutUint32(value[0:4], s.reqSeqNo)
	binary.BigEndian.PutUint16(value[4:6], s.numStreams)
	return marshalParam(ParamStreamAddOutgoing, value)
}

func parseStreamAddOutgoing(p rawParam) (streamAddOutgoing, error) {
	if len(p.value) < 8 {
		return streamAddOutgoing{}, ErrShortChunk
	}
	return streamAddOutgoing{
		reqSeqNo:   binary.BigEndian.Uint32(p.value[0:4]),
		numStreams: binary.BigEndian.Uint16(p.value[4:6]),
	}, nil
}

type reconfigResponse struct {
	responseSeqNo uint32
	result        ReconfigResult
}

func (r reconfigResponse) marshal() []byte {
	value := make([]byte, 8)
	binary.BigEndian.PutUint32(value[0:4], r.responseSeqNo)
	binary.BigEndian.PutUint32(value[4:8], uint32(r.result))
	return marshalParam(ParamReconfigResponse, value)
}

func parseReconfigResponse(p rawParam) (reconfigResponse, error) {
	if len(p.value) < 8 {
		return reconfigResponse{}, ErrShortChunk
	}
	return reconfigResponse{
		responseSeqNo: binary.BigEndian.Uint32(p.value[0:4]),
		result:        ReconfigResult(binary.BigEndian.Uint32(p.value[4:8])),
	}, nil
}
