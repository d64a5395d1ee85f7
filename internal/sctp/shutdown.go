package sctp

import "encoding/binary"

// marshalShutdown carries the cumulative TSN ack point.
func marshalShutdown(cumulativeTSNAck uint32) []byte {
	var value [4]byte
	binary.BigEndian.PutUint32(value[:], cumulativeTSNAck)
	return marshalChunk(ChunkTypeShutdown, 0, value[:])
}

func parseShutdown(raw []byte) (uint32, error) {
	value := chunkValue(raw)
	if len(value) < 4 {
		return 0, ErrShortChunk
	}
	return binary.BigEndian.Uint32(value[0:4]), nil
}

func marshalShutdownAck() []byte {
	return marshalChunk(ChunkTypeShutdownAck, 0, nil)
}

func marshalShutdownComplete() []byte {
	return marshalChunk(ChunkTypeShutdownComplete, 0, nil)
}

func marshalAbort() []byte {
	return marshalChunk(ChunkTypeAbort, 0, nil)
}

// marshalStaleCookieError builds an ERROR chunk carrying a single
// StaleCookieError cause, sent when a COOKIE_ECHO's state cookie fails its
// timestamp-window check.
func marshalStaleCookieError() []byte {
	cause := marshalParam(ParamErrorCauseStaleCookie, nil)
	return marshalChunk(ChunkTypeError, 0, cause)
}
