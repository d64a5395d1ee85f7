package sctp

import "testing"

func TestShutdownMarshalParseRoundTrip(t *testing.T) {
	raw := marshalShutdown(12345)
	if chunkType(raw) != ChunkTypeShutdown {
		t.Fatalf("chunkType = %d, want ChunkTypeShutdown", chunkType(raw))
	}
	got, err := parseShutdown(raw)
	if err != nil {
		t.Fatalf("parseShutdown: %v", err)
	}
	if got != 12345 {
		t.Errorf("got %d, want 12345", got)
	}
}

func TestParseShutdownRejectsShortValue(t *testing.T) {
	raw := marshalChunk(ChunkTypeShutdown, 0, nil)
	if _, err := parseShutdown(raw); err != ErrShortChunk {
		t.Fatalf("err = %v, want ErrShortChunk", err)
	}
}

func TestMarshalStaleCookieErrorCarriesCause(t *testing.T) {
	raw := marshalStaleCookieError()
	if chunkType(raw) != ChunkTypeError {
		t.Fatalf("chunkType = %d, want ChunkTypeError", chunkType(raw))
	}
	params, err := splitParams(chunkValue(raw))
	if err != nil {
		t.Fatalf("splitParams: %v", err)
	}
	if len(params) != 1 || params[0].paramType != ParamErrorCauseStaleCookie {
		t.Fatalf("params = %+v", params)
	}
}

func TestMarshalShutdownAckAndComplete(t *testing.T) {
	if chunkType(marshalShutdownAck()) != ChunkTypeShutdownAck {
		t.Error("marshalShutdownAck produced wrong chunk type")
	}
	if chunkType(marshalShutdownComplete()) != ChunkTypeShutdownComplete {
		t.Error("marshalShutdownComplete produced wrong chunk type")
	}
	if chunkType(marshalAbort()) != ChunkTypeAbort {
		t.Error("marshalAbort produced wrong chunk type")
	}
}
