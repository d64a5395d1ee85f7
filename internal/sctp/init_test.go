package sctp

import "testing"

func TestInitChunkMarshalParseRoundTrip(t *testing.T) {
	in := initChunk{
		initiateTag:     0x11223344,
		advertisedRwnd:  1 << 20,
		outboundStreams: 10,
		inboundStreams:  12,
		initialTSN:      999,
	}
	raw := in.marshal(ChunkTypeInit)
	if chunkType(raw) != ChunkTypeInit {
		t.Fatalf("chunkType = %d, want ChunkTypeInit", chunkType(raw))
	}

	got, err := parseInitChunk(raw)
	if err != nil {
		t.Fatalf("parseInitChunk: %v", err)
	}
	if got.initiateTag != in.initiateTag || got.advertisedRwnd != in.advertisedRwnd ||
		got.outboundStreams != in.outboundStreams || got.inboundStreams != in.inboundStreams ||
		got.initialTSN != in.initialTSN {
		t.Errorf("got %+v, want %+v", got, in)
	}
	if len(got.stateCookie) != 0 {
		t.Errorf("unexpected state cookie on INIT: %v", got.stateCookie)
	}
}

func TestInitAckCarriesStateCookie(t *testing.T) {
	ack := initChunk{
		initiateTag:     1,
		advertisedRwnd:  2,
		outboundStreams: 3,
		inboundStreams:  4,
		initialTSN:      5,
		stateCookie:     []byte("opaque-cookie-bytes"),
	}
	raw := ack.marshal(ChunkTypeInitAck)

	got, err := parseInitChunk(raw)
	if err != nil {
		t.Fatalf("parseInitChunk: %v", err)
	}
	if string(got.stateCookie) != "opaque-cookie-bytes" {
		t.Errorf("stateCookie = %q, want %q", got.stateCookie, "opaque-cookie-bytes")
	}
}

func TestParseInitChunkRejectsShortValue(t *testing.T) {
	raw := marshalChunk(ChunkTypeInit, 0, []byte{1, 2, 3})
	if _, err := parseInitChunk(raw); err != ErrShortChunk {
		t.Fatalf("err = %v, want ErrShortChunk", err)
	}
}
