package sctp

import (
	"bytes"
	"testing"
)

func TestDataChunkMarshalParseRoundTrip(t *testing.T) {
	d := dataChunk{
		unordered: true,
		tsn:       42,
		streamID:  7,
		streamSeq: 0,
		ppid:      PPIDBinary,
		payload:   []byte("payload bytes"),
	}
	raw := d.marshal()

	flags := chunkFlags(raw)
	if flags&dataFlagBeginning == 0 || flags&dataFlagEnd == 0 {
		t.Error("DATA chunk must always carry FIRST_FRAG and LAST_FRAG set")
	}
	if flags&dataFlagUnordered == 0 {
		t.Error("expected the unordered flag to be set")
	}

	got, err := parseDataChunk(raw)
	if err != nil {
		t.Fatalf("parseDataChunk: %v", err)
	}
	if got.tsn != d.tsn || got.streamID != d.streamID || got.ppid != d.ppid {
		t.Errorf("got %+v, want %+v", got, d)
	}
	if !bytes.Equal(got.payload, d.payload) {
		t.Errorf("payload = %q, want %q", got.payload, d.payload)
	}
	if !got.unordered {
		t.Error("expected parsed chunk to report unordered")
	}
}

func TestParseDataChunkRejectsShortValue(t *testing.T) {
	raw := marshalChunk(ChunkTypeData, 0, []byte{1, 2, 3})
	if _, err := parseDataChunk(raw); err != ErrShortChunk {
		t.Fatalf("err = %v, want ErrShortChunk", err)
	}
}
