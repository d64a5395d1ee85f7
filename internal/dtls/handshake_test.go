package dtls

import (
	"bytes"
	"testing"
)

func TestMarshalParseHandshakeMessageRoundTrip(t *testing.T) {
	body := []byte("a handshake body")
	msg := marshalHandshake(HandshakeTypeClientHello, 7, body)

	parsed, rest, err := parseHandshakeMessage(msg)
	if err != nil {
		t.Fatalf("parseHandshakeMessage: %v", err)
	}
	if len(rest) != 0 {
		t.Errorf("rest = %d bytes, want 0", len(rest))
	}
	if parsed.header.msgType != HandshakeTypeClientHello {
		t.Errorf("msgType = %d, want ClientHello", parsed.header.msgType)
	}
	if parsed.header.messageSeq != 7 {
		t.Errorf("messageSeq = %d, want 7", parsed.header.messageSeq)
	}
	if parsed.header.fragmentOffset != 0 || parsed.header.fragmentLength != uint32(len(body)) {
		t.Errorf("unexpected fragment offset/length: %+v", parsed.header)
	}
	if !bytes.Equal(parsed.body, body) {
		t.Errorf("body = %q, want %q", parsed.body, body)
	}
}

func TestParseHandshakeMessageConcatenated(t *testing.T) {
	m1 := marshalHandshake(HandshakeTypeCertificate, 0, []byte("first"))
	m2 := marshalHandshake(HandshakeTypeServerHelloDone, 1, nil)

	buf := append(append([]byte{}, m1...), m2...)

	first, rest, err := parseHandshakeMessage(buf)
	if err != nil {
		t.Fatalf("parseHandshakeMessage(first): %v", err)
	}
	if first.header.msgType != HandshakeTypeCertificate {
		t.Fatalf("first msgType = %d, want Certificate", first.header.msgType)
	}

	second, rest, err := parseHandshakeMessage(rest)
	if err != nil {
		t.Fatalf("parseHandshakeMessage(second): %v", err)
	}
	if second.header.msgType != HandshakeTypeServerHelloDone {
		t.Fatalf("second msgType = %d, want ServerHelloDone", second.header.msgType)
	}
	if len(rest) != 0 {
		t.Errorf("trailing rest = %d bytes, want 0", len(rest))
	}
}

func TestReassemblerSingleFragmentMessage(t *testing.T) {
	ra := newReassembler()
	h := handshakeHeader{msgType: HandshakeTypeFinished, length: 5, messageSeq: 3, fragmentOffset: 0, fragmentLength: 5}

	gotHeader, body, ok := ra.add(h, []byte("hello"))
	if !ok {
		t.Fatal("expected single-fragment message to complete immediately")
	}
	if gotHeader.msgType != HandshakeTypeFinished || gotHeader.messageSeq != 3 {
		t.Errorf("unexpected header: %+v", gotHeader)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}
}

func TestReassemblerMultiFragmentOutOfOrder(t *testing.T) {
	ra := newReassembler()
	full := []byte("0123456789")

	// Second half arrives first.
	h2 := handshakeHeader{msgType: HandshakeTypeCertificate, length: uint32(len(full)), messageSeq: 1, fragmentOffset: 5, fragmentLength: 5}
	if _, _, ok := ra.add(h2, full[5:]); ok {
		t.Fatal("message should not be complete after only the second fragment")
	}

	h1 := handshakeHeader{msgType: HandshakeTypeCertificate, length: uint32(len(full)), messageSeq: 1, fragmentOffset: 0, fragmentLength: 5}
	header, body, ok := ra.add(h1, full[:5])
	if !ok {
		t.Fatal("message should be complete once both fragments are in")
	}
	if !bytes.Equal(body, full) {
		t.Errorf("reassembled body = %q, want %q", body, full)
	}
	if header.messageSeq != 1 {
		t.Errorf("messageSeq = %d, want 1", header.messageSeq)
	}
}

func TestReassemblerTracksIndependentMessageSeqs(t *testing.T) {
	ra := newReassembler()
	h0 := handshakeHeader{msgType: HandshakeTypeServerHello, length: 3, messageSeq: 0, fragmentOffset: 0, fragmentLength: 3}
	h1 := handshakeHeader{msgType: HandshakeTypeCertificate, length: 3, messageSeq: 1, fragmentOffset: 0, fragmentLength: 3}

	if _, _, ok := ra.add(h0, []byte("abc")); !ok {
		t.Fatal("message_seq 0 should complete on its own fragment")
	}
	if _, _, ok := ra.add(h1, []byte("xyz")); !ok {
		t.Fatal("message_seq 1 should complete independently of message_seq 0")
	}
}
