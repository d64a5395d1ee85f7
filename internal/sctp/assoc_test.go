package sctp

import (
	"bytes"
	"testing"
	"time"
)

var fixedNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func driveAssocHandshake(t *testing.T, client, server *Association) {
	t.Helper()

	toServer, err := client.Start(fixedNow)
	if err != nil {
		t.Fatalf("client.Start: %v", err)
	}

	for round := 0; round < 10; round++ {
		if client.State() == StateEstablished && server.State() == StateEstablished {
			return
		}

		var toClient [][]byte
		for _, pkt := range toServer {
			send, _, err := server.FeedInput(pkt, fixedNow)
			if err != nil {
				t.Fatalf("server.FeedInput (round %d): %v", round, err)
			}
			toClient = append(toClient, send...)
		}
		toServer = nil
		for _, pkt := range toClient {
			send, _, err := client.FeedInput(pkt, fixedNow)
			if err != nil {
				t.Fatalf("client.FeedInput (round %d): %v", round, err)
			}
			toServer = append(toServer, send...)
		}

		if client.State() == StateEstablished && server.State() == StateEstablished {
			return
		}
	}
	t.Fatalf("handshake did not establish: client=%s server=%s", client.State(), server.State())
}

func newTestPair() (*Association, *Association) {
	client := NewAssociation(Config{Role: RoleClient, LocalPort: 5000, RemotePort: 5000})
	server := NewAssociation(Config{Role: RoleServer, LocalPort: 5000, RemotePort: 5000})
	return client, server
}

func TestAssociationHandshake(t *testing.T) {
	client, server := newTestPair()
	driveAssocHandshake(t, client, server)

	if client.localTag == 0 || server.localTag == 0 {
		t.Error("expected nonzero local verification tags")
	}
	if client.remoteTag != server.localTag {
		t.Errorf("client.remoteTag = %d, want %d (server's tag)", client.remoteTag, server.localTag)
	}
	if server.remoteTag != client.localTag {
		t.Errorf("server.remoteTag = %d, want %d (client's tag)", server.remoteTag, client.localTag)
	}
}

func TestAssociationDataRoundTrip(t *testing.T) {
	client, server := newTestPair()
	driveAssocHandshake(t, client, server)

	payload := []byte("unordered datagram")
	pkt, err := client.WriteMessage(3, PPIDBinary, payload)
	if err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	_, msgs, err := server.FeedInput(pkt, fixedNow)
	if err != nil {
		t.Fatalf("server.FeedInput: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].StreamID != 3 || msgs[0].PPID != PPIDBinary || !bytes.Equal(msgs[0].Data, payload) {
		t.Errorf("got %+v, want streamID=3 ppid=%d data=%q", msgs[0], PPIDBinary, payload)
	}

	// SACK is never produced for DATA.
	toSend, _, err := server.FeedInput(pkt, fixedNow)
	if err != nil {
		t.Fatalf("server.FeedInput (duplicate): %v", err)
	}
	if len(toSend) != 0 {
		t.Errorf("expected no chunks sent in response to DATA, got %d", len(toSend))
	}
}

func TestAssociationRejectsPayloadOverMTU(t *testing.T) {
	client, server := newTestPair()
	driveAssocHandshake(t, client, server)

	_, err := client.WriteMessage(0, PPIDBinary, make([]byte, userDataMTU+1))
	if err != ErrPayloadTooLarge {
		t.Fatalf("err = %v, want ErrPayloadTooLarge", err)
	}
}

func TestAssociationRejectsDataBeforeEstablished(t *testing.T) {
	client, _ := newTestPair()
	if _, err := client.WriteMessage(0, PPIDBinary, []byte("x")); err != ErrNotEstablished {
		t.Fatalf("err = %v, want ErrNotEstablished", err)
	}
}

func TestAssociationRejectsWrongVerificationTag(t *testing.T) {
	client, server := newTestPair()
	driveAssocHandshake(t, client, server)

	pkt, err := client.WriteMessage(0, PPIDBinary, []byte("hi"))
	if err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	tampered := append([]byte{}, pkt...)
	tampered[4] ^= 0xFF // corrupt one byte of the verification tag
	// Recompute the checksum so the tag corruption is the only thing wrong.
	fixed, err := recomputeChecksum(tampered)
	if err != nil {
		t.Fatalf("recomputeChecksum: %v", err)
	}

	if _, _, err := server.FeedInput(fixed, fixedNow); err != ErrVerificationTag {
		t.Fatalf("err = %v, want ErrVerificationTag", err)
	}
}

// recomputeChecksum rewrites a packet's CRC32c after the test has
// deliberately corrupted some other field, so checksum validation doesn't
// mask the field corruption under test.
func recomputeChecksum(pkt []byte) ([]byte, error) {
	h, chunks, err := parsePacketIgnoringChecksum(pkt)
	if err != nil {
		return nil, err
	}
	return marshalPacket(h, chunks), nil
}

func parsePacketIgnoringChecksum(buf []byte) (commonHeader, [][]byte, error) {
	if len(buf) < commonHeaderLength {
		return commonHeader{}, nil, ErrShortPacket
	}
	h := commonHeader{
		srcPort:         beUint16(buf[0:2]),
		dstPort:         beUint16(buf[2:4]),
		verificationTag: beUint32(buf[4:8]),
	}
	chunks, err := splitChunks(buf[commonHeaderLength:])
	return h, chunks, err
}

func beUint16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func TestAssociationStaleCookieRejected(t *testing.T) {
	client, server := newTestPair()

	toServer, err := client.Start(fixedNow)
	if err != nil {
		t.Fatalf("client.Start: %v", err)
	}
	toClient, _, err := server.FeedInput(toServer[0], fixedNow)
	if err != nil {
		t.Fatalf("server.FeedInput(INIT): %v", err)
	}
	toServer, _, err = client.FeedInput(toClient[0], fixedNow)
	if err != nil {
		t.Fatalf("client.FeedInput(INIT_ACK): %v", err)
	}

	// Replay the COOKIE_ECHO long after the cookie's validity window.
	stale := fixedNow.Add(2 * time.Minute)
	toClient, _, err = server.FeedInput(toServer[0], stale)
	if err != nil {
		t.Fatalf("server.FeedInput(COOKIE_ECHO): %v", err)
	}
	if server.State() == StateEstablished {
		t.Fatal("server should not establish on a stale cookie")
	}
	if len(toClient) == 0 {
		t.Fatal("expected an ERROR chunk in response to a stale cookie")
	}
	_, chunks, err := parsePacket(toClient[0])
	if err != nil {
		t.Fatalf("parsePacket(error response): %v", err)
	}
	if len(chunks) != 1 || chunkType(chunks[0]) != ChunkTypeError {
		t.Fatalf("expected a single ERROR chunk, got %v", chunks)
	}
}

func TestAssociationShutdown(t *testing.T) {
	client, server := newTestPair()
	driveAssocHandshake(t, client, server)

	toServer, err := client.Shutdown(fixedNow)
	if err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if client.State() != StateShutdownSent {
		t.Fatalf("client state = %s, want shutdown-sent", client.State())
	}

	var toClient [][]byte
	for _, pkt := range toServer {
		send, _, err := server.FeedInput(pkt, fixedNow)
		if err != nil {
			t.Fatalf("server.FeedInput(SHUTDOWN): %v", err)
		}
		toClient = append(toClient, send...)
	}
	if server.State() != StateShutdownAckSent {
		t.Fatalf("server state = %s, want shutdown-ack-sent", server.State())
	}

	for _, pkt := range toClient {
		if _, _, err := client.FeedInput(pkt, fixedNow); err != nil {
			t.Fatalf("client.FeedInput(SHUTDOWN_ACK): %v", err)
		}
	}
	if client.State() != StateClosed {
		t.Fatalf("client state = %s, want closed", client.State())
	}
}

func TestAssociationCloseOutgoingStreamReconfig(t *testing.T) {
	client, server := newTestPair()
	driveAssocHandshake(t, client, server)

	pkt, err := client.RequestCloseOutgoingStream(fixedNow, 2)
	if err != nil {
		t.Fatalf("RequestCloseOutgoingStream: %v", err)
	}

	toClient, _, err := server.FeedInput(pkt, fixedNow)
	if err != nil {
		t.Fatalf("server.FeedInput(RE-CONFIG): %v", err)
	}
	if len(toClient) != 1 {
		t.Fatalf("expected a single RE-CONFIG response packet, got %d", len(toClient))
	}

	if _, _, err := client.FeedInput(toClient[0], fixedNow); err != nil {
		t.Fatalf("client.FeedInput(RE-CONFIG response): %v", err)
	}
	if len(client.pendingReconfig) != 0 {
		t.Error("expected the pending reconfiguration request to be cleared after the response arrived")
	}
}

func TestTSNGreater(t *testing.T) {
	if !tsnGreater(5, 4) {
		t.Error("5 should be greater than 4")
	}
	if tsnGreater(4, 5) {
		t.Error("4 should not be greater than 5")
	}
	if tsnGreater(1, 1) {
		t.Error("a TSN should not be greater than itself")
	}
	// Wraparound: 0 is "greater" than the maximum uint32 value.
	if !tsnGreater(0, 0xFFFFFFFF) {
		t.Error("0 should be greater than 2^32-1 under modulo-32 comparison")
	}
}
