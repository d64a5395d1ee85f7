package rtcdc

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lanikai/rtcdc/internal/ice"
)

// These tests exercise a real loopback connection: two in-process
// PeerConnections signaled over nothing fancier than direct Go function
// calls acting as the "in-memory relay," but carrying their traffic over
// actual UDP sockets, a real DTLS handshake, and a real SCTP association.
// Nothing here is mocked; EstablishConnection, the DTLS handshake, and the
// SCTP four-way handshake all run for real, same as spec.md §8 describes.

const e2eTimeout = 15 * time.Second

// newSignalingPair builds two unconnected PeerConnections with their ICE
// candidate trickling already cross-wired to each other, the way an
// application's signaling layer would relay candidates as they arrive.
func newSignalingPair(t *testing.T) (offerer, answerer *PeerConnection, offererEvents, answererEvents *Events) {
	t.Helper()

	offererEvents = &Events{}
	answererEvents = &Events{}

	var err error
	offerer, err = NewPeerConnection(Configuration{ICEUseIPv4: true}, offererEvents)
	require.NoError(t, err)
	answerer, err = NewPeerConnection(Configuration{ICEUseIPv4: true}, answererEvents)
	require.NoError(t, err)

	offererEvents.OnICECandidate = func(c *ice.Candidate) {
		if c == nil {
			return
		}
		_ = answerer.AddICECandidate(c.String(), "0")
	}
	answererEvents.OnICECandidate = func(c *ice.Candidate) {
		if c == nil {
			return
		}
		_ = offerer.AddICECandidate(c.String(), "0")
	}

	t.Cleanup(func() {
		_ = offerer.Close()
		_ = answerer.Close()
	})

	return offerer, answerer, offererEvents, answererEvents
}

// signalOfferAnswer drives a complete offer/answer exchange between two
// PeerConnections, applying sdpMutate (if non-nil) to the answer's SDP text
// before it reaches the offerer, to let individual tests corrupt it.
func signalOfferAnswer(t *testing.T, offerer, answerer *PeerConnection, sdpMutate func(answerSDP string) string) {
	t.Helper()

	offer, err := offerer.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, offerer.SetLocalDescription(offer))

	require.NoError(t, answerer.SetRemoteDescription(SessionDescription{
		Type: SessionDescriptionOffer,
		SDP:  offer.SDP,
	}))

	answer, err := answerer.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, answerer.SetLocalDescription(answer))

	answerSDP := answer.SDP
	if sdpMutate != nil {
		answerSDP = sdpMutate(answerSDP)
	}
	require.NoError(t, offerer.SetRemoteDescription(SessionDescription{
		Type: SessionDescriptionAnswer,
		SDP:  answerSDP,
	}))
}

func waitForConnectionState(t *testing.T, pc *PeerConnection, want PeerConnectionState) {
	t.Helper()
	deadline := time.After(e2eTimeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if got := pc.ConnectionState(); got == want {
			return
		}
		select {
		case <-ticker.C:
		case <-deadline:
			t.Fatalf("timed out waiting for connection state %s, last seen %s", want, pc.ConnectionState())
		}
	}
}

func waitForDataChannelState(t *testing.T, dc *DataChannel, want DataChannelState) {
	t.Helper()
	deadline := time.After(e2eTimeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		if got := dc.ReadyState(); got == want {
			return
		}
		select {
		case <-ticker.C:
		case <-deadline:
			t.Fatalf("timed out waiting for data channel state %s, last seen %s", want, dc.ReadyState())
		}
	}
}

// TestEndToEndDataChannelDelivery covers spec.md §8's "successful exchange"
// scenario: an offerer-created channel reaches both OnOpen callbacks and a
// message sent on it is delivered to the remote side.
func TestEndToEndDataChannelDelivery(t *testing.T) {
	offerer, answerer, _, answererEvents := newSignalingPair(t)

	dc, err := offerer.CreateDataChannel("chat", DataChannelInit{})
	require.NoError(t, err)

	received := make(chan []byte, 1)
	answererEvents.OnDataChannel = func(remote *DataChannel) {
		remote.OnMessage(func(data []byte) {
			received <- data
		})
	}

	signalOfferAnswer(t, offerer, answerer, nil)

	// PeerConnectionStateConnected only fires once the SCTP association
	// itself reaches StateEstablished, which is all Send needs.
	waitForConnectionState(t, offerer, PeerConnectionStateConnected)
	waitForConnectionState(t, answerer, PeerConnectionStateConnected)

	require.NoError(t, dc.Send([]byte("hello")))

	select {
	case data := <-received:
		require.Equal(t, "hello", string(data))
	case <-time.After(e2eTimeout):
		t.Fatal("timed out waiting for message delivery")
	}
}

// TestEndToEndFingerprintMismatchFails covers spec.md §8's fingerprint-
// mismatch scenario: if the answer's a=fingerprint is corrupted in transit,
// the offerer's DTLS handshake must reject the peer certificate and the
// connection must reach PeerConnectionStateFailed with a classified
// KindDTLSFingerprintMismatch error surfaced through both LastError and
// Events.OnError.
func TestEndToEndFingerprintMismatchFails(t *testing.T) {
	offerer, answerer, offererEvents, _ := newSignalingPair(t)

	fingerprintRE := regexp.MustCompile(`a=fingerprint:sha-256 [0-9A-Fa-f:]+`)
	const bogusFingerprint = "a=fingerprint:sha-256 " +
		"00:11:22:33:44:55:66:77:88:99:AA:BB:CC:DD:EE:FF:" +
		"00:11:22:33:44:55:66:77:88:99:AA:BB:CC:DD:EE:FF"
	corrupt := func(sdp string) string {
		return fingerprintRE.ReplaceAllString(sdp, bogusFingerprint)
	}

	var gotErr *Error
	errCh := make(chan *Error, 1)
	offererEvents.OnError = func(err *Error) {
		select {
		case errCh <- err:
		default:
		}
	}

	signalOfferAnswer(t, offerer, answerer, corrupt)

	waitForConnectionState(t, offerer, PeerConnectionStateFailed)

	select {
	case gotErr = <-errCh:
	case <-time.After(e2eTimeout):
		t.Fatal("timed out waiting for Events.OnError")
	}
	require.NotNil(t, gotErr)
	require.Equal(t, KindDTLSFingerprintMismatch, gotErr.Kind)

	last := offerer.LastError()
	require.NotNil(t, last)
	require.Equal(t, KindDTLSFingerprintMismatch, last.Kind)
}

// TestEndToEndGracefulClose covers spec.md §8's graceful-close scenario: a
// locally-closed channel's outgoing stream transitions to closed once the
// peer's RE-CONFIG response is observed.
func TestEndToEndGracefulClose(t *testing.T) {
	offerer, answerer, _, _ := newSignalingPair(t)

	dc, err := offerer.CreateDataChannel("closing", DataChannelInit{})
	require.NoError(t, err)

	signalOfferAnswer(t, offerer, answerer, nil)

	waitForConnectionState(t, offerer, PeerConnectionStateConnected)
	waitForConnectionState(t, answerer, PeerConnectionStateConnected)
	waitForDataChannelState(t, dc, DataChannelStateOpen)

	require.NoError(t, dc.Close())
	waitForDataChannelState(t, dc, DataChannelStateClosed)

	require.NoError(t, offerer.Close())
	require.NoError(t, answerer.Close())
	require.Equal(t, PeerConnectionStateClosed, offerer.ConnectionState())
	require.Equal(t, PeerConnectionStateClosed, answerer.ConnectionState())
}
