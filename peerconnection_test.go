package rtcdc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPeerConnectionInitialState(t *testing.T) {
	pc, err := NewPeerConnection(Configuration{}, nil)
	require.NoError(t, err)
	defer pc.Close()

	assert.Equal(t, SignalingStateStable, pc.SignalingState())
	assert.Equal(t, ICEConnectionStateNew, pc.ICEConnectionState())
	assert.Equal(t, PeerConnectionStateNew, pc.ConnectionState())
	assert.NotEmpty(t, pc.localUfrag)
	assert.NotEmpty(t, pc.localPwd)
	assert.NotNil(t, pc.certificate)
}

func TestNewPeerConnectionRejectsBadConfig(t *testing.T) {
	_, err := NewPeerConnection(Configuration{ICEPortRangeMin: 100, ICEPortRangeMax: 10}, nil)
	require.Error(t, err)
}

func TestCreateOfferProducesOfferSDP(t *testing.T) {
	pc, err := NewPeerConnection(Configuration{}, nil)
	require.NoError(t, err)
	defer pc.Close()

	offer, err := pc.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, SessionDescriptionOffer, offer.Type)
	assert.Contains(t, offer.SDP, "m=application")
	assert.Contains(t, offer.SDP, "a=setup:actpass")
}

func TestCreateAnswerRequiresRemoteOffer(t *testing.T) {
	pc, err := NewPeerConnection(Configuration{}, nil)
	require.NoError(t, err)
	defer pc.Close()

	_, err = pc.CreateAnswer()
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindInvalidState, rerr.Kind)
}

func TestSetLocalDescriptionAdvancesSignalingState(t *testing.T) {
	var gotStates []SignalingState
	events := &Events{OnSignalingStateChange: func(s SignalingState) { gotStates = append(gotStates, s) }}

	pc, err := NewPeerConnection(Configuration{}, events)
	require.NoError(t, err)
	defer pc.Close()

	offer, err := pc.CreateOffer()
	require.NoError(t, err)

	require.NoError(t, pc.SetLocalDescription(offer))
	assert.Equal(t, SignalingStateHaveLocalOffer, pc.SignalingState())
	require.Len(t, gotStates, 1)
	assert.Equal(t, SignalingStateHaveLocalOffer, gotStates[0])
}

func TestOfferAnswerExchangeReachesStable(t *testing.T) {
	offerer, err := NewPeerConnection(Configuration{}, nil)
	require.NoError(t, err)
	defer offerer.Close()

	answerer, err := NewPeerConnection(Configuration{}, nil)
	require.NoError(t, err)
	defer answerer.Close()

	offer, err := offerer.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, offerer.SetLocalDescription(offer))

	require.NoError(t, answerer.SetRemoteDescription(offer))
	assert.Equal(t, SignalingStateHaveRemoteOffer, answerer.SignalingState())

	answer, err := answerer.CreateAnswer()
	require.NoError(t, err)
	require.NoError(t, answerer.SetLocalDescription(answer))
	assert.Equal(t, SignalingStateStable, answerer.SignalingState())

	require.NoError(t, offerer.SetRemoteDescription(answer))
	assert.Equal(t, SignalingStateStable, offerer.SignalingState())
}

func TestAllocateStreamIDRespectsOffererParity(t *testing.T) {
	offerer := &PeerConnection{isOfferer: true}
	a := offerer.allocateStreamID()
	b := offerer.allocateStreamID()
	assert.EqualValues(t, 0, a)
	assert.EqualValues(t, 2, b)

	answerer := &PeerConnection{isOfferer: false}
	a = answerer.allocateStreamID()
	b = answerer.allocateStreamID()
	assert.EqualValues(t, 1, a)
	assert.EqualValues(t, 3, b)
}

func TestCreateDataChannelBeforeConnectQueuesNegotiation(t *testing.T) {
	var negotiationNeeded bool
	events := &Events{OnNegotiationNeeded: func() { negotiationNeeded = true }}

	pc, err := NewPeerConnection(Configuration{}, events)
	require.NoError(t, err)
	defer pc.Close()

	dc, err := pc.CreateDataChannel("t", DataChannelInit{})
	require.NoError(t, err)
	assert.Equal(t, "t", dc.Label())
	assert.True(t, negotiationNeeded)
}

func TestCloseIsIdempotent(t *testing.T) {
	pc, err := NewPeerConnection(Configuration{}, nil)
	require.NoError(t, err)

	require.NoError(t, pc.Close())
	require.NoError(t, pc.Close())
	assert.Equal(t, PeerConnectionStateClosed, pc.ConnectionState())
	assert.Equal(t, SignalingStateClosed, pc.SignalingState())
}
