package rtcdc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/rtcdc/internal/sdp"
)

func newTestPeerConnection(t *testing.T) *PeerConnection {
	t.Helper()
	cert, err := GenerateCertificate()
	require.NoError(t, err)
	return &PeerConnection{
		certificate: cert,
		sessionID:   "12345",
		localUfrag:  "ufrag",
		localPwd:    "password1234567890password",
		channels:    make(map[uint16]*DataChannel),
	}
}

func TestParseFingerprint(t *testing.T) {
	algo, hex, err := parseFingerprint("sha-256 AA:BB:CC")
	require.NoError(t, err)
	assert.Equal(t, "sha-256", algo)
	assert.Equal(t, "AA:BB:CC", hex)

	_, _, err = parseFingerprint("malformed")
	assert.Error(t, err)
}

func TestBuildOfferSessionContainsExpectedAttributes(t *testing.T) {
	pc := newTestPeerConnection(t)
	s, err := buildOfferSession(pc)
	require.NoError(t, err)
	require.Len(t, s.Media, 1)

	m := s.Media[0]
	assert.Equal(t, "application", m.Type)
	assert.Equal(t, "UDP/DTLS/SCTP", m.Proto)
	assert.Equal(t, dataChannelMid, m.Mid())
	assert.Equal(t, "ufrag", m.ICEUfrag())
	assert.Equal(t, string(setupActPass), m.Setup())
	assert.True(t, strings.HasPrefix(m.Fingerprint(), "sha-256 "))
}

func TestBuildAnswerSessionFlipsSetup(t *testing.T) {
	offerer := newTestPeerConnection(t)
	offer, err := buildOfferSession(offerer)
	require.NoError(t, err)

	answerer := newTestPeerConnection(t)
	answer, err := buildAnswerSession(answerer, &offer)
	require.NoError(t, err)
	require.Len(t, answer.Media, 1)
	assert.Equal(t, string(setupActive), answer.Media[0].Setup())
}

func TestBuildAnswerSessionRejectsWrongMediaCount(t *testing.T) {
	answerer := newTestPeerConnection(t)
	badOffer := sdp.Session{Media: []sdp.Media{{Type: "application"}, {Type: "application"}}}
	_, err := buildAnswerSession(answerer, &badOffer)
	assert.Error(t, err)
}

func TestParseRemoteMediaRoundTrip(t *testing.T) {
	pc := newTestPeerConnection(t)
	offer, err := buildOfferSession(pc)
	require.NoError(t, err)

	desc, err := parseRemoteMedia(&offer)
	require.NoError(t, err)
	assert.Equal(t, "ufrag", desc.iceUfrag)
	assert.Equal(t, "password1234567890password", desc.icePwd)
	assert.Equal(t, "sha-256", desc.fingerprintAlgo)
	assert.Equal(t, dtlsSetup("actpass"), desc.setup)
	assert.Equal(t, sctpDefaultPort, desc.sctpPort)
}

func TestParseRemoteMediaRejectsNonApplicationSection(t *testing.T) {
	s := sdp.Session{Media: []sdp.Media{{Type: "audio", Proto: "UDP/DTLS/SCTP"}}}
	_, err := parseRemoteMedia(&s)
	assert.Error(t, err)
}

func TestResolveDTLSRole(t *testing.T) {
	// Answerer: role follows its own committed local setup, not the
	// offer's (legitimately actpass) remote value.
	role, err := resolveDTLSRole(false, setupActive, setupActPass)
	require.NoError(t, err)
	assert.Equal(t, "client", role)

	role, err = resolveDTLSRole(false, setupPassive, setupActPass)
	require.NoError(t, err)
	assert.Equal(t, "server", role)

	// Offerer: role follows the answer's committed remote value.
	role, err = resolveDTLSRole(true, setupActPass, setupActive)
	require.NoError(t, err)
	assert.Equal(t, "server", role)

	role, err = resolveDTLSRole(true, setupActPass, setupPassive)
	require.NoError(t, err)
	assert.Equal(t, "client", role)

	_, err = resolveDTLSRole(true, setupActPass, setupActPass)
	assert.Error(t, err)

	_, err = resolveDTLSRole(false, setupActPass, setupActPass)
	assert.Error(t, err)
}
