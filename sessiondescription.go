package rtcdc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lanikai/rtcdc/internal/sdp"
)

// SessionDescriptionType distinguishes offer, answer, and pranswer the way
// sdpType does internally, but is the name an application passes across
// the signaling channel alongside the SDP text.
type SessionDescriptionType int

const (
	SessionDescriptionOffer SessionDescriptionType = iota
	SessionDescriptionAnswer
	SessionDescriptionPranswer
)

func (t SessionDescriptionType) String() string {
	switch t {
	case SessionDescriptionOffer:
		return "offer"
	case SessionDescriptionAnswer:
		return "answer"
	case SessionDescriptionPranswer:
		return "pranswer"
	default:
		return "unknown"
	}
}

// SessionDescription is the application-facing pairing of an SDP type and
// its text, exactly what gets carried across the out-of-band signaling
// channel.
type SessionDescription struct {
	Type SessionDescriptionType
	SDP  string
}

// dtlsSetup is the a=setup attribute value, RFC 4145/8842.
type dtlsSetup string

const (
	setupActPass dtlsSetup = "actpass"
	setupActive  dtlsSetup = "active"
	setupPassive dtlsSetup = "passive"
)

// mediaDescriptor is the parsed, typed view of the single "m=application"
// section this profile ever negotiates.
type mediaDescriptor struct {
	mid             string
	port            int
	iceUfrag        string
	icePwd          string
	fingerprintAlgo string
	fingerprintHex  string
	setup           dtlsSetup
	sctpPort        int
	maxMessageSize  int
	candidates      []string
	endOfCandidates bool
}

func parseFingerprint(v string) (algo, hex string, err error) {
	fields := strings.Fields(v)
	if len(fields) != 2 {
		return "", "", fmt.Errorf("malformed fingerprint attribute %q", v)
	}
	return fields[0], fields[1], nil
}

func buildOfferSession(pc *PeerConnection) (sdp.Session, error) {
	pc.localSetup = setupActPass
	s := sdp.Session{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionId:      pc.sessionID,
			SessionVersion: pc.nextSessionVersion(),
			NetworkType:    "IN",
			AddressType:    "IP4",
			Address:        "0.0.0.0",
		},
		Name: "-",
	}
	s.AddAttr("group", "BUNDLE "+dataChannelMid)
	s.AddAttr("extmap-allow-mixed", "")
	s.AddAttr("msid-semantic", " WMS")

	m := applicationMediaSection(pc, setupActPass)
	s.Media = []sdp.Media{m}
	return s, nil
}

func buildAnswerSession(pc *PeerConnection, offer *sdp.Session) (sdp.Session, error) {
	if len(offer.Media) != 1 || offer.Media[0].Type != "application" {
		return sdp.Session{}, newError(KindInvalidSDP, fmt.Errorf("offer does not carry exactly one application media section"))
	}

	setup := setupActive
	if v := offer.Media[0].Setup(); v == string(setupActive) {
		setup = setupPassive
	} else if v == string(setupPassive) {
		setup = setupActive
	}
	pc.localSetup = setup

	s := sdp.Session{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionId:      pc.sessionID,
			SessionVersion: pc.nextSessionVersion(),
			NetworkType:    "IN",
			AddressType:    "IP4",
			Address:        "0.0.0.0",
		},
		Name: "-",
	}
	s.AddAttr("group", "BUNDLE "+dataChannelMid)
	s.AddAttr("extmap-allow-mixed", "")
	s.AddAttr("msid-semantic", " WMS")

	m := applicationMediaSection(pc, setup)
	s.Media = []sdp.Media{m}
	return s, nil
}

func applicationMediaSection(pc *PeerConnection, setup dtlsSetup) sdp.Media {
	m := sdp.Media{
		Type:  "application",
		Port:  9,
		Proto: "UDP/DTLS/SCTP",
		Format: []string{
			"webrtc-datachannel",
		},
	}
	m.AddAttr("mid", dataChannelMid)
	m.AddAttr("ice-ufrag", pc.localUfrag)
	m.AddAttr("ice-pwd", pc.localPwd)
	m.AddAttr("fingerprint", "sha-256 "+pc.certificate.Fingerprint())
	m.AddAttr("setup", string(setup))
	m.AddAttr("sctp-port", strconv.Itoa(sctpDefaultPort))
	m.AddAttr("max-message-size", strconv.Itoa(MaxMessageSize))
	for _, c := range pc.localCandidates() {
		m.AddAttr("candidate", c)
	}
	if pc.gatheringDone() {
		m.SetAttr("end-of-candidates", "")
	}
	return m
}

// parseRemoteMedia extracts the typed fields this profile cares about from
// a remote offer or answer's single application media section.
func parseRemoteMedia(session *sdp.Session) (mediaDescriptor, error) {
	if len(session.Media) != 1 {
		return mediaDescriptor{}, newError(KindInvalidSDP, fmt.Errorf("expected exactly one media section, got %d", len(session.Media)))
	}
	m := session.Media[0]
	if m.Type != "application" {
		return mediaDescriptor{}, newError(KindInvalidSDP, fmt.Errorf("expected m=application, got m=%s", m.Type))
	}
	if m.Proto != "UDP/DTLS/SCTP" {
		return mediaDescriptor{}, newError(KindInvalidSDP, fmt.Errorf("unsupported media protocol %q", m.Proto))
	}

	ufrag := m.ICEUfrag()
	if ufrag == "" {
		ufrag = session.GetAttr("ice-ufrag")
	}
	pwd := m.ICEPwd()
	if pwd == "" {
		pwd = session.GetAttr("ice-pwd")
	}
	if ufrag == "" || pwd == "" {
		return mediaDescriptor{}, newError(KindInvalidSDP, fmt.Errorf("missing ice-ufrag/ice-pwd"))
	}

	fp := m.Fingerprint()
	if fp == "" {
		fp = session.GetAttr("fingerprint")
	}
	algo, hex, err := parseFingerprint(fp)
	if err != nil {
		return mediaDescriptor{}, newError(KindInvalidSDP, err)
	}

	desc := mediaDescriptor{
		mid:             m.Mid(),
		port:            m.Port,
		iceUfrag:        ufrag,
		icePwd:          pwd,
		fingerprintAlgo: algo,
		fingerprintHex:  hex,
		setup:           dtlsSetup(m.Setup()),
		sctpPort:        m.SCTPPort(),
		maxMessageSize:  m.MaxMessageSize(),
		candidates:      m.Candidates(),
		endOfCandidates: m.HasAttr("end-of-candidates"),
	}
	return desc, nil
}

// resolveDTLSRole decides which side runs the DTLS handshake as client vs
// server once both descriptions are applied. The offerer always sends
// setup:actpass, deferring the choice to whatever the answer commits to; the
// answerer already committed to active or passive when buildAnswerSession
// built its local description, so its role comes directly from that local
// choice rather than from the offer's (legitimately actpass) remote value.
func resolveDTLSRole(isOfferer bool, localSetup, remoteAnswerSetup dtlsSetup) (role string, err error) {
	if !isOfferer {
		switch localSetup {
		case setupActive:
			return "client", nil
		case setupPassive:
			return "server", nil
		default:
			return "", newError(KindInvalidSDP, fmt.Errorf("answerer's own setup must not be actpass, got %q", localSetup))
		}
	}

	switch remoteAnswerSetup {
	case setupActive:
		return "server", nil
	case setupPassive:
		return "client", nil
	case setupActPass, "":
		return "", newError(KindInvalidSDP, fmt.Errorf("answer must not leave setup as actpass"))
	default:
		return "", newError(KindInvalidSDP, fmt.Errorf("unrecognized setup value %q", remoteAnswerSetup))
	}
}
