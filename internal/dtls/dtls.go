// Package dtls implements a reduced DTLS 1.2 handshake and record layer
// (RFC 6347) for securing a single ICE-selected UDP datagram path. Only what
// a WebRTC data channel needs is implemented: ECDHE key exchange, a single
// AEAD cipher per role combination, and self-signed certificate
// authentication verified against an SDP fingerprint rather than a CA chain.
//
// Both client and server sides are modeled as a Conn state machine with two
// entry points, per the event-driven design this package follows: FeedInput
// consumes bytes read from the socket and returns any records that should be
// written back, and Tick drives flight retransmission and other time-based
// transitions. Neither method spawns a goroutine; a single caller-owned loop
// is expected to read the socket and call Tick on a regular interval.
package dtls

import (
	"github.com/lanikai/rtcdc/internal/logging"
)

var log = logging.DefaultLogger.WithTag("dtls")

// ContentType identifies the payload of a DTLS record.
type ContentType uint8

const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
)

// HandshakeType identifies a handshake message within a handshake record.
type HandshakeType uint8

const (
	HandshakeTypeHelloRequest       HandshakeType = 0
	HandshakeTypeClientHello        HandshakeType = 1
	HandshakeTypeServerHello        HandshakeType = 2
	HandshakeTypeHelloVerifyRequest HandshakeType = 3
	HandshakeTypeCertificate        HandshakeType = 11
	HandshakeTypeServerKeyExchange  HandshakeType = 12
	HandshakeTypeCertificateRequest HandshakeType = 13
	HandshakeTypeServerHelloDone    HandshakeType = 14
	HandshakeTypeCertificateVerify  HandshakeType = 15
	HandshakeTypeClientKeyExchange  HandshakeType = 16
	HandshakeTypeFinished           HandshakeType = 20
)

// ExtensionType identifies a ClientHello/ServerHello extension.
type ExtensionType uint16

const (
	ExtensionSignatureAlgorithms ExtensionType = 13
	ExtensionSupportedGroups     ExtensionType = 10
	ExtensionECPointFormats      ExtensionType = 11
	ExtensionExtendedMasterSecret ExtensionType = 23
	ExtensionRenegotiationInfo   ExtensionType = 0xff01
)

// CipherSuite is the two-byte wire identifier of a TLS/DTLS cipher suite.
type CipherSuite uint16

const (
	// Minimum mandatory set per the data-channel DTLS profile. Both use
	// AES-128-GCM record protection and differ only in the server's
	// certificate/signature algorithm (ECDSA P-256 vs RSA).
	TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256 CipherSuite = 0xC02B
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256   CipherSuite = 0xC02F
)

// NamedCurve identifies an elliptic curve group. Only secp256r1 is
// implemented; it is also the only curve advertised.
type NamedCurve uint16

const NamedCurveSecp256r1 NamedCurve = 23

// SignatureScheme pairs a hash and signature algorithm, as carried in the
// signature_algorithms extension and CertificateVerify/ServerKeyExchange.
type SignatureScheme uint16

const (
	SignatureSchemeECDSAWithP256AndSHA256 SignatureScheme = 0x0403
	SignatureSchemeRSAPKCS1WithSHA256     SignatureScheme = 0x0401
)

// CompressionMethod is always null in this profile.
const compressionMethodNull = 0

// protocolVersion is DTLS 1.2, encoded per RFC 6347 as the one's complement
// of the TLS 1.2 version number.
type protocolVersion struct {
	major, minor uint8
}

var versionDTLS1_2 = protocolVersion{254, 253}

// Role distinguishes the two handshake roles. The offerer/answerer's
// a=setup negotiation (outside this package) determines which role a given
// connection uses.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// State is the coarse handshake/record state of a Conn.
type State int

const (
	StateNew State = iota
	StateHandshaking
	StateConnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
