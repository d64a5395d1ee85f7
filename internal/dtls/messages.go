package dtls

import (
	"encoding/binary"
	"time"

	"github.com/lanikai/rtcdc/internal/packet"
)

const randomLength = 32

type handshakeRandom struct {
	gmtUnixTime uint32
	opaque      [28]byte
}

func newRandom(now time.Time, rnd [28]byte) handshakeRandom {
	return handshakeRandom{gmtUnixTime: uint32(now.Unix()), opaque: rnd}
}

func (r handshakeRandom) marshal() []byte {
	b := make([]byte, randomLength)
	binary.BigEndian.PutUint32(b[0:4], r.gmtUnixTime)
	copy(b[4:32], r.opaque[:])
	return b
}

func parseRandom(r *packet.Reader) handshakeRandom {
	var out handshakeRandom
	out.gmtUnixTime = r.ReadUint32()
	copy(out.opaque[:], r.ReadSlice(28))
	return out
}

// opaque8 appends a 1-byte-length-prefixed field.
func opaque8(b []byte, data []byte) []byte {
	b = append(b, byte(len(data)))
	return append(b, data...)
}

func opaque16(b []byte, data []byte) []byte {
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(data)))
	b = append(b, l[:]...)
	return append(b, data...)
}

func opaque24(b []byte, data []byte) []byte {
	var l [3]byte
	l[0] = byte(len(data) >> 16)
	l[1] = byte(len(data) >> 8)
	l[2] = byte(len(data))
	b = append(b, l[:]...)
	return append(b, data...)
}

// ---- ClientHello ----

type clientHello struct {
	random             handshakeRandom
	sessionID          []byte
	cookie             []byte
	cipherSuites       []CipherSuite
	compressionMethods []uint8
	extensions         []extension
}

func (ch clientHello) marshal() []byte {
	b := make([]byte, 0, 256)
	b = append(b, versionDTLS1_2.major, versionDTLS1_2.minor)
	b = append(b, ch.random.marshal()...)
	b = opaque8(b, ch.sessionID)
	b = opaque8(b, ch.cookie)

	suites := make([]byte, 2*len(ch.cipherSuites))
	for i, cs := range ch.cipherSuites {
		binary.BigEndian.PutUint16(suites[2*i:], uint16(cs))
	}
	b = opaque16(b, suites)
	b = opaque8(b, ch.compressionMethods)
	b = append(b, marshalExtensions(ch.extensions)...)
	return b
}

func parseClientHello(body []byte) (clientHello, error) {
	r := packet.NewReader(body)
	if err := r.CheckRemaining(2 + randomLength + 1); err != nil {
		return clientHello{}, ErrShortHandshake
	}
	r.Skip(2) // version
	ch := clientHello{random: parseRandom(r)}

	sidLen := int(r.ReadByte())
	ch.sessionID = r.ReadSlice(sidLen)

	cookieLen := int(r.ReadByte())
	ch.cookie = r.ReadSlice(cookieLen)

	suitesLen := int(r.ReadUint16())
	for i := 0; i < suitesLen/2; i++ {
		ch.cipherSuites = append(ch.cipherSuites, CipherSuite(r.ReadUint16()))
	}

	compLen := int(r.ReadByte())
	ch.compressionMethods = r.ReadSlice(compLen)

	exts, err := parseExtensions(r)
	if err != nil {
		return clientHello{}, err
	}
	ch.extensions = exts
	return ch, nil
}

// ---- HelloVerifyRequest ----

func marshalHelloVerifyRequest(cookie []byte) []byte {
	b := []byte{versionDTLS1_2.major, versionDTLS1_2.minor}
	return opaque8(b, cookie)
}

func parseHelloVerifyRequest(body []byte) ([]byte, error) {
	r := packet.NewReader(body)
	if err := r.CheckRemaining(3); err != nil {
		return nil, ErrShortHandshake
	}
	r.Skip(2)
	cookieLen := int(r.ReadByte())
	return r.ReadSlice(cookieLen), nil
}

// ---- ServerHello ----

type serverHello struct {
	random      handshakeRandom
	sessionID   []byte
	cipherSuite CipherSuite
	extensions  []extension
}

func (sh serverHello) marshal() []byte {
	b := make([]byte, 0, 128)
	b = append(b, versionDTLS1_2.major, versionDTLS1_2.minor)
	b = append(b, sh.random.marshal()...)
	b = opaque8(b, sh.sessionID)
	var cs [2]byte
	binary.BigEndian.PutUint16(cs[:], uint16(sh.cipherSuite))
	b = append(b, cs[:]...)
	b = append(b, compressionMethodNull)
	b = append(b, marshalExtensions(sh.extensions)...)
	return b
}

func parseServerHello(body []byte) (serverHello, error) {
	r := packet.NewReader(body)
	if err := r.CheckRemaining(2 + randomLength + 1); err != nil {
		return serverHello{}, ErrShortHandshake
	}
	r.Skip(2)
	sh := serverHello{random: parseRandom(r)}
	sidLen := int(r.ReadByte())
	sh.sessionID = r.ReadSlice(sidLen)
	sh.cipherSuite = CipherSuite(r.ReadUint16())
	r.Skip(1) // compression method
	exts, err := parseExtensions(r)
	if err != nil {
		return serverHello{}, err
	}
	sh.extensions = exts
	return sh, nil
}

// ---- Certificate ----

func marshalCertificateMessage(der [][]byte) []byte {
	var list []byte
	for _, cert := range der {
		list = opaque24(list, cert)
	}
	return opaque24(nil, list)
}

func parseCertificateMessage(body []byte) ([][]byte, error) {
	r := packet.NewReader(body)
	if err := r.CheckRemaining(3); err != nil {
		return nil, ErrShortHandshake
	}
	totalLen := int(r.ReadUint24())
	if err := r.CheckRemaining(totalLen); err != nil {
		return nil, ErrShortHandshake
	}
	var certs [][]byte
	end := totalLen
	consumed := 0
	for consumed < end {
		if r.Remaining() < 3 {
			return nil, ErrShortHandshake
		}
		certLen := int(r.ReadUint24())
		certs = append(certs, r.ReadSlice(certLen))
		consumed += 3 + certLen
	}
	return certs, nil
}

// ---- ServerKeyExchange (ECDHE, signed) ----

const namedCurveType = 3 // RFC 4492 ECCurveType.named_curve

type serverKeyExchange struct {
	curve     NamedCurve
	publicKey []byte // uncompressed EC point
	scheme    SignatureScheme
	signature []byte
}

// signedParams returns the bytes the signature in a ServerKeyExchange
// covers: client random || server random || curve params || public key.
func (ske serverKeyExchange) signedParams(clientRandom, serverRandom []byte) []byte {
	b := make([]byte, 0, 64+len(ske.publicKey))
	b = append(b, clientRandom...)
	b = append(b, serverRandom...)
	b = append(b, namedCurveType)
	var curve [2]byte
	binary.BigEndian.PutUint16(curve[:], uint16(ske.curve))
	b = append(b, curve[:]...)
	b = opaque8(b, ske.publicKey)
	return b
}

func (ske serverKeyExchange) marshal() []byte {
	b := make([]byte, 0, 16+len(ske.publicKey)+len(ske.signature))
	b = append(b, namedCurveType)
	var curve [2]byte
	binary.BigEndian.PutUint16(curve[:], uint16(ske.curve))
	b = append(b, curve[:]...)
	b = opaque8(b, ske.publicKey)
	var scheme [2]byte
	binary.BigEndian.PutUint16(scheme[:], uint16(ske.scheme))
	b = append(b, scheme[:]...)
	b = opaque16(b, ske.signature)
	return b
}

func parseServerKeyExchange(body []byte) (serverKeyExchange, error) {
	r := packet.NewReader(body)
	if err := r.CheckRemaining(4); err != nil {
		return serverKeyExchange{}, ErrShortHandshake
	}
	curveType := r.ReadByte()
	if curveType != namedCurveType {
		return serverKeyExchange{}, ErrUnexpectedMessage
	}
	ske := serverKeyExchange{curve: NamedCurve(r.ReadUint16())}
	pkLen := int(r.ReadByte())
	ske.publicKey = r.ReadSlice(pkLen)
	ske.scheme = SignatureScheme(r.ReadUint16())
	sigLen := int(r.ReadUint16())
	ske.signature = r.ReadSlice(sigLen)
	return ske, nil
}

// ---- CertificateRequest ----

const certificateTypeECDSASign = 64
const certificateTypeRSASign = 1

func marshalCertificateRequest(schemes []SignatureScheme) []byte {
	b := opaque8(nil, []byte{certificateTypeECDSASign, certificateTypeRSASign})
	b = append(b, signatureAlgorithmsExtensionData(schemes)...)
	// Empty certificate_authorities list.
	b = append(b, 0, 0)
	return b
}

// ---- ServerHelloDone ----
// Empty body; nothing to marshal/parse.

// ---- ClientKeyExchange (ECDHE) ----

func marshalClientKeyExchange(publicKey []byte) []byte {
	return opaque8(nil, publicKey)
}

func parseClientKeyExchange(body []byte) ([]byte, error) {
	r := packet.NewReader(body)
	if err := r.CheckRemaining(1); err != nil {
		return nil, ErrShortHandshake
	}
	pkLen := int(r.ReadByte())
	return r.ReadSlice(pkLen), nil
}

// ---- CertificateVerify ----

type certificateVerify struct {
	scheme    SignatureScheme
	signature []byte
}

func (cv certificateVerify) marshal() []byte {
	b := make([]byte, 0, 4+len(cv.signature))
	var scheme [2]byte
	binary.BigEndian.PutUint16(scheme[:], uint16(cv.scheme))
	b = append(b, scheme[:]...)
	return opaque16(b, cv.signature)
}

func parseCertificateVerify(body []byte) (certificateVerify, error) {
	r := packet.NewReader(body)
	if err := r.CheckRemaining(4); err != nil {
		return certificateVerify{}, ErrShortHandshake
	}
	cv := certificateVerify{scheme: SignatureScheme(r.ReadUint16())}
	sigLen := int(r.ReadUint16())
	cv.signature = r.ReadSlice(sigLen)
	return cv, nil
}

// ---- Finished ----

const verifyDataLength = 12

func marshalFinished(verifyData []byte) []byte {
	return verifyData
}

func parseFinished(body []byte) ([]byte, error) {
	if len(body) != verifyDataLength {
		return nil, ErrShortHandshake
	}
	return body, nil
}
