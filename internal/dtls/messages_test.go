package dtls

import (
	"bytes"
	"testing"
	"time"
)

func TestClientHelloMarshalParseRoundTrip(t *testing.T) {
	var rnd [28]byte
	for i := range rnd {
		rnd[i] = byte(i)
	}
	ch := clientHello{
		random:             newRandom(time.Unix(1700000000, 0), rnd),
		cookie:             []byte{1, 2, 3, 4},
		cipherSuites:       []CipherSuite{TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256, TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256},
		compressionMethods: []uint8{compressionMethodNull},
		extensions: clientHelloExtensions([]SignatureScheme{
			SignatureSchemeECDSAWithP256AndSHA256,
		}),
	}

	parsed, err := parseClientHello(ch.marshal())
	if err != nil {
		t.Fatalf("parseClientHello: %v", err)
	}
	if !bytes.Equal(parsed.cookie, ch.cookie) {
		t.Errorf("cookie = %x, want %x", parsed.cookie, ch.cookie)
	}
	if len(parsed.cipherSuites) != 2 || parsed.cipherSuites[0] != ch.cipherSuites[0] || parsed.cipherSuites[1] != ch.cipherSuites[1] {
		t.Errorf("cipherSuites = %v, want %v", parsed.cipherSuites, ch.cipherSuites)
	}
	if !bytes.Equal(parsed.random.marshal(), ch.random.marshal()) {
		t.Error("random round trip mismatch")
	}
}

func TestHelloVerifyRequestRoundTrip(t *testing.T) {
	cookie := []byte{0xaa, 0xbb, 0xcc}
	body := marshalHelloVerifyRequest(cookie)
	got, err := parseHelloVerifyRequest(body)
	if err != nil {
		t.Fatalf("parseHelloVerifyRequest: %v", err)
	}
	if !bytes.Equal(got, cookie) {
		t.Errorf("cookie = %x, want %x", got, cookie)
	}
}

func TestServerHelloMarshalParseRoundTrip(t *testing.T) {
	var rnd [28]byte
	sh := serverHello{
		random:      newRandom(time.Unix(1700000001, 0), rnd),
		cipherSuite: TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		extensions:  serverHelloExtensions(true),
	}
	parsed, err := parseServerHello(sh.marshal())
	if err != nil {
		t.Fatalf("parseServerHello: %v", err)
	}
	if parsed.cipherSuite != sh.cipherSuite {
		t.Errorf("cipherSuite = %#x, want %#x", parsed.cipherSuite, sh.cipherSuite)
	}
	if _, ok := findExtension(parsed.extensions, ExtensionExtendedMasterSecret); !ok {
		t.Error("extended_master_secret extension missing after round trip")
	}
}

func TestCertificateMessageRoundTrip(t *testing.T) {
	certs := [][]byte{[]byte("first cert der"), []byte("second cert der")}
	body := marshalCertificateMessage(certs)
	got, err := parseCertificateMessage(body)
	if err != nil {
		t.Fatalf("parseCertificateMessage: %v", err)
	}
	if len(got) != 2 || !bytes.Equal(got[0], certs[0]) || !bytes.Equal(got[1], certs[1]) {
		t.Errorf("certs = %v, want %v", got, certs)
	}
}

func TestServerKeyExchangeRoundTrip(t *testing.T) {
	ske := serverKeyExchange{
		curve:     NamedCurveSecp256r1,
		publicKey: []byte{0x04, 1, 2, 3, 4, 5},
		scheme:    SignatureSchemeECDSAWithP256AndSHA256,
		signature: []byte{9, 9, 9, 9},
	}
	parsed, err := parseServerKeyExchange(ske.marshal())
	if err != nil {
		t.Fatalf("parseServerKeyExchange: %v", err)
	}
	if parsed.curve != ske.curve || parsed.scheme != ske.scheme {
		t.Errorf("curve/scheme mismatch: got %+v", parsed)
	}
	if !bytes.Equal(parsed.publicKey, ske.publicKey) || !bytes.Equal(parsed.signature, ske.signature) {
		t.Errorf("publicKey/signature mismatch: got %+v", parsed)
	}

	clientRandom := make([]byte, 32)
	serverRandom := make([]byte, 32)
	signed := ske.signedParams(clientRandom, serverRandom)
	if len(signed) == 0 {
		t.Error("signedParams produced an empty buffer")
	}
}

func TestClientKeyExchangeRoundTrip(t *testing.T) {
	pub := []byte{0x04, 10, 20, 30}
	body := marshalClientKeyExchange(pub)
	got, err := parseClientKeyExchange(body)
	if err != nil {
		t.Fatalf("parseClientKeyExchange: %v", err)
	}
	if !bytes.Equal(got, pub) {
		t.Errorf("publicKey = %x, want %x", got, pub)
	}
}

func TestCertificateVerifyRoundTrip(t *testing.T) {
	cv := certificateVerify{
		scheme:    SignatureSchemeRSAPKCS1WithSHA256,
		signature: []byte{1, 2, 3, 4, 5, 6},
	}
	parsed, err := parseCertificateVerify(cv.marshal())
	if err != nil {
		t.Fatalf("parseCertificateVerify: %v", err)
	}
	if parsed.scheme != cv.scheme || !bytes.Equal(parsed.signature, cv.signature) {
		t.Errorf("got %+v, want %+v", parsed, cv)
	}
}

func TestFinishedRoundTrip(t *testing.T) {
	verifyData := bytes.Repeat([]byte{0x42}, verifyDataLength)
	got, err := parseFinished(marshalFinished(verifyData))
	if err != nil {
		t.Fatalf("parseFinished: %v", err)
	}
	if !bytes.Equal(got, verifyData) {
		t.Errorf("verifyData = %x, want %x", got, verifyData)
	}
}

func TestParseFinishedRejectsWrongLength(t *testing.T) {
	if _, err := parseFinished([]byte{1, 2, 3}); err == nil {
		t.Error("expected parseFinished to reject a short body")
	}
}
