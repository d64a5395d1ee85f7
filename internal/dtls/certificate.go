package dtls

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// CertificateKind selects the self-signed leaf certificate's key algorithm.
// The DTLS profile's two mandatory cipher suites each pin one: ECDSA for
// ECDHE_ECDSA, RSA for ECDHE_RSA.
type CertificateKind int

const (
	CertificateECDSA CertificateKind = iota
	CertificateRSA
)

// Certificate is a self-signed leaf certificate and its private key, used
// both to authenticate the local handshake and to compute the SDP
// fingerprint the remote peer advertises back.
type Certificate struct {
	Kind       CertificateKind
	DER        []byte
	PrivateKey crypto.Signer
	cert       *x509.Certificate
}

// GenerateCertificate creates a new self-signed certificate, valid for one
// year, with a random serial and the fixed subject CN "rtcdc self-signed"
// (no CA involvement; the DTLS
// fingerprint is the sole trust anchor, per the data-channel profile).
func GenerateCertificate(kind CertificateKind) (*Certificate, error) {
	var (
		priv crypto.Signer
		err  error
	)
	switch kind {
	case CertificateECDSA:
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case CertificateRSA:
		priv, err = rsa.GenerateKey(rand.Reader, 2048)
	default:
		return nil, fmt.Errorf("dtls: unknown certificate kind %d", kind)
	}
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "rtcdc self-signed"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, priv.Public(), priv)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	return &Certificate{Kind: kind, DER: der, PrivateKey: priv, cert: cert}, nil
}

// signatureScheme returns the (hash, signature) pair this certificate
// signs with, matching the cipher suite it authenticates.
func (c *Certificate) signatureScheme() SignatureScheme {
	if c.Kind == CertificateRSA {
		return SignatureSchemeRSAPKCS1WithSHA256
	}
	return SignatureSchemeECDSAWithP256AndSHA256
}

func (c *Certificate) cipherSuite() CipherSuite {
	if c.Kind == CertificateRSA {
		return TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256
	}
	return TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256
}

// sign produces a PKCS#1v1.5 (RSA) or ASN.1 DER (ECDSA) signature over the
// SHA-256 digest of msg, as used in ServerKeyExchange/CertificateVerify.
func (c *Certificate) sign(msg []byte) ([]byte, error) {
	digest := sha256.Sum256(msg)
	opts := crypto.SHA256
	if c.Kind == CertificateRSA {
		return c.PrivateKey.(*rsa.PrivateKey).Sign(rand.Reader, digest[:], opts)
	}
	return c.PrivateKey.Sign(rand.Reader, digest[:], opts)
}

// verifySignature checks a ServerKeyExchange/CertificateVerify signature
// against a peer's leaf certificate.
func verifySignature(peerCert *x509.Certificate, scheme SignatureScheme, msg, signature []byte) error {
	digest := sha256.Sum256(msg)
	switch scheme {
	case SignatureSchemeRSAPKCS1WithSHA256:
		pub, ok := peerCert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("dtls: expected RSA public key")
		}
		return rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature)
	case SignatureSchemeECDSAWithP256AndSHA256:
		pub, ok := peerCert.PublicKey.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("dtls: expected ECDSA public key")
		}
		if !ecdsa.VerifyASN1(pub, digest[:], signature) {
			return fmt.Errorf("dtls: ECDSA signature verification failed")
		}
		return nil
	default:
		return fmt.Errorf("dtls: unsupported signature scheme %#x", scheme)
	}
}

// parseLeafCertificate parses a single DER certificate received from a peer
// during the handshake.
func parseLeafCertificate(der []byte) (*x509.Certificate, error) {
	return x509.ParseCertificate(der)
}

// Fingerprint returns the sha-256 fingerprint of the certificate's DER
// encoding in the SDP a=fingerprint format: upper-case hex octets separated
// by colons.
func (c *Certificate) Fingerprint() string {
	return fingerprint(c.DER)
}

func fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = strings.ToUpper(hex.EncodeToString([]byte{b}))
	}
	return strings.Join(parts, ":")
}

// verifyFingerprint reports whether peerDER's sha-256 fingerprint matches
// any of the "alg hex:colon" fingerprints advertised in the remote SDP
// (only sha-256 is computed locally, per this profile's default; an
// unmatched algorithm name is simply not found among the candidates).
func verifyFingerprint(peerDER []byte, remoteFingerprints map[string]string) error {
	want, ok := remoteFingerprints["sha-256"]
	if !ok {
		return ErrFingerprintMismatch
	}
	got := fingerprint(peerDER)
	if !strings.EqualFold(got, want) {
		return ErrFingerprintMismatch
	}
	return nil
}
