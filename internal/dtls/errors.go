package dtls

import "errors"

var (
	ErrFingerprintMismatch = errors.New("dtls: peer certificate does not match any advertised fingerprint")
	ErrHandshakeTimeout    = errors.New("dtls: handshake retransmit budget exhausted")
	ErrUnexpectedMessage   = errors.New("dtls: unexpected handshake message for current state")
	ErrNoCommonCipherSuite = errors.New("dtls: no common cipher suite")
	ErrDecryptFailed       = errors.New("dtls: record decryption failed")
	ErrConnClosed          = errors.New("dtls: connection closed")
	ErrNotConnected        = errors.New("dtls: handshake not yet complete")
	ErrShortRecord         = errors.New("dtls: record shorter than header")
	ErrShortHandshake      = errors.New("dtls: handshake message shorter than header")
)
