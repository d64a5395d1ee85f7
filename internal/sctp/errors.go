package sctp

import "errors"

var (
	ErrShortPacket       = errors.New("sctp: packet too short")
	ErrShortChunk        = errors.New("sctp: chunk too short")
	ErrChecksumMismatch  = errors.New("sctp: checksum mismatch")
	ErrVerificationTag   = errors.New("sctp: verification tag mismatch")
	ErrStaleCookie       = errors.New("sctp: state cookie timestamp out of window")
	ErrCookieMismatch    = errors.New("sctp: state cookie HMAC mismatch")
	ErrPayloadTooLarge   = errors.New("sctp: payload exceeds MTU without fragmentation support")
	ErrNotEstablished    = errors.New("sctp: association is not established")
	ErrAssociationClosed = errors.New("sctp: association is closed")
	ErrUnexpectedChunk   = errors.New("sctp: unexpected chunk for current state")
	ErrStreamReset       = errors.New("sctp: outgoing stream has been reset")
)
