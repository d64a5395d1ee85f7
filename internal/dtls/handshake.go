package dtls

import (
	"github.com/lanikai/rtcdc/internal/packet"
)

// handshakeHeaderLength is the fixed 12-byte handshake message header:
// msg_type (1), length (3), message_seq (2), fragment_offset (3),
// fragment_length (3).
const handshakeHeaderLength = 12

type handshakeHeader struct {
	msgType        HandshakeType
	length         uint32 // 24-bit, length of the reassembled body
	messageSeq     uint16
	fragmentOffset uint32 // 24-bit
	fragmentLength uint32 // 24-bit
}

type handshakeMessage struct {
	header handshakeHeader
	body   []byte // fragment of the body carried by this message
}

func marshalHandshakeHeader(h handshakeHeader) []byte {
	w := packet.NewWriterSize(handshakeHeaderLength)
	w.WriteByte(byte(h.msgType))
	w.WriteUint24(h.length)
	w.WriteUint16(h.messageSeq)
	w.WriteUint24(h.fragmentOffset)
	w.WriteUint24(h.fragmentLength)
	return w.Bytes()
}

func parseHandshakeMessage(buf []byte) (handshakeMessage, []byte, error) {
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(handshakeHeaderLength); err != nil {
		return handshakeMessage{}, nil, ErrShortHandshake
	}
	h := handshakeHeader{
		msgType:    HandshakeType(r.ReadByte()),
		length:     r.ReadUint24(),
		messageSeq: r.ReadUint16(),
	}
	h.fragmentOffset = r.ReadUint24()
	h.fragmentLength = r.ReadUint24()
	if err := r.CheckRemaining(int(h.fragmentLength)); err != nil {
		return handshakeMessage{}, nil, ErrShortHandshake
	}
	body := r.ReadSlice(int(h.fragmentLength))
	return handshakeMessage{header: h, body: body}, r.ReadRemaining(), nil
}

// marshalHandshake wraps a fully-marshaled handshake body into one
// unfragmented handshake message. Fragmentation across multiple DTLS
// records is not implemented: every handshake message this package sends
// fits in a single UDP datagram well under typical path MTU, so fragment
// offset is always 0 and fragment length always equals the total length.
func marshalHandshake(msgType HandshakeType, messageSeq uint16, body []byte) []byte {
	h := handshakeHeader{
		msgType:        msgType,
		length:         uint32(len(body)),
		messageSeq:     messageSeq,
		fragmentOffset: 0,
		fragmentLength: uint32(len(body)),
	}
	out := make([]byte, 0, handshakeHeaderLength+len(body))
	out = append(out, marshalHandshakeHeader(h)...)
	out = append(out, body...)
	return out
}

// reassembler collects possibly-fragmented, possibly-out-of-order handshake
// messages from successive records, keyed by message_seq. Since this
// package never itself fragments outgoing messages, a peer that does so is
// still handled by buffering per-seq partial bodies until fragmentLength
// fragments total "length" bytes starting at offset 0.
type reassembler struct {
	pending map[uint16]*partialMessage
}

type partialMessage struct {
	total    uint32
	have     uint32
	msgType  HandshakeType
	body     []byte
	received []bool
}

func newReassembler() *reassembler {
	return &reassembler{pending: make(map[uint16]*partialMessage)}
}

// add feeds one handshake fragment in and returns the complete message once
// every byte of its body has been received.
func (ra *reassembler) add(h handshakeHeader, fragment []byte) (handshakeHeader, []byte, bool) {
	pm, ok := ra.pending[h.messageSeq]
	if !ok {
		pm = &partialMessage{
			total:    h.length,
			msgType:  h.msgType,
			body:     make([]byte, h.length),
			received: make([]bool, h.length),
		}
		ra.pending[h.messageSeq] = pm
	}
	copy(pm.body[h.fragmentOffset:], fragment)
	for i := uint32(0); i < h.fragmentLength; i++ {
		idx := h.fragmentOffset + i
		if idx >= uint32(len(pm.received)) {
			break
		}
		if !pm.received[idx] {
			pm.received[idx] = true
			pm.have++
		}
	}
	if pm.have < pm.total {
		return handshakeHeader{}, nil, false
	}
	delete(ra.pending, h.messageSeq)
	return handshakeHeader{msgType: pm.msgType, length: pm.total, messageSeq: h.messageSeq, fragmentLength: pm.total}, pm.body, true
}
