package rtcdc

import (
	"encoding/binary"
	"fmt"
)

// DCEP (RFC 8832) is the tiny in-band control protocol that rides on the
// same SCTP stream as a data channel's application messages, carried with
// PPIDDCEP. Every channel exchanges exactly two DCEP messages: the opener
// sends DATA_CHANNEL_OPEN once the association is established (at once, if
// it already is when the stream is allocated), and the
// peer answers with DATA_CHANNEL_ACK once it has surfaced the channel to
// the application. Without this, the receiving side would have no way to
// learn the channel's label from the bare SCTP stream id.
const (
	dcepMessageTypeOpen byte = 0x03
	dcepMessageTypeAck  byte = 0x02
)

// channelType is fixed at DATA_CHANNEL_PARTIAL_RELIABLE_REXMIT_UNORDERED's
// wire value with a reliability parameter of zero retransmissions, since
// this profile only ever negotiates the unordered, unreliable mode.
const dcepChannelTypeUnorderedUnreliable byte = 0x81

func marshalDCEPOpen(label, protocol string) []byte {
	buf := make([]byte, 12+len(label)+len(protocol))
	buf[0] = dcepMessageTypeOpen
	buf[1] = dcepChannelTypeUnorderedUnreliable
	binary.BigEndian.PutUint16(buf[2:4], 0) // priority: unused
	binary.BigEndian.PutUint32(buf[4:8], 0) // reliability parameter: zero retransmissions
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(label)))
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(protocol)))
	copy(buf[12:12+len(label)], label)
	copy(buf[12+len(label):], protocol)
	return buf
}

func parseDCEPOpen(data []byte) (label, protocol string, err error) {
	if len(data) < 12 || data[0] != dcepMessageTypeOpen {
		return "", "", fmt.Errorf("rtcdc: malformed DATA_CHANNEL_OPEN message")
	}
	labelLen := int(binary.BigEndian.Uint16(data[8:10]))
	protoLen := int(binary.BigEndian.Uint16(data[10:12]))
	if len(data) < 12+labelLen+protoLen {
		return "", "", fmt.Errorf("rtcdc: truncated DATA_CHANNEL_OPEN message")
	}
	label = string(data[12 : 12+labelLen])
	protocol = string(data[12+labelLen : 12+labelLen+protoLen])
	return label, protocol, nil
}

func marshalDCEPAck() []byte {
	return []byte{dcepMessageTypeAck}
}

func isDCEPAck(data []byte) bool {
	return len(data) == 1 && data[0] == dcepMessageTypeAck
}
