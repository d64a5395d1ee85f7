// Package sctp implements a reduced SCTP association (RFC 4960) carrying
// unreliable, unordered, unfragmented DATA chunks over a secured datagram
// channel. Reliability, ordering, fragmentation, congestion control, and
// SACK feedback are all deliberately out of scope; only what a WebRTC data
// channel running in that mode needs is implemented.
//
// Association follows the same event-driven shape as the DTLS layer below
// it: FeedInput consumes one datagram read off the wire and returns any
// packets to send back, and Tick drives T1/T2/T-Reconfig retransmission.
// Neither method spawns a goroutine.
package sctp

import (
	"github.com/lanikai/rtcdc/internal/logging"
)

var log = logging.DefaultLogger.WithTag("sctp")

// ChunkType identifies an SCTP chunk (RFC 4960 §3.2, plus RE-CONFIG from
// RFC 6525).
type ChunkType uint8

const (
	ChunkTypeData           ChunkType = 0
	ChunkTypeInit           ChunkType = 1
	ChunkTypeInitAck        ChunkType = 2
	ChunkTypeSack           ChunkType = 3
	ChunkTypeHeartbeat      ChunkType = 4
	ChunkTypeHeartbeatAck   ChunkType = 5
	ChunkTypeAbort          ChunkType = 6
	ChunkTypeShutdown       ChunkType = 7
	ChunkTypeShutdownAck    ChunkType = 8
	ChunkTypeError          ChunkType = 9
	ChunkTypeCookieEcho     ChunkType = 10
	ChunkTypeCookieAck      ChunkType = 11
	ChunkTypeShutdownComplete ChunkType = 14
	ChunkTypeReconfig       ChunkType = 130
	ChunkTypeForwardTSN     ChunkType = 192
)

// Chunk flags used on DATA (RFC 4960 §3.3.1).
const (
	dataFlagEnd       = 0x01 // E bit: last fragment
	dataFlagBeginning = 0x02 // B bit: first fragment
	dataFlagUnordered = 0x04 // U bit
)

// ParamType identifies a chunk parameter/variable-length field.
type ParamType uint16

const (
	ParamStateCookie           ParamType = 7
	ParamSupportedExtensions   ParamType = 32776
	ParamRandom                ParamType = 32770
	ParamErrorCauseStaleCookie ParamType = 3
)

// Extension chunk type values advertised in the SUPPORTED_CHUNK_EXT
// parameter (RFC 6525 §6, RFC 3758).
const (
	extForwardTSN ChunkType = ChunkTypeForwardTSN
	extReconfig   ChunkType = ChunkTypeReconfig
)

// PRSCTP_SUPPORTED / SUPPORTED_CHUNK_EXT parameter types advertised during
// INIT/INIT_ACK, per spec: partial reliability is advertised but never
// exercised (this profile sends only unordered, unreliable, unfragmented
// DATA, which needs no partial-reliability policy at send time).
const (
	ParamPRSCTPSupported  ParamType = 49152
	ParamSupportedChunkExt ParamType = 32778
)

// userDataMTU is the maximum user payload carried by one DATA chunk. No
// fragmentation is implemented; a send larger than this is rejected.
const userDataMTU = 1200

// PayloadProtocolID identifies a DATA chunk's payload type (RFC 8831 §8).
type PayloadProtocolID uint32

const (
	PPIDDCEP        PayloadProtocolID = 50
	PPIDString      PayloadProtocolID = 51
	PPIDBinary      PayloadProtocolID = 53
	PPIDStringEmpty PayloadProtocolID = 56
	PPIDBinaryEmpty PayloadProtocolID = 57
)

// Role distinguishes which side sends the first INIT.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// State is the association's coarse lifecycle state (spec's reduced state
// set).
type State int

const (
	StateClosed State = iota
	StateCookieWait
	StateCookieEchoed
	StateEstablished
	StateShutdownSent
	StateShutdownReceived
	StateShutdownAckSent
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateCookieWait:
		return "cookie-wait"
	case StateCookieEchoed:
		return "cookie-echoed"
	case StateEstablished:
		return "established"
	case StateShutdownSent:
		return "shutdown-sent"
	case StateShutdownReceived:
		return "shutdown-received"
	case StateShutdownAckSent:
		return "shutdown-ack-sent"
	default:
		return "unknown"
	}
}
