package sctp

import (
	"crypto/rand"
	"encoding/binary"
	"time"

	"github.com/lanikai/rtcdc/internal/timer"
)

// Config carries everything an Association needs for either role.
type Config struct {
	Role Role

	LocalPort  uint16
	RemotePort uint16

	OutboundStreams uint16
	InboundStreams  uint16

	InitialRetransmitTimeout time.Duration
	MaxRetransmitTimeout     time.Duration
}

const (
	initRetransmitThreshold = 8
	assocRetransmitThreshold = 10
)

const (
	t1TimerName       = "sctp-t1-init"
	t2TimerName       = "sctp-t2-shutdown"
	reconfigTimerName = "sctp-t-reconfig"
)

// Message is one DATA chunk's payload, delivered up immediately on receipt
// (this profile does no reassembly or reordering).
type Message struct {
	StreamID uint16
	PPID     PayloadProtocolID
	Data     []byte
}

// Association is a single reduced SCTP association's state machine. Like
// the DTLS Conn beneath it, it owns no goroutine: FeedInput consumes bytes
// read from the secured datagram channel and Tick drives T1/T2/T-Reconfig
// retransmission, both returning any packets that should be written back.
type Association struct {
	cfg  Config
	role Role

	state State
	wheel *timer.Wheel

	localTag  uint32
	remoteTag uint32

	localTSN     uint32
	haveLastRecv bool
	lastRecvTSN  uint32

	outboundStreams uint16
	inboundStreams  uint16
	closedOutbound  map[uint16]bool

	cookieSigner cookieSigner

	lastFlight  [][]byte
	rto         time.Duration
	retransmits int

	reconfigReqSeq      uint32
	reconfigPeerSeq     uint32
	pendingReconfig     []byte
	pendingCloseStream  uint16
	pendingCloseValid   bool
	reconfigRTO         time.Duration
	reconfigRetransmits int
}

// NewAssociation creates a new association state machine. Call Start to
// send the client's INIT; the server role only reacts to FeedInput.
func NewAssociation(cfg Config) *Association {
	if cfg.InitialRetransmitTimeout == 0 {
		cfg.InitialRetransmitTimeout = time.Second
	}
	if cfg.MaxRetransmitTimeout == 0 {
		cfg.MaxRetransmitTimeout = 60 * time.Second
	}
	if cfg.OutboundStreams == 0 {
		cfg.OutboundStreams = 65535
	}
	if cfg.InboundStreams == 0 {
		cfg.InboundStreams = 65535
	}
	a := &Association{
		cfg:             cfg,
		role:            cfg.Role,
		state:           StateClosed,
		wheel:           timer.NewWheel(),
		localTag:        randomNonzeroUint32(),
		localTSN:        randomNonzeroUint32(),
		outboundStreams: cfg.OutboundStreams,
		inboundStreams:  cfg.InboundStreams,
		closedOutbound:  make(map[uint16]bool),
		cookieSigner:    newCookieSigner(),
		rto:             cfg.InitialRetransmitTimeout,
		reconfigRTO:     cfg.InitialRetransmitTimeout,
	}
	return a
}

func randomNonzeroUint32() uint32 {
	var b [4]byte
	for {
		rand.Read(b[:])
		if v := binary.BigEndian.Uint32(b[:]); v != 0 {
			return v
		}
	}
}

func (a *Association) State() State { return a.state }

// IsOutboundStreamClosed reports whether a prior RequestCloseOutgoingStream
// for streamID has been confirmed by the peer's RE-CONFIG response.
func (a *Association) IsOutboundStreamClosed(streamID uint16) bool {
	return a.closedOutbound[streamID]
}

// Start produces the client's INIT packet. It is a no-op for the server
// role or once the association has left StateClosed.
func (a *Association) Start(now time.Time) ([][]byte, error) {
	if a.role != RoleClient || a.state != StateClosed {
		return nil, nil
	}
	init := initChunk{
		initiateTag:     a.localTag,
		advertisedRwnd:  1 << 20,
		outboundStreams: a.outboundStreams,
		inboundStreams:  a.inboundStreams,
		initialTSN:      a.localTSN,
	}
	pkt := a.wrap(0, [][]byte{init.marshal(ChunkTypeInit)})
	a.state = StateCookieWait
	return a.armFlight(now, [][]byte{pkt})
}

// wrap assembles one SCTP packet with the given verification tag.
func (a *Association) wrap(verificationTag uint32, chunks [][]byte) []byte {
	return marshalPacket(commonHeader{
		srcPort:         a.cfg.LocalPort,
		dstPort:         a.cfg.RemotePort,
		verificationTag: verificationTag,
	}, chunks)
}

// wrapToRemote wraps chunks addressed using the peer's learned initiate tag,
// the verification tag used on every post-handshake packet.
func (a *Association) wrapToRemote(chunks [][]byte) []byte {
	return a.wrap(a.remoteTag, chunks)
}

// armFlight arms the T1 timer (INIT/COOKIE_ECHO retransmission).
func (a *Association) armFlight(now time.Time, packets [][]byte) ([][]byte, error) {
	a.lastFlight = packets
	a.retransmits = 0
	a.rto = a.cfg.InitialRetransmitTimeout
	a.wheel.After(t1TimerName, a.rto, now, a.onT1Timeout)
	return packets, nil
}

func (a *Association) onT1Timeout(now time.Time) {
	if a.state != StateCookieWait && a.state != StateCookieEchoed {
		return
	}
	a.retransmits++
	if a.retransmits > initRetransmitThreshold {
		a.state = StateClosed
		return
	}
	a.rto *= 2
	if a.rto > a.cfg.MaxRetransmitTimeout {
		a.rto = a.cfg.MaxRetransmitTimeout
	}
	a.wheel.After(t1TimerName, a.rto, now, a.onT1Timeout)
}

// armShutdownFlight arms the T2 timer (SHUTDOWN/SHUTDOWN_ACK retransmission),
// independent of T1 so the two phases never share a failure counter.
func (a *Association) armShutdownFlight(now time.Time, packets [][]byte) ([][]byte, error) {
	a.lastFlight = packets
	a.retransmits = 0
	a.rto = a.cfg.InitialRetransmitTimeout
	a.wheel.After(t2TimerName, a.rto, now, a.onT2Timeout)
	return packets, nil
}

func (a *Association) onT2Timeout(now time.Time) {
	if a.state != StateShutdownSent && a.state != StateShutdownAckSent {
		return
	}
	a.retransmits++
	if a.retransmits > assocRetransmitThreshold {
		a.state = StateClosed
		return
	}
	a.rto *= 2
	if a.rto > a.cfg.MaxRetransmitTimeout {
		a.rto = a.cfg.MaxRetransmitTimeout
	}
	a.wheel.After(t2TimerName, a.rto, now, a.onT2Timeout)
}

// Tick drives T1/T2/T-Reconfig retransmission, returning any packets that
// should be resent.
func (a *Association) Tick(now time.Time) [][]byte {
	var out [][]byte

	beforeRetransmits := a.retransmits
	beforeReconfig := a.reconfigRetransmits
	a.wheel.Tick(now)

	if a.retransmits != beforeRetransmits && a.state != StateClosed && len(a.lastFlight) > 0 {
		out = append(out, a.lastFlight...)
	}
	if a.reconfigRetransmits != beforeReconfig && a.state == StateEstablished && len(a.pendingReconfig) > 0 {
		out = append(out, a.wrapToRemote([][]byte{a.pendingReconfig}))
	}
	return out
}

// FeedInput processes one inbound datagram, returning any packets to write
// back and any application messages delivered.
func (a *Association) FeedInput(data []byte, now time.Time) (toSend [][]byte, messages []Message, err error) {
	if a.state == StateClosed && a.role == RoleClient {
		return nil, nil, ErrAssociationClosed
	}
	h, chunks, err := parsePacket(data)
	if err != nil {
		return nil, nil, err
	}
	if len(chunks) == 0 {
		return nil, nil, nil
	}

	if chunkType(chunks[0]) == ChunkTypeInit {
		if h.verificationTag != 0 {
			return nil, nil, ErrVerificationTag
		}
	} else if h.verificationTag != a.localTag {
		return nil, nil, ErrVerificationTag
	}

	for _, raw := range chunks {
		send, msg, herr := a.handleChunk(raw, now)
		if herr != nil {
			return nil, nil, herr
		}
		toSend = append(toSend, send...)
		messages = append(messages, msg...)
	}
	return toSend, messages, nil
}

func (a *Association) handleChunk(raw []byte, now time.Time) ([][]byte, []Message, error) {
	switch chunkType(raw) {
	case ChunkTypeInit:
		return a.handleInit(raw, now)
	case ChunkTypeInitAck:
		return a.handleInitAck(raw, now)
	case ChunkTypeCookieEcho:
		return a.handleCookieEcho(raw, now)
	case ChunkTypeCookieAck:
		return a.handleCookieAck(now)
	case ChunkTypeData:
		return a.handleData(raw)
	case ChunkTypeSack:
		return nil, nil, nil // SACK suppressed both ways: ignore any received.
	case ChunkTypeReconfig:
		return a.handleReconfig(raw, now)
	case ChunkTypeShutdown:
		return a.handleShutdown(raw, now)
	case ChunkTypeShutdownAck:
		return a.handleShutdownAck(now)
	case ChunkTypeShutdownComplete:
		a.state = StateClosed
		return nil, nil, nil
	case ChunkTypeAbort:
		a.state = StateClosed
		return nil, nil, nil
	case ChunkTypeError:
		log.Warn("sctp: peer sent ERROR chunk, dropping association attempt")
		a.state = StateClosed
		return nil, nil, nil
	default:
		log.Debug("sctp: ignoring unsupported chunk type %d", chunkType(raw))
		return nil, nil, nil
	}
}

func (a *Association) handleInit(raw []byte, now time.Time) ([][]byte, []Message, error) {
	if a.role != RoleServer || a.state != StateClosed {
		return nil, nil, nil
	}
	init, err := parseInitChunk(raw)
	if err != nil {
		return nil, nil, err
	}
	a.remoteTag = init.initiateTag
	a.haveLastRecv = true
	a.lastRecvTSN = init.initialTSN - 1

	cookie := a.cookieSigner.sign(now)
	ack := initChunk{
		initiateTag:     a.localTag,
		advertisedRwnd:  1 << 20,
		outboundStreams: a.outboundStreams,
		inboundStreams:  a.inboundStreams,
		initialTSN:      a.localTSN,
		stateCookie:     cookie,
	}
	pkt := a.wrap(a.remoteTag, [][]byte{ack.marshal(ChunkTypeInitAck)})
	// The server stays logically CLOSED until COOKIE_ECHO validates; no
	// state transition or retransmission timer is armed here (the client
	// owns retransmitting its INIT if this INIT_ACK is lost).
	return [][]byte{pkt}, nil, nil
}

func (a *Association) handleInitAck(raw []byte, now time.Time) ([][]byte, []Message, error) {
	if a.role != RoleClient || a.state != StateCookieWait {
		return nil, nil, nil
	}
	ack, err := parseInitChunk(raw)
	if err != nil {
		return nil, nil, err
	}
	a.remoteTag = ack.initiateTag
	a.haveLastRecv = true
	a.lastRecvTSN = ack.initialTSN - 1
	if ack.outboundStreams < a.outboundStreams {
		a.outboundStreams = ack.outboundStreams
	}
	if ack.inboundStreams < a.inboundStreams {
		a.inboundStreams = ack.inboundStreams
	}

	echo := marshalChunk(ChunkTypeCookieEcho, 0, ack.stateCookie)
	pkt := a.wrap(a.remoteTag, [][]byte{echo})
	a.state = StateCookieEchoed
	return a.armFlight(now, [][]byte{pkt})
}

func (a *Association) handleCookieEcho(raw []byte, now time.Time) ([][]byte, []Message, error) {
	if a.role != RoleServer {
		return nil, nil, nil
	}
	cookie := chunkValue(raw)
	if err := a.cookieSigner.verify(cookie, now); err != nil {
		pkt := a.wrap(a.remoteTag, [][]byte{marshalStaleCookieError()})
		return [][]byte{pkt}, nil, nil
	}

	ackPkt := a.wrap(a.remoteTag, [][]byte{marshalChunk(ChunkTypeCookieAck, 0, nil)})
	a.state = StateEstablished
	log.Info("SCTP association established as server")
	return [][]byte{ackPkt}, nil, nil
}

func (a *Association) handleCookieAck(now time.Time) ([][]byte, []Message, error) {
	if a.role != RoleClient || a.state != StateCookieEchoed {
		return nil, nil, nil
	}
	a.wheel.Cancel(t1TimerName)
	a.lastFlight = nil
	a.state = StateEstablished
	log.Info("SCTP association established as client")
	return nil, nil, nil
}

func (a *Association) handleData(raw []byte) ([][]byte, []Message, error) {
	if a.state != StateEstablished {
		return nil, nil, ErrNotEstablished
	}
	d, err := parseDataChunk(raw)
	if err != nil {
		return nil, nil, err
	}
	if !a.haveLastRecv || tsnGreater(d.tsn, a.lastRecvTSN) {
		a.lastRecvTSN = d.tsn
		a.haveLastRecv = true
	}
	// SACK suppressed: no acknowledgement chunk is ever produced here.
	return nil, []Message{{StreamID: d.streamID, PPID: d.ppid, Data: d.payload}}, nil
}

// WriteMessage builds one unordered DATA chunk carrying data on streamID
// with the given payload protocol id. Messages larger than the fixed user
// MTU are rejected rather than fragmented.
func (a *Association) WriteMessage(streamID uint16, ppid PayloadProtocolID, data []byte) ([]byte, error) {
	if a.state != StateEstablished {
		return nil, ErrNotEstablished
	}
	if len(data) > userDataMTU {
		return nil, ErrPayloadTooLarge
	}
	if a.closedOutbound[streamID] {
		return nil, ErrStreamReset
	}
	d := dataChunk{
		unordered: true,
		tsn:       a.localTSN,
		streamID:  streamID,
		streamSeq: 0,
		ppid:      ppid,
		payload:   data,
	}
	a.localTSN++
	return a.wrapToRemote([][]byte{d.marshal()}), nil
}

// RequestCloseOutgoingStream arms an OutgoingSSNResetRequest to close one
// outbound stream. Only one reconfiguration request may be outstanding at a
// time.
func (a *Association) RequestCloseOutgoingStream(now time.Time, streamID uint16) ([]byte, error) {
	if a.state != StateEstablished {
		return nil, ErrNotEstablished
	}
	a.reconfigReqSeq++
	req := outgoingSSNResetRequest{
		reqSeqNo:        a.reconfigReqSeq,
		responseSeqNo:   a.reconfigPeerSeq,
		lastAssignedTSN: a.localTSN - 1,
		streamIDs:       []uint16{streamID},
	}
	chunk := marshalReconfig(req.marshal())
	pkt := a.wrapToRemote([][]byte{chunk})
	a.pendingCloseStream = streamID
	a.pendingCloseValid = true
	a.armReconfig(now, chunk)
	return pkt, nil
}

// RequestAddOutgoingStreams arms a StreamAddOutgoing reconfiguration.
func (a *Association) RequestAddOutgoingStreams(now time.Time, count uint16) ([]byte, error) {
	if a.state != StateEstablished {
		return nil, ErrNotEstablished
	}
	a.reconfigReqSeq++
	req := streamAddOutgoing{reqSeqNo: a.reconfigReqSeq, numStreams: count}
	chunk := marshalReconfig(req.marshal())
	pkt := a.wrapToRemote([][]byte{chunk})
	a.pendingCloseValid = false
	a.armReconfig(now, chunk)
	return pkt, nil
}

func (a *Association) armReconfig(now time.Time, chunk []byte) {
	a.pendingReconfig = chunk
	a.reconfigRetransmits = 0
	a.reconfigRTO = a.cfg.InitialRetransmitTimeout
	a.wheel.After(reconfigTimerName, a.reconfigRTO, now, a.onReconfigTimeout)
}

func (a *Association) onReconfigTimeout(now time.Time) {
	if len(a.pendingReconfig) == 0 {
		return
	}
	a.reconfigRetransmits++
	if a.reconfigRetransmits > assocRetransmitThreshold {
		a.pendingReconfig = nil
		a.pendingCloseValid = false
		a.state = StateClosed
		return
	}
	// rto := ceil(rto * 1.5)
	a.reconfigRTO = time.Duration((float64(a.reconfigRTO)*1.5 + 0.999999))
	if a.reconfigRTO > a.cfg.MaxRetransmitTimeout {
		a.reconfigRTO = a.cfg.MaxRetransmitTimeout
	}
	a.wheel.After(reconfigTimerName, a.reconfigRTO, now, a.onReconfigTimeout)
}

func (a *Association) handleReconfig(raw []byte, now time.Time) ([][]byte, []Message, error) {
	params, err := parseReconfig(raw)
	if err != nil {
		return nil, nil, err
	}

	var responses [][]byte
	for _, p := range params {
		switch p.paramType {
		case ParamOutgoingSSNResetRequest:
			req, err := parseOutgoingSSNResetRequest(p)
			if err != nil {
				return nil, nil, err
			}
			a.reconfigPeerSeq = req.reqSeqNo
			resp := reconfigResponse{responseSeqNo: req.reqSeqNo, result: ReconfigResultSuccessPerformed}
			responses = append(responses, resp.marshal())

		case ParamStreamAddOutgoing:
			req, err := parseStreamAddOutgoing(p)
			if err != nil {
				return nil, nil, err
			}
			a.reconfigPeerSeq = req.reqSeqNo
			a.inboundStreams += req.numStreams
			resp := reconfigResponse{responseSeqNo: req.reqSeqNo, result: ReconfigResultSuccessPerformed}
			responses = append(responses, resp.marshal())

		case ParamReconfigResponse:
			resp, err := parseReconfigResponse(p)
			if err != nil {
				return nil, nil, err
			}
			if len(a.pendingReconfig) > 0 {
				a.wheel.Cancel(reconfigTimerName)
				a.pendingReconfig = nil
				if a.pendingCloseValid && resp.result == ReconfigResultSuccessPerformed {
					a.closedOutbound[a.pendingCloseStream] = true
				}
				a.pendingCloseValid = false
			}
		}
	}
	if len(responses) == 0 {
		return nil, nil, nil
	}
	return [][]byte{a.wrapToRemote([][]byte{marshalReconfig(responses...)})}, nil, nil
}

// Shutdown begins the graceful teardown handshake.
func (a *Association) Shutdown(now time.Time) ([][]byte, error) {
	if a.state != StateEstablished {
		return nil, ErrNotEstablished
	}
	var cumAck uint32
	if a.haveLastRecv {
		cumAck = a.lastRecvTSN
	}
	pkt := a.wrapToRemote([][]byte{marshalShutdown(cumAck)})
	a.state = StateShutdownSent
	return a.armShutdownFlight(now, [][]byte{pkt})
}

func (a *Association) handleShutdown(raw []byte, now time.Time) ([][]byte, []Message, error) {
	if _, err := parseShutdown(raw); err != nil {
		return nil, nil, err
	}
	ackPkt := a.wrapToRemote([][]byte{marshalShutdownAck()})
	a.state = StateShutdownAckSent
	out, _ := a.armShutdownFlight(now, [][]byte{ackPkt})
	return out, nil, nil
}

func (a *Association) handleShutdownAck(now time.Time) ([][]byte, []Message, error) {
	if a.state != StateShutdownSent {
		return nil, nil, nil
	}
	a.wheel.Cancel(t2TimerName)
	completePkt := a.wrapToRemote([][]byte{marshalShutdownComplete()})
	a.state = StateClosed
	return [][]byte{completePkt}, nil, nil
}
