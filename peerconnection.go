package rtcdc

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lanikai/rtcdc/internal/dtls"
	"github.com/lanikai/rtcdc/internal/ice"
	"github.com/lanikai/rtcdc/internal/logging"
	"github.com/lanikai/rtcdc/internal/mux"
	"github.com/lanikai/rtcdc/internal/sctp"
	"github.com/lanikai/rtcdc/internal/sdp"
)

var log = logging.DefaultLogger.WithTag("rtcdc")

// dataChannelMid is the single mid this profile ever negotiates: every data
// channel multiplexes over the one "m=application" section.
const dataChannelMid = "0"

const sctpDefaultPort = 5000

// sctpTickInterval drives T1/T2/T-Reconfig retransmission independent of
// incoming traffic, mirroring internal/dtls's Transport tick loop.
const sctpTickInterval = 200 * time.Millisecond

const muxBufferSize = 1500

// DataChannelInit configures a data channel at creation time.
type DataChannelInit struct {
	// Protocol is an opaque subprotocol string conveyed to the peer.
	Protocol string

	// Binary selects PPIDBinary over PPIDString for the DCEP announcement
	// and subsequent payload-protocol ids. Messages are always raw bytes
	// either way; this only affects what the wire reports.
	Binary bool
}

// PeerConnection orchestrates session-description negotiation, the ICE
// agent, a single DTLS transport, and the SCTP association it carries, and
// owns every DataChannel multiplexed over that association.
type PeerConnection struct {
	mu sync.Mutex

	cfg    Configuration
	events *Events

	certificate *Certificate

	sessionID      string
	sessionVersion uint64

	localUfrag, localPwd   string
	remoteUfrag, remotePwd string

	isOfferer   bool
	controlling bool
	localSetup  dtlsSetup
	dtlsRole    dtls.Role
	sctpRole    sctp.Role

	signalingState SignalingState
	iceConnState   ICEConnectionState
	connState      PeerConnectionState
	gatherState    GatheringState

	localSession  *sdp.Session
	remoteSession *sdp.Session
	remoteMedia   mediaDescriptor

	localCands      []string
	gatheringClosed bool

	negotiationNeededSet bool

	iceAgent      *ice.Agent
	mux           *mux.Mux
	dtlsTransport *dtls.Transport
	assoc         *sctp.Association

	channels        map[uint16]*DataChannel
	pendingOpen     map[uint16]bool
	nextOutStreamID uint16
	closedSeen      map[uint16]bool

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closed    bool

	lastErr *Error
}

// NewPeerConnection creates an unconnected PeerConnection. Transport setup
// begins once both a local and remote description have been applied.
func NewPeerConnection(cfg Configuration, events *Events) (*PeerConnection, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cert := cfg.Certificate
	if cert == nil {
		var err error
		cert, err = GenerateCertificate()
		if err != nil {
			return nil, err
		}
	}

	ufrag, err := randomICEString(4)
	if err != nil {
		return nil, newError(KindNetworkError, err)
	}
	pwd, err := randomICEString(24)
	if err != nil {
		return nil, newError(KindNetworkError, err)
	}
	sessionID, err := randomSessionID()
	if err != nil {
		return nil, newError(KindNetworkError, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	pc := &PeerConnection{
		cfg:             cfg,
		events:          events,
		certificate:     cert,
		sessionID:       sessionID,
		localUfrag:      ufrag,
		localPwd:        pwd,
		signalingState:  SignalingStateStable,
		iceConnState:    ICEConnectionStateNew,
		connState:       PeerConnectionStateNew,
		gatherState:     GatheringStateNew,
		iceAgent:        ice.NewAgent(),
		channels:        make(map[uint16]*DataChannel),
		pendingOpen:     make(map[uint16]bool),
		closedSeen:      make(map[uint16]bool),
		ctx:             ctx,
		cancel:          cancel,
	}
	return pc, nil
}

func randomICEString(n int) (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i, v := range b {
		b[i] = alphabet[int(v)%len(alphabet)]
	}
	return string(b), nil
}

func randomSessionID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", uint64(b[0])<<56|uint64(b[1])<<48|uint64(b[2])<<40|uint64(b[3])<<32|
		uint64(b[4])<<24|uint64(b[5])<<16|uint64(b[6])<<8|uint64(b[7])), nil
}

func (pc *PeerConnection) nextSessionVersion() uint64 {
	pc.sessionVersion++
	return pc.sessionVersion
}

func (pc *PeerConnection) localCandidates() []string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return append([]string(nil), pc.localCands...)
}

func (pc *PeerConnection) gatheringDone() bool {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.gatheringClosed
}

func (pc *PeerConnection) SignalingState() SignalingState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.signalingState
}

func (pc *PeerConnection) ICEConnectionState() ICEConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.iceConnState
}

func (pc *PeerConnection) ConnectionState() PeerConnectionState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.connState
}

func (pc *PeerConnection) GatheringState() GatheringState {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.gatherState
}

// CreateOffer builds a fresh local offer without applying it.
func (pc *PeerConnection) CreateOffer() (SessionDescription, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.signalingState == SignalingStateClosed {
		return SessionDescription{}, newError(KindInvalidState, nil)
	}
	s, err := buildOfferSession(pc)
	if err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: SessionDescriptionOffer, SDP: s.String()}, nil
}

// CreateAnswer builds a fresh local answer to the currently applied remote
// offer.
func (pc *PeerConnection) CreateAnswer() (SessionDescription, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.signalingState != SignalingStateHaveRemoteOffer {
		return SessionDescription{}, newError(KindInvalidState, nil)
	}
	s, err := buildAnswerSession(pc, pc.remoteSession)
	if err != nil {
		return SessionDescription{}, err
	}
	return SessionDescription{Type: SessionDescriptionAnswer, SDP: s.String()}, nil
}

func toSdpType(t SessionDescriptionType) sdpType {
	switch t {
	case SessionDescriptionAnswer:
		return sdpTypeAnswer
	case SessionDescriptionPranswer:
		return sdpTypePranswer
	default:
		return sdpTypeOffer
	}
}

// SetLocalDescription applies desc as this side's local description,
// validating the signaling-state transition table.
func (pc *PeerConnection) SetLocalDescription(desc SessionDescription) error {
	pc.mu.Lock()
	session, err := sdp.ParseSession(desc.SDP)
	if err != nil {
		pc.mu.Unlock()
		return newError(KindInvalidSDP, err)
	}

	next, err := nextSignalingState(pc.signalingState, stateChangeOpSetLocal, toSdpType(desc.Type))
	if err != nil {
		pc.mu.Unlock()
		return err
	}
	if desc.Type == SessionDescriptionOffer {
		pc.isOfferer = true
	}
	pc.localSession = &session
	pc.signalingState = next
	ready := next == SignalingStateStable && pc.remoteSession != nil
	pc.mu.Unlock()

	pc.fireSignalingStateChange(next)
	if ready {
		pc.startTransport()
	}
	return nil
}

// SetRemoteDescription applies desc as the peer's description, validating
// both the signaling-state transition and (for answers) that the media
// section sequence matches the pending offer.
func (pc *PeerConnection) SetRemoteDescription(desc SessionDescription) error {
	pc.mu.Lock()
	session, err := sdp.ParseSession(desc.SDP)
	if err != nil {
		pc.mu.Unlock()
		return newError(KindInvalidSDP, err)
	}

	media, err := parseRemoteMedia(&session)
	if err != nil {
		pc.mu.Unlock()
		return err
	}

	if desc.Type == SessionDescriptionAnswer && pc.localSession != nil {
		if len(pc.localSession.Media) != len(session.Media) {
			pc.mu.Unlock()
			return newError(KindInvalidSDP, fmt.Errorf("answer media section count does not match offer"))
		}
		for i := range pc.localSession.Media {
			if pc.localSession.Media[i].Type != session.Media[i].Type {
				pc.mu.Unlock()
				return newError(KindInvalidSDP, fmt.Errorf("answer media kind at index %d does not match offer", i))
			}
		}
	}

	next, err := nextSignalingState(pc.signalingState, stateChangeOpSetRemote, toSdpType(desc.Type))
	if err != nil {
		pc.mu.Unlock()
		return err
	}

	if desc.Type == SessionDescriptionOffer && !pc.isOfferer {
		pc.isOfferer = false
	}

	pc.remoteSession = &session
	pc.remoteUfrag = media.iceUfrag
	pc.remotePwd = media.icePwd
	pc.remoteMedia = media
	pc.signalingState = next
	ready := next == SignalingStateStable && pc.localSession != nil
	pc.mu.Unlock()

	pc.fireSignalingStateChange(next)
	if ready {
		pc.startTransport()
	}
	return nil
}

// AddICECandidate forwards a trickled remote candidate to the ICE agent. An
// empty candidate signals end-of-candidates.
func (pc *PeerConnection) AddICECandidate(candidate, mid string) error {
	pc.mu.Lock()
	agent := pc.iceAgent
	pc.mu.Unlock()
	if err := agent.AddRemoteCandidate(candidate, mid); err != nil {
		return newError(KindICEFailed, err)
	}
	return nil
}

// CreateDataChannel allocates a new outgoing stream and, once the
// association is established, announces it to the peer via DCEP. Its
// ReadyState is open from creation; OnOpen fires when the peer's ACK
// arrives. Sends made before the association is established fail with
// KindSCTPClosed; nothing is queued.
func (pc *PeerConnection) CreateDataChannel(label string, init DataChannelInit) (*DataChannel, error) {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil, newError(KindSCTPClosed, nil)
	}
	streamID := pc.allocateStreamID()
	dc := newDataChannel(pc, label, init.Protocol, streamID, init.Binary)
	pc.channels[streamID] = dc
	assoc := pc.assoc
	transport := pc.dtlsTransport
	needsNegotiation := pc.signalingState == SignalingStateStable
	pc.mu.Unlock()

	if needsNegotiation {
		pc.fireNegotiationNeeded()
	}

	if assoc != nil && transport != nil && assoc.State() == sctp.StateEstablished {
		pkt, err := assoc.WriteMessage(streamID, sctp.PPIDDCEP, marshalDCEPOpen(label, init.Protocol))
		if err == nil {
			transport.WriteApplicationData(pkt)
		}
	} else {
		// The association isn't up yet (common case: the application
		// creates its channels before the offer/answer exchange even
		// starts). sctpIOLoop flushes this once the association reaches
		// StateEstablished.
		pc.mu.Lock()
		pc.pendingOpen[streamID] = true
		pc.mu.Unlock()
	}
	return dc, nil
}

// allocateStreamID assigns even ids to the offerer and odd ids to the
// answerer, per RFC 8832 §6, so both sides can pick stream ids without
// coordination.
func (pc *PeerConnection) allocateStreamID() uint16 {
	id := pc.nextOutStreamID
	pc.nextOutStreamID += 2
	if pc.isOfferer {
		if id%2 != 0 {
			id++
		}
	} else {
		if id%2 == 0 {
			id++
		}
	}
	return id
}

// Close idempotently tears down every layer and advances all state
// machines to closed.
func (pc *PeerConnection) Close() error {
	pc.closeOnce.Do(func() {
		pc.mu.Lock()
		pc.closed = true
		pc.signalingState = SignalingStateClosed
		agent := pc.iceAgent
		m := pc.mux
		transport := pc.dtlsTransport
		assoc := pc.assoc
		channels := make([]*DataChannel, 0, len(pc.channels))
		for _, dc := range pc.channels {
			channels = append(channels, dc)
		}
		pc.mu.Unlock()

		pc.cancel()

		if assoc != nil && assoc.State() == sctp.StateEstablished {
			if pkt, err := assoc.Shutdown(time.Now()); err == nil && transport != nil {
				transport.WriteApplicationData(pkt)
			}
		}
		for _, dc := range channels {
			dc.markClosed()
		}
		if transport != nil {
			transport.Close()
		}
		if m != nil {
			m.Close()
		}
		if agent != nil {
			agent.Close()
		}

		pc.fireSignalingStateChange(SignalingStateClosed)
		pc.setConnectionState(PeerConnectionStateClosed)
	})
	return nil
}

func (pc *PeerConnection) fireSignalingStateChange(s SignalingState) {
	pc.events.fireSignalingStateChange(s)
}

func (pc *PeerConnection) setConnectionState(s PeerConnectionState) {
	pc.mu.Lock()
	changed := pc.connState != s
	pc.connState = s
	pc.mu.Unlock()
	if changed {
		pc.events.fireConnectionStateChange(s)
	}
}

// LastError returns the classified error that drove the most recent
// transition to PeerConnectionStateFailed, or nil if the connection has
// never failed.
func (pc *PeerConnection) LastError() *Error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.lastErr
}

// failWith records err as the reason for a transition to
// PeerConnectionStateFailed, notifies Events.OnError, and sets the
// connection state. It is the only path that should ever be used to enter
// PeerConnectionStateFailed so LastError and OnError stay authoritative.
func (pc *PeerConnection) failWith(kind Kind, cause error) {
	rtcErr := newError(kind, cause)
	pc.mu.Lock()
	pc.lastErr = rtcErr
	pc.mu.Unlock()
	pc.events.fireError(rtcErr)
	pc.setConnectionState(PeerConnectionStateFailed)
}

func (pc *PeerConnection) setICEConnectionState(s ICEConnectionState) {
	pc.mu.Lock()
	changed := pc.iceConnState != s
	pc.iceConnState = s
	pc.mu.Unlock()
	if changed {
		pc.events.fireICEConnectionStateChange(s)
	}
}

func (pc *PeerConnection) fireNegotiationNeeded() {
	pc.mu.Lock()
	if pc.negotiationNeededSet {
		pc.mu.Unlock()
		return
	}
	pc.negotiationNeededSet = true
	pc.mu.Unlock()
	pc.events.fireNegotiationNeeded()
	pc.mu.Lock()
	pc.negotiationNeededSet = false
	pc.mu.Unlock()
}

// startTransport configures ICE/DTLS roles from the now-complete
// offer/answer exchange and launches the background connection goroutine.
// Both setLocalDescription and setRemoteDescription call this once
// signaling reaches stable with both descriptions present; the second
// caller to reach stable is the one that actually triggers it. A call made
// once the association already exists returns immediately.
func (pc *PeerConnection) startTransport() {
	pc.mu.Lock()
	if pc.assoc != nil {
		pc.mu.Unlock()
		return
	}

	controlling := pc.isOfferer
	if pc.remoteSession != nil && pc.remoteSession.ICELite() {
		controlling = true
	}
	pc.controlling = controlling

	role, err := resolveDTLSRole(pc.isOfferer, pc.localSetup, pc.remoteMedia.setup)
	if err != nil {
		pc.mu.Unlock()
		pc.failWith(KindInvalidSDP, err)
		return
	}
	if role == "server" {
		pc.dtlsRole = dtls.RoleServer
		pc.sctpRole = sctp.RoleServer
	} else {
		pc.dtlsRole = dtls.RoleClient
		pc.sctpRole = sctp.RoleClient
	}

	agent := pc.iceAgent
	remoteUfrag, remotePwd := pc.remoteUfrag, pc.remotePwd
	localUfrag, localPwd := pc.localUfrag, pc.localPwd
	candidates := append([]string(nil), pc.remoteMedia.candidates...)
	pc.mu.Unlock()

	agent.Configure(dataChannelMid, localUfrag, localPwd, remotePwd, controlling, pc.cfg.iceServers())

	for _, c := range candidates {
		agent.AddRemoteCandidate(c, dataChannelMid)
	}

	pc.setICEConnectionState(ICEConnectionStateChecking)
	pc.setConnectionState(PeerConnectionStateConnecting)

	go pc.connect()
	_ = remoteUfrag
}

func (pc *PeerConnection) connect() {
	lcand := make(chan ice.Candidate, 16)
	go func() {
		for c := range lcand {
			pc.mu.Lock()
			pc.localCands = append(pc.localCands, c.String())
			pc.mu.Unlock()
			pc.events.fireICECandidate(&c)
			pc.mu.Lock()
			gathering := pc.iceAgent.GatheringState()
			pc.mu.Unlock()
			switch gathering {
			case ice.GatheringGathering:
				pc.setGatheringState(GatheringStateGathering)
			case ice.GatheringComplete:
				pc.setGatheringState(GatheringStateComplete)
			}
		}
		pc.mu.Lock()
		pc.gatheringClosed = true
		pc.mu.Unlock()
		pc.setGatheringState(GatheringStateComplete)
		pc.events.fireICECandidate(nil)
	}()

	conn, err := pc.iceAgent.EstablishConnection(pc.ctx, lcand)
	if err != nil {
		log.Warn("ICE connection establishment failed: %s", err)
		pc.setICEConnectionState(ICEConnectionStateFailed)
		pc.failWith(KindICEFailed, err)
		return
	}
	pc.setICEConnectionState(ICEConnectionStateConnected)

	m := mux.NewMux(conn, muxBufferSize)
	dtlsEndpoint := m.DTLSEndpoint()

	pc.mu.Lock()
	pc.mux = m
	pc.mu.Unlock()

	remoteFingerprints := map[string]string{pc.remoteMedia.fingerprintAlgo: pc.remoteMedia.fingerprintHex}
	transport := dtls.NewTransport(dtlsEndpoint, dtls.Config{
		Role:                     pc.dtlsRole,
		Certificate:              pc.certificate.inner,
		RemoteFingerprints:       remoteFingerprints,
		InitialRetransmitTimeout: time.Second,
		MaxRetransmitTimeout:     60 * time.Second,
		MaxRetransmits:           8,
	})

	pc.mu.Lock()
	pc.dtlsTransport = transport
	pc.mu.Unlock()

	if err := transport.WaitConnected(); err != nil {
		log.Warn("DTLS handshake failed: %s", err)
		kind := KindDTLSHandshakeFailed
		if errors.Is(err, dtls.ErrFingerprintMismatch) {
			kind = KindDTLSFingerprintMismatch
		}
		pc.failWith(kind, err)
		return
	}
	pc.setICEConnectionState(ICEConnectionStateCompleted)

	assoc := sctp.NewAssociation(sctp.Config{
		Role:                     pc.sctpRole,
		LocalPort:                uint16(sctpDefaultPort),
		RemotePort:               uint16(pc.remoteMedia.sctpPort),
		InitialRetransmitTimeout: time.Second,
		MaxRetransmitTimeout:     60 * time.Second,
	})
	pc.mu.Lock()
	pc.assoc = assoc
	pc.mu.Unlock()

	if pc.sctpRole == sctp.RoleClient {
		if toSend, err := assoc.Start(time.Now()); err == nil {
			for _, pkt := range toSend {
				transport.WriteApplicationData(pkt)
			}
		}
	}

	pc.sctpIOLoop(transport, assoc)
}

func (pc *PeerConnection) setGatheringState(s GatheringState) {
	pc.mu.Lock()
	changed := pc.gatherState != s
	pc.gatherState = s
	pc.mu.Unlock()
	if changed {
		pc.events.fireGatheringStateChange(s)
	}
}

// sctpIOLoop is the single per-connection goroutine that reads the DTLS
// application-data channel, feeds it to the SCTP association, drives its
// Tick on a fixed interval, and routes delivered messages to data channels.
// No other goroutine touches assoc.
func (pc *PeerConnection) sctpIOLoop(transport *dtls.Transport, assoc *sctp.Association) {
	incoming := make(chan []byte, 64)
	readErrs := make(chan error, 1)
	go func() {
		for {
			data, err := transport.ReadApplicationData()
			if err != nil {
				readErrs <- err
				return
			}
			select {
			case incoming <- data:
			case <-pc.ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(sctpTickInterval)
	defer ticker.Stop()

	announceEstablished := false

	for {
		select {
		case data := <-incoming:
			toSend, msgs, err := assoc.FeedInput(data, time.Now())
			if err != nil {
				log.Debug("sctp: dropping malformed packet: %s", err)
				continue
			}
			for _, pkt := range toSend {
				transport.WriteApplicationData(pkt)
			}
			pc.handleMessages(assoc, transport, msgs)
			pc.checkStreamClosures(assoc)
			if !announceEstablished && assoc.State() == sctp.StateEstablished {
				announceEstablished = true
				pc.flushPendingDataChannelOpens(assoc, transport)
				pc.setConnectionState(PeerConnectionStateConnected)
			}
			if assoc.State() == sctp.StateClosed {
				return
			}

		case now := <-ticker.C:
			toSend := assoc.Tick(now)
			for _, pkt := range toSend {
				transport.WriteApplicationData(pkt)
			}
			pc.checkStreamClosures(assoc)
			if assoc.State() == sctp.StateClosed {
				pc.setConnectionState(PeerConnectionStateClosed)
				return
			}

		case err := <-readErrs:
			log.Warn("sctp: underlying DTLS transport failed: %s", err)
			pc.failWith(KindNetworkError, err)
			return

		case <-pc.ctx.Done():
			return
		}
	}
}

// flushPendingDataChannelOpens sends the DATA_CHANNEL_OPEN message for every
// channel CreateDataChannel queued while the association was not yet
// established. Called exactly once, from sctpIOLoop, the instant the
// association first reaches StateEstablished.
func (pc *PeerConnection) flushPendingDataChannelOpens(assoc *sctp.Association, transport *dtls.Transport) {
	type opening struct {
		streamID uint16
		label    string
		protocol string
	}

	pc.mu.Lock()
	var toOpen []opening
	for streamID := range pc.pendingOpen {
		if dc, ok := pc.channels[streamID]; ok {
			toOpen = append(toOpen, opening{streamID, dc.Label(), dc.Protocol()})
		}
	}
	pc.pendingOpen = make(map[uint16]bool)
	pc.mu.Unlock()

	for _, o := range toOpen {
		pkt, err := assoc.WriteMessage(o.streamID, sctp.PPIDDCEP, marshalDCEPOpen(o.label, o.protocol))
		if err != nil {
			log.Debug("sctp: dropping queued DATA_CHANNEL_OPEN for stream %d: %s", o.streamID, err)
			continue
		}
		transport.WriteApplicationData(pkt)
	}
}

func (pc *PeerConnection) handleMessages(assoc *sctp.Association, transport *dtls.Transport, msgs []sctp.Message) {
	for _, msg := range msgs {
		if msg.PPID == sctp.PPIDDCEP {
			pc.handleDCEP(assoc, transport, msg)
			continue
		}
		pc.mu.Lock()
		dc := pc.channels[msg.StreamID]
		pc.mu.Unlock()
		if dc != nil {
			dc.deliver(msg.Data)
		}
	}
}

func (pc *PeerConnection) handleDCEP(assoc *sctp.Association, transport *dtls.Transport, msg sctp.Message) {
	if isDCEPAck(msg.Data) {
		pc.mu.Lock()
		dc := pc.channels[msg.StreamID]
		pc.mu.Unlock()
		if dc != nil {
			dc.notifyOpen()
		}
		return
	}

	label, protocol, err := parseDCEPOpen(msg.Data)
	if err != nil {
		log.Debug("sctp: malformed DATA_CHANNEL_OPEN on stream %d: %s", msg.StreamID, err)
		return
	}

	dc := newDataChannel(pc, label, protocol, msg.StreamID, true)
	pc.mu.Lock()
	pc.channels[msg.StreamID] = dc
	pc.mu.Unlock()

	if pkt, err := assoc.WriteMessage(msg.StreamID, sctp.PPIDDCEP, marshalDCEPAck()); err == nil {
		transport.WriteApplicationData(pkt)
	}
	dc.notifyOpen()
	pc.events.fireDataChannel(dc)
}

func (pc *PeerConnection) checkStreamClosures(assoc *sctp.Association) {
	pc.mu.Lock()
	ids := make([]uint16, 0, len(pc.channels))
	for id := range pc.channels {
		ids = append(ids, id)
	}
	pc.mu.Unlock()

	for _, id := range ids {
		if !assoc.IsOutboundStreamClosed(id) {
			continue
		}
		pc.mu.Lock()
		already := pc.closedSeen[id]
		pc.closedSeen[id] = true
		dc := pc.channels[id]
		pc.mu.Unlock()
		if !already && dc != nil {
			dc.markClosed()
		}
	}
}

// sendOnChannel is called by DataChannel.Send; it builds and writes one
// unordered DATA chunk immediately, with no queuing.
func (pc *PeerConnection) sendOnChannel(dc *DataChannel, data []byte) error {
	pc.mu.Lock()
	assoc := pc.assoc
	transport := pc.dtlsTransport
	pc.mu.Unlock()
	if assoc == nil || transport == nil {
		return newError(KindSCTPClosed, nil)
	}

	pkt, err := assoc.WriteMessage(dc.streamID, dc.ppid, data)
	if err != nil {
		switch {
		case errors.Is(err, sctp.ErrPayloadTooLarge):
			return newError(KindPayloadTooLarge, err)
		case errors.Is(err, sctp.ErrStreamReset):
			return newError(KindSCTPClosed, err)
		default:
			return newError(KindSCTPClosed, err)
		}
	}
	if err := transport.WriteApplicationData(pkt); err != nil {
		return newError(KindNetworkError, err)
	}
	return nil
}

// closeChannel is called by DataChannel.Close; it requests the stream's
// outgoing side be reset via RE-CONFIG. The channel's OnClose callback
// fires once checkStreamClosures observes the peer's response.
func (pc *PeerConnection) closeChannel(dc *DataChannel, now time.Time) error {
	pc.mu.Lock()
	assoc := pc.assoc
	transport := pc.dtlsTransport
	pc.mu.Unlock()
	if assoc == nil || transport == nil {
		dc.markClosed()
		return nil
	}
	pkt, err := assoc.RequestCloseOutgoingStream(now, dc.streamID)
	if err != nil {
		return newError(KindSCTPClosed, err)
	}
	return transport.WriteApplicationData(pkt)
}
