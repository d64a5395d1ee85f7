package rtcdc

// SignalingState tracks where a PeerConnection sits in the offer/answer
// exchange. Transitions are validated against the table in setLocalDescription
// and setRemoteDescription; any disallowed transition fails with
// KindInvalidState and leaves the state unchanged.
type SignalingState int

const (
	SignalingStateStable SignalingState = iota
	SignalingStateHaveLocalOffer
	SignalingStateHaveRemoteOffer
	SignalingStateHaveLocalPranswer
	SignalingStateHaveRemotePranswer
	SignalingStateClosed
)

func (s SignalingState) String() string {
	switch s {
	case SignalingStateStable:
		return "stable"
	case SignalingStateHaveLocalOffer:
		return "have-local-offer"
	case SignalingStateHaveRemoteOffer:
		return "have-remote-offer"
	case SignalingStateHaveLocalPranswer:
		return "have-local-pranswer"
	case SignalingStateHaveRemotePranswer:
		return "have-remote-pranswer"
	case SignalingStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ICEConnectionState mirrors the ICE agent's connectivity checks.
type ICEConnectionState int

const (
	ICEConnectionStateNew ICEConnectionState = iota
	ICEConnectionStateChecking
	ICEConnectionStateConnected
	ICEConnectionStateCompleted
	ICEConnectionStateFailed
	ICEConnectionStateDisconnected
	ICEConnectionStateClosed
)

func (s ICEConnectionState) String() string {
	switch s {
	case ICEConnectionStateNew:
		return "new"
	case ICEConnectionStateChecking:
		return "checking"
	case ICEConnectionStateConnected:
		return "connected"
	case ICEConnectionStateCompleted:
		return "completed"
	case ICEConnectionStateFailed:
		return "failed"
	case ICEConnectionStateDisconnected:
		return "disconnected"
	case ICEConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerConnectionState aggregates ICE and DTLS/SCTP transport health into the
// single top-level signal applications usually care about.
type PeerConnectionState int

const (
	PeerConnectionStateNew PeerConnectionState = iota
	PeerConnectionStateConnecting
	PeerConnectionStateConnected
	PeerConnectionStateDisconnected
	PeerConnectionStateFailed
	PeerConnectionStateClosed
)

func (s PeerConnectionState) String() string {
	switch s {
	case PeerConnectionStateNew:
		return "new"
	case PeerConnectionStateConnecting:
		return "connecting"
	case PeerConnectionStateConnected:
		return "connected"
	case PeerConnectionStateDisconnected:
		return "disconnected"
	case PeerConnectionStateFailed:
		return "failed"
	case PeerConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// GatheringState re-exports internal/ice's enum under the root package so
// applications subscribing to OnICEGatheringStateChange don't need to import
// an internal package to interpret the value.
type GatheringState int

const (
	GatheringStateNew GatheringState = iota
	GatheringStateGathering
	GatheringStateComplete
)

func (s GatheringState) String() string {
	switch s {
	case GatheringStateNew:
		return "new"
	case GatheringStateGathering:
		return "gathering"
	case GatheringStateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// sdpType distinguishes offer, answer, and pranswer descriptions. There is
// no rollback value.
type sdpType int

const (
	sdpTypeOffer sdpType = iota
	sdpTypeAnswer
	sdpTypePranswer
)

func (t sdpType) String() string {
	switch t {
	case sdpTypeOffer:
		return "offer"
	case sdpTypeAnswer:
		return "answer"
	case sdpTypePranswer:
		return "pranswer"
	default:
		return "unknown"
	}
}

type stateChangeOp int

const (
	stateChangeOpSetLocal stateChangeOp = iota
	stateChangeOpSetRemote
)

// nextSignalingState implements the transition table: setLocalDescription(offer)
// from stable|have-local-offer -> have-local-offer; setLocalDescription(answer)
// from have-remote-offer|have-local-pranswer -> stable; setRemoteDescription(offer)
// from stable|have-remote-offer -> have-remote-offer; setRemoteDescription(answer)
// from have-local-offer|have-remote-pranswer -> stable. Pranswer variants mirror
// answer but land on the have-*-pranswer states instead of stable.
func nextSignalingState(cur SignalingState, op stateChangeOp, t sdpType) (SignalingState, error) {
	switch op {
	case stateChangeOpSetLocal:
		switch t {
		case sdpTypeOffer:
			if cur == SignalingStateStable || cur == SignalingStateHaveLocalOffer {
				return SignalingStateHaveLocalOffer, nil
			}
		case sdpTypeAnswer:
			if cur == SignalingStateHaveRemoteOffer || cur == SignalingStateHaveLocalPranswer {
				return SignalingStateStable, nil
			}
		case sdpTypePranswer:
			if cur == SignalingStateHaveRemoteOffer {
				return SignalingStateHaveLocalPranswer, nil
			}
		}
	case stateChangeOpSetRemote:
		switch t {
		case sdpTypeOffer:
			if cur == SignalingStateStable || cur == SignalingStateHaveRemoteOffer {
				return SignalingStateHaveRemoteOffer, nil
			}
		case sdpTypeAnswer:
			if cur == SignalingStateHaveLocalOffer || cur == SignalingStateHaveRemotePranswer {
				return SignalingStateStable, nil
			}
		case sdpTypePranswer:
			if cur == SignalingStateHaveLocalOffer {
				return SignalingStateHaveRemotePranswer, nil
			}
		}
	}
	return cur, newError(KindInvalidState, nil)
}
