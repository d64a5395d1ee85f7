package rtcdc

import "github.com/lanikai/rtcdc/internal/ice"

// Events holds the fixed set of notification callbacks a PeerConnection
// fires. There is no dynamic Subscribe/On(name, ...) registry: each slot is
// a single func field set directly by the application, matching the closed
// event vocabulary a PeerConnection actually produces. A nil slot is simply
// not invoked.
type Events struct {
	// OnICECandidate fires once per locally gathered candidate, and once
	// more with a nil candidate when gathering completes.
	OnICECandidate func(candidate *ice.Candidate)

	OnICEGatheringStateChange func(state GatheringState)
	OnICEConnectionStateChange func(state ICEConnectionState)
	OnSignalingStateChange    func(state SignalingState)
	OnConnectionStateChange   func(state PeerConnectionState)

	// OnDataChannel fires when the remote peer opens a new stream this
	// PeerConnection did not initiate.
	OnDataChannel func(channel *DataChannel)

	// OnNegotiationNeeded fires synchronously from CreateDataChannel each
	// time a channel is created while signaling is in the stable state.
	OnNegotiationNeeded func()

	// OnError fires whenever a PeerConnection transitions to
	// PeerConnectionStateFailed, carrying the classified *Error so the
	// application can distinguish, e.g., KindDTLSFingerprintMismatch from
	// a plain KindDTLSHandshakeFailed instead of just observing "failed".
	OnError func(err *Error)
}

func (e *Events) fireICECandidate(c *ice.Candidate) {
	if e != nil && e.OnICECandidate != nil {
		e.OnICECandidate(c)
	}
}

func (e *Events) fireGatheringStateChange(s GatheringState) {
	if e != nil && e.OnICEGatheringStateChange != nil {
		e.OnICEGatheringStateChange(s)
	}
}

func (e *Events) fireICEConnectionStateChange(s ICEConnectionState) {
	if e != nil && e.OnICEConnectionStateChange != nil {
		e.OnICEConnectionStateChange(s)
	}
}

func (e *Events) fireSignalingStateChange(s SignalingState) {
	if e != nil && e.OnSignalingStateChange != nil {
		e.OnSignalingStateChange(s)
	}
}

func (e *Events) fireConnectionStateChange(s PeerConnectionState) {
	if e != nil && e.OnConnectionStateChange != nil {
		e.OnConnectionStateChange(s)
	}
}

func (e *Events) fireDataChannel(dc *DataChannel) {
	if e != nil && e.OnDataChannel != nil {
		e.OnDataChannel(dc)
	}
}

func (e *Events) fireNegotiationNeeded() {
	if e != nil && e.OnNegotiationNeeded != nil {
		e.OnNegotiationNeeded()
	}
}

func (e *Events) fireError(err *Error) {
	if e != nil && e.OnError != nil {
		e.OnError(err)
	}
}
