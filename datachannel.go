package rtcdc

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanikai/rtcdc/internal/sctp"
)

// MaxMessageSize is the largest payload a single send can carry. It matches
// the SCTP association's unfragmented DATA chunk cap; a larger send fails
// synchronously with KindPayloadTooLarge rather than being split.
const MaxMessageSize = 1200

// DataChannelState mirrors the W3C RTCDataChannelState values this profile
// actually reaches. There is no "connecting" value: a channel reports open
// from the moment it is constructed, including before its association is
// established.
type DataChannelState int

const (
	DataChannelStateOpen DataChannelState = iota
	DataChannelStateClosing
	DataChannelStateClosed
)

func (s DataChannelState) String() string {
	switch s {
	case DataChannelStateOpen:
		return "open"
	case DataChannelStateClosing:
		return "closing"
	case DataChannelStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DataChannel is a single unreliable, unordered, unfragmented stream
// multiplexed over one SCTP association. Every channel is "ordered: false"
// by construction; this profile never implements the ordered delivery mode,
// so the Ordered method exists only to satisfy the public API shape and
// always reports false.
type DataChannel struct {
	// ID uniquely names the channel within its process for logging and
	// trace correlation; it is unrelated to the wire stream ID.
	ID uuid.UUID

	label      string
	protocol   string
	streamID   uint16
	ppid       sctp.PayloadProtocolID

	mu      sync.Mutex
	state   DataChannelState

	pc *PeerConnection

	onOpen    func()
	onClose   func()
	onMessage func(data []byte)
	onError   func(err error)
}

func newDataChannel(pc *PeerConnection, label, protocol string, streamID uint16, binary bool) *DataChannel {
	ppid := sctp.PPIDString
	if binary {
		ppid = sctp.PPIDBinary
	}
	return &DataChannel{
		ID:       uuid.New(),
		label:    label,
		protocol: protocol,
		streamID: streamID,
		ppid:     ppid,
		state:    DataChannelStateOpen,
		pc:       pc,
	}
}

func (dc *DataChannel) Label() string    { return dc.label }
func (dc *DataChannel) Protocol() string { return dc.protocol }
func (dc *DataChannel) StreamID() uint16 { return dc.streamID }

// Ordered always reports false: this profile does not implement the
// ordered-delivery data channel mode.
func (dc *DataChannel) Ordered() bool { return false }

func (dc *DataChannel) ReadyState() DataChannelState {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.state
}

// OnOpen, OnClose, OnMessage, and OnError register the fixed per-channel
// callbacks. Like Events on PeerConnection, there is no dynamic
// subscription list; each is a single overwritable slot.
func (dc *DataChannel) OnOpen(f func())              { dc.onOpen = f }
func (dc *DataChannel) OnClose(f func())             { dc.onClose = f }
func (dc *DataChannel) OnMessage(f func(data []byte)) { dc.onMessage = f }
func (dc *DataChannel) OnError(f func(err error))    { dc.onError = f }

// Send transmits data unreliably and unordered over this channel's SCTP
// stream. A payload larger than MaxMessageSize is rejected synchronously
// without touching the network.
func (dc *DataChannel) Send(data []byte) error {
	if len(data) > MaxMessageSize {
		return newError(KindPayloadTooLarge, nil)
	}
	dc.mu.Lock()
	state := dc.state
	dc.mu.Unlock()
	if state != DataChannelStateOpen {
		return newError(KindSCTPClosed, nil)
	}
	return dc.pc.sendOnChannel(dc, data)
}

func (dc *DataChannel) deliver(data []byte) {
	dc.mu.Lock()
	state := dc.state
	dc.mu.Unlock()
	if state == DataChannelStateClosed {
		return
	}
	if dc.onMessage != nil {
		dc.onMessage(data)
	}
}

func (dc *DataChannel) notifyOpen() {
	dc.mu.Lock()
	dc.state = DataChannelStateOpen
	dc.mu.Unlock()
	if dc.onOpen != nil {
		dc.onOpen()
	}
}

func (dc *DataChannel) markClosing() {
	dc.mu.Lock()
	dc.state = DataChannelStateClosing
	dc.mu.Unlock()
}

func (dc *DataChannel) markClosed() {
	dc.mu.Lock()
	already := dc.state == DataChannelStateClosed
	dc.state = DataChannelStateClosed
	dc.mu.Unlock()
	if !already && dc.onClose != nil {
		dc.onClose()
	}
}

// Close requests that the underlying outgoing SCTP stream be reset. Once
// the peer acknowledges the reset, OnClose fires and ReadyState reports
// closed; until then the channel reports closing and further sends fail.
func (dc *DataChannel) Close() error {
	dc.mu.Lock()
	if dc.state != DataChannelStateOpen {
		dc.mu.Unlock()
		return nil
	}
	dc.state = DataChannelStateClosing
	dc.mu.Unlock()
	return dc.pc.closeChannel(dc, time.Now())
}
