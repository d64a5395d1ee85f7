package rtcdc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/rtcdc/internal/sctp"
)

func TestNewDataChannelDefaults(t *testing.T) {
	pc := &PeerConnection{channels: make(map[uint16]*DataChannel)}
	dc := newDataChannel(pc, "t", "proto", 2, false)

	assert.Equal(t, "t", dc.Label())
	assert.Equal(t, "proto", dc.Protocol())
	assert.EqualValues(t, 2, dc.StreamID())
	assert.False(t, dc.Ordered())
	assert.Equal(t, DataChannelStateOpen, dc.ReadyState())
	assert.NotEqual(t, dc.ID.String(), "")
}

func TestDataChannelBinaryPPID(t *testing.T) {
	pc := &PeerConnection{}
	dc := newDataChannel(pc, "bin", "", 4, true)
	assert.Equal(t, sctp.PPIDBinary, dc.ppid)

	dcStr := newDataChannel(pc, "str", "", 6, false)
	assert.Equal(t, sctp.PPIDString, dcStr.ppid)
}

func TestDataChannelSendRejectsOversizedPayload(t *testing.T) {
	pc := &PeerConnection{}
	dc := newDataChannel(pc, "t", "", 2, false)
	err := dc.Send(make([]byte, MaxMessageSize+1))
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindPayloadTooLarge, rerr.Kind)
}

func TestDataChannelSendOnClosedChannelFails(t *testing.T) {
	pc := &PeerConnection{}
	dc := newDataChannel(pc, "t", "", 2, false)
	dc.markClosed()
	err := dc.Send([]byte("hello"))
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindSCTPClosed, rerr.Kind)
}

func TestDataChannelLifecycleCallbacks(t *testing.T) {
	pc := &PeerConnection{}
	dc := newDataChannel(pc, "t", "", 2, false)

	var opened, closed bool
	var received []byte
	dc.OnOpen(func() { opened = true })
	dc.OnClose(func() { closed = true })
	dc.OnMessage(func(data []byte) { received = data })

	dc.notifyOpen()
	assert.True(t, opened)
	assert.Equal(t, DataChannelStateOpen, dc.ReadyState())

	dc.deliver([]byte("payload"))
	assert.Equal(t, []byte("payload"), received)

	dc.markClosing()
	assert.Equal(t, DataChannelStateClosing, dc.ReadyState())

	dc.markClosed()
	assert.True(t, closed)
	assert.Equal(t, DataChannelStateClosed, dc.ReadyState())

	// deliver after close is a no-op, not a crash
	received = nil
	dc.deliver([]byte("dropped"))
	assert.Nil(t, received)
}

func TestDataChannelMarkClosedIsIdempotent(t *testing.T) {
	pc := &PeerConnection{}
	dc := newDataChannel(pc, "t", "", 2, false)

	var closeCount int
	dc.OnClose(func() { closeCount++ })

	dc.markClosed()
	dc.markClosed()
	assert.Equal(t, 1, closeCount)
}

func TestDataChannelCloseOnAlreadyClosedIsNoop(t *testing.T) {
	pc := &PeerConnection{}
	dc := newDataChannel(pc, "t", "", 2, false)
	dc.markClosed()
	assert.NoError(t, dc.Close())
}
