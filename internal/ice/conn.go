package ice

import (
	"errors"
	"io"
	"math"
	"net"
	"time"
)

// ChannelConn implements net.Conn over a channel of received datagrams and a
// Base used to send them. It is the net.Conn handed off to the DTLS layer
// once a candidate pair has been selected.
type ChannelConn struct {
	base  *Base
	in    <-chan []byte
	raddr net.Addr

	rtimer *time.Timer
}

func newChannelConn(base *Base, in <-chan []byte, raddr net.Addr) *ChannelConn {
	return &ChannelConn{
		base:   base,
		in:     in,
		raddr:  raddr,
		rtimer: time.NewTimer(math.MaxInt64),
	}
}

// Read next buffer from connection. If closed, returns with n = 0.
func (c *ChannelConn) Read(b []byte) (int, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return 0, io.EOF
		}
		if len(data) > len(b) {
			log.Warn("read truncated due to short buffer")
		}
		return copy(b, data), nil

	case <-c.rtimer.C:
		return 0, errors.New("read timeout")
	}
}

// Write buffer to connection.
func (c *ChannelConn) Write(b []byte) (int, error) {
	return c.base.WriteTo(b, c.raddr)
}

func (c *ChannelConn) Close() error {
	return nil
}

func (c *ChannelConn) LocalAddr() net.Addr {
	return c.base.LocalAddr()
}

func (c *ChannelConn) RemoteAddr() net.Addr {
	return c.raddr
}

// SetDeadline sets both the read and write timeouts
func (c *ChannelConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *ChannelConn) SetReadDeadline(t time.Time) error {
	if !c.rtimer.Stop() {
		select {
		case <-c.rtimer.C:
		default:
		}
	}
	if !t.IsZero() {
		c.rtimer.Reset(time.Until(t))
	}
	return nil
}

func (c *ChannelConn) SetWriteDeadline(t time.Time) error {
	return c.base.SetWriteDeadline(t)
}
