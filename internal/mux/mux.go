package mux

import (
	"net"
	"sync"

	"github.com/lanikai/rtcdc/internal/logging"
)

var log = logging.DefaultLogger.WithTag("mux")

const (
	// Depth of each endpoint's circular packet queue. One ICE candidate
	// pair only ever carries one DTLS association in this profile, so a
	// queue deep enough to absorb a burst of coalesced STUN keepalives
	// and DTLS records arriving back-to-back is plenty.
	defaultQueueDepth = 32
)

// Mux classifies incoming packets on a single ICE-selected connection by
// their first byte (RFC 7983) and delivers each to the Endpoint registered
// for that range. One Mux always owns exactly one underlying net.Conn; this
// profile registers a single DTLS Endpoint on it (see DTLSEndpoint), since
// media/RTCP and bare STUN keepalives after nomination are the only other
// traffic RFC 7983 ever puts on the same 5-tuple, and this profile never
// renegotiates ICE once a pair is nominated.
type Mux struct {
	lock       sync.Mutex
	nextConn   net.Conn
	endpoints  map[*Endpoint]MatchFunc
	bufferSize int
}

// NewMux creates a new Mux. This Mux takes ownership of the underlying
// net.Conn, and is responsible for closing it.
func NewMux(conn net.Conn, bufferSize int) *Mux {
	m := &Mux{
		nextConn:   conn,
		endpoints:  make(map[*Endpoint]MatchFunc),
		bufferSize: bufferSize,
	}

	go m.readLoop()

	return m
}

// NewEndpoint creates a new Endpoint that receives every packet f matches.
func (m *Mux) NewEndpoint(f MatchFunc) *Endpoint {
	e := createEndpoint(m, defaultQueueDepth, m.bufferSize)

	m.lock.Lock()
	m.endpoints[e] = f
	m.lock.Unlock()

	return e
}

// DTLSEndpoint registers and returns the Endpoint carrying this Mux's DTLS
// traffic (RFC 7983 bytes 20-63), the only Endpoint a PeerConnection ever
// needs: the DTLS transport built on top of it carries the entire reduced
// SCTP association, so there is no separate demux for RTP/RTCP or TURN
// channel data in this profile.
func (m *Mux) DTLSEndpoint() *Endpoint {
	return m.NewEndpoint(MatchDTLS)
}

// RemoveEndpoint removes an endpoint from the Mux
func (m *Mux) RemoveEndpoint(e *Endpoint) {
	m.lock.Lock()
	delete(m.endpoints, e)
	m.lock.Unlock()
}

// Close closes the Mux and all associated Endpoints.
func (m *Mux) Close() error {
	m.lock.Lock()
	for e := range m.endpoints {
		e.close()
		delete(m.endpoints, e)
	}
	m.lock.Unlock()

	err := m.nextConn.Close()
	if err != nil {
		return err
	}

	return nil
}

// Read continually from the underlying connection and dispatch to the
// appropriate endpoint. Terminate on read error, e.g. when the underlying
// connection is closed.
func (m *Mux) readLoop() {
	defer m.Close()

	buf := make([]byte, m.bufferSize)
	for {
		n, err := m.nextConn.Read(buf)
		if err != nil {
			return
		}

		// Dispatching to endpoints is done with a "give a penny, take a penny"
		// approach. The data packet is delivered to the endpoint in exchange
		// for one of its unused buffers.
		buf = m.dispatch(buf[:n])

		// Resize the buffer to its full capacity (m.bufferSize), since we may
		// have shrunk it when we originally dispatched it to the endpoint.
		buf = buf[0:cap(buf)]
	}
}

func (m *Mux) dispatch(buf []byte) []byte {
	var endpoint *Endpoint

	m.lock.Lock()
	for e, f := range m.endpoints {
		if f(buf) {
			endpoint = e
			break
		}
	}
	m.lock.Unlock()

	if endpoint == nil {
		if len(buf) == 0 {
			log.Warn("dropping empty packet: no endpoint matches a zero-length read")
		} else {
			log.Warn("dropping unroutable packet: first byte %d matches no registered endpoint", buf[0])
		}
		return buf
	}

	return endpoint.deliver(buf)
}
