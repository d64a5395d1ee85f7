package dtls

import (
	"crypto/x509"
	"net"
	"time"
)

// tickInterval is how often the single per-connection goroutine wakes to
// drive Conn.Tick, independent of incoming traffic.
const tickInterval = 100 * time.Millisecond

// Transport is the I/O boundary around a Conn: one goroutine reads the
// underlying net.Conn (an ICE selected-pair datagram channel) and drives
// FeedInput/Tick, per the event-driven design the Conn state machine
// itself follows. Everything above this layer (SCTP) only ever calls
// ReadApplicationData/WriteApplicationData; it never touches the wire.
type Transport struct {
	conn   net.Conn
	dtls   *Conn
	readCh chan []byte
	errCh  chan error
	doneCh chan struct{}

	connectedCh chan struct{}
	closeOnce   bool
}

// NewTransport wraps conn, builds a Conn for the given role/config, and
// starts the single I/O goroutine. The caller retains ownership of conn and
// must Close the Transport to release it.
func NewTransport(conn net.Conn, cfg Config) *Transport {
	t := &Transport{
		conn:        conn,
		dtls:        NewConn(cfg),
		readCh:      make(chan []byte, 64),
		errCh:       make(chan error, 1),
		doneCh:      make(chan struct{}),
		connectedCh: make(chan struct{}),
	}
	go t.run()
	return t
}

// run is the transport's single goroutine: it reads datagrams, feeds them
// to the Conn state machine, writes back whatever the Conn produces, and
// ticks the retransmit timer on a fixed interval. No other goroutine
// touches t.dtls.
func (t *Transport) run() {
	defer close(t.doneCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	out, err := t.dtls.Start(time.Now())
	if err != nil {
		t.fail(err)
		return
	}
	if err := t.writeAll(out); err != nil {
		t.fail(err)
		return
	}

	incoming := make(chan []byte, 64)
	readErrs := make(chan error, 1)
	go func() {
		buf := make([]byte, 1500)
		for {
			n, err := t.conn.Read(buf)
			if err != nil {
				readErrs <- err
				return
			}
			cp := make([]byte, n)
			copy(cp, buf[:n])
			select {
			case incoming <- cp:
			case <-t.doneCh:
				return
			}
		}
	}()

	wasConnected := false
	for {
		select {
		case data := <-incoming:
			toSend, appData, err := t.dtls.FeedInput(data, time.Now())
			if err != nil {
				t.fail(err)
				return
			}
			if err := t.writeAll(toSend); err != nil {
				t.fail(err)
				return
			}
			for _, d := range appData {
				select {
				case t.readCh <- d:
				case <-t.doneCh:
					return
				}
			}
			if !wasConnected && t.dtls.State() == StateConnected {
				wasConnected = true
				close(t.connectedCh)
			}
			if t.dtls.State() == StateFailed {
				t.fail(ErrHandshakeTimeout)
				return
			}

		case now := <-ticker.C:
			toSend := t.dtls.Tick(now)
			if t.dtls.State() == StateFailed {
				t.fail(ErrHandshakeTimeout)
				return
			}
			if err := t.writeAll(toSend); err != nil {
				t.fail(err)
				return
			}

		case err := <-readErrs:
			t.fail(err)
			return
		}
	}
}

func (t *Transport) writeAll(records [][]byte) error {
	for _, r := range records {
		if _, err := t.conn.Write(r); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) fail(err error) {
	select {
	case t.errCh <- err:
	default:
	}
	if !t.closeOnce {
		t.closeOnce = true
		close(t.connectedCh)
	}
}

// WaitConnected blocks until the handshake completes or fails.
func (t *Transport) WaitConnected() error {
	<-t.connectedCh
	select {
	case err := <-t.errCh:
		return err
	default:
		return nil
	}
}

// ReadApplicationData returns the next decrypted application-data payload.
func (t *Transport) ReadApplicationData() ([]byte, error) {
	select {
	case d := <-t.readCh:
		return d, nil
	case err := <-t.errCh:
		return nil, err
	case <-t.doneCh:
		return nil, ErrConnClosed
	}
}

// WriteApplicationData encrypts and writes one datagram of application
// data.
func (t *Transport) WriteApplicationData(data []byte) error {
	record, err := t.dtls.WriteApplicationData(data)
	if err != nil {
		return err
	}
	_, err = t.conn.Write(record)
	return err
}

func (t *Transport) State() State { return t.dtls.State() }

func (t *Transport) PeerCertificate() *x509.Certificate { return t.dtls.PeerCertificate() }

// Close releases the underlying connection and stops the I/O goroutine.
func (t *Transport) Close() error {
	err := t.conn.Close()
	<-t.doneCh
	return err
}
