package ice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lanikai/rtcdc/internal/mux"
)

const (
	// Packets larger than the maximum transmission unit (MTU) of a path are
	// fragmented into smaller packets, or dropped. The MTU should be
	// discovered, but 1500 is typically a safe value.
	sizeMaximumTransmissionUnit = 1500

	// Timeout for querying STUN/TURN server.
	timeoutQueryServer = 5 * time.Second

	// Timeout for reads from base (i.e. its UDPConn).
	timeoutReadFromBase = 5 * time.Second
)

// [RFC8445] defines a base to be "The transport address that an ICE agent sends from for a
// particular candidate." It is represented here by a UDP connection, listening on a single port.
type Base struct {
	net.PacketConn

	address   TransportAddress
	component int
	sdpMid    string

	// STUN response handlers for transactions sent from this base, keyed by transaction ID.
	handlers transactionHandlers

	// Single-fire channel used to indicate that the read loop has died.
	dead chan struct{}

	// Error that caused the read loop to terminate.
	err error
}

type stunHandler func(msg *stunMessage, addr net.Addr, base *Base)

// Create a base for each usable local IP address.
func establishBases(component int, sdpMid string, useIPv4, useIPv6 bool) (bases []*Base, err error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err2 := iface.Addrs()
		if err2 != nil {
			err = err2
			return
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}

			ip := ipnet.IP
			if ip4 := ip.To4(); ip4 == nil {
				if !useIPv6 {
					continue
				}
			} else if !useIPv4 {
				continue
			}

			base, err2 := createBase(ip, component, sdpMid)
			if err2 != nil {
				// This can happen for link-local IPv6 addresses. Just skip it.
				log.Debug("Failed to create base for %s: %s", ip, err2)
				continue
			}
			bases = append(bases, base)
		}
	}
	return
}

func createBase(ip net.IP, component int, sdpMid string) (*Base, error) {
	// Listen on an arbitrary UDP port.
	conn, err := net.ListenUDP(UDP, &net.UDPAddr{IP: ip, Port: 0})
	if err != nil {
		return nil, err
	}

	address := makeTransportAddress(conn.LocalAddr())
	log.Info("Listening on %s", address)

	return &Base{
		PacketConn: conn,
		address:    address,
		component:  component,
		sdpMid:     sdpMid,
	}, nil
}

// Return the server-reflexive address of this base.
func (base *Base) queryStunServer(ctx context.Context, stunServer string) (mapped TransportAddress, err error) {
	network := fmt.Sprintf("udp%d", ipVersion(base.address))
	stunServerAddr, err := net.ResolveUDPAddr(network, stunServer)
	if err != nil {
		return
	}

	req := newStunBindingRequest("")
	log.Debug("Sending to %s: %s", stunServer, req)

	errCh := make(chan error, 1)
	err = base.sendStun(req, stunServerAddr, func(resp *stunMessage, raddr net.Addr, base *Base) {
		if resp.class == stunSuccessResponse {
			mapped = makeTransportAddress(resp.getMappedAddress())
			errCh <- nil
		} else {
			errCh <- fmt.Errorf("STUN server query failed: %s", resp)
		}
	})
	if err != nil {
		return
	}

	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	case <-time.After(timeoutQueryServer):
		err = errors.New("timeout")
	}

	base.handlers.remove(req.transactionID)
	return
}

func ipVersion(ta TransportAddress) int {
	if ta.family == IPv6 {
		return 6
	}
	return 4
}

// allocateRelay performs a minimal TURN Allocate transaction ([RFC5766 §6])
// against turnServer and returns the relayed transport address. It retries
// once with long-term credentials if the server challenges with a 401
// carrying REALM/NONCE.
func (base *Base) allocateRelay(ctx context.Context, turnServer Server) (TransportAddress, error) {
	network := fmt.Sprintf("udp%d", ipVersion(base.address))
	addr, err := net.ResolveUDPAddr(network, turnServer.URL)
	if err != nil {
		return TransportAddress{}, err
	}

	relayed, err := base.sendAllocate(ctx, addr, turnServer, "", "")
	if ae, ok := err.(*allocateAuthError); ok {
		relayed, err = base.sendAllocate(ctx, addr, turnServer, ae.realm, ae.nonce)
	}
	return relayed, err
}

type allocateAuthError struct {
	realm, nonce string
}

func (e *allocateAuthError) Error() string { return "ice: TURN allocate requires authentication" }

func (base *Base) sendAllocate(ctx context.Context, addr net.Addr, turnServer Server, realm, nonce string) (TransportAddress, error) {
	req := newStunAllocateRequest(turnServer.Username, realm, nonce, turnServer.Password)

	type result struct {
		relayed TransportAddress
		err     error
	}
	resCh := make(chan result, 1)

	err := base.sendStun(req, addr, func(resp *stunMessage, raddr net.Addr, base *Base) {
		switch resp.class {
		case stunSuccessResponse:
			relayAddr := resp.getXorRelayedAddress()
			if relayAddr == nil {
				resCh <- result{err: errors.New("ice: Allocate response missing XOR-RELAYED-ADDRESS")}
				return
			}
			resCh <- result{relayed: makeTransportAddress(relayAddr)}
		case stunErrorResponse:
			if resp.getErrorCode() == stunErrorUnauthorized && realm == "" {
				if r, n, ok := resp.getRealmAndNonce(); ok {
					resCh <- result{err: &allocateAuthError{realm: r, nonce: n}}
					return
				}
			}
			resCh <- result{err: fmt.Errorf("ice: Allocate failed: %s", resp)}
		}
	})
	if err != nil {
		return TransportAddress{}, err
	}

	select {
	case res := <-resCh:
		base.handlers.remove(req.transactionID)
		return res.relayed, res.err
	case <-ctx.Done():
		base.handlers.remove(req.transactionID)
		return TransportAddress{}, ctx.Err()
	case <-time.After(timeoutQueryServer):
		base.handlers.remove(req.transactionID)
		return TransportAddress{}, errors.New("ice: TURN allocate timed out")
	}
}

// Send a STUN message to the given remote address. If a handler is supplied, it will be used to
// process the STUN response, based on the transaction ID.
func (base *Base) sendStun(msg *stunMessage, raddr net.Addr, responseHandler stunHandler) error {
	_, err := base.WriteTo(msg.Bytes(), raddr)
	if err == nil && responseHandler != nil {
		base.handlers.put(msg.transactionID, responseHandler)
	}
	return err
}

// Read incoming packets from the underlying PacketConn, until an error occurs.
// STUN messages are handled, the rest are sent to the dataIn channel.
func (base *Base) readLoop(defaultHandler stunHandler, dataIn chan []byte) {
	if base.dead != nil {
		panic("Base read loop already started")
	}

	base.dead = make(chan struct{})
	defer close(base.dead)

	buf := make([]byte, sizeMaximumTransmissionUnit)

	var logOnce sync.Once
	for {
		base.SetReadDeadline(time.Now().Add(timeoutReadFromBase))

		n, raddr, err := base.ReadFrom(buf)
		if err != nil {
			if neterr, ok := err.(net.Error); ok {
				if neterr.Timeout() {
					log.Debug("Connection timed out: %s", base.address)
					base.err = errReadTimeout
					break
				}
				if neterr.Temporary() {
					continue
				}
			}
			if operr, ok := err.(*net.OpError); ok && operr.Op == "read" {
				log.Debug("Connection closed while reading: %s", base.address)
				break
			}
			log.Warn("Read error in %s: %v", base.address, err)
			base.err = err
			break
		}

		data := make([]byte, n)
		copy(data, buf[0:n])

		if mux.MatchSTUN(data) {
			msg, err := parseStunMessage(data)
			if err != nil {
				log.Warn("Malformed STUN message from %s: %s", raddr, err)
				continue
			}
			if msg != nil {
				log.Debug("Received from %s: %s", raddr, msg)
				handler := base.handlers.get(msg.transactionID, defaultHandler)
				handler(msg, raddr, base)
			}
		} else {
			select {
			case dataIn <- data:
			default:
				logOnce.Do(func() {
					log.Warn("Dropping data packet (first byte %x) because reader cannot keep up", data[0])
				})
			}
		}
	}
}

// transactionHandlers manages a map of STUN transaction ID -> stunHandler. When an
// outgoing STUN request is made, a handler can be registered for processing the
// remote peer's STUN response.
type transactionHandlers struct {
	sync.Mutex
	m map[string]stunHandler
}

func (t *transactionHandlers) get(transactionID string, def stunHandler) stunHandler {
	t.lockAndInitialize()
	handler, found := t.m[transactionID]
	if found {
		delete(t.m, transactionID)
	} else {
		handler = def
	}
	t.Unlock()
	return handler
}

func (t *transactionHandlers) put(transactionID string, handler stunHandler) {
	t.lockAndInitialize()
	t.m[transactionID] = handler
	t.Unlock()
}

func (t *transactionHandlers) remove(transactionID string) {
	t.lockAndInitialize()
	delete(t.m, transactionID)
	t.Unlock()
}

func (t *transactionHandlers) lockAndInitialize() {
	t.Lock()
	if t.m == nil {
		t.m = make(map[string]stunHandler)
	}
}
