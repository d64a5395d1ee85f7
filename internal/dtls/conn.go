package dtls

import (
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"time"

	"github.com/lanikai/rtcdc/internal/timer"
)

// Config carries everything a Conn needs to run either role of the
// handshake.
type Config struct {
	Role Role

	// Certificate authenticates the local handshake. Its Kind selects one
	// of the two mandatory cipher suites.
	Certificate *Certificate

	// RemoteFingerprints are the "alg" -> "hex:colon" pairs advertised in
	// the remote SDP, checked against the peer's leaf certificate once the
	// handshake completes.
	RemoteFingerprints map[string]string

	// InitialRetransmitTimeout and MaxRetransmitTimeout bound the flight
	// retransmission backoff (1s doubling to a 60s cap, by default).
	InitialRetransmitTimeout time.Duration
	MaxRetransmitTimeout     time.Duration

	// MaxRetransmits caps how many times a flight is resent before the
	// handshake is abandoned as failed (retransmit budget).
	MaxRetransmits int
}

const flightTimerName = "dtls-flight"

type handshakeStep int

const (
	stepStart handshakeStep = iota
	stepWaitHelloVerifyOrServerHello
	stepWaitServerFlight
	stepWaitClientFlight
	stepWaitServerFinalFlight
	stepDone
)

// Conn is a single DTLS association's handshake and record-layer state
// machine. It owns no goroutine: FeedInput is called with bytes read off
// the wire and Tick is called periodically to drive retransmission; both
// return the datagrams, if any, that should be written back to the peer. A
// single caller-owned loop is expected to own both the socket read and the
// ticking (one goroutine per peer connection).
type Conn struct {
	cfg  Config
	role Role
	state State

	wheel *timer.Wheel

	step        handshakeStep
	transcript  []byte // concatenated handshake header+body, in hash order
	nextSeqOut  uint16
	reassembler *reassembler

	pendingClientHello []byte // first ClientHello, held back from transcript until cookie round-trip resolves
	cookie             []byte
	cookieSecret       [32]byte

	clientRandomBytes []byte
	serverRandomBytes []byte

	ecdhePriv    *ecdh.PrivateKey
	peerECDHEPub []byte

	localCert   *Certificate
	peerCertDER []byte
	peerCert    *x509.Certificate

	negotiatedCipherSuite CipherSuite
	masterSecret          []byte
	keys                  keyBlock
	sendAEAD              cipher.AEAD
	recvAEAD              cipher.AEAD

	epochOut uint16
	epochIn  uint16
	seqOut   map[uint16]uint64

	lastFlight  [][]byte
	rto         time.Duration
	retransmits int
}

// NewConn creates a new handshake state machine. Call Start to produce the
// first flight for the client role; the server role only reacts to
// FeedInput.
func NewConn(cfg Config) *Conn {
	if cfg.InitialRetransmitTimeout == 0 {
		cfg.InitialRetransmitTimeout = time.Second
	}
	if cfg.MaxRetransmitTimeout == 0 {
		cfg.MaxRetransmitTimeout = 60 * time.Second
	}
	if cfg.MaxRetransmits == 0 {
		cfg.MaxRetransmits = 10
	}
	c := &Conn{
		cfg:         cfg,
		role:        cfg.Role,
		state:       StateNew,
		wheel:       timer.NewWheel(),
		reassembler: newReassembler(),
		localCert:   cfg.Certificate,
		seqOut:      make(map[uint16]uint64),
		rto:         cfg.InitialRetransmitTimeout,
	}
	rand.Read(c.cookieSecret[:])
	return c
}

func (c *Conn) State() State                        { return c.state }
func (c *Conn) PeerCertificate() *x509.Certificate  { return c.peerCert }
func (c *Conn) NegotiatedCipherSuite() CipherSuite   { return c.negotiatedCipherSuite }

// Start produces the client's first flight. It is a no-op for the server
// role.
func (c *Conn) Start(now time.Time) ([][]byte, error) {
	if c.role != RoleClient || c.step != stepStart {
		return nil, nil
	}
	c.state = StateHandshaking
	var rnd [28]byte
	rand.Read(rnd[:])
	c.clientRandomBytes = newRandom(now, rnd).marshal()

	msg := c.buildClientHello(nil)
	c.pendingClientHello = msg
	c.step = stepWaitHelloVerifyOrServerHello
	rec, err := c.wrapHandshakeRecord(msg, false)
	if err != nil {
		return nil, err
	}
	return c.armFlight(now, [][]byte{rec})
}

func (c *Conn) buildClientHello(cookie []byte) []byte {
	ch := clientHello{
		random:             parseRandomBytes(c.clientRandomBytes),
		cookie:             cookie,
		cipherSuites:       []CipherSuite{TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256, TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256},
		compressionMethods: []uint8{compressionMethodNull},
		extensions: clientHelloExtensions([]SignatureScheme{
			SignatureSchemeECDSAWithP256AndSHA256,
			SignatureSchemeRSAPKCS1WithSHA256,
		}),
	}
	msg := marshalHandshake(HandshakeTypeClientHello, c.nextSeqOut, ch.marshal())
	c.nextSeqOut++
	return msg
}

// armFlight records the current flight for retransmission and arms the
// retransmit timer. The records passed in have already been appended to
// the transcript by the caller where applicable.
func (c *Conn) armFlight(now time.Time, records [][]byte) ([][]byte, error) {
	c.lastFlight = records
	c.retransmits = 0
	c.rto = c.cfg.InitialRetransmitTimeout
	c.wheel.After(flightTimerName, c.rto, now, c.onRetransmitTimeout)
	return records, nil
}

func (c *Conn) onRetransmitTimeout(now time.Time) {
	if c.state != StateHandshaking || len(c.lastFlight) == 0 {
		return
	}
	c.retransmits++
	if c.retransmits > c.cfg.MaxRetransmits {
		c.state = StateFailed
		return
	}
	c.rto *= 2
	if c.rto > c.cfg.MaxRetransmitTimeout {
		c.rto = c.cfg.MaxRetransmitTimeout
	}
	c.wheel.After(flightTimerName, c.rto, now, c.onRetransmitTimeout)
}

// Tick drives flight retransmission, returning any datagrams that should be
// resent to the peer.
func (c *Conn) Tick(now time.Time) [][]byte {
	before := c.retransmits
	c.wheel.Tick(now)
	if c.state == StateFailed {
		return nil
	}
	if c.retransmits != before && len(c.lastFlight) > 0 {
		log.Debug("Retransmitting DTLS flight as %s (attempt %d)", c.role, c.retransmits)
		return c.lastFlight
	}
	return nil
}

// FeedInput processes one datagram read from the peer, returning any
// datagrams to write back and any decrypted application-data payloads
// received.
func (c *Conn) FeedInput(data []byte, now time.Time) (toSend [][]byte, appData [][]byte, err error) {
	if c.state == StateClosed || c.state == StateFailed {
		return nil, nil, ErrConnClosed
	}
	records, err := parseRecords(data)
	if err != nil {
		return nil, nil, err
	}
	for _, r := range records {
		send, app, err := c.handleRecord(r, now)
		if err != nil {
			c.state = StateFailed
			return nil, nil, err
		}
		toSend = append(toSend, send...)
		appData = append(appData, app...)
	}
	return toSend, appData, nil
}

func (c *Conn) handleRecord(r record, now time.Time) (toSend [][]byte, appData [][]byte, err error) {
	switch r.contentType {
	case ContentTypeChangeCipherSpec:
		c.epochIn++
		return nil, nil, nil

	case ContentTypeApplicationData:
		if c.recvAEAD == nil {
			return nil, nil, ErrNotConnected
		}
		plaintext, err := openRecord(c.recvAEAD, c.keys.readSalt(c.role), r)
		if err != nil {
			return nil, nil, err
		}
		return nil, [][]byte{plaintext}, nil

	case ContentTypeHandshake:
		fragment := r.fragment
		if r.epoch > 0 {
			if c.recvAEAD == nil {
				return nil, nil, ErrNotConnected
			}
			plaintext, err := openRecord(c.recvAEAD, c.keys.readSalt(c.role), r)
			if err != nil {
				return nil, nil, err
			}
			fragment = plaintext
		}
		return c.handleHandshakeFragment(fragment, now)

	default:
		return nil, nil, nil
	}
}

func (c *Conn) handleHandshakeFragment(fragment []byte, now time.Time) (toSend [][]byte, appData [][]byte, err error) {
	for len(fragment) > 0 {
		msg, rest, perr := parseHandshakeMessage(fragment)
		if perr != nil {
			return nil, nil, perr
		}
		fragment = rest
		complete, body, ok := c.reassembler.add(msg.header, msg.body)
		if !ok {
			continue
		}
		send, herr := c.dispatch(complete, body, now)
		if herr != nil {
			return nil, nil, herr
		}
		toSend = append(toSend, send...)
	}
	return toSend, nil, nil
}

func (c *Conn) dispatch(h handshakeHeader, body []byte, now time.Time) ([][]byte, error) {
	if c.role == RoleServer {
		return c.serverHandle(h, body, now)
	}
	return c.clientHandle(h, body, now)
}

// appendTranscript records a handshake message's header+body into the
// running transcript used for the Finished verify_data and the extended
// master secret's session hash. HelloVerifyRequest is intentionally never
// passed to this method: RFC 6347 §4.2.1 excludes it, along with the
// ClientHello it answers, from the handshake hash.
func (c *Conn) appendTranscript(h handshakeHeader, body []byte) {
	c.transcript = append(c.transcript, marshalHandshakeHeader(h)...)
	c.transcript = append(c.transcript, body...)
}

func (c *Conn) finishHandshake(now time.Time) error {
	if err := verifyFingerprint(c.peerCertDER, c.cfg.RemoteFingerprints); err != nil {
		return err
	}
	c.wheel.Cancel(flightTimerName)
	c.state = StateConnected
	c.lastFlight = nil
	log.Info("DTLS handshake complete as %s, cipher suite %#x", c.role, c.negotiatedCipherSuite)
	return nil
}

// WriteApplicationData encrypts data as a single application-data record,
// ready to be written to the socket. The caller is responsible for keeping
// each call under the path MTU; this layer does not fragment.
func (c *Conn) WriteApplicationData(data []byte) ([]byte, error) {
	if c.state != StateConnected {
		return nil, ErrNotConnected
	}
	seq := c.nextRecordSeq(c.epochOut)
	return sealRecord(c.sendAEAD, c.keys.writeSalt(c.role), ContentTypeApplicationData, c.epochOut, seq, data), nil
}

func (c *Conn) nextRecordSeq(epoch uint16) uint64 {
	seq := c.seqOut[epoch]
	c.seqOut[epoch] = seq + 1
	return seq
}

func (c *Conn) wrapHandshakeRecord(body []byte, encrypted bool) ([]byte, error) {
	seq := c.nextRecordSeq(c.epochOut)
	if !encrypted {
		return marshalRecord(record{contentType: ContentTypeHandshake, version: versionDTLS1_2, epoch: c.epochOut, sequence: seq, fragment: body}), nil
	}
	return sealRecord(c.sendAEAD, c.keys.writeSalt(c.role), ContentTypeHandshake, c.epochOut, seq, body), nil
}

func (c *Conn) wrapChangeCipherSpec() []byte {
	seq := c.nextRecordSeq(c.epochOut)
	return marshalRecord(record{contentType: ContentTypeChangeCipherSpec, version: versionDTLS1_2, epoch: c.epochOut, sequence: seq, fragment: []byte{1}})
}

// bumpWriteEpoch switches subsequent outgoing records (after a
// ChangeCipherSpec) onto the new epoch and AEAD.
func (c *Conn) bumpWriteEpoch() {
	c.epochOut++
	c.seqOut[c.epochOut] = 0
	key := c.keys.clientWriteKey[:]
	if c.role == RoleServer {
		key = c.keys.serverWriteKey[:]
	}
	aead, err := newGCM(key)
	if err != nil {
		c.state = StateFailed
		return
	}
	c.sendAEAD = aead
}

// bumpReadEpoch installs the AEAD used to decrypt the peer's post-CCS
// records.
func (c *Conn) bumpReadEpoch() {
	key := c.keys.serverWriteKey[:]
	if c.role == RoleServer {
		key = c.keys.clientWriteKey[:]
	}
	aead, err := newGCM(key)
	if err != nil {
		c.state = StateFailed
		return
	}
	c.recvAEAD = aead
}

func parseRandomBytes(b []byte) handshakeRandom {
	var r handshakeRandom
	if len(b) >= randomLength {
		r.gmtUnixTime = uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		copy(r.opaque[:], b[4:32])
	}
	return r
}

func (kb keyBlock) readSalt(role Role) [4]byte {
	if role == RoleClient {
		return kb.serverWriteIV
	}
	return kb.clientWriteIV
}

func (kb keyBlock) writeSalt(role Role) [4]byte {
	if role == RoleClient {
		return kb.clientWriteIV
	}
	return kb.serverWriteIV
}

// serverCookie computes a stateless cookie for a given ClientHello random,
// so the server need not retain per-attempt state before the round trip
// completes (RFC 6347 §4.2.1).
func (c *Conn) serverCookie(clientRandom []byte) []byte {
	mac := hmac.New(sha256.New, c.cookieSecret[:])
	mac.Write(clientRandom)
	return mac.Sum(nil)[:20]
}
