package dtls

import (
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/rand"
	"time"
)

// serverHandle advances the server-side handshake state machine by one
// inbound handshake message.
func (c *Conn) serverHandle(h handshakeHeader, body []byte, now time.Time) ([][]byte, error) {
	switch c.step {
	case stepStart:
		if h.msgType != HandshakeTypeClientHello {
			return nil, ErrUnexpectedMessage
		}
		ch, err := parseClientHello(body)
		if err != nil {
			return nil, err
		}
		c.state = StateHandshaking
		clientRandom := ch.random.marshal()

		if len(ch.cookie) == 0 {
			// Stateless cookie round trip; neither this ClientHello nor the
			// HelloVerifyRequest answering it enter the transcript.
			c.clientRandomBytes = clientRandom
			c.cookie = c.serverCookie(clientRandom)
			hvr := marshalHandshake(HandshakeTypeHelloVerifyRequest, c.nextSeqOut, marshalHelloVerifyRequest(c.cookie))
			c.nextSeqOut++
			rec, err := c.wrapHandshakeRecord(hvr, false)
			if err != nil {
				return nil, err
			}
			return c.armFlight(now, [][]byte{rec})
		}

		want := c.serverCookie(clientRandom)
		if !hmac.Equal(want, ch.cookie) {
			return nil, ErrUnexpectedMessage
		}
		c.clientRandomBytes = clientRandom
		c.appendTranscript(h, body)
		return c.sendServerFlight(ch, now)

	case stepWaitClientFlight:
		return c.serverHandleClientFlight(h, body, now)

	default:
		log.Debug("server: ignoring handshake message type %d in step %d", h.msgType, c.step)
		return nil, nil
	}
}

// sendServerFlight picks a cipher suite from the client's offer, sends
// ServerHello/Certificate/ServerKeyExchange/CertificateRequest/
// ServerHelloDone as one flight, and moves to stepWaitClientFlight.
func (c *Conn) sendServerFlight(ch clientHello, now time.Time) ([][]byte, error) {
	suite := c.localCert.cipherSuite()
	found := false
	for _, offered := range ch.cipherSuites {
		if offered == suite {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNoCommonCipherSuite
	}
	c.negotiatedCipherSuite = suite

	var rnd [28]byte
	rand.Read(rnd[:])
	c.serverRandomBytes = newRandom(now, rnd).marshal()

	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	c.ecdhePriv = priv

	var msgs [][]byte

	sh := serverHello{
		random:      parseRandomBytes(c.serverRandomBytes),
		cipherSuite: suite,
		extensions:  serverHelloExtensions(true),
	}
	msgs = append(msgs, c.appendAndMarshal(HandshakeTypeServerHello, sh.marshal()))

	msgs = append(msgs, c.appendAndMarshal(HandshakeTypeCertificate, marshalCertificateMessage([][]byte{c.localCert.DER})))

	ske := serverKeyExchange{
		curve:     NamedCurveSecp256r1,
		publicKey: priv.PublicKey().Bytes(),
		scheme:    c.localCert.signatureScheme(),
	}
	signed := ske.signedParams(c.clientRandomBytes, c.serverRandomBytes)
	sig, err := c.localCert.sign(signed)
	if err != nil {
		return nil, err
	}
	ske.signature = sig
	msgs = append(msgs, c.appendAndMarshal(HandshakeTypeServerKeyExchange, ske.marshal()))

	msgs = append(msgs, c.appendAndMarshal(HandshakeTypeCertificateRequest, marshalCertificateRequest([]SignatureScheme{
		SignatureSchemeECDSAWithP256AndSHA256,
		SignatureSchemeRSAPKCS1WithSHA256,
	})))

	msgs = append(msgs, c.appendAndMarshal(HandshakeTypeServerHelloDone, nil))

	var records [][]byte
	for _, m := range msgs {
		rec, err := c.wrapHandshakeRecord(m, false)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	c.step = stepWaitClientFlight
	return c.armFlight(now, records)
}

// appendAndMarshal builds one handshake message with the next message_seq,
// records it in the transcript, and returns its header+body bytes.
func (c *Conn) appendAndMarshal(msgType HandshakeType, body []byte) []byte {
	msg := marshalHandshake(msgType, c.nextSeqOut, body)
	c.nextSeqOut++
	h, b, _ := mustParseHandshake(msg)
	c.appendTranscript(h, b)
	return msg
}

func mustParseHandshake(msg []byte) (handshakeHeader, []byte, error) {
	m, _, err := parseHandshakeMessage(msg)
	return m.header, m.body, err
}

func (c *Conn) serverHandleClientFlight(h handshakeHeader, body []byte, now time.Time) ([][]byte, error) {
	switch h.msgType {
	case HandshakeTypeCertificate:
		certs, err := parseCertificateMessage(body)
		if err != nil {
			return nil, err
		}
		if len(certs) == 0 {
			return nil, ErrUnexpectedMessage
		}
		cert, err := parseLeafCertificate(certs[0])
		if err != nil {
			return nil, err
		}
		c.peerCertDER = certs[0]
		c.peerCert = cert
		c.appendTranscript(h, body)
		return nil, nil

	case HandshakeTypeClientKeyExchange:
		pub, err := parseClientKeyExchange(body)
		if err != nil {
			return nil, err
		}
		c.peerECDHEPub = pub
		c.appendTranscript(h, body)

		peerKey, err := ecdh.P256().NewPublicKey(pub)
		if err != nil {
			return nil, err
		}
		preMaster, err := c.ecdhePriv.ECDH(peerKey)
		if err != nil {
			return nil, err
		}
		c.masterSecret = extendedMasterSecret(preMaster, c.transcript)
		c.keys = deriveKeyBlock(c.masterSecret, c.clientRandomBytes, c.serverRandomBytes)
		// Install the read key now: the client's ChangeCipherSpec/Finished
		// that follow arrive encrypted, and by the time FeedInput reaches
		// them c.recvAEAD must already be set.
		c.bumpReadEpoch()
		return nil, nil

	case HandshakeTypeCertificateVerify:
		cv, err := parseCertificateVerify(body)
		if err != nil {
			return nil, err
		}
		if err := verifySignature(c.peerCert, cv.scheme, c.transcript, cv.signature); err != nil {
			return nil, err
		}
		c.appendTranscript(h, body)
		return nil, nil

	case HandshakeTypeFinished:
		verifyData, err := parseFinished(body)
		if err != nil {
			return nil, err
		}
		want := finishedVerifyData(c.masterSecret, "client finished", c.transcript)
		if !hmac.Equal(want, verifyData) {
			return nil, ErrUnexpectedMessage
		}
		c.appendTranscript(h, body)

		ccs := c.wrapChangeCipherSpec()
		c.bumpWriteEpoch()
		finishedBody := marshalFinished(finishedVerifyData(c.masterSecret, "server finished", c.transcript))
		finishedMsg := c.appendAndMarshal(HandshakeTypeFinished, finishedBody)
		finishedRec, err := c.wrapHandshakeRecord(finishedMsg, true)
		if err != nil {
			return nil, err
		}
		if err := c.finishHandshake(now); err != nil {
			return nil, err
		}
		return [][]byte{ccs, finishedRec}, nil

	default:
		log.Debug("server: unexpected handshake message type %d awaiting client flight", h.msgType)
		return nil, nil
	}
}

// clientHandle advances the client-side handshake state machine by one
// inbound handshake message.
func (c *Conn) clientHandle(h handshakeHeader, body []byte, now time.Time) ([][]byte, error) {
	switch c.step {
	case stepWaitHelloVerifyOrServerHello:
		switch h.msgType {
		case HandshakeTypeHelloVerifyRequest:
			cookie, err := parseHelloVerifyRequest(body)
			if err != nil {
				return nil, err
			}
			msg := c.buildClientHello(cookie)
			c.pendingClientHello = nil
			mh, mb, _ := mustParseHandshake(msg)
			c.appendTranscript(mh, mb)
			rec, err := c.wrapHandshakeRecord(msg, false)
			if err != nil {
				return nil, err
			}
			return c.armFlight(now, [][]byte{rec})

		case HandshakeTypeServerHello:
			// Server skipped the cookie round trip; commit the original
			// ClientHello to the transcript before this message.
			if c.pendingClientHello != nil {
				mh, mb, _ := mustParseHandshake(c.pendingClientHello)
				c.appendTranscript(mh, mb)
				c.pendingClientHello = nil
			}
			return c.clientHandleServerHello(h, body)

		default:
			return nil, ErrUnexpectedMessage
		}

	case stepWaitServerFlight:
		return c.clientHandleServerFlight(h, body, now)

	case stepWaitServerFinalFlight:
		return c.clientHandleServerFinal(h, body, now)

	default:
		log.Debug("client: ignoring handshake message type %d in step %d", h.msgType, c.step)
		return nil, nil
	}
}

func (c *Conn) clientHandleServerHello(h handshakeHeader, body []byte) ([][]byte, error) {
	sh, err := parseServerHello(body)
	if err != nil {
		return nil, err
	}
	c.negotiatedCipherSuite = sh.cipherSuite
	c.serverRandomBytes = sh.random.marshal()
	c.appendTranscript(h, body)
	c.step = stepWaitServerFlight
	return nil, nil
}

func (c *Conn) clientHandleServerFlight(h handshakeHeader, body []byte, now time.Time) ([][]byte, error) {
	switch h.msgType {
	case HandshakeTypeCertificate:
		certs, err := parseCertificateMessage(body)
		if err != nil {
			return nil, err
		}
		if len(certs) == 0 {
			return nil, ErrUnexpectedMessage
		}
		cert, err := parseLeafCertificate(certs[0])
		if err != nil {
			return nil, err
		}
		c.peerCertDER = certs[0]
		c.peerCert = cert
		c.appendTranscript(h, body)
		return nil, nil

	case HandshakeTypeServerKeyExchange:
		ske, err := parseServerKeyExchange(body)
		if err != nil {
			return nil, err
		}
		signed := ske.signedParams(c.clientRandomBytes, c.serverRandomBytes)
		if err := verifySignature(c.peerCert, ske.scheme, signed, ske.signature); err != nil {
			return nil, err
		}
		c.peerECDHEPub = ske.publicKey
		c.appendTranscript(h, body)
		return nil, nil

	case HandshakeTypeCertificateRequest:
		c.appendTranscript(h, body)
		return nil, nil

	case HandshakeTypeServerHelloDone:
		c.appendTranscript(h, body)
		return c.sendClientFlight(now)

	default:
		log.Debug("client: unexpected handshake message type %d awaiting server flight", h.msgType)
		return nil, nil
	}
}

// sendClientFlight sends Certificate, ClientKeyExchange, CertificateVerify,
// ChangeCipherSpec, and Finished, then waits for the server's final flight.
func (c *Conn) sendClientFlight(now time.Time) ([][]byte, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	c.ecdhePriv = priv

	var records [][]byte

	certMsg := c.appendAndMarshal(HandshakeTypeCertificate, marshalCertificateMessage([][]byte{c.localCert.DER}))
	rec, err := c.wrapHandshakeRecord(certMsg, false)
	if err != nil {
		return nil, err
	}
	records = append(records, rec)

	ckeMsg := c.appendAndMarshal(HandshakeTypeClientKeyExchange, marshalClientKeyExchange(priv.PublicKey().Bytes()))
	rec, err = c.wrapHandshakeRecord(ckeMsg, false)
	if err != nil {
		return nil, err
	}
	records = append(records, rec)

	peerKey, err := ecdh.P256().NewPublicKey(c.peerECDHEPub)
	if err != nil {
		return nil, err
	}
	preMaster, err := c.ecdhePriv.ECDH(peerKey)
	if err != nil {
		return nil, err
	}
	c.masterSecret = extendedMasterSecret(preMaster, c.transcript)
	c.keys = deriveKeyBlock(c.masterSecret, c.clientRandomBytes, c.serverRandomBytes)
	// Install the read key now: the server's ChangeCipherSpec/Finished
	// that follow arrive encrypted.
	c.bumpReadEpoch()

	cv := certificateVerify{scheme: c.localCert.signatureScheme()}
	sig, err := c.localCert.sign(c.transcript)
	if err != nil {
		return nil, err
	}
	cv.signature = sig
	cvMsg := c.appendAndMarshal(HandshakeTypeCertificateVerify, cv.marshal())
	rec, err = c.wrapHandshakeRecord(cvMsg, false)
	if err != nil {
		return nil, err
	}
	records = append(records, rec)

	ccs := c.wrapChangeCipherSpec()
	c.bumpWriteEpoch()
	records = append(records, ccs)

	finishedBody := marshalFinished(finishedVerifyData(c.masterSecret, "client finished", c.transcript))
	finishedMsg := c.appendAndMarshal(HandshakeTypeFinished, finishedBody)
	finishedRec, err := c.wrapHandshakeRecord(finishedMsg, true)
	if err != nil {
		return nil, err
	}
	records = append(records, finishedRec)

	c.step = stepWaitServerFinalFlight
	return c.armFlight(now, records)
}

func (c *Conn) clientHandleServerFinal(h handshakeHeader, body []byte, now time.Time) ([][]byte, error) {
	if h.msgType != HandshakeTypeFinished {
		log.Debug("client: unexpected handshake message type %d awaiting server Finished", h.msgType)
		return nil, nil
	}
	verifyData, err := parseFinished(body)
	if err != nil {
		return nil, err
	}
	want := finishedVerifyData(c.masterSecret, "server finished", c.transcript)
	if !hmac.Equal(want, verifyData) {
		return nil, ErrUnexpectedMessage
	}
	c.appendTranscript(h, body)
	if err := c.finishHandshake(now); err != nil {
		return nil, err
	}
	return nil, nil
}
