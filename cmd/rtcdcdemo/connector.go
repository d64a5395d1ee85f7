package main

import (
	"log"

	"github.com/gorilla/websocket"

	"github.com/lanikai/rtcdc"
	"github.com/lanikai/rtcdc/internal/ice"
)

// runConnector dials a listener's relay and acts as the offering side: it
// opens the data channel, sends the offer, and applies whatever answer and
// trickled candidates come back.
func runConnector(url string) error {
	rawWS, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer rawWS.Close()
	ws := &wsConn{ws: rawWS}

	pc, events, err := newPeerConnection()
	if err != nil {
		return err
	}
	defer pc.Close()

	wireConnectionLogging(events, "offerer")
	events.OnICECandidate = func(c *ice.Candidate) {
		if c == nil {
			return
		}
		if err := ws.send(signalMessage{Type: "candidate", Candidate: c.String(), Mid: "0"}); err != nil {
			log.Printf("offerer: failed to send candidate: %s", err)
		}
	}

	dc, err := pc.CreateDataChannel(flagLabel, rtcdc.DataChannelInit{Protocol: flagProtocol, Binary: flagBinary})
	if err != nil {
		return err
	}
	attachDataChannel(dc, "offerer")
	dc.OnOpen(func() {
		_ = dc.Send([]byte("hello from offerer"))
	})

	offer, err := pc.CreateOffer()
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}
	if err := ws.send(signalMessage{Type: "offer", SDP: offer.SDP}); err != nil {
		return err
	}

	for {
		var msg signalMessage
		if err := rawWS.ReadJSON(&msg); err != nil {
			log.Printf("offerer: relay closed: %s", err)
			return nil
		}

		switch msg.Type {
		case "answer":
			if err := pc.SetRemoteDescription(rtcdc.SessionDescription{Type: rtcdc.SessionDescriptionAnswer, SDP: msg.SDP}); err != nil {
				log.Printf("offerer: SetRemoteDescription failed: %s", err)
				return err
			}
		case "candidate":
			if err := pc.AddICECandidate(msg.Candidate, msg.Mid); err != nil {
				log.Printf("offerer: AddICECandidate failed: %s", err)
			}
		default:
			log.Printf("offerer: unexpected message type %q", msg.Type)
		}
	}
}
