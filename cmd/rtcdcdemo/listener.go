package main

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/lanikai/rtcdc"
	"github.com/lanikai/rtcdc/internal/ice"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// runListener starts the signaling relay and acts as the answering side:
// it waits for one connector, applies the offer it sends, and answers.
func runListener(addr string) error {
	router := http.NewServeMux()
	router.HandleFunc("/ws", handleAnswererWebsocket)

	log.Printf("listener: waiting for a peer at ws://%s/ws", addr)
	return http.ListenAndServe(addr, router)
}

func handleAnswererWebsocket(w http.ResponseWriter, r *http.Request) {
	rawWS, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("listener: upgrade failed: %s", err)
		return
	}
	defer rawWS.Close()
	ws := &wsConn{ws: rawWS}

	pc, events, err := newPeerConnection()
	if err != nil {
		log.Printf("listener: failed to create peer connection: %s", err)
		return
	}
	defer pc.Close()

	wireConnectionLogging(events, "answerer")
	events.OnICECandidate = func(c *ice.Candidate) {
		if c == nil {
			return
		}
		if err := ws.send(signalMessage{Type: "candidate", Candidate: c.String(), Mid: "0"}); err != nil {
			log.Printf("answerer: failed to send candidate: %s", err)
		}
	}
	events.OnDataChannel = func(dc *rtcdc.DataChannel) {
		attachDataChannel(dc, "answerer")
		dc.OnOpen(func() {
			_ = dc.Send([]byte("hello from answerer"))
		})
	}

	for {
		var msg signalMessage
		if err := rawWS.ReadJSON(&msg); err != nil {
			log.Printf("answerer: relay closed: %s", err)
			return
		}

		switch msg.Type {
		case "offer":
			if err := pc.SetRemoteDescription(rtcdc.SessionDescription{Type: rtcdc.SessionDescriptionOffer, SDP: msg.SDP}); err != nil {
				log.Printf("answerer: SetRemoteDescription failed: %s", err)
				return
			}
			answer, err := pc.CreateAnswer()
			if err != nil {
				log.Printf("answerer: CreateAnswer failed: %s", err)
				return
			}
			if err := pc.SetLocalDescription(answer); err != nil {
				log.Printf("answerer: SetLocalDescription failed: %s", err)
				return
			}
			if err := ws.send(signalMessage{Type: "answer", SDP: answer.SDP}); err != nil {
				log.Printf("answerer: failed to send answer: %s", err)
				return
			}
		case "candidate":
			if err := pc.AddICECandidate(msg.Candidate, msg.Mid); err != nil {
				log.Printf("answerer: AddICECandidate failed: %s", err)
			}
		default:
			log.Printf("answerer: unexpected message type %q", msg.Type)
		}
	}
}
