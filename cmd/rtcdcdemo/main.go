// Command rtcdcdemo is a runnable loopback demo: two processes, each
// wrapping one rtcdc.PeerConnection, exchange SDP and trickled ICE
// candidates over a small gorilla/websocket relay and then open a single
// unreliable, unordered data channel between them.
//
// Signaling is explicitly out of scope for the library itself (an
// application always brings its own channel), but a demo has to pick
// something runnable: this one speaks a three-message JSON protocol
// ("offer", "answer", "candidate") over a websocket, the same shape the
// browser-facing signaling relay in the teacher codebase used.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"

	flag "github.com/spf13/pflag"
	"github.com/gorilla/websocket"

	"github.com/lanikai/rtcdc"
)

// signalMessage is the wire shape exchanged over the relay websocket.
type signalMessage struct {
	Type      string `json:"type"`
	SDP       string `json:"sdp,omitempty"`
	Candidate string `json:"candidate,omitempty"`
	Mid       string `json:"mid,omitempty"`
}

// wsConn is a single-writer wrapper around *websocket.Conn: gorilla only
// allows one concurrent writer, but OnICECandidate fires from the
// PeerConnection's background goroutine while the main goroutine is still
// driving the offer/answer exchange.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) send(m signalMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(m)
}

func main() {
	flag.Parse()

	if flagHelp {
		help()
		return
	}
	if flagVersion {
		fmt.Println(version)
		return
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	switch {
	case flagListen != "":
		if err := runListener(flagListen); err != nil {
			log.Fatalf("rtcdcdemo: %s", err)
		}
	case flagConnect != "":
		if err := runConnector(flagConnect); err != nil {
			log.Fatalf("rtcdcdemo: %s", err)
		}
	default:
		help()
		os.Exit(1)
	}
}

func newPeerConnection() (*rtcdc.PeerConnection, *rtcdc.Events, error) {
	events := &rtcdc.Events{}
	cfg := rtcdc.Configuration{ICEUseIPv4: true}
	if flagSTUNServer != "" {
		cfg.ICEServers = []rtcdc.ICEServer{{URLs: []string{flagSTUNServer}}}
	}
	pc, err := rtcdc.NewPeerConnection(cfg, events)
	return pc, events, err
}

func wireConnectionLogging(events *rtcdc.Events, tag string) {
	events.OnICEConnectionStateChange = func(s rtcdc.ICEConnectionState) {
		log.Printf("%s: ice connection state -> %s", tag, s)
	}
	events.OnConnectionStateChange = func(s rtcdc.PeerConnectionState) {
		log.Printf("%s: connection state -> %s", tag, s)
	}
	events.OnError = func(err *rtcdc.Error) {
		log.Printf("%s: error: %s", tag, err)
	}
}

func attachDataChannel(dc *rtcdc.DataChannel, tag string) {
	dc.OnOpen(func() {
		log.Printf("%s: data channel %q open (stream %d)", tag, dc.Label(), dc.StreamID())
	})
	dc.OnMessage(func(data []byte) {
		log.Printf("%s: received %d bytes on %q: %q", tag, len(data), dc.Label(), data)
	})
	dc.OnClose(func() {
		log.Printf("%s: data channel %q closed", tag, dc.Label())
	})
}
