package ice

import (
	"context"
	"errors"
	"net"
	"sync"

	pkgerrors "github.com/pkg/errors"
)

// RFC 8445: https://tools.ietf.org/html/rfc8445

// GatheringState mirrors the W3C RTCIceGatheringState values.
type GatheringState int

const (
	GatheringNew GatheringState = iota
	GatheringGathering
	GatheringComplete
)

// Server describes a STUN or TURN server used during candidate gathering.
type Server struct {
	URL      string // host:port
	Username string
	Password string
	Relay    bool // true for a TURN server, false for STUN-only
}

// Agent is a Full ICE agent for a single component of a single data stream,
// supporting either the controlling or controlled role with conflict
// resolution per [RFC8445 §7.3.1.1].
type Agent struct {
	mid            string
	username       string
	localPassword  string
	remotePassword string

	servers []Server
	useIPv4 bool
	useIPv6 bool

	bases []*Base

	mu               sync.Mutex
	localCandidates  []Candidate
	remoteCandidates []Candidate

	checklist *Checklist

	gatheringState GatheringState

	dataConn  *ChannelConn
	readyOnce sync.Once
}

// NewAgent creates an unconfigured ICE agent. Call Configure before
// EstablishConnection.
func NewAgent() *Agent {
	return &Agent{
		useIPv4: true,
		useIPv6: true,
	}
}

// Configure sets the ICE credentials and role for this agent. controlling
// is true for the offering side unless overridden by an ICE-lite/ICE role
// conflict during the handshake.
func (a *Agent) Configure(mid, username, localPassword, remotePassword string, controlling bool, servers []Server) {
	a.mid = mid
	a.username = username
	a.localPassword = localPassword
	a.remotePassword = remotePassword
	a.servers = servers
	a.checklist = newChecklist(controlling, username, localPassword, remotePassword)
}

// IsControlling reports the agent's current role. This can flip during the
// handshake if a role conflict is detected.
func (a *Agent) IsControlling() bool {
	return a.checklist.controlling
}

// GatheringState returns the current candidate gathering state.
func (a *Agent) GatheringState() GatheringState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.gatheringState
}

// EstablishConnection gathers local candidates (trickled to lcand as they
// are discovered), runs connectivity checks against whatever remote
// candidates have been added via AddRemoteCandidate, and returns a net.Conn
// for the winning pair once one is nominated and confirmed.
func (a *Agent) EstablishConnection(ctx context.Context, lcand chan<- Candidate) (net.Conn, error) {
	if a.checklist == nil {
		return nil, errors.New("ice: agent not configured")
	}

	const component = 1

	bases, err := establishBases(component, a.mid, a.useIPv4, a.useIPv6)
	if err != nil {
		return nil, err
	}
	a.bases = bases

	a.mu.Lock()
	a.gatheringState = GatheringGathering
	a.mu.Unlock()

	go a.gatherLocalCandidates(ctx, bases, lcand)

	dataIn := make(chan []byte, 64)
	for _, base := range bases {
		go base.readLoop(a.handleStun, dataIn)
	}

	go a.checklist.run(ctx)

	p, err := a.checklist.getSelected(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "ice: failed to establish connection")
	}

	var conn *ChannelConn
	a.readyOnce.Do(func() {
		conn = newChannelConn(p.local.base, dataIn, p.remote.address.netAddr())
		a.dataConn = conn
	})
	if conn == nil {
		conn = a.dataConn
	}
	return conn, nil
}

// AddRemoteCandidate parses and adds a trickled remote candidate. An empty
// desc signals end-of-candidates for this mid.
func (a *Agent) AddRemoteCandidate(desc, mid string) error {
	if desc == "" {
		return nil
	}

	c, err := ParseCandidate(desc, mid)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.remoteCandidates = append(a.remoteCandidates, c)
	locals := append([]Candidate(nil), a.localCandidates...)
	a.mu.Unlock()

	a.checklist.addCandidatePairs(locals, []Candidate{c})
	return nil
}

func (a *Agent) addLocalCandidate(c Candidate, lcand chan<- Candidate) {
	a.mu.Lock()
	a.localCandidates = append(a.localCandidates, c)
	remotes := append([]Candidate(nil), a.remoteCandidates...)
	a.mu.Unlock()

	a.checklist.addCandidatePairs([]Candidate{c}, remotes)
	if lcand != nil {
		lcand <- c
	}
}

// gatherLocalCandidates gathers host, server-reflexive, and relayed
// candidates for every base, trickling them to lcand as they become known.
func (a *Agent) gatherLocalCandidates(ctx context.Context, bases []*Base, lcand chan<- Candidate) {
	defer func() {
		a.mu.Lock()
		a.gatheringState = GatheringComplete
		a.mu.Unlock()
		if lcand != nil {
			close(lcand)
		}
	}()

	stunServer, turnServer := a.pickServers()

	var wg sync.WaitGroup
	for _, base := range bases {
		wg.Add(1)
		go func(base *Base) {
			defer wg.Done()

			hc := makeHostCandidate(a.mid, base)
			a.addLocalCandidate(hc, lcand)

			if base.address.protocol != UDP || base.address.linkLocal {
				return
			}

			if stunServer != "" {
				mapped, err := base.queryStunServer(ctx, stunServer)
				if err != nil {
					log.Warn("Failed to create STUN server candidate for base %s: %s", base.address, err)
				} else if !mapped.Equal(base.address) {
					a.addLocalCandidate(makeServerReflexiveCandidate(a.mid, mapped, base, stunServer), lcand)
				}
			}

			if turnServer.URL != "" {
				relayed, err := base.allocateRelay(ctx, turnServer)
				if err != nil {
					log.Warn("Failed to allocate TURN relay on %s: %s", turnServer.URL, err)
				} else {
					a.addLocalCandidate(makeRelayedCandidate(a.mid, relayed, base, turnServer.URL), lcand)
				}
			}
		}(base)
	}
	wg.Wait()
}

func (a *Agent) pickServers() (stunServer string, turnServer Server) {
	for _, s := range a.servers {
		if s.Relay && turnServer.URL == "" {
			turnServer = s
		} else if !s.Relay && stunServer == "" {
			stunServer = s.URL
		}
	}
	return
}

func (a *Agent) handleStun(msg *stunMessage, raddr net.Addr, base *Base) {
	if msg.method != stunBindingMethod {
		log.Warn("Unexpected STUN message: %s", msg)
		return
	}

	switch msg.class {
	case stunRequest:
		a.checklist.handleStunRequest(msg, raddr, base)
	case stunIndication:
		// No-op (binding indications are keepalives).
	case stunSuccessResponse, stunErrorResponse:
		log.Debug("Received unexpected unsolicited STUN response: %s", msg)
	}
}

// Close tears down all gathered bases.
func (a *Agent) Close() error {
	var firstErr error
	for _, base := range a.bases {
		if err := base.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
