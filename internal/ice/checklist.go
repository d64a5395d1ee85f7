package ice

import (
	"context"
	"encoding/binary"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/lanikai/rtcdc/internal/timer"
)

type checklistState int

const (
	checklistRunning   checklistState = 0
	checklistCompleted checklistState = 1
	checklistFailed    checklistState = 2
)

// Checklist implements the RFC 8445 connectivity-check state machine for a
// single ICE component. Unlike the protocol's general model (per-foundation
// freeze/unfreeze across multiple checklists), this profile only ever runs
// one checklist for one component, so the generalization is limited to
// Waiting/InProgress/Succeeded/Failed bookkeeping.
type Checklist struct {
	// ICE role of the local agent. The controlling agent nominates pairs;
	// the tiebreaker resolves simultaneous role conflicts ([RFC8445 §5.2.1-2]).
	controlling bool
	tiebreaker  uint64

	// ICE credentials
	username       string
	localPassword  string
	remotePassword string

	state checklistState

	// Checklist state listeners, each with a unique id.
	listeners      map[int]chan checklistState
	nextListenerID int

	nextPairID int
	pairs      []*CandidatePair

	triggeredQueue []*CandidatePair

	// Valid list: pairs that have succeeded a connectivity check.
	valid []*CandidatePair

	// Selected candidate pair, set once a nominated pair succeeds.
	selected *CandidatePair

	mutex sync.Mutex

	nextToCheck int
}

func newChecklist(controlling bool, username, localPassword, remotePassword string) *Checklist {
	var buf [8]byte
	randomBytes(buf[:])
	return &Checklist{
		controlling:    controlling,
		tiebreaker:     binary.BigEndian.Uint64(buf[:]),
		username:       username,
		localPassword:  localPassword,
		remotePassword: remotePassword,
	}
}

// Pair up local candidates with remote candidates, and add them to the checklist. Then re-sort and
// re-prune, and unfreeze top candidate pairs.
func (cl *Checklist) addCandidatePairs(locals, remotes []Candidate) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	for _, local := range locals {
		for _, remote := range remotes {
			if canBePaired(local, remote) {
				p := newCandidatePair(cl.nextPairID, local, remote)
				cl.nextPairID++
				log.Debug("Adding candidate pair %s", p)
				cl.pairs = append(cl.pairs, p)
			}
		}
	}

	cl.pairs = cl.sortAndPrune(cl.pairs)

	// TODO: Only change the top candidate per foundation.
	for _, p := range cl.pairs {
		if p.state == Frozen {
			p.state = Waiting
		}
	}
}

// Only pair candidates for the same component. Their transport addresses must be compatible.
func canBePaired(local, remote Candidate) bool {
	return local.component == remote.component &&
		local.address.protocol == remote.address.protocol &&
		local.address.family == remote.address.family &&
		local.address.linkLocal == remote.address.linkLocal
}

// sortAndPrune sorts the candidate pairs from highest to lowest priority, then
// prunes any redundant pairs.
func (cl *Checklist) sortAndPrune(pairs []*CandidatePair) []*CandidatePair {
	// [RFC8445 §6.1.2.3] Sort pairs from highest to lowest priority.
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Priority(cl.controlling) > pairs[j].Priority(cl.controlling)
	})

	// [RFC8445 §6.1.2.4] Prune redundant pairs.
	for i := 0; i < len(pairs); i++ {
		p := pairs[i]
		// [draft-ietf-ice-trickle-21 §10] Preserve pairs for which checks are in flight.
		switch p.state {
		case InProgress, Succeeded, Failed:
			continue
		}
		// Compare this pair against higher priority pairs, and remove if redundant.
		for j := 0; j < i; j++ {
			if isRedundant(p, pairs[j]) {
				log.Debug("Pruning %s in favor of %s", p.id, pairs[j].id)
				pairs = append(pairs[:i], pairs[i+1:]...)
				break
			}
		}
	}

	return pairs
}

// [RFC8445 §6.1.2.4] Two candidate pairs are redundant if they have the same
// remote candidate and same local base.
func isRedundant(p1, p2 *CandidatePair) bool {
	return p1.remote.address.Equal(p2.remote.address) && p1.local.base.address.Equal(p2.local.base.address)
}

// run drives periodic connectivity checks and keepalives until ctx is
// cancelled. Call addListener first to be notified of state transitions. Both
// timers are named entries on a single timer.Wheel, owned by this goroutine,
// per the one-goroutine-per-connection model: nothing here spawns its own
// ticker goroutine.
func (cl *Checklist) run(ctx context.Context) {
	const taTimer = "ice-connectivity-check"
	const trTimer = "ice-keepalive"

	wheel := timer.NewWheel()
	now := time.Now()

	var armTa func(time.Time)
	armTa = func(now time.Time) {
		// [RFC8445 §6.1.4.2] Periodic connectivity check.
		if p := cl.nextPair(); p != nil {
			log.Debug("Next candidate pair to check: %s", p)
			if err := cl.sendCheck(p); err != nil {
				log.Warn("Failed to send connectivity check: %s", err)
			}
		}
		wheel.After(taTimer, 50*time.Millisecond, now, armTa)
	}
	wheel.After(taTimer, 50*time.Millisecond, now, armTa)

	wheel.Every(trTimer, 30*time.Second, now, func(time.Time) {
		// [RFC8445 §11] Send STUN binding indication to selected pair.
		if p := cl.selected; p != nil {
			p.local.base.sendStun(newStunBindingIndication(), p.remote.address.netAddr(), nil)
		}
	})

	lid, stateCh := cl.addListener()
	defer cl.removeListener(lid)

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case newState := <-stateCh:
			log.Debug("Checklist state: %d", newState)
			if newState != checklistRunning {
				wheel.Cancel(taTimer)
			}

		case now := <-ticker.C:
			wheel.Tick(now)
		}
	}
}

func (cl *Checklist) getSelected(ctx context.Context) (*CandidatePair, error) {
	lid, stateCh := cl.addListener()
	defer cl.removeListener(lid)

	for {
		if cl.selected != nil {
			return cl.selected, nil
		}

		select {
		case <-stateCh:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// [RFC8445 §7.3] Respond to STUN binding request by sending a success response.
func (cl *Checklist) handleStunRequest(req *stunMessage, raddr net.Addr, base *Base) {
	if conflict := cl.checkRoleConflict(req); conflict {
		cl.sendRoleConflictResponse(req, raddr, base)
		return
	}

	p := cl.findPair(base, raddr)
	if p == nil {
		p = cl.adoptPeerReflexiveCandidate(base, raddr, req.getPriority())
	}
	if !cl.controlling && req.hasUseCandidate() && !p.nominated {
		log.Debug("Nominating %s", p.id)
		cl.nominate(p)
	}

	resp := newStunBindingResponse(req.transactionID, raddr, cl.localPassword, cl.controlling, cl.tiebreaker)
	log.Debug("Sending response %s -> %s: %s", base.LocalAddr(), raddr, resp)
	if err := base.sendStun(resp, raddr, nil); err != nil {
		log.Warn("Failed to send STUN response: %s", err)
	}

	cl.triggerCheck(p)
}

// checkRoleConflict implements [RFC8445 §7.3.1.1]: if both agents believe
// they hold the same role, the one with the lower tiebreaker switches roles.
func (cl *Checklist) checkRoleConflict(req *stunMessage) bool {
	remoteTiebreaker, remoteControlling, ok := req.getIceRole()
	if !ok {
		return false
	}
	if remoteControlling == cl.controlling {
		if cl.tiebreaker >= remoteTiebreaker {
			return true // Tell the remote peer to switch; we keep our role.
		}
		// We switch roles and let the check proceed as a retriggered check.
		cl.controlling = !cl.controlling
		cl.pairs = cl.sortAndPrune(cl.pairs)
	}
	return false
}

func (cl *Checklist) sendRoleConflictResponse(req *stunMessage, raddr net.Addr, base *Base) {
	resp := newStunErrorResponse(req.transactionID, stunErrorRoleConflict, cl.localPassword)
	base.sendStun(resp, raddr, nil)
}

// [RFC8445 §7.3.1.3-4] Create a peer reflexive candidate and pair with the base.
func (cl *Checklist) adoptPeerReflexiveCandidate(base *Base, raddr net.Addr, priority uint32) *CandidatePair {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	local := makeHostCandidate(base.sdpMid, base)
	remote := makePeerReflexiveCandidate(base.sdpMid, raddr, base, priority)
	log.Debug("New peer-reflexive %s", remote)

	p := newCandidatePair(cl.nextPairID, local, remote)
	p.state = Waiting
	cl.pairs = append(cl.pairs, p)
	cl.nextPairID++

	cl.pairs = cl.sortAndPrune(cl.pairs)
	return p
}

// Return the next candidate pair to check for connectivity.
func (cl *Checklist) nextPair() *CandidatePair {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	if len(cl.triggeredQueue) > 0 {
		p := cl.triggeredQueue[0]
		cl.triggeredQueue = cl.triggeredQueue[1:]
		return p
	}

	// Find the next pair in the Waiting state.
	n := len(cl.pairs)
	for i := 0; i < n; i++ {
		k := (cl.nextToCheck + i) % n
		p := cl.pairs[k]
		if p.state == Waiting {
			cl.nextToCheck = (k + 1) % n
			return p
		}
	}

	// Nothing to do.
	return nil
}

func (cl *Checklist) sendCheck(p *CandidatePair) error {
	req := newStunBindingRequest("")
	req.addAttribute(stunAttrUsername, []byte(cl.username))
	req.addIceRole(cl.controlling, cl.tiebreaker)
	req.addPriority(p.local.peerPriority())
	if cl.controlling && p.nominated {
		req.addAttribute(stunAttrUseCandidate, nil)
	}
	req.addMessageIntegrity(cl.remotePassword)
	req.addFingerprint()
	p.state = InProgress
	retransmit := time.AfterFunc(cl.rto(), func() {
		// If we don't get a response within the RTO, then move the pair back to Waiting.
		p.state = Waiting
	})

	log.Debug("%s: Sending to %s from %s: %s", p.id, p.remote.address, p.local.address, req)
	return p.local.base.sendStun(req, p.remote.address.netAddr(), func(resp *stunMessage, raddr net.Addr, base *Base) {
		retransmit.Stop()
		cl.processResponse(p, resp, raddr)
	})
}

// Compute retransmission time.
// https://tools.ietf.org/html/rfc8445#section-14.3
func (cl *Checklist) rto() time.Duration {
	n := 0
	for _, p := range cl.pairs {
		if p.state == Waiting || p.state == InProgress {
			n++
		}
	}
	// TODO: Base this off Ta, which may be less than 50ms.
	return time.Duration(n) * 50 * time.Millisecond
}

func (cl *Checklist) processResponse(p *CandidatePair, resp *stunMessage, raddr net.Addr) {
	if p.state != InProgress {
		log.Debug("Received unexpected STUN response for %s:\n%s", p, resp)
		return
	}

	switch resp.class {
	case stunSuccessResponse:
		log.Debug("%s: Successful connectivity check", p.id)
		p.state = Succeeded
		cl.mutex.Lock()
		cl.valid = append(cl.valid, p)
		cl.mutex.Unlock()
		if cl.controlling && len(cl.valid) == 1 {
			// Nominate the first pair to succeed (regular, non-aggressive nomination).
			cl.nominate(p)
		}
	case stunErrorResponse:
		if resp.getErrorCode() == stunErrorRoleConflict {
			cl.controlling = !cl.controlling
			cl.pairs = cl.sortAndPrune(cl.pairs)
			p.state = Waiting
			return
		}
		p.state = Failed
	default:
		log.Warn("Unexpected STUN response class for %s", p)
	}

	cl.updateState()
}

func (cl *Checklist) nominate(p *CandidatePair) {
	if p.state == Frozen {
		p.state = Waiting
	}
	p.nominated = true
	if cl.controlling {
		// Re-send the check with USE-CANDIDATE set.
		cl.triggerCheck(p)
	}
	cl.updateState()
}

func (cl *Checklist) updateState() {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	if cl.state != checklistRunning {
		return
	}

	for _, p := range cl.valid {
		if p.nominated {
			log.Info("Selected %s", p)
			cl.selected = p
			cl.state = checklistCompleted
			break
		}
	}

	// TODO: Handle checklist failure once all pairs are Failed.

	for _, ch := range cl.listeners {
		select {
		case ch <- cl.state:
		default:
		}
	}
}

func (cl *Checklist) addListener() (int, <-chan checklistState) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	id := cl.nextListenerID
	ch := make(chan checklistState, 1)
	if cl.listeners == nil {
		cl.listeners = make(map[int]chan checklistState)
	}
	cl.listeners[id] = ch
	cl.nextListenerID++
	return id, ch
}

func (cl *Checklist) removeListener(id int) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	delete(cl.listeners, id)
}

// findPair returns first candidate pair matching the base and remote address
func (cl *Checklist) findPair(base *Base, raddr net.Addr) *CandidatePair {
	remoteAddress := makeTransportAddress(raddr)

	for _, p := range cl.pairs {
		if p.local.address.Equal(base.address) && p.remote.address.Equal(remoteAddress) {
			return p
		}
	}

	return nil
}

func (cl *Checklist) triggerCheck(p *CandidatePair) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	if p.state == Frozen || p.state == Waiting || p.state == Succeeded {
		cl.triggeredQueue = append(cl.triggeredQueue, p)
	}
}
