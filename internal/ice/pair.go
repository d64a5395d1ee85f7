package ice

import (
	"fmt"
)

type CandidatePair struct {
	id         string
	local      Candidate
	remote     Candidate
	foundation string
	component  int

	state     CandidatePairState
	nominated bool
}

// Candidate pair states
type CandidatePairState int

const (
	Frozen     CandidatePairState = 0
	Waiting                       = 1
	InProgress                    = 2
	Succeeded                     = 3
	Failed                        = 4
)

func newCandidatePair(seq int, local, remote Candidate) *CandidatePair {
	if local.component != remote.component {
		log.Panicf("Candidates in pair have different components: %d != %d", local.component, remote.component)
	}
	id := fmt.Sprintf("Pair#%d", seq)
	foundation := fmt.Sprintf("%s/%s", local.foundation, remote.foundation)
	return &CandidatePair{id: id, local: local, remote: remote, foundation: foundation, component: local.component}
}

func (p *CandidatePair) String() string {
	var state string
	switch p.state {
	case Frozen:
		state = "Frozen"
	case Waiting:
		state = "Waiting"
	case InProgress:
		state = "In Progress"
	case Succeeded:
		state = "Succeeded"
	case Failed:
		state = "Failed"
	}
	return fmt.Sprintf("%s: %s -> %s [%s]", p.id, p.local.address, p.remote.address, state)
}

// Priority computes the candidate pair priority per [RFC8445 §6.1.2.3],
// given whether the local agent is the controlling or controlled party.
func (p *CandidatePair) Priority(controlling bool) uint64 {
	g := uint64(p.local.priority)
	d := uint64(p.remote.priority)
	if !controlling {
		g, d = d, g
	}
	var b uint64
	if g > d {
		b = 1
	}
	return min(g, d)<<32 + max(g, d)<<1 + b
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
