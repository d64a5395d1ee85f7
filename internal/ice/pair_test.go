package ice

import "testing"

func TestCandidatePairPriority(t *testing.T) {
	local := cand(126, "10.0.0.1", 1000)
	remote := cand(110, "10.0.0.2", 2000)
	p := newCandidatePair(1, local, remote)

	// [RFC8445 §6.1.2.3] priority is order-dependent: the lower candidate
	// priority fills the high 32 bits, and the low tie-break bit is set
	// only when the controlling agent's candidate has the higher priority.
	controllingPriority := p.Priority(true)
	controlledPriority := p.Priority(false)
	if controllingPriority == controlledPriority {
		t.Error("priority should differ by role unless G == D")
	}

	g, d := uint64(126), uint64(110)
	want := min(g, d)<<32 + max(g, d)<<1 + 1
	if controllingPriority != want {
		t.Errorf("Priority(true) = %d, want %d", controllingPriority, want)
	}
}

func TestCandidatePairPanicsOnComponentMismatch(t *testing.T) {
	local := cand(100, "10.0.0.1", 1000)
	remote := cand(100, "10.0.0.2", 2000)
	remote.component = 2

	defer func() {
		if recover() == nil {
			t.Error("expected panic on mismatched components")
		}
	}()
	newCandidatePair(1, local, remote)
}
