package mux

import (
	"bytes"
	"reflect"
	"testing"
)

func TestDispatch(t *testing.T) {
	m := &Mux{
		endpoints: make(map[*Endpoint]MatchFunc),
	}
	e := m.NewEndpoint(MatchRange(0, 255))

	if e.nused != 0 {
		t.Errorf("Expected endpoint to have 0 used buffers: %d", e.nused)
	}

	// Dispatch one packet to the endpoint.
	pkt := []byte("test")
	ret := m.dispatch(pkt)

	if e.nused != 1 {
		t.Errorf("Expected endpoint to have 1 used buffer after dispatch: %d", e.nused)
	}
	if !identical(e.bufs[0], pkt) {
		t.Errorf("Expected endpoint to have taken ownership of packet buffer: %p != %p", &e.bufs[0], &pkt)
	}
	if identical(ret, pkt) {
		t.Errorf("Expected dispatch to receive a different buffer")
	}

	// Read the packet out of the endpoint.
	buf := make([]byte, 32)
	n, err := e.Read(buf)

	if err != nil {
		t.Error(err)
	}
	if !bytes.Equal(buf[:n], pkt) {
		t.Errorf("Read: unexpected value: %q != %q", buf[:n], pkt)
	}
	if e.nused != 0 {
		t.Errorf("Expected endpoint to have 0 used buffers after Read: %d", e.nused)
	}
}

// Checks if two byte slices refer to the exact same memory region.
func identical(b1, b2 []byte) bool {
	return len(b1) == len(b2) &&
		reflect.ValueOf(b1).Pointer() == reflect.ValueOf(b2).Pointer()
}

func TestDispatchDropsWhenQueueFull(t *testing.T) {
	m := &Mux{
		endpoints: make(map[*Endpoint]MatchFunc),
	}
	e := m.NewEndpoint(MatchRange(0, 255))

	for i := 0; i < e.nbufs; i++ {
		m.dispatch([]byte("fill"))
	}
	if got := e.Dropped(); got != 0 {
		t.Fatalf("expected no drops while queue has room, got %d", got)
	}
	if e.nused != e.nbufs {
		t.Fatalf("expected queue to be full: nused=%d nbufs=%d", e.nused, e.nbufs)
	}

	// The queue is now full; one more dispatch must evict the oldest entry
	// rather than block or grow, and bump the drop counter.
	m.dispatch([]byte("overflow"))
	if got := e.Dropped(); got != 1 {
		t.Errorf("expected exactly one dropped packet, got %d", got)
	}
	if e.nused != e.nbufs {
		t.Errorf("expected queue to stay at capacity after a drop: nused=%d nbufs=%d", e.nused, e.nbufs)
	}
}

func TestDispatchNoEndpointIsNonFatal(t *testing.T) {
	m := &Mux{
		endpoints: make(map[*Endpoint]MatchFunc),
	}
	// No endpoints registered at all, including the zero-length-read edge
	// case that would panic on a naive buf[0] log call.
	if ret := m.dispatch(nil); ret != nil {
		t.Errorf("expected dispatch to hand back the same (nil) buffer when unmatched, got %v", ret)
	}
	if ret := m.dispatch([]byte{7}); len(ret) != 1 || ret[0] != 7 {
		t.Errorf("expected dispatch to hand back the unmatched buffer unchanged, got %v", ret)
	}
}

func TestMuxDTLSEndpointRegistersDTLSRange(t *testing.T) {
	m := &Mux{
		endpoints: make(map[*Endpoint]MatchFunc),
	}
	e := m.DTLSEndpoint()

	m.lock.Lock()
	f, ok := m.endpoints[e]
	m.lock.Unlock()
	if !ok {
		t.Fatal("DTLSEndpoint did not register its endpoint on the Mux")
	}
	if !f([]byte{20}) || !f([]byte{63}) {
		t.Error("expected DTLSEndpoint's MatchFunc to accept the RFC 7983 DTLS range boundaries")
	}
	if f([]byte{19}) || f([]byte{64}) {
		t.Error("expected DTLSEndpoint's MatchFunc to reject bytes outside the RFC 7983 DTLS range")
	}
}
