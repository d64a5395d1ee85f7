package mux

// MatchFunc allows custom logic for mapping packets to an Endpoint.
type MatchFunc func([]byte) bool

// MatchRange returns a MatchFunc that accepts packets whose first byte falls
// in [lower, upper].
func MatchRange(lower, upper byte) MatchFunc {
	return func(buf []byte) bool {
		if len(buf) < 1 {
			return false
		}
		b := buf[0]
		return b >= lower && b <= upper
	}
}

// First-byte demultiplexing ranges, as described in RFC 7983:
//
//	              +----------------+
//	              |        [0..3] -+--> forward to STUN
//	  packet -->  |      [20..63] -+--> forward to DTLS
//	              |      [64..79] -+--> forward to TURN Channel
//	              +----------------+
//
// ZRTP ([16..19]) and RTP/RTCP ([128..191]) are omitted: this profile never
// carries media.
var (
	MatchSTUN = MatchRange(0, 3)
	MatchDTLS = MatchRange(20, 63)
	MatchTURN = MatchRange(64, 79)
)
