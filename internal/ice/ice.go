// Package ice implements a reduced RFC 8445 Interactive Connectivity
// Establishment agent: candidate gathering (host, server-reflexive, and
// relayed via a minimal TURN Allocate exchange), connectivity checks, and
// controlling/controlled role negotiation with conflict resolution.
package ice

import (
	"github.com/lanikai/rtcdc/internal/logging"
)

var log = logging.DefaultLogger.WithTag("ice")
