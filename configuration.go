package rtcdc

import (
	"fmt"
	"net"

	"github.com/lanikai/rtcdc/internal/dtls"
	"github.com/lanikai/rtcdc/internal/ice"
)

// ICETransportPolicy restricts which candidate types an Agent is allowed to
// gather and use, mirroring the W3C RTCIceTransportPolicy enum.
type ICETransportPolicy int

const (
	ICETransportPolicyAll ICETransportPolicy = iota
	ICETransportPolicyRelay
)

// BundlePolicy controls how media/data sections are grouped onto one ICE
// transport. This profile only ever negotiates a single "application" m=
// section, so max-bundle and max-compat are observably identical. The value
// is not consulted when generating SDP: a=group:BUNDLE is emitted under
// every policy, disable included.
type BundlePolicy int

const (
	BundlePolicyBalanced BundlePolicy = iota
	BundlePolicyMaxCompat
	BundlePolicyMaxBundle
	BundlePolicyDisable
)

// ICEServer describes one STUN or TURN server to use during candidate
// gathering.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// Configuration holds everything NewPeerConnection needs. It is constructed
// directly by the application; no file-based config loader is provided
// since the option set here is small and every field maps onto a
// programmatic knob an embedding application already has in hand.
type Configuration struct {
	ICEServers         []ICEServer
	ICETransportPolicy ICETransportPolicy

	// ICEPortRange names a local UDP port range for host candidates. A zero
	// value on either end means unrestricted. validate rejects Min > Max;
	// the range is not passed to the ICE agent, so the ports that are
	// bound are not restricted by it.
	ICEPortRangeMin uint16
	ICEPortRangeMax uint16

	// ICEInterfaceAddresses lists local addresses for host candidate
	// gathering. It is stored but not passed to the ICE agent, which
	// gathers on every interface regardless.
	ICEInterfaceAddresses []net.IP

	// ICEAdditionalHostAddresses lists extra host addresses. It is stored
	// but not passed to the ICE agent, so no candidates are added for them.
	ICEAdditionalHostAddresses []net.IP

	ICEUseIPv4 bool
	ICEUseIPv6 bool

	// ICEFilterSTUNResponse is stored but not passed to the ICE agent;
	// STUN responses are not filtered by source address.
	ICEFilterSTUNResponse bool

	// Certificate is the preprovisioned DTLS identity for this peer
	// connection. If nil, NewPeerConnection generates a fresh ECDSA
	// certificate.
	Certificate *Certificate

	BundlePolicy BundlePolicy
}

func (c *Configuration) validate() error {
	if c.ICEPortRangeMin != 0 && c.ICEPortRangeMax != 0 && c.ICEPortRangeMin > c.ICEPortRangeMax {
		return newError(KindInvalidState, fmt.Errorf("ICEPortRangeMin %d > ICEPortRangeMax %d", c.ICEPortRangeMin, c.ICEPortRangeMax))
	}
	if !c.ICEUseIPv4 && !c.ICEUseIPv6 {
		return newError(KindInvalidState, fmt.Errorf("at least one of ICEUseIPv4/ICEUseIPv6 must be true"))
	}
	return nil
}

// withDefaults returns a copy of c with zero-value fields filled in the way
// NewPeerConnection expects: when neither address family is enabled, both
// IPv4 and IPv6 gathering are turned on. ICEFilterSTUNResponse is left as
// given.
func (c Configuration) withDefaults() Configuration {
	if !c.ICEUseIPv4 && !c.ICEUseIPv6 {
		c.ICEUseIPv4 = true
		c.ICEUseIPv6 = true
	}
	return c
}

func (c Configuration) iceServers() []ice.Server {
	out := make([]ice.Server, 0, len(c.ICEServers))
	for _, s := range c.ICEServers {
		for _, url := range s.URLs {
			out = append(out, ice.Server{
				URL:      url,
				Username: s.Username,
				Password: s.Credential,
				Relay:    c.ICETransportPolicy == ICETransportPolicyRelay || isTurnURL(url),
			})
		}
	}
	return out
}

func isTurnURL(url string) bool {
	return len(url) >= 4 && url[:4] == "turn"
}

// Certificate is the DTLS identity used to authenticate a PeerConnection.
// It wraps internal/dtls's generated key pair so the root package doesn't
// need to duplicate certificate/fingerprint handling.
type Certificate struct {
	inner *dtls.Certificate
}

// GenerateCertificate creates a fresh self-signed ECDSA certificate,
// matching the mandatory-to-implement cipher suite most browsers prefer.
func GenerateCertificate() (*Certificate, error) {
	c, err := dtls.GenerateCertificate(dtls.CertificateECDSA)
	if err != nil {
		return nil, newError(KindNetworkError, err)
	}
	return &Certificate{inner: c}, nil
}

// Fingerprint returns the certificate's SHA-256 fingerprint in the
// colon-separated hex form SDP's a=fingerprint attribute uses.
func (c *Certificate) Fingerprint() string {
	return c.inner.Fingerprint()
}
