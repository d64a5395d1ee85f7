package ice

import (
	"fmt"
	"net"
)

// Transport protocols named in ICE candidate lines.
const (
	UDP = "udp"
	TCP = "tcp"
)

// AddressFamily distinguishes resolved IPv4/IPv6 addresses from addresses
// that have not yet been resolved (e.g. a TURN server given as a hostname).
type AddressFamily int

const (
	Unresolved AddressFamily = iota
	IPv4
	IPv6
)

// IPAddress holds a raw IP address: 4 bytes for IPv4, 16 for IPv6. For an
// address that has not been resolved, it instead holds the literal hostname.
type IPAddress []byte

// TransportAddress is a (protocol, IP, port) tuple, as used throughout
// RFC 8445 to describe candidates and bases.
type TransportAddress struct {
	protocol  string
	ip        IPAddress
	port      int
	family    AddressFamily
	linkLocal bool
}

func makeTransportAddress(addr net.Addr) TransportAddress {
	var protocol string
	var ip net.IP
	var port int
	switch a := addr.(type) {
	case *net.UDPAddr:
		protocol, ip, port = UDP, a.IP, a.Port
	case *net.TCPAddr:
		protocol, ip, port = TCP, a.IP, a.Port
	default:
		panic("ice: unsupported net.Addr type: " + addr.String())
	}

	ta := TransportAddress{protocol: protocol, port: port}
	if ip4 := ip.To4(); ip4 != nil {
		ta.family = IPv4
		ta.ip = IPAddress(ip4)
	} else {
		ta.family = IPv6
		ta.ip = IPAddress(ip.To16())
	}
	ta.linkLocal = ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
	return ta
}

func (ta TransportAddress) resolved() bool {
	return ta.family != Unresolved
}

// Equal reports whether two transport addresses name the same endpoint.
// TransportAddress cannot use == directly since it embeds a byte slice.
func (ta TransportAddress) Equal(other TransportAddress) bool {
	return ta.protocol == other.protocol &&
		ta.port == other.port &&
		ta.family == other.family &&
		string(ta.ip) == string(other.ip)
}

func (ta TransportAddress) displayIP() string {
	if ta.resolved() {
		return net.IP(ta.ip).String()
	}
	return string(ta.ip)
}

// netAddr resolves this transport address back into a net.Addr suitable for
// use with net.PacketConn.WriteTo.
func (ta TransportAddress) netAddr() net.Addr {
	hostport := net.JoinHostPort(ta.displayIP(), fmt.Sprintf("%d", ta.port))
	if ta.protocol == TCP {
		addr, _ := net.ResolveTCPAddr(TCP, hostport)
		return addr
	}
	addr, _ := net.ResolveUDPAddr(UDP, hostport)
	return addr
}

func (ta TransportAddress) String() string {
	ip := ta.displayIP()
	if ta.family == IPv6 {
		ip = "[" + ip + "]"
	}
	return fmt.Sprintf("%s/%s:%d", ta.protocol, ip, ta.port)
}

func resolveAddr(network, address string) (net.Addr, error) {
	switch network {
	case TCP:
		return net.ResolveTCPAddr(network, address)
	case UDP:
		return net.ResolveUDPAddr(network, address)
	default:
		return nil, fmt.Errorf("ice: invalid network type: %s", network)
	}
}
