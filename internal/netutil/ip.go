package netutil

import "net"

// OutboundIP returns the host address other machines on the network can
// reach this host at, discovered by asking the kernel which source address
// it would route a packet to a public resolver from. No traffic is sent.
// Falls back to "localhost" when the host has no route.
func OutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "localhost"
	}
	return addr.IP.String()
}
