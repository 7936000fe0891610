package naming

import "net"

// splitHostPort wraps net.SplitHostPort; pulled into its own function so
// Parse's error path reads like the rest of this package's validation
// helpers rather than reaching into net directly at two call sites.
func splitHostPort(s string) (host, port string, err error) {
	return net.SplitHostPort(s)
}

// isIP reports whether host parses as an IPv4 or IPv6 address.
func isIP(host string) bool {
	return net.ParseIP(host) != nil
}
