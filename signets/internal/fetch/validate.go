package fetch

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrBlocked is returned when a URL targets a private or loopback address.
var ErrBlocked = errors.New("fetch: URL targets a private or loopback address")

// ErrUnsafeScheme is returned for anything other than http and https.
var ErrUnsafeScheme = errors.New("fetch: only http and https schemes are allowed")

var privateNets = mustCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"100.64.0.0/10",
	"fc00::/7",
)

// ValidateURL checks that rawURL is http(s), has a host, and does not
// resolve to a private or loopback address.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("fetch: invalid URL: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("fetch: URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivate(ip) {
			return ErrBlocked
		}
		return nil
	}

	addrs, err := net.LookupHost(host)
	if err != nil {
		// Unresolvable now; the request itself will fail if it stays that way.
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivate(ip) {
			return ErrBlocked
		}
	}
	return nil
}

func isPrivate(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func mustCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("fetch: bad CIDR " + c)
		}
		out = append(out, n)
	}
	return out
}
