package snapshot

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrUnsafeScheme is returned for URLs that are not http or https.
	ErrUnsafeScheme = errors.New("snapshot: only http and https URLs can be loaded")
	// ErrPrivateAddress is returned when a URL targets a loopback, private
	// or link-local address and private targets are not allowed.
	ErrPrivateAddress = errors.New("snapshot: URL targets a private or loopback address")
)

// ValidateURL checks the scheme and host of rawURL and, unless
// allowPrivate is set, rejects hosts that are or resolve to private
// addresses. Resolution failures pass; the connection will fail later.
func ValidateURL(rawURL string, allowPrivate bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("snapshot: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: %q", ErrUnsafeScheme, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("snapshot: URL has no host")
	}
	if allowPrivate {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("%w: %s", ErrPrivateAddress, host)
		}
		return nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && isPrivateIP(ip) {
			return fmt.Errorf("%w: %s resolves to %s", ErrPrivateAddress, host, a)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}
