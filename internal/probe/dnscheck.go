package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

var dnsTimeout = 3 * time.Second

// classifyFailure turns a transport error into a short reason string,
// using a DNS lookup to tell "the name does not exist" apart from "the
// host is there but not answering".
func classifyFailure(host string, err error) string {
	if host == "" {
		return "invalid_host"
	}

	ctx, cancel := context.WithTimeout(context.Background(), dnsTimeout)
	defer cancel()
	r := &net.Resolver{} // OS resolver

	ips, lookupErr := r.LookupIP(ctx, "ip", host)
	if lookupErr == nil && len(ips) > 0 {
		if isTimeout(err) {
			return "timeout"
		}
		return "unreachable"
	}

	var de *net.DNSError
	if errors.As(lookupErr, &de) {
		if de.IsNotFound {
			return "nxdomain"
		}
		if de.IsTemporary || de.Timeout() {
			return "dns_timeout"
		}
	}
	return "dns_error"
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return strings.Contains(err.Error(), "context deadline exceeded")
}
