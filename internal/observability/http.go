package observability

import (
	"net"
	"net/http"
	"strings"
)

// DeviceID returns the client-reported device identifier, if any.
func DeviceID(r *http.Request) string {
	return r.Header.Get("X-Device-Id")
}

// RequestID returns the inbound request id header, if any.
func RequestID(r *http.Request) string {
	return r.Header.Get("X-Request-Id")
}

// ClientIP resolves the caller address, preferring the first hop recorded in
// X-Forwarded-For over the socket peer.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
