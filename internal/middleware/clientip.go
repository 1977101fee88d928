package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

const (
	// HeaderXForwardedFor is the header name for forwarded client IP.
	HeaderXForwardedFor = "X-Forwarded-For"
	// HeaderXRealIP is the header name for real client IP.
	HeaderXRealIP = "X-Real-IP"
)

// proxyPolicy decides which forwarding headers to believe.
type proxyPolicy struct {
	trust   bool
	trusted map[string]bool // empty means any peer
}

func newProxyPolicy(trust bool, trustedProxies []string) proxyPolicy {
	p := proxyPolicy{trust: trust, trusted: make(map[string]bool, len(trustedProxies))}
	for _, ip := range trustedProxies {
		p.trusted[strings.TrimSpace(ip)] = true
	}
	return p
}

// clientIP resolves the caller's address. Forwarding headers are consulted
// only when proxies are trusted and the peer is one of them.
func (p proxyPolicy) clientIP(r *http.Request) string {
	remoteIP := hostOnly(r.RemoteAddr)

	if !p.trust {
		return remoteIP
	}
	if len(p.trusted) > 0 && !p.trusted[remoteIP] {
		return remoteIP
	}

	// X-Forwarded-For is "client, proxy1, proxy2".
	if xff := r.Header.Get(HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get(HeaderXRealIP)); xri != "" {
		return xri
	}

	return remoteIP
}

// ClientIP stores the resolved client address in the request context.
func ClientIP(trustProxy bool, trustedProxies []string) Middleware {
	policy := newProxyPolicy(trustProxy, trustedProxies)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), ClientIPKey, policy.clientIP(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// hostOnly strips the port from addr, if any.
func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
