package http

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Peers in these networks may set X-Forwarded-For and X-Real-IP.
var trustedProxies = mustParseNetworks("127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16")

func mustParseNetworks(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("bad proxy network %s: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

func fromTrustedProxy(ip net.IP) bool {
	for _, n := range trustedProxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// extractClientIP is the rate-limit and trace key for a request. Forwarding
// headers count only when the peer itself is a trusted proxy.
func extractClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	ip := net.ParseIP(peer)
	if ip == nil || !fromTrustedProxy(ip) {
		return peer
	}

	candidates := []string{}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		candidates = append(candidates, strings.TrimSpace(first))
	}
	candidates = append(candidates, strings.TrimSpace(r.Header.Get("X-Real-IP")))
	for _, c := range candidates {
		if net.ParseIP(c) != nil {
			return c
		}
	}
	return peer
}

// withSecurityHeaders sets the browser hardening headers on every response.
// Presigned receipt URLs point at the bucket, so img-src allows https.
func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; connect-src 'self'")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
