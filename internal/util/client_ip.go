package util

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

var trustedProxies []*net.IPNet

// SetTrustedProxies restricts which peers may supply forwarded-for headers.
// With no CIDRs configured every peer is trusted, which suits direct local
// traffic; deployments behind a reverse proxy should list the proxy here so
// arbitrary clients cannot spoof their rate-limit key.
func SetTrustedProxies(cidrs []string) error {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return fmt.Errorf("parse trusted proxy CIDR %q: %w", cidr, err)
		}
		nets = append(nets, network)
	}
	if len(nets) == 0 {
		nets = nil
	}
	trustedProxies = nets
	return nil
}

func proxyTrusted(remoteAddr string) bool {
	if trustedProxies == nil {
		return true
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(remoteAddr))
	if err != nil {
		host = strings.TrimSpace(remoteAddr)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP returns the best-effort client address for audit logs and
// per-IP rate limit keys. Forwarded headers are honored only when the
// direct peer is a trusted proxy.
func ClientIP(r *http.Request) string {
	if proxyTrusted(r.RemoteAddr) {
		if xfwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xfwd != "" {
			parts := strings.Split(xfwd, ",")
			if len(parts) > 0 {
				ip := strings.TrimSpace(parts[0])
				if ip != "" {
					return ip
				}
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
