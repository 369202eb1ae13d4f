package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:4312"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(r); got != "203.0.113.7" {
		t.Fatalf("ClientIP() = %q, want %q", got, "203.0.113.7")
	}
}

func TestClientIPFallsBackToRealIPThenRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:4312"
	r.Header.Set("X-Real-IP", "198.51.100.2")
	if got := ClientIP(r); got != "198.51.100.2" {
		t.Fatalf("ClientIP() = %q, want %q", got, "198.51.100.2")
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:4312"
	if got := ClientIP(r); got != "10.0.0.9" {
		t.Fatalf("ClientIP() = %q, want %q", got, "10.0.0.9")
	}
}

func TestClientIPHonorsTrustedProxyList(t *testing.T) {
	if err := SetTrustedProxies([]string{"10.0.0.0/8"}); err != nil {
		t.Fatalf("SetTrustedProxies: %v", err)
	}
	t.Cleanup(func() { _ = SetTrustedProxies(nil) })

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:4312"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	if got := ClientIP(r); got != "203.0.113.7" {
		t.Fatalf("ClientIP() = %q, want forwarded address from trusted peer", got)
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.50:4312"
	r.Header.Set("X-Forwarded-For", "203.0.113.7")
	if got := ClientIP(r); got != "192.0.2.50" {
		t.Fatalf("ClientIP() = %q, want remote addr from untrusted peer", got)
	}
}

func TestSetTrustedProxiesRejectsBadCIDR(t *testing.T) {
	if err := SetTrustedProxies([]string{"not-a-cidr"}); err == nil {
		t.Fatalf("expected error for malformed CIDR")
	}
}
