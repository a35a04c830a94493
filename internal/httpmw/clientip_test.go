package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientAddr(t *testing.T) {
	tests := []struct {
		name      string
		remote    string
		xff       string
		hops      int
		want      string
		stripsXFF bool
	}{
		{"public peer ignores xff", "203.0.113.7:1234", "1.1.1.1", 1, "203.0.113.7", true},
		{"private peer without hops ignores xff", "10.0.0.5:1234", "1.1.1.1", 0, "10.0.0.5", true},
		{"single proxy takes rightmost", "10.0.0.5:1234", "9.9.9.9, 1.1.1.1", 1, "1.1.1.1", false},
		{"two proxies take second from right", "10.0.0.5:1234", "9.9.9.9, 1.1.1.1, 10.0.0.9", 2, "1.1.1.1", false},
		{"too few entries fails closed", "10.0.0.5:1234", "1.1.1.1", 3, "10.0.0.5", true},
		{"garbage entry keeps peer", "10.0.0.5:1234", "not-an-ip", 1, "10.0.0.5", false},
		{"no xff", "10.0.0.5:1234", "", 1, "10.0.0.5", false},
		{"ipv6 peer", "[2001:db8::1]:443", "", 0, "2001:db8::1", false},
		{"missing port", "10.0.0.5", "", 0, "10.0.0.5", false},
		{"bad host", "bogus:80", "", 0, unknownClientIP, false},
		{"empty remote", "", "", 0, unknownClientIP, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
				r.Header.Set("X-Forwarded-Proto", "https")
			}
			if got := clientAddr(r, tt.hops); got != tt.want {
				t.Fatalf("clientAddr = %q, want %q", got, tt.want)
			}
			if stripped := r.Header.Get("X-Forwarded-For") == "" && tt.xff != ""; stripped != tt.stripsXFF {
				t.Fatalf("xff stripped = %v, want %v", stripped, tt.stripsXFF)
			}
		})
	}
}

func TestClientIP_Middleware(t *testing.T) {
	var got string
	h := ClientIPWithOptions(ClientIPOptions{TrustedHops: 1})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = ClientIPFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "172.16.0.2:5000"
	r.Header.Set("X-Forwarded-For", "198.51.100.4")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if got != "198.51.100.4" {
		t.Fatalf("client ip = %q", got)
	}

	ClientIP(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = ClientIPFromContext(r.Context())
	})).ServeHTTP(httptest.NewRecorder(), r)
	if got != "172.16.0.2" {
		t.Fatalf("default options client ip = %q", got)
	}
}
