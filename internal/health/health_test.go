package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keithlinneman/gethead/internal/router"
)

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestProbeHandlers(t *testing.T) {
	tests := []struct {
		name     string
		h        http.Handler
		wantCode int
		wantBody string
	}{
		{"healthz ok", HealthzHandler(Fixed(true, "")), 200, "ok"},
		{"healthz nil probe", HealthzHandler(nil), 200, "ok"},
		{"healthz failing", HealthzHandler(Fixed(false, "listener down")), 503, "listener down"},
		{"readyz ok", ReadyzHandler(Fixed(true, "")), 200, "ready"},
		{"readyz nil probe", ReadyzHandler(nil), 200, "ready"},
		{"readyz failing", ReadyzHandler(Fixed(false, "draining")), 503, "draining"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt.h, http.MethodGet, "/")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Fatalf("body = %q, want %q", rec.Body.String(), tt.wantBody)
			}
			if rec.Header().Get("Cache-Control") != "no-store" {
				t.Fatal("probe responses must not be cached")
			}
		})
	}
}

func TestHealthzHandler_DynamicProbe(t *testing.T) {
	var fail error
	h := HealthzHandler(CheckFunc(func(context.Context) error { return fail }))

	if rec := serve(h, http.MethodGet, "/"); rec.Code != http.StatusOK {
		t.Fatalf("initially: status = %d, want 200", rec.Code)
	}
	fail = errors.New("flipped unhealthy")
	if rec := serve(h, http.MethodGet, "/"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("after flip: status = %d, want 503", rec.Code)
	}
}

func TestRegister(t *testing.T) {
	r := router.New()
	var gate ShutdownGate
	if err := Register(r, nil, gate.Probe()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !r.HasRoute(http.MethodGet, LivenessPath) || !r.HasRoute(http.MethodGet, ReadinessPath) {
		t.Fatalf("routes = %v", r.Routes())
	}

	rec := serve(r, http.MethodGet, ReadinessPath)
	if rec.Code != http.StatusOK || rec.Body.String() != "ready\n" {
		t.Fatalf("ready = %d %q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Length"); got != "6" {
		t.Fatalf("content-length = %q, want 6", got)
	}

	gate.Set("draining")
	rec = serve(r, http.MethodGet, ReadinessPath)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("draining: status = %d", rec.Code)
	}
}

func TestRegister_Twice(t *testing.T) {
	r := router.New()
	if err := Register(r, nil, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := Register(r, nil, nil); !errors.Is(err, router.ErrRouteExists) {
		t.Fatalf("err = %v, want ErrRouteExists", err)
	}
}
