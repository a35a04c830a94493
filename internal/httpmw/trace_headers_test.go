package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTraceResponseHeaders(t *testing.T) {
	_, tp := newRecorder(t)
	h := withSpan(tp, TraceResponseHeaders("", "")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/api/string", nil))

	if len(rec.Header().Get(DefaultTraceHeader)) != 32 {
		t.Fatalf("trace header = %q", rec.Header().Get(DefaultTraceHeader))
	}
	if len(rec.Header().Get(DefaultSpanHeader)) != 16 {
		t.Fatalf("span header = %q", rec.Header().Get(DefaultSpanHeader))
	}
}

func TestTraceResponseHeaders_NoSpan(t *testing.T) {
	h := TraceResponseHeaders("X-T", "X-S")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-T") != "" || rec.Header().Get("X-S") != "" {
		t.Fatal("headers set without a span")
	}
}
