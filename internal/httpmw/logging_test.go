package httpmw

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/keithlinneman/gethead/internal/log"
	"github.com/keithlinneman/gethead/internal/router"
)

type capturedLog struct {
	msg    string
	fields []any
}

// flatLogger captures With and Info calls; With returns the same logger.
type flatLogger struct {
	mu    sync.Mutex
	infos []capturedLog
	withs [][]any
}

func (l *flatLogger) With(kv ...any) log.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.withs = append(l.withs, kv)
	return l
}

func (l *flatLogger) Info(_ context.Context, msg string, kv ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, capturedLog{msg: msg, fields: kv})
}

func (l *flatLogger) Debug(context.Context, string, ...any)        {}
func (l *flatLogger) Warn(context.Context, string, ...any)         {}
func (l *flatLogger) Error(context.Context, error, string, ...any) {}
func (l *flatLogger) Sync() error                                  { return nil }

func fieldValue(fields []any, key string) any {
	for i := 0; i+1 < len(fields); i += 2 {
		if fields[i] == key {
			return fields[i+1]
		}
	}
	return nil
}

func withValue(withs [][]any, key string) any {
	for _, kv := range withs {
		if v := fieldValue(kv, key); v != nil {
			return v
		}
	}
	return nil
}

func newLoggedRouter(t *testing.T, l log.Logger, skip ...string) http.Handler {
	t.Helper()
	rt := router.New()
	_ = rt.Get("/api/string", func(*router.Reply, *http.Request) (any, error) { return "hello world!", nil })
	_ = rt.Head("/api/string", func(w *router.Reply, _ *http.Request) (any, error) {
		w.SetHeader("Content-Length", "12")
		return nil, nil
	})
	_ = rt.Get("/-/ready", func(*router.Reply, *http.Request) (any, error) { return "ready\n", nil })
	return Chain(rt, RequestID(""), ClientIP, WithRouteContext, WithLogger(l), AccessLog(skip...))
}

func TestAccessLog_Fields(t *testing.T) {
	l := &flatLogger{}
	h := newLoggedRouter(t, l)

	req := httptest.NewRequest(http.MethodGet, "/api/string?q=secret", nil)
	req.RemoteAddr = "203.0.113.9:4321"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(l.infos) != 1 || l.infos[0].msg != "http request" {
		t.Fatalf("infos = %+v", l.infos)
	}
	f := l.infos[0].fields
	if fieldValue(f, "http.response.status_code") != 200 {
		t.Fatalf("status = %v", fieldValue(f, "http.response.status_code"))
	}
	if fieldValue(f, "http.response.body.size") != int64(12) {
		t.Fatalf("body size = %v", fieldValue(f, "http.response.body.size"))
	}
	if fieldValue(f, "http.route") != "/api/string" {
		t.Fatalf("route = %v", fieldValue(f, "http.route"))
	}
	if fieldValue(f, "http.response.header.content-length") != nil {
		t.Fatal("GET records must not carry the HEAD content-length field")
	}

	if withValue(l.withs, "client.address") != "203.0.113.9" {
		t.Fatalf("client = %v", withValue(l.withs, "client.address"))
	}
	if id, _ := withValue(l.withs, "request_id").(string); id == "" {
		t.Fatal("request id missing")
	}
	for _, kv := range l.withs {
		for _, v := range kv {
			if s, ok := v.(string); ok && s == "q=secret" {
				t.Fatal("query string leaked into logs")
			}
		}
	}
}

func TestAccessLog_Head(t *testing.T) {
	l := &flatLogger{}
	h := newLoggedRouter(t, l)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodHead, "/api/string", nil))

	f := l.infos[0].fields
	if fieldValue(f, "http.response.body.size") != int64(0) {
		t.Fatalf("HEAD body size = %v", fieldValue(f, "http.response.body.size"))
	}
	if fieldValue(f, "http.response.header.content-length") != "12" {
		t.Fatalf("HEAD content-length = %v", fieldValue(f, "http.response.header.content-length"))
	}
}

func TestAccessLog_UnmatchedAndSkip(t *testing.T) {
	l := &flatLogger{}
	h := newLoggedRouter(t, l, "/-/ready")

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/-/ready", nil))
	if len(l.infos) != 0 {
		t.Fatalf("probe path logged: %+v", l.infos)
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-login.php", nil))
	f := l.infos[0].fields
	if fieldValue(f, "http.route") != "unmatched" || fieldValue(f, "http.response.status_code") != 404 {
		t.Fatalf("fields = %v", f)
	}
}

func TestAccessLog_NoLoggerInContext(t *testing.T) {
	h := AccessLog()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("x"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, ctx: context.Background()}

	if rw.statusCode() != http.StatusOK {
		t.Fatalf("default status = %d", rw.statusCode())
	}
	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusOK)
	n, _ := rw.Write([]byte("abc"))
	if rw.statusCode() != http.StatusNotFound || rw.bytes != int64(n) {
		t.Fatalf("status=%d bytes=%d", rw.statusCode(), rw.bytes)
	}
	if rw.Unwrap() != rec {
		t.Fatal("Unwrap should expose the wrapped writer")
	}
	rw.Flush()
	if !rec.Flushed {
		t.Fatal("Flush not forwarded")
	}
	if _, _, err := rw.Hijack(); err == nil {
		t.Fatal("recorder cannot hijack, expected error")
	}
}

func TestResponseWriter_WriteSpan(t *testing.T) {
	sr, tp := newRecorder(t)
	h := withSpan(tp, AccessLog()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hello"))
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var found bool
	for _, s := range sr.Ended() {
		if s.Name() == "response.write" {
			found = true
		}
	}
	if !found {
		t.Fatal("response.write span not recorded")
	}
}

func TestSchemeFromRequest(t *testing.T) {
	tests := []struct {
		name  string
		proto string
		tls   bool
		want  string
	}{
		{"default", "", false, "http"},
		{"tls", "", true, "https"},
		{"forwarded", "HTTPS, http", false, "https"},
		{"forwarded junk ignored", "gopher", false, "http"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.proto != "" {
				r.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			if tt.tls {
				r.TLS = &tls.ConnectionState{}
			}
			if got := schemeFromRequest(r); got != tt.want {
				t.Fatalf("scheme = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScope(t *testing.T) {
	l := &flatLogger{}
	ctx := log.WithContext(context.Background(), l)
	h := Scope("api")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))

	if withValue(l.withs, "handler") != "api" {
		t.Fatalf("withs = %v", l.withs)
	}
}
