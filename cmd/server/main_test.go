package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/keithlinneman/gethead/internal/cfg"
	"github.com/keithlinneman/gethead/internal/gethead"
	"github.com/keithlinneman/gethead/internal/health"
	"github.com/keithlinneman/gethead/internal/log"
	"github.com/keithlinneman/gethead/internal/router"
)

func newDemoRouter(t *testing.T, ignore gethead.Rules) *router.Router {
	t.Helper()
	r := router.New()
	if err := r.Register(context.Background(), gethead.New(gethead.Options{IgnorePaths: ignore})); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registerDemoRoutes(r); err != nil {
		t.Fatalf("registerDemoRoutes: %v", err)
	}
	return r
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	h.ServeHTTP(rec, req)
	return rec
}

func TestDemoRoutes_Head(t *testing.T) {
	r := newDemoRouter(t, nil)
	tests := []struct {
		path   string
		length string
		ctype  string
	}{
		{"/api/string", "12", router.ContentTypeText},
		{"/api/buffer", "12", router.ContentTypeBinary},
		{"/api/json", "17", router.ContentTypeJSON},
		{"/api/empty", "0", ""},
		{"/api/stream", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			get := do(r, http.MethodGet, tt.path, "")
			if get.Code != http.StatusOK {
				t.Fatalf("GET status = %d", get.Code)
			}
			head := do(r, http.MethodHead, tt.path, "")
			if head.Code != http.StatusOK {
				t.Fatalf("HEAD status = %d", head.Code)
			}
			if head.Body.Len() != 0 {
				t.Fatalf("HEAD body = %q", head.Body.String())
			}
			if got := head.Header().Get("Content-Length"); got != tt.length {
				t.Errorf("Content-Length = %q, want %q", got, tt.length)
			}
			if got := head.Header().Get("Content-Type"); got != tt.ctype {
				t.Errorf("Content-Type = %q, want %q", got, tt.ctype)
			}
		})
	}
}

func TestDemoRoutes_IgnoredAndPost(t *testing.T) {
	r := newDemoRouter(t, gethead.Rules{gethead.Exact("/api/buffer")})

	if rec := do(r, http.MethodHead, "/api/buffer", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("HEAD ignored route = %d", rec.Code)
	}
	if rec := do(r, http.MethodHead, "/api/input", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("HEAD of POST route = %d", rec.Code)
	}

	rec := do(r, http.MethodPost, "/api/input", "abc")
	if rec.Code != http.StatusOK || rec.Body.String() != `{"received":3}` {
		t.Fatalf("POST = %d %q", rec.Code, rec.Body.String())
	}

	rec = do(r, http.MethodPost, "/api/input", strings.Repeat("x", maxInputBytes+1))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("oversized POST = %d", rec.Code)
	}
}

type ruleCounts map[string]int

func (c ruleCounts) SetIgnoreRules(source string, n int) { c[source] = n }

func TestLoadIgnoreRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ignore.yaml")
	doc := "ignorePaths:\n  - /api/json\n  - regex: ^/-/\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	counts := ruleCounts{}
	conf := cfg.App{IgnorePaths: "/api/buffer", IgnorePathsFile: path}
	rules, err := loadIgnoreRules(context.Background(), log.Nop(), conf, counts)
	if err != nil {
		t.Fatalf("loadIgnoreRules: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("rules = %v", rules.Strings())
	}
	for _, p := range []string{"/api/buffer", "/api/json", "/-/ready"} {
		if !gethead.Match(p, rules) {
			t.Errorf("%s should be ignored", p)
		}
	}
	if counts["flag"] != 1 || counts["file:"+path] != 2 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestLoadIgnoreRules_MissingFile(t *testing.T) {
	conf := cfg.App{IgnorePathsFile: filepath.Join(t.TempDir(), "missing.yaml")}
	if _, err := loadIgnoreRules(context.Background(), log.Nop(), conf, ruleCounts{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadiness_StartupThenDrain(t *testing.T) {
	var startup, drain health.ShutdownGate
	startup.Set("starting")
	p := newReadiness(&startup, &drain)
	h := health.ReadyzHandler(p)

	if rec := do(h, http.MethodGet, "/-/ready", ""); rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "starting") {
		t.Fatalf("during startup: %d %q", rec.Code, rec.Body.String())
	}
	startup.Clear()
	if rec := do(h, http.MethodGet, "/-/ready", ""); rec.Code != http.StatusOK {
		t.Fatalf("after startup: %d", rec.Code)
	}
	drain.Set("draining")
	if rec := do(h, http.MethodGet, "/-/ready", ""); rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "draining") {
		t.Fatalf("while draining: %d %q", rec.Code, rec.Body.String())
	}
}
