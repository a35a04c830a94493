package health

import (
	"context"
	"sync"
	"testing"
)

func check(p Probe) string {
	if err := p.Check(context.Background()); err != nil {
		return err.Error()
	}
	return ""
}

func TestFixed(t *testing.T) {
	tests := []struct {
		name   string
		probe  Probe
		reason string
	}{
		{"ok", Fixed(true, ""), ""},
		{"ok ignores reason", Fixed(true, "ignored"), ""},
		{"fail with reason", Fixed(false, "rules not loaded"), "rules not loaded"},
		{"fail default reason", Fixed(false, ""), "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				if got := check(tt.probe); got != tt.reason {
					t.Fatalf("reason = %q, want %q", got, tt.reason)
				}
			}
		})
	}
}

func TestCheckFunc_PassesContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	var got any
	p := CheckFunc(func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	})
	_ = p.Check(ctx)
	if got != "v" {
		t.Fatal("context not passed to probe")
	}
}

func TestAll(t *testing.T) {
	tests := []struct {
		name   string
		probes []Probe
		reason string
	}{
		{"empty", nil, ""},
		{"all pass", []Probe{Fixed(true, ""), Fixed(true, "")}, ""},
		{"first fails", []Probe{Fixed(false, "first"), Fixed(true, "")}, "first"},
		{"second fails", []Probe{Fixed(true, ""), Fixed(false, "second")}, "second"},
		{"returns first failure", []Probe{Fixed(false, "first"), Fixed(false, "second")}, "first"},
		{"nil skipped", []Probe{nil, Fixed(true, ""), nil}, ""},
		{"nil skipped on failure", []Probe{nil, Fixed(false, "real failure")}, "real failure"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := check(All(tt.probes...)); got != tt.reason {
				t.Fatalf("reason = %q, want %q", got, tt.reason)
			}
		})
	}
}

func TestAll_ShortCircuits(t *testing.T) {
	called := false
	p := All(Fixed(false, "stop here"), CheckFunc(func(context.Context) error {
		called = true
		return nil
	}))
	_ = p.Check(context.Background())
	if called {
		t.Fatal("All should stop at the first failure")
	}
}

func TestShutdownGate(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()

	if got := check(p); got != "" {
		t.Fatalf("new gate should be open, got %q", got)
	}
	g.Set("")
	if got := check(p); got != "draining" {
		t.Fatalf("empty reason = %q, want draining", got)
	}
	g.Set("first")
	g.Set("shutting down")
	if got := check(p); got != "shutting down" {
		t.Fatalf("reason = %q, want the latest", got)
	}
	g.Clear()
	if got := check(p); got != "" {
		t.Fatalf("should be open after Clear, got %q", got)
	}
}

func TestShutdownGate_ConcurrentAccess(t *testing.T) {
	var g ShutdownGate
	p := g.Probe()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); g.Set("draining") }()
		go func() { defer wg.Done(); g.Clear() }()
		go func() { defer wg.Done(); _ = p.Check(context.Background()) }()
	}
	wg.Wait()
}

func TestAll_StartupAndDrainGates(t *testing.T) {
	var startup, drain ShutdownGate
	startup.Set("starting")
	p := All(startup.Probe(), drain.Probe())

	if got := check(p); got != "starting" {
		t.Fatalf("reason = %q", got)
	}
	startup.Clear()
	if got := check(p); got != "" {
		t.Fatalf("should pass, got %q", got)
	}
	drain.Set("draining")
	if got := check(p); got != "draining" {
		t.Fatalf("reason = %q, want drain reason", got)
	}
}
