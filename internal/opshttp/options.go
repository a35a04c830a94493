package opshttp

import (
	"net/http"

	"github.com/keithlinneman/gethead/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	UseRecoverMW bool
	// OnPanic runs for every recovered panic, e.g. to count it.
	OnPanic func()
}
