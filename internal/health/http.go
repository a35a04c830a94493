package health

import (
	"net/http"

	"github.com/keithlinneman/gethead/internal/router"
)

const (
	LivenessPath  = "/-/healthy"
	ReadinessPath = "/-/ready"
)

// HealthzHandler answers 200 "ok" while p passes and 503 with the reason
// otherwise. A nil probe always passes.
func HealthzHandler(p Probe) http.HandlerFunc { return probeHandler(p, "ok\n") }

// ReadyzHandler is HealthzHandler with a "ready" body.
func ReadyzHandler(p Probe) http.HandlerFunc { return probeHandler(p, "ready\n") }

func probeHandler(p Probe, okBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		if p != nil {
			if err := p.Check(r.Context()); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", router.ContentTypeText)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(okBody))
	}
}

// Register adds the liveness and readiness GET routes to r.
func Register(r *router.Router, liveness, readiness Probe) error {
	if err := r.Get(LivenessPath, router.FromHTTP(HealthzHandler(liveness))); err != nil {
		return err
	}
	return r.Get(ReadinessPath, router.FromHTTP(ReadyzHandler(readiness)))
}
