package httpserver

import (
	"net/http"

	"github.com/keithlinneman/gethead/internal/health"
	"github.com/keithlinneman/gethead/internal/httpmw"
	"github.com/keithlinneman/gethead/internal/log"
	"github.com/keithlinneman/gethead/internal/router"
)

type Options struct {
	Logger log.Logger
	Port   int

	// Router serves every route. Plugins that derive routes from onRoute
	// hooks must be registered before NewHandler adds the health routes.
	Router *router.Router

	Health    health.Probe
	Readiness health.Probe

	UseRecoverMW bool
	// OnPanic runs for every recovered panic, e.g. to count it.
	OnPanic func()

	MetricsMW   func(http.Handler) http.Handler
	RateLimitMW func(http.Handler) http.Handler

	ClientIPOpts httpmw.ClientIPOptions

	// Compress gzips text and JSON responses for clients that accept it.
	// HEAD is never compressed and keeps the identity Content-Length.
	Compress bool
}
