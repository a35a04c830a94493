package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/keithlinneman/gethead/internal/health"
	"github.com/keithlinneman/gethead/internal/httpmw"
	"github.com/keithlinneman/gethead/internal/log"
	"github.com/keithlinneman/gethead/internal/xerrors"
)

// Server timeout defaults, shared with opshttp.
const (
	DefaultPort              = 8080
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20
	shutdownTimeout          = 5 * time.Second
)

var probePaths = []string{health.LivenessPath, health.ReadinessPath}

func isProbePath(p string) bool {
	return p == health.LivenessPath || p == health.ReadinessPath
}

// NewHandler registers the health routes on opts.Router and wraps it in
// the middleware stack, outermost first:
//
//	security headers, recover, request id, client ip, rate limit,
//	otel, trace headers, route annotation, metrics, logger, access log,
//	compression, router
func NewHandler(opts *Options) (http.Handler, error) {
	if opts.Router == nil {
		return nil, xerrors.New("httpserver: nil router")
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if err := health.Register(opts.Router, opts.Health, opts.Readiness); err != nil {
		return nil, xerrors.Wrap(err, "register health routes")
	}

	var compress func(http.Handler) http.Handler
	if opts.Compress {
		compress = skipHead(middleware.Compress(5, "text/plain", "application/json"))
	}
	var recoverMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(opts.Logger, opts.OnPanic)
	}

	traced := otelhttp.NewMiddleware("http.server",
		otelhttp.WithFilter(func(r *http.Request) bool { return !isProbePath(r.URL.Path) }),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute renames matched requests to their pattern
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(*http.Request) bool { return true }),
	)

	return httpmw.Chain(opts.Router,
		httpmw.SecurityHeaders,
		recoverMW,
		httpmw.RequestID(httpmw.DefaultRequestIDHeader),
		httpmw.ClientIPWithOptions(opts.ClientIPOpts),
		opts.RateLimitMW,
		traced,
		httpmw.TraceResponseHeaders(httpmw.DefaultTraceHeader, httpmw.DefaultSpanHeader),
		httpmw.AnnotateHTTPRoute,
		opts.MetricsMW,
		httpmw.WithLogger(opts.Logger),
		httpmw.AccessLog(probePaths...),
		compress,
	), nil
}

// skipHead leaves HEAD responses to next untouched. The compressor only
// sees the empty HEAD body and would frame it as a gzip stream, so HEAD
// keeps the identity Content-Length instead.
func skipHead(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start listens on opts.Port and serves NewHandler in the background. The
// returned stop drains in-flight requests and is safe to call repeatedly.
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	handler, err := NewHandler(opts)
	if err != nil {
		return nil, err
	}
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	addr := fmt.Sprintf(":%d", port)
	srv := NewServer(addr, handler)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "listen %s", addr)
	}
	L := opts.Logger

	go func() {
		L.Info(ctx, "http server listening", "addr", addr, "routes", len(opts.Router.Routes()))
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			L.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, shutdownTimeout)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
