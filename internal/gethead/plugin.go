package gethead

import (
	"context"
	"net/http"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/gethead/internal/log"
	"github.com/keithlinneman/gethead/internal/router"
)

const (
	Name = "gethead"

	// Host versions with the onRoute and onSend contracts this plugin uses.
	MinHostVersion = "v1.3"
	MaxHostVersion = "v1.4"
)

// Metrics receives plugin counters. Implemented by internal/metrics.
type Metrics interface {
	IncHeadRouteDerived()
	IncHeadRouteIgnored()
	IncHeadResponse(kind string)
}

type nopMetrics struct{}

func (nopMetrics) IncHeadRouteDerived()   {}
func (nopMetrics) IncHeadRouteIgnored()   {}
func (nopMetrics) IncHeadResponse(string) {}

type Options struct {
	// IgnorePaths lists full route paths (prefix included) that get no
	// HEAD route.
	IgnorePaths Rules
	Logger      log.Logger
	Metrics     Metrics
}

type Plugin struct {
	ignore  Rules
	logger  log.Logger
	metrics Metrics
}

func New(opts Options) *Plugin {
	p := &Plugin{
		ignore:  slices.Clone(opts.IgnorePaths),
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if p.logger == nil {
		p.logger = log.Nop()
	}
	if p.metrics == nil {
		p.metrics = nopMetrics{}
	}
	return p
}

func (p *Plugin) Meta() router.PluginMeta {
	return router.PluginMeta{
		Name:           Name,
		MinHostVersion: MinHostVersion,
		MaxHostVersion: MaxHostVersion,
	}
}

// Setup hooks route registration on r. Only routes registered after Setup
// get HEAD twins.
func (p *Plugin) Setup(ctx context.Context, r *router.Router) error {
	r.AddOnRoute(func(rt router.RouteOptions) error {
		return p.onRoute(r, rt)
	})
	p.logger.Info(ctx, "head routes enabled", "ignore_paths", p.ignore.Strings())
	return nil
}

// onRoute returns registration errors from the router as is. Registering
// the same GET twice therefore fails on the second HEAD twin. The hook runs
// before the GET enters the table, so a GET that the router then refuses
// as a duplicate (its first registration predates the plugin) still
// leaves its HEAD twin registered.
func (p *Plugin) onRoute(root *router.Router, rt router.RouteOptions) error {
	if rt.Method != http.MethodGet {
		return nil
	}
	ctx := context.Background()
	if Match(rt.Path, p.ignore) {
		p.metrics.IncHeadRouteIgnored()
		p.logger.Debug(ctx, "head route skipped", "path", rt.Path)
		return nil
	}
	if err := root.Route(Derive(rt, p.finalize)); err != nil {
		return err
	}
	p.metrics.IncHeadRouteDerived()
	p.logger.Debug(ctx, "head route derived", "path", rt.Path)
	return nil
}

func (p *Plugin) finalize(r *http.Request, w *router.Reply, pl router.Payload) (router.Payload, error) {
	kind := pl.Kind().String()
	p.metrics.IncHeadResponse(kind)
	if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
		span.SetAttributes(attribute.String("http.head.payload_kind", kind))
	}
	return Finalize(r, w, pl)
}

// Derive returns the HEAD twin of rt for registration on the root scope.
// Everything but the method and the onSend steps is copied; finalize is
// appended after the existing steps.
func Derive(rt router.RouteOptions, finalize router.OnSendFunc) router.RouteOptions {
	head := rt.Clone()
	head.Method = http.MethodHead
	head.URL = rt.Path
	head.Prefix = ""
	head.OnSend = append(head.OnSend, finalize)
	return head
}
