package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/gethead/internal/log"
	"github.com/keithlinneman/gethead/internal/xerrors"
)

// Version is the host version plugins are checked against.
const Version = "v1.4.2"

// Router is a registration scope. Scopes created with Group share the
// route table, hooks and plugins of the router they came from.
type Router struct {
	c      *core
	prefix string
}

type core struct {
	mu       sync.Mutex
	mux      *chi.Mux
	routes   map[string]RouteOptions
	order    []string
	onRoute  []OnRouteFunc
	plugins  map[string]PluginMeta
	version  string
	logger   log.Logger
	notFound http.HandlerFunc
}

type Option func(*core)

func WithLogger(l log.Logger) Option {
	return func(c *core) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithVersion overrides the host version reported to plugins.
func WithVersion(v string) Option {
	return func(c *core) { c.version = v }
}

// WithNotFound replaces the JSON 404 served for unknown paths and for
// known paths requested with an unregistered method.
func WithNotFound(h http.HandlerFunc) Option {
	return func(c *core) { c.notFound = h }
}

func New(opts ...Option) *Router {
	c := &core{
		mux:     chi.NewMux(),
		routes:  make(map[string]RouteOptions),
		plugins: make(map[string]PluginMeta),
		version: Version,
		logger:  log.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.notFound == nil {
		c.notFound = defaultNotFound
	}
	c.mux.NotFound(c.notFound)
	c.mux.MethodNotAllowed(c.notFound)
	return &Router{c: c}
}

func (r *Router) Prefix() string { return r.prefix }

func (r *Router) Version() string { return r.c.version }

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.c.mux.ServeHTTP(w, req)
}

// AddOnRoute adds a hook run for every route registered from now on, on
// any scope.
func (r *Router) AddOnRoute(fn OnRouteFunc) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.onRoute = append(r.c.onRoute, fn)
}

// Group runs fn with a scope whose routes are prefixed with prefix.
func (r *Router) Group(prefix string, fn func(*Router) error) error {
	if prefix != "" && !strings.HasPrefix(prefix, "/") {
		return xerrors.Wrapf(ErrInvalidRoute, "prefix %q must start with /", prefix)
	}
	return fn(&Router{c: r.c, prefix: joinPath(r.prefix, strings.TrimSuffix(prefix, "/"))})
}

func (r *Router) Get(url string, h HandlerFunc) error {
	return r.Route(RouteOptions{Method: http.MethodGet, URL: url, Handler: h})
}

func (r *Router) Head(url string, h HandlerFunc) error {
	return r.Route(RouteOptions{Method: http.MethodHead, URL: url, Handler: h})
}

func (r *Router) Post(url string, h HandlerFunc) error {
	return r.Route(RouteOptions{Method: http.MethodPost, URL: url, Handler: h})
}

func (r *Router) Put(url string, h HandlerFunc) error {
	return r.Route(RouteOptions{Method: http.MethodPut, URL: url, Handler: h})
}

func (r *Router) Patch(url string, h HandlerFunc) error {
	return r.Route(RouteOptions{Method: http.MethodPatch, URL: url, Handler: h})
}

func (r *Router) Delete(url string, h HandlerFunc) error {
	return r.Route(RouteOptions{Method: http.MethodDelete, URL: url, Handler: h})
}

// Route registers opts on this scope. Hooks run first, in the order they
// were added, each with its own copy of the descriptor; a hook may itself
// register routes. A method+path pair can only be registered once.
func (r *Router) Route(opts RouteOptions) error {
	rt := opts.Clone()
	rt.Method = strings.ToUpper(rt.Method)
	rt.Prefix = r.prefix
	rt.Path = joinPath(r.prefix, rt.URL)
	if err := validate(rt); err != nil {
		return err
	}

	c := r.c
	c.mu.Lock()
	hooks := slices.Clone(c.onRoute)
	c.mu.Unlock()

	for _, hook := range hooks {
		if err := hook(rt.Clone()); err != nil {
			return xerrors.Wrapf(err, "onRoute %s", rt.key())
		}
	}
	return c.add(rt)
}

func validate(rt RouteOptions) error {
	switch {
	case rt.Handler == nil:
		return xerrors.Wrapf(ErrInvalidRoute, "%s: missing handler", rt.key())
	case !validMethod(rt.Method):
		return xerrors.Wrapf(ErrInvalidRoute, "unsupported method %q", rt.Method)
	case !strings.HasPrefix(rt.Path, "/"):
		return xerrors.Wrapf(ErrInvalidRoute, "path %q must start with /", rt.Path)
	}
	return nil
}

func (c *core) add(rt RouteOptions) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := rt.key()
	if _, ok := c.routes[key]; ok {
		return xerrors.Wrapf(ErrRouteExists, "%s", key)
	}

	// chi panics on malformed patterns
	defer func() {
		if p := recover(); p != nil {
			err = xerrors.Wrapf(ErrInvalidRoute, "%s: %v", key, p)
		}
	}()
	c.mux.With(rt.Middlewares...).Method(rt.Method, rt.Path, c.serve(rt))

	c.routes[key] = rt
	c.order = append(c.order, key)
	c.logger.Debug(context.Background(), "route registered", "method", rt.Method, "path", rt.Path)
	return nil
}

// Routes returns the registered routes in registration order.
func (r *Router) Routes() []RouteOptions {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	out := make([]RouteOptions, 0, len(r.c.order))
	for _, k := range r.c.order {
		out = append(out, r.c.routes[k].Clone())
	}
	return out
}

func (r *Router) HasRoute(method, path string) bool {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	_, ok := r.c.routes[strings.ToUpper(method)+" "+path]
	return ok
}

// serve builds the chi handler for rt: handler, payload resolution, the
// onSend steps in order, then transmission.
func (c *core) serve(rt RouteOptions) http.HandlerFunc {
	steps := slices.Clone(rt.OnSend)
	handler := rt.Handler
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method == http.MethodHead {
			w = headWriter{w}
		}
		rep := NewReply(w)
		p := c.handle(rep, req, handler)
		for _, step := range steps {
			next, err := step(req, rep, p)
			if err != nil {
				p = c.errorPayload(rep, req, err)
				break
			}
			p = next
		}
		if err := rep.send(p); err != nil {
			ctx := req.Context()
			log.FromContext(ctx).Warn(ctx, "response write failed", "err", err, "http.route", rt.Path)
		}
	}
}

func (c *core) handle(rep *Reply, req *http.Request, h HandlerFunc) Payload {
	v, err := h(rep, req)
	if err == nil {
		var p Payload
		if p, err = resolve(rep.Header(), v); err == nil {
			return p
		}
		err = xerrors.Wrap(err, "encode response")
	}
	return c.errorPayload(rep, req, err)
}

// errorPayload turns err into the JSON error document. Messages of 5xx
// errors stay in the logs.
func (c *core) errorPayload(rep *Reply, req *http.Request, err error) Payload {
	status := http.StatusInternalServerError
	var sc StatusCoder
	if errors.As(err, &sc) && sc.StatusCode() >= 400 {
		status = sc.StatusCode()
	}
	msg := http.StatusText(status)
	if status < 500 {
		msg = err.Error()
	} else {
		ctx := req.Context()
		log.FromContext(ctx).Error(ctx, err, "route failed", "http.request.method", req.Method, "url.path", req.URL.Path)
	}

	rep.Code(status)
	rep.SetHeader("Content-Type", ContentTypeJSON)
	rep.RemoveHeader("Content-Length")
	return JSON(errorBody(status, msg))
}

func errorBody(status int, msg string) []byte {
	b, _ := json.Marshal(struct {
		StatusCode int    `json:"statusCode"`
		Error      string `json:"error"`
		Message    string `json:"message"`
	}{status, http.StatusText(status), msg})
	return b
}

func defaultNotFound(w http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodHead {
		w = headWriter{w}
	}
	rep := NewReply(w)
	rep.Code(http.StatusNotFound).SetHeader("Content-Type", ContentTypeJSON)
	_ = rep.send(JSON(errorBody(http.StatusNotFound, fmt.Sprintf("Route %s:%s not found", req.Method, req.URL.Path))))
}
