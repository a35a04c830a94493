package router

import (
	"errors"
	"maps"
	"net/http"
	"slices"
	"strings"
)

var (
	ErrRouteExists      = errors.New("route already registered")
	ErrInvalidRoute     = errors.New("invalid route")
	ErrIncompatibleHost = errors.New("plugin does not support this host version")
	ErrPluginRegistered = errors.New("plugin already registered")
)

// HandlerFunc produces the value sent for a request. See the package doc
// for how the value is turned into a payload.
type HandlerFunc func(w *Reply, r *http.Request) (any, error)

// OnSendFunc is one step of a route's response pipeline. It returns the
// payload the next step (or the transmitter) sees.
type OnSendFunc func(r *http.Request, w *Reply, p Payload) (Payload, error)

// OnRouteFunc observes a route about to be registered. Returning an error
// aborts that registration.
type OnRouteFunc func(rt RouteOptions) error

// RouteOptions describes one route. Prefix and Path are filled in by the
// router from the scope the route is registered on.
type RouteOptions struct {
	Method string
	// URL is the path as passed to the registering scope.
	URL    string
	Prefix string
	// Path is Prefix joined with URL, the pattern chi matches on.
	Path        string
	Handler     HandlerFunc
	OnSend      []OnSendFunc
	Middlewares []func(http.Handler) http.Handler
	Name        string
	Config      map[string]any
}

// Clone returns a copy whose slices and config map are not shared with rt.
func (rt RouteOptions) Clone() RouteOptions {
	out := rt
	out.OnSend = slices.Clone(rt.OnSend)
	out.Middlewares = slices.Clone(rt.Middlewares)
	out.Config = maps.Clone(rt.Config)
	return out
}

func (rt RouteOptions) key() string { return rt.Method + " " + rt.Path }

// StatusCoder lets handler errors pick the response status.
type StatusCoder interface {
	StatusCode() int
}

// HTTPError is an error with a status code and a client-safe message.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string   { return e.Message }
func (e *HTTPError) StatusCode() int { return e.Status }

func Error(status int, msg string) error { return &HTTPError{Status: status, Message: msg} }

var methods = []string{
	http.MethodConnect, http.MethodDelete, http.MethodGet, http.MethodHead,
	http.MethodOptions, http.MethodPatch, http.MethodPost, http.MethodPut, http.MethodTrace,
}

func validMethod(m string) bool { return slices.Contains(methods, m) }

func joinPath(prefix, url string) string {
	if prefix == "" {
		return url
	}
	if url == "/" || url == "" {
		return prefix
	}
	return strings.TrimSuffix(prefix, "/") + url
}
