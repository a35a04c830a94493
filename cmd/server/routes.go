package main

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/keithlinneman/gethead/internal/httpmw"
	"github.com/keithlinneman/gethead/internal/router"
)

const maxInputBytes = 1 << 20

// registerDemoRoutes adds one GET route per payload kind plus a POST that
// never gets a HEAD twin.
func registerDemoRoutes(r *router.Router) error {
	return r.Group("/api", func(api *router.Router) error {
		routes := []struct {
			url string
			h   router.HandlerFunc
		}{
			{"/string", func(*router.Reply, *http.Request) (any, error) {
				return "hello, world", nil
			}},
			{"/buffer", func(*router.Reply, *http.Request) (any, error) {
				return []byte("hello, world"), nil
			}},
			{"/stream", func(w *router.Reply, _ *http.Request) (any, error) {
				w.SetHeader("Content-Type", router.ContentTypeText)
				return strings.NewReader("hello, world"), nil
			}},
			{"/json", func(*router.Reply, *http.Request) (any, error) {
				return map[string]string{"hello": "world"}, nil
			}},
			{"/empty", func(*router.Reply, *http.Request) (any, error) {
				return nil, nil
			}},
		}
		for _, rt := range routes {
			if err := api.Get(rt.url, rt.h); err != nil {
				return err
			}
		}

		return api.Route(router.RouteOptions{
			Method:      http.MethodPost,
			URL:         "/input",
			Handler:     echoLength,
			Middlewares: []func(http.Handler) http.Handler{httpmw.MaxBody(maxInputBytes)},
		})
	})
}

func echoLength(_ *router.Reply, r *http.Request) (any, error) {
	n, err := io.Copy(io.Discard, r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, router.Error(http.StatusRequestEntityTooLarge, "request body too large")
		}
		return nil, router.Error(http.StatusBadRequest, "read request body")
	}
	return map[string]int64{"received": n}, nil
}
