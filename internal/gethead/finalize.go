package gethead

import (
	"io"
	"net/http"
	"strconv"

	"github.com/keithlinneman/gethead/internal/router"
)

// Finalize is the onSend step appended to derived HEAD routes. It sets
// the headers a GET of the same route would carry as far as that is known
// without a body, then ends the payload. It never fails.
func Finalize(_ *http.Request, w *router.Reply, p router.Payload) (router.Payload, error) {
	switch {
	case p.Kind() == router.KindNone:
		w.SetHeader("Content-Length", "0")
	case p.Kind() == router.KindStream:
		// length is unknown without reading it all
		w.RemoveHeader("Content-Type")
		go drain(p.Reader())
	case p.Materialized():
		w.SetHeader("Content-Length", strconv.Itoa(p.Len()))
	}
	return router.None(), nil
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
	if c, ok := r.(io.Closer); ok {
		_ = c.Close()
	}
}
