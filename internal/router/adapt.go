package router

import (
	"bytes"
	"net/http"
)

// FromHTTP adapts a net/http handler. Its output is buffered and handed to
// the pipeline as a bytes payload, so onSend steps see it like any other
// route's response.
func FromHTTP(h http.Handler) HandlerFunc {
	return func(w *Reply, r *http.Request) (any, error) {
		bw := &bufferWriter{header: w.Header()}
		h.ServeHTTP(bw, r)
		if bw.status != 0 {
			w.Code(bw.status)
		}
		if bw.buf.Len() == 0 {
			return nil, nil
		}
		if w.Header().Get("Content-Type") == "" {
			w.SetHeader("Content-Type", http.DetectContentType(bw.buf.Bytes()))
		}
		return Bytes(bw.buf.Bytes()), nil
	}
}

type bufferWriter struct {
	header http.Header
	status int
	buf    bytes.Buffer
}

func (b *bufferWriter) Header() http.Header { return b.header }

func (b *bufferWriter) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.buf.Write(p)
}
