package router

import (
	"io"
	"net/http"
	"strconv"
)

// Reply is the outgoing response while the pipeline runs. Header changes
// go straight to the underlying writer's header map; nothing is written to
// the connection until the pipeline ends.
type Reply struct {
	w      http.ResponseWriter
	status int
}

// NewReply starts a reply with status 200 on w.
func NewReply(w http.ResponseWriter) *Reply {
	return &Reply{w: w, status: http.StatusOK}
}

func (r *Reply) Header() http.Header { return r.w.Header() }

func (r *Reply) SetHeader(key, value string) *Reply {
	r.w.Header().Set(key, value)
	return r
}

func (r *Reply) RemoveHeader(key string) *Reply {
	r.w.Header().Del(key)
	return r
}

// Code sets the status code sent when the pipeline ends.
func (r *Reply) Code(status int) *Reply {
	r.status = status
	return r
}

func (r *Reply) Status() int { return r.status }

// send writes status, headers and body for p. An absent payload writes no
// body and leaves content-length to whatever the pipeline set.
func (r *Reply) send(p Payload) error {
	switch p.Kind() {
	case KindNone:
		r.w.WriteHeader(r.status)
		return nil
	case KindStream:
		src := p.Reader()
		if c, ok := src.(io.Closer); ok {
			defer c.Close()
		}
		r.w.WriteHeader(r.status)
		_, err := io.Copy(r.w, src)
		return err
	default:
		if r.w.Header().Get("Content-Length") == "" {
			r.w.Header().Set("Content-Length", strconv.Itoa(p.Len()))
		}
		r.w.WriteHeader(r.status)
		_, err := r.w.Write(p.Body())
		return err
	}
}

// headWriter drops body bytes so HEAD responses never carry a body, even
// when the recorder or proxy in front of us would not drop them.
type headWriter struct {
	http.ResponseWriter
}

func (h headWriter) Write(b []byte) (int, error) { return len(b), nil }
