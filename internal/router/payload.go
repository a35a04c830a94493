package router

import (
	"encoding/json"
	"io"
	"net/http"
)

const (
	ContentTypeText   = "text/plain; charset=utf-8"
	ContentTypeJSON   = "application/json; charset=utf-8"
	ContentTypeBinary = "application/octet-stream"
)

// Kind tags the shape of a payload queued for transmission.
type Kind uint8

const (
	KindNone Kind = iota
	KindText
	KindBytes
	KindJSON
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindJSON:
		return "json"
	case KindStream:
		return "stream"
	}
	return "unknown"
}

// Payload is what a route produced for one request. The zero value is an
// absent payload.
type Payload struct {
	kind   Kind
	body   []byte
	stream io.Reader
}

func None() Payload { return Payload{} }

func Text(s string) Payload { return Payload{kind: KindText, body: []byte(s)} }

func Bytes(b []byte) Payload { return Payload{kind: KindBytes, body: b} }

// JSON wraps an already encoded document.
func JSON(b []byte) Payload { return Payload{kind: KindJSON, body: b} }

// Stream wraps a pull source. A nil reader is an absent payload.
func Stream(r io.Reader) Payload {
	if r == nil {
		return None()
	}
	return Payload{kind: KindStream, stream: r}
}

func (p Payload) Kind() Kind { return p.kind }

// Materialized reports whether the payload is held in memory with a known size.
func (p Payload) Materialized() bool {
	return p.kind == KindText || p.kind == KindBytes || p.kind == KindJSON
}

// Body returns the wire bytes of a materialized payload, nil otherwise.
func (p Payload) Body() []byte {
	if !p.Materialized() {
		return nil
	}
	return p.body
}

// Len is the exact wire length in bytes of a materialized payload (UTF-8
// bytes for text), 0 for anything else.
func (p Payload) Len() int { return len(p.Body()) }

// Reader returns the source of a stream payload.
func (p Payload) Reader() io.Reader { return p.stream }

// resolve turns a handler's return value into a Payload and sets the
// default content type for it unless the handler already chose one.
func resolve(h http.Header, v any) (Payload, error) {
	var p Payload
	switch x := v.(type) {
	case nil:
		return None(), nil
	case Payload:
		return x, nil
	case string:
		p = Text(x)
	case []byte:
		p = Bytes(x)
	case io.Reader:
		p = Stream(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return None(), err
		}
		p = JSON(b)
	}
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", defaultContentType(p.kind))
	}
	return p, nil
}

func defaultContentType(k Kind) string {
	switch k {
	case KindText:
		return ContentTypeText
	case KindJSON:
		return ContentTypeJSON
	}
	return ContentTypeBinary
}
