// Package gethead derives a HEAD route for every GET route registered on a
// [router.Router].
//
// The plugin listens for route registrations. For each GET route whose
// full path is not matched by the ignore rules it registers a HEAD copy:
// same path, handler, middlewares and config, with [Finalize] appended as
// the last onSend step. Finalize turns whatever the handler produced into
// HEAD semantics: a content-length for in-memory payloads, "0" for absent
// ones, and for streams no length and no content type (the stream is
// drained and discarded instead of being buffered to measure it).
package gethead
