// Package httpmw provides the HTTP middleware wrapped around the route
// host.
//
// httpserver.NewHandler composes them outermost first: recover, security
// headers, request id, client ip, rate limiting, OTel tracing, trace
// response headers, route annotation, metrics, logger injection, access
// log, then the router.
//
// Query strings, user agents and other client supplied headers stay out of
// the logs.
package httpmw
