// Package router is the route host the gethead plugin plugs into.
//
// Routes live in a chi mux. On top of it the host adds the two contracts
// chi does not have:
//
//   - onRoute hooks, called synchronously with a copy of every route
//     descriptor before the route enters the table
//   - an onSend pipeline per route, run after the handler and before any
//     byte is written, that can rewrite headers and replace the payload
//
// Handlers return a value instead of writing to the connection. The host
// resolves that value once into a [Payload] (none, text, bytes, json or
// stream) so pipeline steps never have to probe types themselves.
//
// Plugins declare the host versions they were built against and are
// refused outside that window.
package router
