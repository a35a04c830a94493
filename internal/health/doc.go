// Package health provides composable probes and the liveness and readiness
// endpoints built on them.
//
// Probes combine with [All]; [Fixed] is static and [CheckFunc] adapts a
// plain function. A [ShutdownGate] fails readiness while it is set: during
// startup until the listeners are up, and while the server drains so load
// balancers stop routing to it before in-flight requests finish.
//
// [Register] mounts the endpoints on a router; with the gethead plugin
// installed they answer HEAD as well, which is what most load balancer
// health checks send.
package health
