// Package ratelimit is per-IP token bucket rate limiting for the public
// listener, with background eviction of idle visitors.
//
// It is in-memory and per-instance. It stops a single address from
// exhausting the server and gives one log line plus a counter per
// offender; distributed floods and bandwidth attacks are left to upstream
// filtering.
package ratelimit
