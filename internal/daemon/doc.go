// Package daemon composes the stage worker pools, the deferred enqueue
// loop, and the confirmation poller into a single-instance background
// process.
package daemon
