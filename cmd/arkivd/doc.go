// Command arkivd runs the preservation workflow daemon: worker pools for
// the four stage queues, the deferred enqueue loop, and the confirmation
// poller, guarded by a per-data-directory instance lock.
package main
