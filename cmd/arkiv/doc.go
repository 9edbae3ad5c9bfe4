// Package main hosts the arkiv CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the administrator operations of the
// preservation workflow: enqueueing eligible objects, restarting rejected
// ones, freezing and unfreezing, running catalog syncs, polling for
// preservation verdicts, and inspecting workflow state. Commands operate
// directly on the shared workflow database; the lock service and the
// conditional status transitions make that safe next to a running daemon.
package main
