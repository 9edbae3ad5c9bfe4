// Package syncer pulls object metadata from the source catalog into the
// workflow store: the change feed, attachment metadata digests, and object
// metadata digests. The three jobs are mutually exclusive cluster-wide and
// resume from persisted checkpoints after a crash or deliberate halt.
package syncer
