// Package tasks implements the durable work queues feeding the pipeline:
// one queue per stage, persisted in the shared SQLite database.
//
// Claims are leased: a worker that crashes mid-task loses its lease and the
// task becomes claimable again, with the pipeline's precondition checks
// guarding against the duplicate execution that redelivery can cause. A
// partial unique index keeps at most one active task per object across all
// four queues. Failed tasks retry with exponential backoff until their
// attempt budget runs out, then land in the dead-letter state with the
// recorded error.
package tasks
