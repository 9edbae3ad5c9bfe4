// Package worker pulls tasks from the stage queues and drives them through
// the pipeline. One pool per queue; each worker claims a leased task, takes
// the per-object lock, applies the stage, then completes, retries,
// releases, or dead-letters the task according to the failure
// classification.
package worker
