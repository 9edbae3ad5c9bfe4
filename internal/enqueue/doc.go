// Package enqueue selects objects due for preservation and queues their
// download tasks, either on demand or from a background loop gated by a
// stored toggle.
package enqueue
