// Package poller watches packages submitted to the preservation service
// and queues confirm tasks once a verdict arrives.
package poller
