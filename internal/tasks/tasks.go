package tasks

import (
	"strings"
	"time"
)

// Queue identifies one of the four stage queues.
type Queue string

const (
	QueueDownloadObject Queue = "download_object"
	QueueCreateSIP      Queue = "create_sip"
	QueueSubmitSIP      Queue = "submit_sip"
	QueueConfirmSIP     Queue = "confirm_sip"
)

var allQueues = []Queue{
	QueueDownloadObject,
	QueueCreateSIP,
	QueueSubmitSIP,
	QueueConfirmSIP,
}

// AllQueues returns the ordered list of stage queues.
func AllQueues() []Queue {
	cp := make([]Queue, len(allQueues))
	copy(cp, allQueues)
	return cp
}

// ParseQueue converts a string into a known Queue.
func ParseQueue(value string) (Queue, bool) {
	normalized := Queue(strings.ToLower(strings.TrimSpace(value)))
	for _, queue := range allQueues {
		if queue == normalized {
			return queue, true
		}
	}
	return "", false
}

// State is the lifecycle of a task row. Completed tasks are deleted rather
// than kept, so only pending, running, and dead rows exist at rest.
type State string

const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDead    State = "dead"
)

// Task is one unit of queued work referencing an object.
type Task struct {
	ID          int64
	Queue       Queue
	ObjectID    string
	Payload     string
	State       State
	Attempts    int
	MaxAttempts int
	RunAt       time.Time
	LeaseExpiry *time.Time
	ClaimedBy   string
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Spec describes a task to enqueue. Payload is JSON-marshalled.
type Spec struct {
	Queue    Queue
	ObjectID string
	Payload  any
}

// ConfirmPayload carries the preservation outcome a confirm task applies.
type ConfirmPayload struct {
	Outcome string `json:"outcome"`
	Report  string `json:"report,omitempty"`
}

// SIPPayload carries the package identifiers between chained stages.
type SIPPayload struct {
	SIPID     string `json:"sip_id"`
	PackageID int64  `json:"package_id"`
}

// Confirm outcomes, matching the preservation service's terminal verdicts.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)
