// Package pipeline is the object state machine. Each stage handler
// validates its precondition with a conditional status update, performs the
// stage work against the external collaborators, and returns the task to
// chain next. Administrator operations (reenqueue, freeze, unfreeze) go
// through the same store primitives, so no surface can bypass the
// transition rules.
package pipeline
