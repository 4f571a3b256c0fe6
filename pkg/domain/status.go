package domain

// Status is the lifecycle state of a conversation.
type Status string

const (
	// StatusStarted indicates the conversation was registered but no turn has run yet.
	StatusStarted Status = "started"
	// StatusWorking indicates the loop is executing turns. Re-entered once per turn.
	StatusWorking Status = "working"
	// StatusCancelRequested indicates a caller asked for cancellation but the
	// loop has not yet observed it.
	StatusCancelRequested Status = "cancel_requested"

	// Terminal statuses.
	StatusTaskComplete    Status = "task_complete"
	StatusMaxTurnsReached Status = "max_turns_reached"
	StatusAgentFinished   Status = "agent_finished"
	StatusCancelled       Status = "cancelled"
	StatusError           Status = "error"
)

// Terminal reports whether the status is one of the four terminal states
// (plus error). A terminal conversation is never mutated again by the loop.
func (s Status) Terminal() bool {
	switch s {
	case StatusTaskComplete, StatusMaxTurnsReached, StatusAgentFinished, StatusCancelled, StatusError:
		return true
	}
	return false
}

// Reason is the terminal reason returned to the caller when a conversation ends.
type Reason string

const (
	ReasonTaskComplete    Reason = "task_complete"
	ReasonMaxTurnsReached Reason = "max_turns_reached"
	ReasonAgentFinished   Reason = "agent_finished"
	ReasonCancelled       Reason = "cancelled"
	ReasonError           Reason = "error"
)

// Status maps a terminal reason onto the corresponding conversation status.
func (r Reason) Status() Status {
	switch r {
	case ReasonTaskComplete:
		return StatusTaskComplete
	case ReasonMaxTurnsReached:
		return StatusMaxTurnsReached
	case ReasonAgentFinished:
		return StatusAgentFinished
	case ReasonCancelled:
		return StatusCancelled
	default:
		return StatusError
	}
}

// Describe returns a human-readable summary suitable for direct display.
func (r Reason) Describe() string {
	switch r {
	case ReasonTaskComplete:
		return "Agent reported the goal as achieved."
	case ReasonMaxTurnsReached:
		return "Maximum turn count reached before the goal was achieved."
	case ReasonAgentFinished:
		return "Agent stopped without an explicit completion signal."
	case ReasonCancelled:
		return "Conversation cancelled by the caller."
	case ReasonError:
		return "Conversation terminated by an error."
	}
	return string(r)
}
