package domain

// PlannedSearch is one sub-query in an ask strategy
type PlannedSearch struct {
	Term         string
	Instructions string
}

// Strategy is the plan the orchestrator produces before searching: the model's
// reasoning plus an ordered list of sub-queries to run
type Strategy struct {
	Reasoning string
	Searches  []PlannedSearch
}

// StageEventType identifies one kind of ask stage event
type StageEventType string

const (
	StageEventStrategy    StageEventType = "strategy"
	StageEventAnswer      StageEventType = "answer"
	StageEventFinalAnswer StageEventType = "final_answer"
	StageEventComplete    StageEventType = "complete"
	StageEventError       StageEventType = "error"
)

// StageEvent is one entry in the ordered ask event stream. Exactly one of
// Complete or Error terminates a session; Strategy is set only on strategy
// events, Content on answer/final_answer/complete events and Message on errors.
type StageEvent struct {
	Type     StageEventType
	Strategy *Strategy
	Content  string
	Message  string
}

// Terminal reports whether the event ends the stream
func (e StageEvent) Terminal() bool {
	return e.Type == StageEventComplete || e.Type == StageEventError
}
