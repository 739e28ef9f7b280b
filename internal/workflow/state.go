package workflow

// State is a node of the conversation state machine.
type State string

const (
	StateExtractIntent     State = "EXTRACT_INTENT"
	StateReportCondition   State = "REPORT_CONDITION"
	StateCheckCondition    State = "CHECK_CONDITION"
	StateRequestTime       State = "REQUEST_TIME_CLARIFICATION"
	StateRequestGeneral    State = "REQUEST_GENERAL_CLARIFICATION"
	StateConfirmSchedule   State = "CONFIRM_SCHEDULE"
	StateResumeTime        State = "RESUME_TIME"
	StateResumeDecision    State = "RESUME_DECISION"
	StateRequestReschedule State = "REQUEST_RESCHEDULE"
	StateCancelled         State = "CANCELLED"
)

// Transitions lists the legal successors of each non-terminal state. A state
// with no entry is terminal: its handler produces the run's Outcome.
var Transitions = map[State][]State{
	StateExtractIntent: {
		StateReportCondition,
		StateCheckCondition,
		StateRequestTime,
		StateRequestGeneral,
	},
	StateCheckCondition: {
		StateConfirmSchedule,
		StateRequestGeneral,
	},
	StateResumeTime: {
		StateCheckCondition,
		StateRequestTime,
	},
	StateResumeDecision: {
		StateConfirmSchedule,
		StateRequestReschedule,
		StateCancelled,
		StateRequestGeneral,
	},
}

// States returns every state the engine knows, entry states first.
func States() []State {
	return []State{
		StateExtractIntent,
		StateResumeTime,
		StateResumeDecision,
		StateReportCondition,
		StateCheckCondition,
		StateRequestTime,
		StateRequestGeneral,
		StateConfirmSchedule,
		StateRequestReschedule,
		StateCancelled,
	}
}

func (s State) Terminal() bool {
	return len(Transitions[s]) == 0
}

func CanTransition(from, to State) bool {
	for _, s := range Transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
