package domain

// Step enumerates the states of the try-on workflow.
type Step string

const (
	StepAwaitingPerson   Step = "awaiting_person"
	StepAwaitingClothing Step = "awaiting_clothing"
	StepSynthesizing     Step = "synthesizing"
	StepShowingResult    Step = "showing_result"
)

// Session is a read-only snapshot of one user's try-on attempt. Image fields
// are nil when absent.
type Session struct {
	ID         string
	Step       Step
	Person     *Image
	Clothing   *Image
	Result     *Image
	LastError  string
	Generation uint64
}

// HasError reports whether the last synthesis attempt failed.
func (s Session) HasError() bool { return s.LastError != "" }
