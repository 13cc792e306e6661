package orchestrator

import (
	"errors"
	"fmt"
)

// Step names a stage of the hedge pipeline.
type Step string

// Step constants
const (
	StepLoad      Step = "load"
	StepGenerate  Step = "generate"
	StepJournal   Step = "journal"
	StepQuote     Step = "quote"
	StepBuild     Step = "build"
	StepSign      Step = "sign"
	StepBroadcast Step = "broadcast"
	StepRecord    Step = "record"
	StepStatus    Step = "status"
)

// ErrStillSettling is returned when a journaled broadcast has neither
// finalized nor failed, so the order can be neither reused nor retried.
var ErrStillSettling = errors.New("journaled broadcast still settling")

// StepError is a pipeline failure for one order. Err keeps the typed cause.
type StepError struct {
	OrderID string // empty for ad-hoc swaps
	Step    Step
	Err     error
}

func (e *StepError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("swap: %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("order %s: %s: %v", e.OrderID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
