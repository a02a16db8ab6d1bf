package orchestrator

import "fmt"

// Stage names a step of a run.
type Stage string

const (
	StageSetup     Stage = "setup"
	StageTransmit  Stage = "transmit"
	StageCollect   Stage = "collect"
	StageResponses Stage = "assert-responses"
	StageStorage   Stage = "assert-storage"
	StageReport    Stage = "report"
)

// BailOutError is a fatal failure. The run stops at Stage and the TAP
// stream ends with a "Bail out!" line.
type BailOutError struct {
	Stage Stage
	Err   error
}

func (e *BailOutError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *BailOutError) Unwrap() error { return e.Err }

func bail(stage Stage, err error) error {
	return &BailOutError{Stage: stage, Err: err}
}
