package dupes

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSourceUnavailable = errors.New("order source unavailable")
	ErrRemediationFailed = errors.New("remediation failed")
	ErrReversalFailed    = errors.New("reversal failed")
	ErrOrderNotFound     = errors.New("order not found")
)

type Step string

const (
	StepFetch  Step = "fetch"
	StepTag    Step = "tag"
	StepNote   Step = "note"
	StepCancel Step = "cancel"
	StepReopen Step = "reopen"
	StepUntag  Step = "untag"
)

// StepError records one failed mutation against one order.
type StepError struct {
	OrderID string
	Step    Step
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("order %s: %s: %v", e.OrderID, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return target == ErrRemediationFailed
}

type ReversalError struct {
	OrderID string
	Steps   []StepError
}

func (e *ReversalError) Error() string {
	parts := make([]string, 0, len(e.Steps))
	for _, step := range e.Steps {
		parts = append(parts, fmt.Sprintf("%s: %v", step.Step, step.Err))
	}
	return fmt.Sprintf("reversal of order %s failed: %s", e.OrderID, strings.Join(parts, "; "))
}

func (e *ReversalError) Is(target error) bool {
	return target == ErrReversalFailed
}

func (e *ReversalError) FailedSteps() []Step {
	out := make([]Step, 0, len(e.Steps))
	for _, step := range e.Steps {
		out = append(out, step.Step)
	}
	return out
}

func sourceUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, op, err)
}
