package rcc

import "strconv"

// Fault is the kind of failure of a clock tree bring-up.
type Fault uint8

// Clock faults. All of them are fatal to the bring-up sequence.
const (
	_                    Fault = iota // non-initialized fault
	ErrInvalidPlan                    // invalid clock plan
	ErrOscillatorTimeout              // external oscillator not ready
	ErrPLLTimeout                     // PLL did not lock
	ErrSwitchFailed                   // system clock switch to PLL failed
)

func (f Fault) Error() string {
	switch f {
	case ErrInvalidPlan:
		return "invalid clock plan"
	case ErrOscillatorTimeout:
		return "external oscillator not ready"
	case ErrPLLTimeout:
		return "PLL did not lock"
	case ErrSwitchFailed:
		return "system clock switch to PLL failed"
	}
	return "rcc.Fault(" + strconv.Itoa(int(f)) + ")"
}

// Error reports the state in which the clock sequence failed.
type Error struct {
	State State
	Err   error
}

func (e *Error) Error() string {
	return "rcc: " + e.State.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
