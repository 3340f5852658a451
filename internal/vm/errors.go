package vm

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags the fatal failure categories. All are terminal: the dispatch
// loop never recovers from one internally.
type Kind uint8

const (
	KindDivisionByZero Kind = iota
	KindAssertionFailed
	KindOutOfBoundsPc
	KindMemoryExhausted
	KindInstructionLimit
	KindInvalidOpcode
)

func (k Kind) String() string {
	switch k {
	case KindDivisionByZero:
		return "DivisionByZero"
	case KindAssertionFailed:
		return "AssertionFailed"
	case KindOutOfBoundsPc:
		return "OutOfBoundsPc"
	case KindMemoryExhausted:
		return "MemoryExhausted"
	case KindInstructionLimit:
		return "InstructionLimit"
	case KindInvalidOpcode:
		return "InvalidOpcode"
	default:
		return "<unknown>"
	}
}

// Error is a fatal VM failure. It carries enough context (PC, FP, clock,
// a short frame trail) to render a useful diagnostic without needing the
// full memory trace.
type Error struct {
	Kind  Kind
	PC    uint32
	FP    uint32
	Clock uint64
	Msg   string

	frames []string
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s at pc=%d fp=%d clock=%d", e.Kind, e.PC, e.FP, e.Clock)
	if e.Msg != "" {
		fmt.Fprintf(&b, ": %s", e.Msg)
	}
	for _, f := range e.frames {
		fmt.Fprintf(&b, "\n  at %s", f)
	}
	return b.String()
}

// WithFrame appends a call-frame description, innermost first.
func (e *Error) WithFrame(desc string) *Error {
	e.frames = append(e.frames, desc)
	return e
}

// newError constructs a fatal Error of the given kind at the VM's current
// position.
func newError(kind Kind, pc uint32, fp uint32, clock uint64, msg string) *Error {
	return &Error{Kind: kind, PC: pc, FP: fp, Clock: clock, Msg: msg}
}

// ErrDivisionByZero etc. are sentinels callers can match with errors.Is:
// a *Error unwraps to the sentinel of its Kind, since *Error itself
// carries position-dependent state and is never a singleton.
var (
	ErrDivisionByZero   = errors.New("division by zero")
	ErrAssertionFailed  = errors.New("assertion failed")
	ErrOutOfBoundsPc    = errors.New("pc out of bounds")
	ErrMemoryExhausted  = errors.New("memory exhausted")
	ErrInstructionLimit = errors.New("instruction limit exceeded")
	ErrInvalidOpcode    = errors.New("invalid opcode")
)

func (e *Error) Unwrap() error {
	switch e.Kind {
	case KindDivisionByZero:
		return ErrDivisionByZero
	case KindAssertionFailed:
		return ErrAssertionFailed
	case KindOutOfBoundsPc:
		return ErrOutOfBoundsPc
	case KindMemoryExhausted:
		return ErrMemoryExhausted
	case KindInstructionLimit:
		return ErrInstructionLimit
	case KindInvalidOpcode:
		return ErrInvalidOpcode
	default:
		return nil
	}
}

// IsKind reports whether err is a *Error of the given Kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
