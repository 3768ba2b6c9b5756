package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Op names the operation that produced an error, e.g.
// "peer.Dial" or "tracker.Connect"
type Op string

func (op Op) String() string {
	return string(op)
}

type Kind int

const (
	Internal Kind = iota + 1
	IO
	Network
	BadArgument
	Parse
	Handshake
	Message
	Timeout
	Verification
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "IO Error"
	case Network:
		return "Network Error"
	case BadArgument:
		return "Bad arguments"
	case Parse:
		return "Parse Error"
	case Handshake:
		return "Handshake Error"
	case Message:
		return "Message Error"
	case Timeout:
		return "Timeout"
	case Verification:
		return "Verification Error"
	default:
		return "Internal Error"
	}
}

type Error struct {
	err  error
	op   Op
	kind Kind
}

func (e Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}

	return fmt.Sprintf("%s: %s", e.op, e.err)
}

func (e Error) Unwrap() error {
	return e.err
}

// Kind returns the error's kind
func (e Error) Kind() Kind {
	return e.kind
}

// Timeout reports whether the error is a Timeout, which
// lets Error satisfy the net.Error style check used by
// callers that only know about timeouts
func (e Error) Timeout() bool {
	return e.kind == Timeout
}

type Errors []error

func (errs Errors) Error() string {
	var sb strings.Builder

	for i, err := range errs {
		sb.WriteString(err.Error())

		if i < len(errs)-1 {
			sb.WriteString(", ")
		}
	}

	return sb.String()
}

func Ops(e error) []string {
	var out []string

	var err Error
	if !errors.As(e, &err) {
		return out
	}

	if err.op != "" {
		out = append(out, string(err.op))
	}
	out = append(out, Ops(err.err)...)

	return out
}

// Wrap annotates e with an Op and/or a Kind. If e already
// carries a Kind it is inherited unless a new one is given.
// Wrap(nil, ...) returns nil.
func Wrap(e error, args ...interface{}) error {
	if e == nil {
		return nil
	}

	err := Error{err: e, kind: KindOf(e)}

	for _, arg := range args {
		switch v := arg.(type) {
		case Kind:
			err.kind = v
		case Op:
			err.op = v
		}
	}

	return err
}

// KindOf returns the Kind of the outermost Error in e's
// chain, or Internal
func KindOf(e error) Kind {
	var err Error
	if errors.As(e, &err) && err.kind != 0 {
		return err.kind
	}

	return Internal
}

// IsKind reports whether e was classified as kind
func IsKind(e error, kind Kind) bool {
	if e == nil {
		return false
	}

	return KindOf(e) == kind
}

func New(e string) error {
	return Error{err: errors.New(e), kind: Internal}
}

func Newf(fmtStr string, args ...interface{}) error {
	return fmt.Errorf(fmtStr, args...)
}

// Is and As re-export the standard library helpers so
// callers need a single errors import
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
