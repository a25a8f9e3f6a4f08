// Package apperr defines the closed set of failure kinds surfaced by the
// console. Packages wrap their causes in an *Error carrying one Kind so that
// callers can branch with errors.Is(err, apperr.Validation) without parsing
// messages.
package apperr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	Unknown Kind = iota
	ClientNotReady
	WalletNotConnected
	Validation
	BuildFailed
	UserRejectedSignature
	SubmissionFailed
	RefreshFailed
)

var kindNames = map[Kind]string{
	Unknown:               "Unknown",
	ClientNotReady:        "ClientNotReady",
	WalletNotConnected:    "WalletNotConnected",
	Validation:            "ValidationError",
	BuildFailed:           "BuildFailed",
	UserRejectedSignature: "UserRejectedSignature",
	SubmissionFailed:      "SubmissionFailed",
	RefreshFailed:         "RefreshFailed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Error implements error so a bare Kind can be used as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// Error is a failure of one kind raised by operation Op
type Error struct {
	Kind Kind
	Op   string // e.g. "account.refresh"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare Kind target
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New wraps err as kind
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kind error from a formatted cause
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the outermost Kind in err's chain, Unknown if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}
