package election

import (
	"github.com/pkg/errors"
)

// Kind names a class of rejection so callers can react, e.g. re-authorize
// versus wait for the next phase.
type Kind string

const (
	KindWrongPhase         Kind = "WrongPhase"
	KindInvalidSignature   Kind = "InvalidSignature"
	KindAlreadyRegistered  Kind = "AlreadyRegistered"
	KindAlreadyCommitted   Kind = "AlreadyCommitted"
	KindCommitmentMismatch Kind = "CommitmentMismatch"
	KindUnknownCandidate   Kind = "UnknownCandidate"
	KindNotRegistered      Kind = "NotRegistered"
	KindTooEarly           Kind = "TooEarly"
	KindInvalidWindow      Kind = "InvalidWindow"
	KindUnauthorized       Kind = "Unauthorized"
	KindInvalidCandidate   Kind = "InvalidCandidate"
	KindNotCommitted       Kind = "NotCommitted"
	KindAlreadyTallied     Kind = "AlreadyTallied"
	KindAlreadyAnchored    Kind = "AlreadyAnchored"
)

// Error is a rejection of a single call. The call had no effect.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

var (
	ErrWrongPhase         = &Error{KindWrongPhase, "call not valid in the current phase"}
	ErrInvalidSignature   = &Error{KindInvalidSignature, "authorization signature does not recover to the authority"}
	ErrAlreadyRegistered  = &Error{KindAlreadyRegistered, "voter already registered"}
	ErrAlreadyCommitted   = &Error{KindAlreadyCommitted, "voter already committed"}
	ErrCommitmentMismatch = &Error{KindCommitmentMismatch, "reveal does not match commitment"}
	ErrUnknownCandidate   = &Error{KindUnknownCandidate, "unknown candidate"}
	ErrNotRegistered      = &Error{KindNotRegistered, "voter not registered"}
	ErrTooEarly           = &Error{KindTooEarly, "reveal window has not closed"}
	ErrInvalidWindow      = &Error{KindInvalidWindow, "phase boundaries must be strictly increasing"}
	ErrUnauthorized       = &Error{KindUnauthorized, "caller is not the election owner"}
	ErrInvalidCandidate   = &Error{KindInvalidCandidate, "candidate name must not be empty"}
	ErrNotCommitted       = &Error{KindNotCommitted, "voter has no pending commitment"}
	ErrAlreadyTallied     = &Error{KindAlreadyTallied, "votes already tallied"}
	ErrAlreadyAnchored    = &Error{KindAlreadyAnchored, "encrypted ballot already anchored"}
)

// KindOf returns the rejection kind carried by err, or "" if err is not a
// rejection.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
