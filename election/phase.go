package election

import (
	"github.com/pkg/errors"

	"commit-reveal-voting/models"
)

type Phase uint8

const (
	PhasePending Phase = iota
	PhaseCommit
	PhaseReveal
	// PhaseClosed means the reveal window is over and the tally may be triggered.
	PhaseClosed
	// PhaseTallied is never returned by CurrentPhase; it is reached only
	// through an explicit tally.
	PhaseTallied
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseCommit:
		return "commit"
	case PhaseReveal:
		return "reveal"
	case PhaseClosed:
		return "closed"
	case PhaseTallied:
		return "tallied"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ValidateWindow enforces commitStart < commitEnd < revealEnd.
func ValidateWindow(w models.Window) error {
	if w.CommitStart >= w.CommitEnd || w.CommitEnd >= w.RevealEnd {
		return errors.Wrapf(ErrInvalidWindow, "commit_start=%d commit_end=%d reveal_end=%d",
			w.CommitStart, w.CommitEnd, w.RevealEnd)
	}
	return nil
}

// CurrentPhase derives the phase at now. Windows are half open:
// commit is [commitStart, commitEnd) and reveal is [commitEnd, revealEnd).
func CurrentPhase(now int64, w models.Window) Phase {
	switch {
	case now < w.CommitStart:
		return PhasePending
	case now < w.CommitEnd:
		return PhaseCommit
	case now < w.RevealEnd:
		return PhaseReveal
	default:
		return PhaseClosed
	}
}
