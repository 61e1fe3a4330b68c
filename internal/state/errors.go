package state

import (
	"errors"
	"fmt"

	"github.com/roach88/loopmerge/internal/ir"
)

// Sentinels for benign inconsistencies. Callers log these and continue.
var (
	// ErrUnitNotRegistered is returned when an event references a tag the
	// registry does not hold (died twice, position for an untracked unit).
	ErrUnitNotRegistered = errors.New("unit not registered")

	// ErrInvalidGroup is returned for a control-group index outside 0-9.
	ErrInvalidGroup = errors.New("invalid control group")
)

// LookupError describes which operation missed which tag.
type LookupError struct {
	Op  string
	Tag ir.UnitTag
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s %d.%d: %v", e.Op, e.Tag.Index, e.Tag.Recycle, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

func notRegistered(op string, tag ir.UnitTag) error {
	return &LookupError{Op: op, Tag: tag, Err: ErrUnitNotRegistered}
}

// IsNotRegistered reports whether err wraps ErrUnitNotRegistered.
func IsNotRegistered(err error) bool {
	return errors.Is(err, ErrUnitNotRegistered)
}
