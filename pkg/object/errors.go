package object

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrObjectNotFound is returned when an id is absent from a store.
	ErrObjectNotFound = errors.New("object not found")
	// ErrAmbiguousID is returned when an abbreviated id matches several objects.
	ErrAmbiguousID = errors.New("ambiguous object id")
	// ErrCorruptObject is returned when stored bytes do not decode.
	ErrCorruptObject = errors.New("corrupt object")
)

// NotFoundError names the missing id.
type NotFoundError struct {
	ID ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s", ErrObjectNotFound, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrObjectNotFound
}

// AmbiguousIDError lists every object an abbreviated id matched.
type AmbiguousIDError struct {
	Prefix  string
	Matches []ID
}

func (e *AmbiguousIDError) Error() string {
	shown := make([]string, 0, len(e.Matches))
	for _, m := range e.Matches {
		shown = append(shown, m.Short())
	}
	return fmt.Sprintf("%s %q matches %d objects (%s)", ErrAmbiguousID, e.Prefix, len(e.Matches), strings.Join(shown, ", "))
}

func (e *AmbiguousIDError) Is(target error) bool {
	return target == ErrAmbiguousID
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptObject, fmt.Sprintf(format, args...))
}
