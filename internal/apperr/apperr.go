// Package apperr defines the typed error kinds returned by the engine.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure.
type Kind int

const (
	Unknown Kind = iota
	ConfigInvalid
	ModelNotReady
	PredictionFailed
	PersistenceFailed
	NotFound
	AlreadyExists
)

var kindNames = map[Kind]string{
	Unknown:           "unknown",
	ConfigInvalid:     "config_invalid",
	ModelNotReady:     "model_not_ready",
	PredictionFailed:  "prediction_failed",
	PersistenceFailed: "persistence_failed",
	NotFound:          "not_found",
	AlreadyExists:     "already_exists",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is checks. They match any *Error of the same kind.
var (
	ErrConfigInvalid     = &Error{Kind: ConfigInvalid}
	ErrModelNotReady     = &Error{Kind: ModelNotReady}
	ErrPredictionFailed  = &Error{Kind: PredictionFailed}
	ErrPersistenceFailed = &Error{Kind: PersistenceFailed}
	ErrNotFound          = &Error{Kind: NotFound}
	ErrAlreadyExists     = &Error{Kind: AlreadyExists}
)

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// E builds a classified error.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain,
// or Unknown when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Wrap classifies err as kind unless it already carries a kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != Unknown {
		return err
	}
	return E(kind, op, err)
}
