// ABOUTME: Error taxonomy shared by every MindAid component
// ABOUTME: Sentinels are matched with errors.Is; KindOf maps them to client-facing categories
package models

import (
	"errors"
	"fmt"
)

// Sentinel errors. Narrower errors wrap their category so errors.Is matches both.
var (
	ErrInputValidation        = errors.New("input validation failed")
	ErrInvalidAnswer          = fmt.Errorf("%w: invalid answer", ErrInputValidation)
	ErrInputTooLong           = fmt.Errorf("%w: input too long", ErrInputValidation)
	ErrModelUnavailable       = errors.New("model unavailable")
	ErrGenerationTimeout      = fmt.Errorf("%w: generation timed out", ErrModelUnavailable)
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrStorage                = errors.New("storage error")
	ErrVersionConflict        = fmt.Errorf("%w: version conflict", ErrStorage)
	ErrNotFound               = errors.New("not found")
	ErrConfiguration          = errors.New("configuration error")
)

// ErrorKind is the category reported to clients alongside an error message
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindState         ErrorKind = "state"
	KindModel         ErrorKind = "model"
	KindStorage       ErrorKind = "storage"
	KindNotFound      ErrorKind = "not_found"
	KindConfiguration ErrorKind = "configuration"
	KindInternal      ErrorKind = "internal"
)

// KindOf classifies err. An out-of-order answer is both a validation and a
// state error; it reports as state since the client has to re-read the session.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidStateTransition):
		return KindState
	case errors.Is(err, ErrInputValidation):
		return KindValidation
	case errors.Is(err, ErrModelUnavailable):
		return KindModel
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	default:
		return KindInternal
	}
}

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindModel, KindStorage:
		return true
	default:
		return false
	}
}
