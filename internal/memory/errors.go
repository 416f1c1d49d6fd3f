package memory

import (
	"errors"
	"fmt"
)

// Kind classifies errors into a closed set the caller can switch on
// without string matching.
type Kind int

const (
	KindUnspecified Kind = iota
	KindInvalidInput
	KindNotFound
	KindInvalidTransition
	KindTransient
	KindStorageFailed
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindNotFound:
		return "NotFound"
	case KindInvalidTransition:
		return "InvalidTransition"
	case KindTransient:
		return "Transient"
	case KindStorageFailed:
		return "StorageFailed"
	case KindInternal:
		return "Internal"
	default:
		return "Unspecified"
	}
}

// Error wraps an underlying error with an operation name and a kind.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// newErr builds an *Error; a nil err still produces a taxonomy-only
// error carrying the operation and kind.
func newErr(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error; otherwise returns KindInternal, since an un-tagged error
// reaching the boundary is treated as a programming error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return KindUnspecified
	}
	return KindInternal
}

// IsTransient reports whether err (or a wrapped cause) is tagged
// Transient, i.e. retryable at the Lifecycle Manager boundary.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransient
}

// IsNotFound reports whether err (or a wrapped cause) is tagged
// NotFound; callers performing idempotent deletes swallow this.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// Sentinel causes the Gateway and Service wrap into their tagged
// errors; callers match them with errors.Is.
var (
	ErrCollectionMissing = errors.New("collection missing")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
