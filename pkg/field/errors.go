// ABOUTME: Sentinel errors for field access and session commits
package field

import "errors"

var (
	// ErrConstraintViolation indicates a required field was absent at commit time
	ErrConstraintViolation = errors.New("field: constraint violation")

	// ErrCrossContext indicates a relationship write targeting an object
	// from a different session or store
	ErrCrossContext = errors.New("field: cross-context violation")

	// ErrDecode indicates a coded field's stored bytes could not be decoded
	ErrDecode = errors.New("field: decode failed")

	// ErrSessionDone indicates an operation on a committed or rolled-back session
	ErrSessionDone = errors.New("field: session done")

	// ErrUnknownEntity indicates an entity name absent from the active schema
	ErrUnknownEntity = errors.New("field: unknown entity")

	// ErrFieldMismatch indicates a container used against the wrong entity,
	// kind, or value type
	ErrFieldMismatch = errors.New("field: descriptor mismatch")
)
