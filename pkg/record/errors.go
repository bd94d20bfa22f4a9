// ABOUTME: Sentinel errors for the record and store layer
package record

import "errors"

var (
	// ErrNotFound indicates a record does not exist in the store
	ErrNotFound = errors.New("record: not found")

	// ErrStoreClosed indicates an operation on a closed store
	ErrStoreClosed = errors.New("record: store closed")

	// ErrTxnDone indicates an operation on a committed or rolled-back transaction
	ErrTxnDone = errors.New("record: transaction done")
)
