// ABOUTME: Sentinel errors for schema declaration, resolution and locking
package schema

import "errors"

var (
	// ErrSchemaNotFound indicates no registered schema matches the store's recorded version
	ErrSchemaNotFound = errors.New("schema: schema not found")

	// ErrInvalidSchema indicates a malformed entity or relationship declaration
	ErrInvalidSchema = errors.New("schema: invalid schema")

	// ErrMigrationRequired indicates the in-process version lock does not match
	// the lock recorded in the store; the caller must migrate explicitly
	ErrMigrationRequired = errors.New("schema: manual migration required")
)
