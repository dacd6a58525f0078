// Package errs defines the error taxonomy shared by all domain packages.
// The HTTP layer maps these to status codes in one place (pkg/api).
package errs

import "errors"

var (
	// ErrNotFound is returned when an aggregate is absent from the store.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on a unique-field collision at command time.
	ErrConflict = errors.New("already exists")

	// ErrForbidden is returned on authorization failure or token reuse.
	ErrForbidden = errors.New("forbidden")

	// ErrBadCredentials is returned when a name/password pair does not match.
	ErrBadCredentials = errors.New("bad credentials")

	// ErrNoFieldsToUpdate is returned when an update patch is empty.
	ErrNoFieldsToUpdate = errors.New("no fields to update")

	// ErrMalformed is returned when a payload fails to deserialize.
	ErrMalformed = errors.New("malformed payload")
)
