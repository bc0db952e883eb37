package objectstore

import "errors"

// ErrNotFound indicates the key holds no object.
var ErrNotFound = errors.New("object not found")

// IsNotFound reports whether an error means "the key is already absent".
// Callers on delete paths treat this as success.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
