package storage

import "errors"

// ErrNotFound indicates that a requested row does not exist or is not owned
// by the requesting user. Backends never reveal which of the two is the case.
var ErrNotFound = errors.New("not found")
