package repository

import "errors"

// ErrVersionConflict signals an optimistic-lock failure: the row moved under
// the caller, who should reload and retry.
var ErrVersionConflict = errors.New("version conflict")
