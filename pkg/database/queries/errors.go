package queries

import "errors"

var ErrNotFound = errors.New("record not found")
