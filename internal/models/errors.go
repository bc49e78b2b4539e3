package models

import "github.com/pkg/errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("duplicate")
	ErrAlreadyFulfilled = errors.New("order already fulfilled")
)
