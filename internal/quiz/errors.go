package quiz

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrInvalid     = errors.New("invalid")
	ErrUnknownType = errors.New("unknown question type")
	ErrFinished    = errors.New("attempt already finished")
)
