package storage

import "errors"

var (
	// ErrLocalIO wraps any failure reading or writing local file bytes
	ErrLocalIO = errors.New("local storage I/O failure")

	// ErrNotFound is returned when a file does not exist
	ErrNotFound = errors.New("file not found")

	// ErrInvalidName is returned for names that cannot be stored
	ErrInvalidName = errors.New("invalid file name")
)
