package blobstore

import "errors"

var (
	// ErrStorage wraps every object storage failure.
	ErrStorage = errors.New("object storage error")

	// ErrInvalidLocator is returned for locators that escape the store.
	ErrInvalidLocator = errors.New("invalid locator")

	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")
)
