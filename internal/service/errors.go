package service

import "errors"

var (
	ErrNotFound      = errors.New("product not found")
	ErrAlreadyExists = errors.New("product already exists in inventory")

	// ErrInsufficientStock is wrapped with the current/requested/resulting
	// quantities when an adjustment would drive stock negative.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConflict is returned when concurrent writers kept invalidating the
	// read-modify-write cycle past the retry bound.
	ErrConflict = errors.New("concurrent update conflict, please retry")
)
