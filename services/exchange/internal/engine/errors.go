package engine

import "errors"

var (
	ErrNotAuthorized     = errors.New("not authorized")
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrExpired           = errors.New("order expired")
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidRate       = errors.New("invalid fee rate")
	ErrDuplicateOrder    = errors.New("duplicate order")
	ErrConditionsTooLong = errors.New("trade conditions too long")
)
