package repository

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrSlotFull  = errors.New("slot capacity exceeded")
	ErrDuplicate = errors.New("duplicate reservation for customer")
	ErrCodeTaken = errors.New("confirmation code already in use")
)
