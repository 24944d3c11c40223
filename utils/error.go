package utils

import (
	"errors"

	"gorm.io/gorm"
)

// ErrorRecordNotFound marks recoverable not-found conditions: the webhook is
// still acknowledged so the vendor stops retrying a condition we cannot fix.
var ErrorRecordNotFound = errors.New("record not found")

// ReplaceNotFound converts gorm's not-found into the recoverable sentinel.
// Every other error (lost connection, timeout, deadlock) passes through
// unchanged so the caller fails the delivery instead of acknowledging it.
func ReplaceNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorRecordNotFound
	}
	return err
}
