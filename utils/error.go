package utils

import (
	"errors"

	"gorm.io/gorm"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorMalformedRecord flags a source row that fails semantic validation
// (e.g. office name equal to office address). Import loops skip the row and
// continue the batch.
var ErrorMalformedRecord = errors.New("malformed source record")

// ErrorExternalService wraps CRM / geocoding failures. Call sites log and
// swallow it; the entity's local state is retried on the next sync pass.
var ErrorExternalService = errors.New("external service error")

func IsDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
