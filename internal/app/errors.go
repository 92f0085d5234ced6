package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// The four expected-outcome kinds of the engine. Anything else that goes
// wrong is an unexpected persistence/infrastructure failure and is returned
// as a plain wrapped error instead.

func errNotFound(message string) *DomainError {
	return &DomainError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: message}
}

func errForbidden(message string) *DomainError {
	return &DomainError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: message}
}

func errInvalidState(message string) *DomainError {
	return &DomainError{Status: http.StatusConflict, Code: "INVALID_STATE", Message: message}
}

func errInvalidOperation(message string) *DomainError {
	return &DomainError{Status: http.StatusUnprocessableEntity, Code: "INVALID_OPERATION", Message: message}
}

func errValidation(message string) *DomainError {
	return &DomainError{Status: http.StatusUnprocessableEntity, Code: "VALIDATION_ERROR", Message: message}
}
