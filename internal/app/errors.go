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

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errDraftsDisabled = domainError(http.StatusServiceUnavailable, "DRAFTS_UNAVAILABLE", "Draft storage is not configured", nil)
	errDraftNotFound  = domainError(http.StatusNotFound, "DRAFT_NOT_FOUND", "Draft not found", nil)
	errGistsDisabled  = domainError(http.StatusServiceUnavailable, "GISTS_UNAVAILABLE", "Gist publishing is not configured", nil)
	errEmptyBody      = domainError(http.StatusBadRequest, "INVALID_BODY", "Request body is empty", nil)
	errBodyTooLarge   = domainError(http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "Request body exceeds 5 MiB", map[string]any{"limit": maxBodyBytes})
)

func errEIPNotFound(id int) *DomainError {
	return domainError(http.StatusNotFound, "EIP_NOT_FOUND", fmt.Sprintf("EIP-%d is not in the reference dataset", id), map[string]any{"eip": id})
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}
