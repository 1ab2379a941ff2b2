package app

import (
	"errors"
	"fmt"
	"net/http"

	"grammardesk/internal/auth"
	"grammardesk/internal/index"
	"grammardesk/internal/reconcile"
	"grammardesk/internal/rowstore"
	"grammardesk/internal/writeback"
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrNoToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}

	// WriteError usually wraps a ConnectivityError; report the partial write.
	var writeErr *writeback.WriteError
	if errors.As(err, &writeErr) {
		details := map[string]any{"cellsWritten": writeErr.Written}
		if writeErr.Field != "" {
			details["field"] = writeErr.Field
		}
		return http.StatusBadGateway, "WRITE_FAILED", "Save did not complete", details
	}
	var connErr *rowstore.ConnectivityError
	if errors.As(err, &connErr) {
		return http.StatusBadGateway, "STORE_UNAVAILABLE", "Spreadsheet is unavailable", map[string]any{"op": connErr.Op}
	}

	if errors.Is(err, rowstore.ErrUnknownArea) {
		return http.StatusNotFound, "AREA_NOT_FOUND", "Unknown grammar area", nil
	}
	if errors.Is(err, index.ErrEmptyIndex) {
		return http.StatusNotFound, "EMPTY_INDEX", "No questions for this prefix", nil
	}
	if errors.Is(err, index.ErrNotFound) {
		return http.StatusNotFound, "QUESTION_NOT_FOUND", "선택된 ID의 행을 찾을 수 없습니다.", nil
	}
	if errors.Is(err, reconcile.ErrUnknownRole) {
		return http.StatusForbidden, "ROLE_UNKNOWN", "Your account has no recognised role", nil
	}
	var fieldErr *reconcile.FieldError
	if errors.As(err, &fieldErr) {
		return http.StatusUnprocessableEntity, "FIELD_REJECTED", fieldErr.Error(), map[string]any{"field": fieldErr.Field, "reason": fieldErr.Reason}
	}
	if errors.Is(err, reconcile.ErrMissingFields) {
		return http.StatusInternalServerError, "SCHEMA_INVALID", "Sheet header is missing required fields", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
