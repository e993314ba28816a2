package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/maitracle/mindnote-server/internal/auth"
	"github.com/maitracle/mindnote-server/internal/authpw"
	"github.com/maitracle/mindnote-server/internal/authz"
	"github.com/maitracle/mindnote-server/internal/store"
)

const nonFieldErrors = "non_field_errors"

const (
	msgRequired         = "This field is required."
	msgNotProvided      = "Authentication credentials were not provided."
	msgInvalidToken     = "Invalid token."
	msgBadCredentials   = "Incorrect authentication credentials."
	msgNotFound         = "Not found."
	msgNoteOwnArticle   = "note can be created at own article"
	msgConnOwnArticle   = "connection can be created at own article"
	msgSameNotes        = "notes can't be same"
	msgNoteConnected    = "note with connections can't be moved to another article"
	msgArticleMismatch  = "notes and article are not matched"
	msgGoogleLookup     = "Failed to get google account information with o auth token"
	msgEmailTaken       = "user with this email already exists."
	msgInvalidChoice    = "Select a valid choice. That choice is not one of the available choices."
	msgServerError      = "Server error"
	msgMalformedPayload = "JSON parse error."
)

// DomainError is rendered either as {"detail", "code"} or, when Fields is
// set, as a map of field name to messages.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string][]string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %v", e.Code, e.Fields)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message}
}

func nonFieldError(message string) *DomainError {
	return fieldError(nonFieldErrors, message)
}

func fieldError(field, message string) *DomainError {
	return &DomainError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Fields:  map[string][]string{field: {message}},
	}
}

// fieldErrors collects per-field messages before failing a request.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, message string) {
	f[field] = append(f[field], message)
}

// err returns nil when nothing was collected.
func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &DomainError{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: "Invalid input.", Fields: f}
}

func mapError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var denied *authz.DeniedError
	switch {
	case errors.As(err, &denied):
		return domainError(http.StatusForbidden, "FORBIDDEN", denied.Error())
	case errors.Is(err, authz.ErrUnauthenticated), errors.Is(err, auth.ErrMissingToken):
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", msgNotProvided)
	case errors.Is(err, auth.ErrInvalidToken):
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", msgInvalidToken)
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return domainError(http.StatusUnauthorized, "UNAUTHORIZED", msgBadCredentials)
	case errors.Is(err, sql.ErrNoRows):
		return domainError(http.StatusNotFound, "NOT_FOUND", msgNotFound)
	case errors.Is(err, store.ErrEmailTaken):
		return fieldError("email", msgEmailTaken)
	case errors.Is(err, authpw.ErrGoogleLookup):
		return nonFieldError(msgGoogleLookup)
	case errors.Is(err, authpw.ErrPasswordTooLong):
		return fieldError("password", "Ensure this field has no more than 72 bytes.")
	case errors.Is(err, authpw.ErrMissingFields):
		return nonFieldError(err.Error())
	}
	return domainError(http.StatusInternalServerError, "SERVER_ERROR", msgServerError)
}
