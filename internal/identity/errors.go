// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

var (
	// ErrUnauthorized means the backend rejected the session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials means the password grant was refused.
	ErrInvalidCredentials = errors.New("invalid login credentials")
	// ErrMalformedToken means a stored access token could not be decoded.
	ErrMalformedToken = errors.New("malformed session token")
	// ErrNoRefreshToken means a refresh was requested without a stored refresh token.
	ErrNoRefreshToken = errors.New("no refresh token stored")
)

// StatusError carries the HTTP status the identity backend answered with.
type StatusError struct {
	Status  int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("identity: %d %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error { return e.Err }

// HTTPStatus exposes the status code to error classifiers.
func (e *StatusError) HTTPStatus() int { return e.Status }

// tokenError maps token endpoint failures onto StatusError. Network errors pass through.
func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	msg := strings.TrimSpace(re.ErrorDescription)
	if msg == "" {
		msg = strings.TrimSpace(re.ErrorCode)
	}

	switch {
	case re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_client" || status == http.StatusUnauthorized:
		if msg == "" {
			msg = ErrInvalidCredentials.Error()
		}
		return &StatusError{Status: http.StatusUnauthorized, Message: msg, Err: ErrInvalidCredentials}
	case status == http.StatusForbidden:
		return &StatusError{Status: status, Message: msg, Err: ErrUnauthorized}
	default:
		return &StatusError{Status: status, Message: msg, Err: err}
	}
}

// isRejected reports whether err means the backend refused the session outright.
func isRejected(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrUnauthorized)
}
