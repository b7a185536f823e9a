// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/oauth2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "tillbook/cli/internal/errors"
	"tillbook/cli/internal/identity"
	"tillbook/cli/internal/profile"
)

// authVocabulary marks error text that speaks about the session itself.
var authVocabulary = []string{
	"jwt",
	"token",
	"session",
	"credential",
	"unauthorized",
	"unauthorised",
	"forbidden",
	"not authenticated",
}

// Classify decides whether a profile fetch failure means the session is invalid (KindAuth)
// or is a transient or application fault that must leave the session alone (KindData).
//
// Rules apply in order: an explicit 401/403 status, then session vocabulary in the message,
// then record-not-found, then everything else. Ambiguous failures are data errors.
func Classify(err error) apperrors.Kind {
	if err == nil {
		return apperrors.KindData
	}
	if hasAuthStatus(err) {
		return apperrors.KindAuth
	}

	msg := strings.ToLower(err.Error())
	for _, word := range authVocabulary {
		if strings.Contains(msg, word) {
			return apperrors.KindAuth
		}
	}

	// Missing profile rows fall through here too: the profile may not exist yet.
	return apperrors.KindData
}

// hasAuthStatus looks for a 401/403 equivalent anywhere in err's chain.
func hasAuthStatus(err error) bool {
	if errors.Is(err, identity.ErrUnauthorized) || errors.Is(err, identity.ErrInvalidCredentials) {
		return true
	}

	var hs interface{ HTTPStatus() int }
	if errors.As(err, &hs) && isAuthHTTPStatus(hs.HTTPStatus()) {
		return true
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil && isAuthHTTPStatus(re.Response.StatusCode) {
		return true
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return true
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.InvalidAuthorizationSpecification, pgerrcode.InvalidPassword, pgerrcode.InsufficientPrivilege:
			return true
		}
	}
	return false
}

func isAuthHTTPStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// isNotFound matches "no such record" answers from the profile store.
func isNotFound(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, profile.ErrNotFound) {
		return true
	}
	return strings.Contains(err.Error(), "PGRST116")
}

// reasonOf turns a failure into the reason attached to a forced logout.
func reasonOf(err error) string {
	var e *apperrors.E
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
