// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"context"
	"errors"
	"strings"

	"github.com/pterm/pterm"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// StreamErrorType is the category of a session event stream failure.
type StreamErrorType int

const (
	StreamErrorUnknown StreamErrorType = iota
	StreamErrorNetwork
	StreamErrorAuth
	StreamErrorTimeout
	StreamErrorUnavailable
)

// ParseStreamError categorizes a stream error by gRPC status, then by message.
func ParseStreamError(err error) StreamErrorType {
	if err == nil {
		return StreamErrorUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StreamErrorTimeout
	}
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return StreamErrorAuth
	case codes.DeadlineExceeded:
		return StreamErrorTimeout
	case codes.Unavailable:
		if isReset(err.Error()) {
			return StreamErrorNetwork
		}
		return StreamErrorUnavailable
	}

	lower := strings.ToLower(err.Error())
	switch {
	case isReset(lower):
		return StreamErrorNetwork
	case strings.Contains(lower, "deadline") || strings.Contains(lower, "timeout"):
		return StreamErrorTimeout
	case strings.Contains(lower, "unauthenticated") || strings.Contains(lower, "unauthorized"):
		return StreamErrorAuth
	}
	return StreamErrorUnknown
}

func isReset(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rst_stream") || strings.Contains(lower, "connection reset") || strings.Contains(lower, "eof")
}

// FormatStreamError renders a one-paragraph explanation for the watch command.
func FormatStreamError(err error) string {
	var b strings.Builder

	b.WriteString(pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint("Session events interrupted"))
	b.WriteString("\n")

	switch ParseStreamError(err) {
	case StreamErrorNetwork:
		b.WriteString("The connection to the session event service dropped. Reconnecting.\n")
	case StreamErrorUnavailable:
		b.WriteString("The session event service is unavailable right now. Reconnecting with backoff.\n")
	case StreamErrorTimeout:
		b.WriteString("The session event service did not answer in time. Reconnecting.\n")
	case StreamErrorAuth:
		b.WriteString("The session event service rejected this session.\n")
		b.WriteString(pterm.NewStyle(pterm.FgYellow).Sprint("→ Run 'tillbook login' if this terminal stays signed out"))
		b.WriteString("\n")
	default:
		b.WriteString("The session event stream closed unexpectedly. Reconnecting.\n")
	}

	if err != nil {
		b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(err.Error())))
	}
	return b.String()
}

// PresentError formats an error for user display with masking.
func PresentError(action string, err error) string {
	if err == nil {
		return ""
	}
	return action + ": " + Mask(err.Error())
}
