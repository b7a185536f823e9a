// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors explains network failures talking to the identity backend,
// the manifest host or the profile database in terms a cashier can act on.
package httperrors

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/pterm/pterm"

	"tillbook/cli/internal/identity"
	"tillbook/cli/internal/logging"
)

// Category is the detected class of a network error.
type Category string

const (
	CategoryTimeout Category = "timeout"
	CategoryDNS     Category = "dns"
	CategoryRefused Category = "refused"
	CategoryTLS     Category = "tls"
	CategoryServer  Category = "server"
	CategoryOther   Category = "other"
)

// Categorize detects what kind of network error err is.
func Categorize(err error) Category {
	switch {
	case err == nil:
		return CategoryOther
	case isTimeoutError(err):
		return CategoryTimeout
	case isDNSError(err):
		return CategoryDNS
	case isConnectionRefusedError(err):
		return CategoryRefused
	case isSSLError(err):
		return CategoryTLS
	case isServerError(err):
		return CategoryServer
	}
	return CategoryOther
}

// FormatNetworkError prints a troubleshooting message for err and returns it wrapped.
func FormatNetworkError(err error, action, host string) error {
	if err == nil {
		return nil
	}
	pterm.Println(Describe(err, action, host))
	return fmt.Errorf("network error: %w", err)
}

// Describe renders the troubleshooting message without printing it.
func Describe(err error, action, host string) string {
	var b strings.Builder
	line := func(s string) { b.WriteString(s + "\n") }

	switch Categorize(err) {
	case CategoryTimeout:
		line(fmt.Sprintf("Connection timeout while %s", action))
		line("")
		line(host + " took too long to respond. Check the till's network and try again.")
	case CategoryDNS:
		line(fmt.Sprintf("Cannot resolve %s while %s", host, action))
		line("")
		line("Check that the till is online and DNS is not blocked on this network.")
	case CategoryRefused:
		line(fmt.Sprintf("Connection refused while %s", action))
		line("")
		line(host + " is not accepting connections. It may be down or the address may be wrong.")
	case CategoryTLS:
		line(fmt.Sprintf("Secure connection failed while %s", action))
		line("")
		line("Check the system clock and any proxy that intercepts HTTPS.")
	case CategoryServer:
		line(fmt.Sprintf("Server error while %s", action))
		line("")
		line(host + " hit an internal error. Your session is kept; try again in a few minutes.")
	default:
		line(fmt.Sprintf("Cannot reach %s while %s", host, action))
	}

	details := logging.Mask(err.Error())
	if len(details) > 160 {
		details = details[:160] + "..."
	}
	b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + details))
	return b.String()
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "timed out")
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isConnectionRefusedError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isSSLError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "x509") ||
		strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "handshake")
}

func isServerError(err error) bool {
	var se *identity.StatusError
	if errors.As(err, &se) {
		return se.Status >= 500
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "internal server error") ||
		strings.Contains(lower, "bad gateway") ||
		strings.Contains(lower, "service unavailable") ||
		strings.Contains(lower, "gateway timeout")
}

// ExtractHostFromURL extracts the hostname from a URL for error messages.
func ExtractHostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
