// Package netutil classifies failures of calls to the Telegram Bot API.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Failure kinds reported by Classify. They label the send failure metric.
const (
	KindTimeout = "timeout"
	KindDNS     = "dns"
	KindDial    = "dial"
	KindTLS     = "tls"
	KindHTTP4xx = "http_4xx"
	KindHTTP5xx = "http_5xx"
	KindUnknown = "unknown"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// ShouldRetry reports whether err is a transient network failure: a
// timeout, a failed dial, or a temporary error anywhere in its chain.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var tmp interface{ Temporary() bool }
	return errors.As(err, &tmp) && tmp.Temporary()
}

// Classify maps err to one of the Kind constants, or "" for nil.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindDial
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return KindTLS
	}

	switch status := HTTPStatus(err); {
	case status >= 500:
		return KindHTTP5xx
	case status >= 400:
		return KindHTTP4xx
	}
	return KindUnknown
}

// HTTPStatus extracts the Bot API status code from err, 0 when unknown.
// telebot reports plain API errors as "telegram: <description> (<code>)".
func HTTPStatus(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var floodErr tele.FloodError
	if errors.As(err, &floodErr) {
		return http.StatusTooManyRequests
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	var urlErr *url.Error
	if err == nil || errors.As(err, &urlErr) {
		return 0
	}

	msg := strings.TrimSpace(err.Error())
	if !strings.HasSuffix(msg, ")") {
		return 0
	}
	open := strings.LastIndexByte(msg, '(')
	if open < 0 {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : len(msg)-1]))
	if convErr != nil {
		return 0
	}
	return code
}

// Redact hides bot tokens that net/http embeds in request URLs.
func Redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
