package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Kind classifies how a third-party call failed.
type Kind string

const (
	// KindTimeout means the call exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindHTTP means the upstream answered with a non-2xx status.
	KindHTTP Kind = "http"
	// KindMalformed means the upstream answered 2xx with an unusable body.
	KindMalformed Kind = "malformed"
	// KindTransport covers DNS, connection and TLS failures.
	KindTransport Kind = "transport"
	// KindCanceled means the caller went away before the call finished.
	KindCanceled Kind = "canceled"
)

// snippetLimit bounds how much of an upstream body is kept for diagnostics.
const snippetLimit = 256

// Error is a structured third-party failure. Snippet holds at most a bounded
// prefix of the upstream body and is meant for logs, not for clients.
type Error struct {
	Service    string
	Kind       Kind
	StatusCode int
	Snippet    string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	service := e.Service
	if service == "" {
		service = "upstream"
	}
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("%s: upstream timeout", service)
	case KindHTTP:
		return fmt.Sprintf("%s: upstream returned %d", service, e.StatusCode)
	case KindMalformed:
		if e.Err != nil {
			return fmt.Sprintf("%s: malformed upstream response: %v", service, e.Err)
		}
		return fmt.Sprintf("%s: malformed upstream response", service)
	case KindCanceled:
		return fmt.Sprintf("%s: request canceled", service)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: upstream unreachable: %v", service, e.Err)
		}
		return fmt.Sprintf("%s: upstream unreachable", service)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf returns the upstream failure kind, or "" for other errors.
func KindOf(err error) Kind {
	var upErr *Error
	if errors.As(err, &upErr) {
		return upErr.Kind
	}
	return ""
}

// IsTimeout reports whether err is an upstream timeout.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// StatusCode returns the upstream HTTP status for KindHTTP errors, else 0.
func StatusCode(err error) int {
	var upErr *Error
	if errors.As(err, &upErr) && upErr.Kind == KindHTTP {
		return upErr.StatusCode
	}
	return 0
}

// HTTPStatus maps an upstream failure to the status a gateway should answer.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case "":
		if err == nil {
			return http.StatusOK
		}
		return http.StatusInternalServerError
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCanceled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func snippet(body []byte) string {
	if len(body) > snippetLimit {
		body = body[:snippetLimit]
		for len(body) > 0 && !utf8.Valid(body) {
			body = body[:len(body)-1]
		}
	}
	return strings.TrimSpace(string(body))
}
