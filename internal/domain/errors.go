package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuthRequired   = errors.New("authentication required")
	ErrSessionExpired = errors.New("session expired")
	ErrNetwork        = errors.New("network failure")
	ErrServer         = errors.New("server error")
	ErrDecode         = errors.New("decode failure")
	ErrLocalStore     = errors.New("local store failure")
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrCancelled      = errors.New("sync cancelled")
	ErrNotFound       = errors.New("not found")
)

type APIErrorKind int

const (
	APIUnauthorized APIErrorKind = iota + 1
	APINetwork
	APIServer
	APIDecode
)

func (k APIErrorKind) String() string {
	switch k {
	case APIUnauthorized:
		return "unauthorized"
	case APINetwork:
		return "network"
	case APIServer:
		return "server"
	case APIDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// APIError is a typed failure raised by the remote API client.
type APIError struct {
	Kind       APIErrorKind
	StatusCode int
	Reason     string
	Err        error
}

func Unauthorized(code int) *APIError {
	return &APIError{Kind: APIUnauthorized, StatusCode: code}
}

func NetworkError(err error) *APIError {
	return &APIError{Kind: APINetwork, Reason: err.Error(), Err: err}
}

func ServerError(code int, reason string) *APIError {
	return &APIError{Kind: APIServer, StatusCode: code, Reason: reason}
}

func DecodeError(err error) *APIError {
	return &APIError{Kind: APIDecode, Reason: err.Error(), Err: err}
}

func (e *APIError) Error() string {
	switch e.Kind {
	case APIUnauthorized:
		return fmt.Sprintf("api: unauthorized (status %d)", e.StatusCode)
	case APIServer:
		if e.Reason != "" {
			return fmt.Sprintf("api: server error %d: %s", e.StatusCode, e.Reason)
		}
		return fmt.Sprintf("api: server error %d", e.StatusCode)
	default:
		return fmt.Sprintf("api: %s: %s", e.Kind, e.Reason)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is maps each variant onto its sentinel so callers can use errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrSessionExpired:
		return e.Kind == APIUnauthorized
	case ErrNetwork:
		return e.Kind == APINetwork
	case ErrServer:
		return e.Kind == APIServer
	case ErrDecode:
		return e.Kind == APIDecode
	}
	return false
}

// Retryable reports whether a transport policy may repeat the request.
func (e *APIError) Retryable() bool {
	return e.Kind == APINetwork || (e.Kind == APIServer && e.StatusCode >= 500)
}
