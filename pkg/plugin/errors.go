package plugin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ConfigError reports bad or missing provider arguments. Fatal, no retry.
type ConfigError struct {
	Plugin string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("plugin %s: %s", e.Plugin, e.Reason)
}

// 🚨 FetchKind classifies a failed retrieval
type FetchKind int

const (
	NetworkError FetchKind = iota
	NotFound
	AuthFailed
	Timeout
	ServerError
)

func (k FetchKind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case AuthFailed:
		return "authentication failed"
	case Timeout:
		return "timeout"
	case ServerError:
		return "server error"
	default:
		return "network error"
	}
}

// FetchError reports a failed provider retrieval. None are retried here;
// retry policy belongs to the debugger re-invoking the fetch command.
type FetchError struct {
	Kind   FetchKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s: %s (HTTP %d)", e.URL, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetching %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetching %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StatusError maps a non-200 response to a FetchError
func StatusError(url string, status int) *FetchError {
	kind := NetworkError
	switch {
	case status == http.StatusNotFound:
		kind = NotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = AuthFailed
	case status >= 500:
		kind = ServerError
	}
	return &FetchError{Kind: kind, URL: url, Status: status}
}

// TransportError maps a transport failure to a FetchError, detecting
// timeouts so they surface as their own kind.
func TransportError(url string, err error) *FetchError {
	kind := NetworkError
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = Timeout
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}
