package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a client error for retry and recovery logic.
type Kind string

const (
	// KindAuth indicates a missing or rejected credential. Never retried.
	KindAuth Kind = "auth"

	// KindNotFound indicates the target identifier does not exist. Never retried.
	KindNotFound Kind = "not_found"

	// KindBusyDeployment indicates provisioning contention on a workspace
	// deployment. Callers may retry or move to another candidate.
	KindBusyDeployment Kind = "busy_deployment"

	// KindBusyInstance indicates the instance is busy with another state
	// change, typically during terminate. Callers may retry.
	KindBusyInstance Kind = "busy_instance"

	// KindRemote is any other non-success response from the service. The
	// server-provided diagnostic text is preserved verbatim.
	KindRemote Kind = "remote"

	// KindValidation indicates malformed local input, raised before any
	// network call. Never retried.
	KindValidation Kind = "validation"

	// KindTimeout indicates a bounded wait exhausted its budget without
	// reaching the target state. Raised locally, distinct from remote errors.
	KindTimeout Kind = "timeout"

	// KindTransport indicates the remote host could not be reached at all.
	KindTransport Kind = "transport"
)

// Error is the classified error type for all operations in this module.
type Error struct {
	// Kind is the error classification.
	Kind Kind

	// Op is the operation being performed when the error occurred.
	Op string

	// StatusCode is the HTTP status of the failed response, when there was one.
	StatusCode int

	// Message is the diagnostic text. For remote errors this is the
	// server-provided message, verbatim.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		fmt.Fprintf(&b, "%s: ", e.Op)
	}
	fmt.Fprintf(&b, "[%s]", e.Kind)
	if e.Message != "" {
		fmt.Fprintf(&b, " %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Busy reports whether the error is one of the contention kinds that a
// caller may reasonably retry.
func (e *Error) Busy() bool {
	return e.Kind == KindBusyDeployment || e.Kind == KindBusyInstance
}

// NewValidationError creates a local validation error. No network call was made.
func NewValidationError(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message}
}

// NewTimeoutError creates a local timeout error for an exhausted wait budget.
func NewTimeoutError(op, message string) *Error {
	return &Error{Kind: KindTimeout, Op: op, Message: message}
}

// NewTransportError wraps a connectivity failure.
func NewTransportError(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Message: "remote host unreachable", Err: err}
}

func kindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsWrongAuthToken returns true if the error is an authentication error.
func IsWrongAuthToken(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindAuth
}

// IsInstanceNotFound returns true if the error is a not-found error.
func IsInstanceNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNotFound
}

// IsBusyWorkspaceDeployment returns true if provisioning hit deployment contention.
func IsBusyWorkspaceDeployment(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindBusyDeployment
}

// IsBusyWorkspaceInstance returns true if the instance is busy with another
// state change.
func IsBusyWorkspaceInstance(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindBusyInstance
}

// IsValidation returns true if the error is a local validation error.
func IsValidation(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindValidation
}

// IsTimeout returns true if a bounded wait exhausted its budget.
func IsTimeout(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTimeout
}

// IsTransport returns true if the remote host could not be reached.
func IsTransport(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindTransport
}

// IsBusy returns true for either contention kind.
func IsBusy(err error) bool {
	k, ok := kindOf(err)
	return ok && (k == KindBusyDeployment || k == KindBusyInstance)
}

// Known server diagnostic prefixes. The service reports contention through
// these message texts rather than a structured code, so classification
// matches on them in exactly one place (classifyRemote) and everything
// unrecognized degrades to KindRemote.
const (
	msgBusyDeployments  = "All matching workspace deployments are busy"
	msgBusyInstance     = "This instance is busy."
	msgWrongAuthToken   = "wrong authorization token"
	msgInstanceNotFound = "instance not found"
)

// errorPayload is the body shape of non-success responses. The service uses
// error_message for request failures and result_message for operations that
// were accepted but could not complete.
type errorPayload struct {
	ErrorMessage  string `json:"error_message"`
	ResultMessage string `json:"result_message"`
}

func (p errorPayload) text() string {
	if p.ErrorMessage != "" {
		return p.ErrorMessage
	}
	return p.ResultMessage
}

// classifyRemote maps a non-success response to a typed error. It is the
// single place where server messages are interpreted; anything it does not
// recognize becomes a generic KindRemote error carrying the raw text.
func classifyRemote(op string, statusCode int, message string) *Error {
	e := &Error{Kind: KindRemote, Op: op, StatusCode: statusCode, Message: message}
	switch {
	case strings.HasPrefix(message, msgBusyDeployments):
		e.Kind = KindBusyDeployment
	case strings.HasPrefix(message, msgBusyInstance):
		e.Kind = KindBusyInstance
	case strings.Contains(strings.ToLower(message), msgWrongAuthToken):
		e.Kind = KindAuth
	case strings.Contains(strings.ToLower(message), msgInstanceNotFound):
		e.Kind = KindNotFound
	case statusCode == http.StatusServiceUnavailable:
		e.Kind = KindBusyDeployment
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Kind = KindAuth
	case statusCode == http.StatusNotFound:
		e.Kind = KindNotFound
	}
	return e
}
