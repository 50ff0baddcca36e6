// Package fabric defines the wire-level envelope and error vocabulary shared
// by every component of the gateway.
package fabric

import (
	"errors"
	"fmt"
)

// Code is one of the canonical error kinds a response may carry.
type Code string

const (
	BadInput            Code = "BAD_INPUT"
	AuthDenied          Code = "AUTH_DENIED"
	AuthInvalid         Code = "AUTH_INVALID"
	AuthExpired         Code = "AUTH_EXPIRED"
	AgentNotFound       Code = "AGENT_NOT_FOUND"
	AgentOffline        Code = "AGENT_OFFLINE"
	CapabilityNotFound  Code = "CAPABILITY_NOT_FOUND"
	ToolNotFound        Code = "TOOL_NOT_FOUND"
	ToolExecutionError  Code = "TOOL_EXECUTION_ERROR"
	Timeout             Code = "TIMEOUT"
	UpstreamError       Code = "UPSTREAM_ERROR"
	BusUnavailable      Code = "BUS_UNAVAILABLE"
	RateLimited         Code = "RATE_LIMITED"
	InternalError       Code = "INTERNAL_ERROR"
)

// Error is the canonical error shape carried in a failure envelope. It
// implements the error interface so it can flow through normal Go error
// handling and still be rendered verbatim on the wire.
type Error struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an Error with no details.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithDetail returns a copy of e with detail key/value merged in.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	cp := &Error{Code: e.Code, Message: e.Message, Details: map[string]interface{}{}}
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return cp
}

// AsFabricError unwraps err looking for a *Error, sanitizing anything else
// into INTERNAL_ERROR so raw upstream text never reaches the client.
func AsFabricError(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return NewError(InternalError, "internal error")
}
