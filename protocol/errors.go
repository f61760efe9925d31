package protocol

import "fmt"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Runtime-specific error codes.
const (
	CodeNotFound         = -32001
	CodePermissionDenied = -32002
	CodeRateLimited      = -32003
)

// Machine-readable error kinds carried in Error.Data. Clients branch on
// these rather than on message text.
const (
	KindParseError       = "parse_error"
	KindInvalidRequest   = "invalid_request"
	KindMethodNotFound   = "method_not_found"
	KindInvalidParams    = "invalid_params"
	KindMissingParameter = "missing_parameter"
	KindInternalError    = "internal_error"
	KindNotFound         = "not_found"
	KindPermissionDenied = "permission_denied"
	KindRateLimited      = "rate_limited"
	KindInvalidURL       = "invalid_url"
	KindHTTPError        = "http_error"
)

// ErrorData is the structured payload attached to an Error.
type ErrorData struct {
	Kind    string `json:"kind,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rpc: %s (code: %d)", e.Message, e.Code)
}

// Is implements errors.Is comparison by error code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Kind returns the machine-readable kind string, or "" when none is set.
// It understands both locally constructed errors and errors decoded from
// the wire, where Data arrives as a generic map.
func (e *Error) Kind() string {
	switch d := e.Data.(type) {
	case *ErrorData:
		return d.Kind
	case ErrorData:
		return d.Kind
	case map[string]any:
		kind, _ := d["kind"].(string)
		return kind
	default:
		return ""
	}
}

// WithDetails returns a copy of the error with extra detail attached,
// preserving the kind.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Data:    &ErrorData{Kind: e.Kind(), Details: details},
	}
}

func newError(code int, kind, msg string) *Error {
	return &Error{Code: code, Message: msg, Data: &ErrorData{Kind: kind}}
}

// NewParseError creates a parse error (-32700).
func NewParseError(msg string) *Error {
	return newError(CodeParseError, KindParseError, msg)
}

// NewInvalidRequest creates an invalid request error (-32600).
func NewInvalidRequest(msg string) *Error {
	return newError(CodeInvalidRequest, KindInvalidRequest, msg)
}

// NewMethodNotFound creates a method not found error (-32601).
func NewMethodNotFound(method string) *Error {
	return newError(CodeMethodNotFound, KindMethodNotFound, "method not found: "+method)
}

// NewInvalidParams creates an invalid params error (-32602).
func NewInvalidParams(msg string) *Error {
	return newError(CodeInvalidParams, KindInvalidParams, msg)
}

// NewMissingParameter creates an invalid params error for one absent
// required field.
func NewMissingParameter(field string) *Error {
	return newError(CodeInvalidParams, KindMissingParameter, "missing required parameter: "+field)
}

// NewInternalError creates an internal error (-32603).
func NewInternalError(msg string) *Error {
	return newError(CodeInternalError, KindInternalError, msg)
}

// NewNotFound creates a not found error (-32001) for an unknown capability.
func NewNotFound(msg string) *Error {
	return newError(CodeNotFound, KindNotFound, msg)
}

// NewPermissionDenied creates a permission denied error (-32002).
func NewPermissionDenied(msg string) *Error {
	return newError(CodePermissionDenied, KindPermissionDenied, msg)
}

// NewRateLimited creates a rate limited error (-32003).
func NewRateLimited(msg string) *Error {
	return newError(CodeRateLimited, KindRateLimited, msg)
}

// NewHandlerError wraps a capability-domain failure with a caller-chosen
// kind ("invalid_url", "http_error", ...). Handler failures always travel
// as response envelopes, never as process-level faults.
func NewHandlerError(kind, msg string) *Error {
	return newError(CodeInternalError, kind, msg)
}
