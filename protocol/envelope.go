package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version carried by every envelope.
const Version = "2.0"

// Request represents a request or, when ID is absent, a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this envelope expects no response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0
}

// NewRequest creates a request with the given id token.
func NewRequest(id json.RawMessage, method string, params json.RawMessage) *Request {
	return &Request{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// NewNotification creates a request envelope without an id.
func NewNotification(method string, params json.RawMessage) *Request {
	return &Request{
		JSONRPC: Version,
		Method:  method,
		Params:  params,
	}
}

// Response represents a reply to a single request.
// Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResponse creates a successful response.
func NewResponse(id json.RawMessage, result any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   err,
	}
}

// Message is one classified inbound envelope. Exactly one field is non-nil:
// Request covers both requests and notifications (distinguished by
// Request.IsNotification), Response covers replies.
type Message struct {
	Request  *Request
	Response *Response
}

// frameProbe holds the superset of envelope fields used for classification.
type frameProbe struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// ParseFrame decodes one wire frame and classifies it. A frame with a method
// is a request (or a notification when it has no id); a frame without a
// method is a response. Anything else is a malformed frame.
func ParseFrame(frame []byte) (*Message, error) {
	var probe frameProbe
	if err := json.Unmarshal(frame, &probe); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	if probe.Method != "" {
		return &Message{Request: &Request{
			JSONRPC: probe.JSONRPC,
			ID:      probe.ID,
			Method:  probe.Method,
			Params:  probe.Params,
		}}, nil
	}

	if len(probe.Result) > 0 || probe.Error != nil {
		resp := &Response{
			JSONRPC: probe.JSONRPC,
			ID:      probe.ID,
			Error:   probe.Error,
		}
		if len(probe.Result) > 0 {
			var result any
			if err := json.Unmarshal(probe.Result, &result); err != nil {
				return nil, fmt.Errorf("decode result: %w", err)
			}
			resp.Result = result
		}
		return &Message{Response: resp}, nil
	}

	return nil, fmt.Errorf("frame carries neither method nor result/error")
}

// EncodeFrame marshals an envelope into a single wire frame.
func EncodeFrame(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return string(data), nil
}
