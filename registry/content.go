package registry

// Content is one piece of tool or prompt output. Type is "text" for plain
// text and "image" for base64-encoded binary with a MIME type.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// NewTextContent returns a text content item.
func NewTextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// NewImageContent returns an image content item from base64 data.
func NewImageContent(data, mimeType string) Content {
	return Content{Type: "image", Data: data, MimeType: mimeType}
}

// ToolResult is what a tool call returns on the wire. IsError marks a
// handler-level failure that still produced content, as opposed to a
// protocol error envelope.
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// NewToolResultText wraps plain text as a successful tool result.
func NewToolResultText(text string) *ToolResult {
	return &ToolResult{Content: []Content{NewTextContent(text)}}
}

// NewToolResultError wraps an error message as a failed tool result.
func NewToolResultError(msg string) *ToolResult {
	return &ToolResult{Content: []Content{NewTextContent(msg)}, IsError: true}
}

// ResourceContent is the payload of one resource read. Exactly one of Text
// or Blob is set; Blob carries base64-encoded binary.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// PromptMessage is one message in a rendered prompt.
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// PromptResult is the output of rendering a prompt.
type PromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// PromptArgument describes one argument a prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}
