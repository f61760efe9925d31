package protocol

// Protocol revision negotiated during initialize.
const ProtocolVersion = "2024-11-05"

// Request method names.
const (
	MethodInitialize    = "initialize"
	MethodPing          = "ping"
	MethodToolsList     = "tools/list"
	MethodToolsCall     = "tools/call"
	MethodResourcesList = "resources/list"
	MethodResourcesRead = "resources/read"
	MethodPromptsList   = "prompts/list"
	MethodPromptsGet    = "prompts/get"

	MethodResourcesSubscribe   = "resources/subscribe"
	MethodResourcesUnsubscribe = "resources/unsubscribe"
)

// Notification method names.
const (
	MethodInitialized     = "notifications/initialized"
	MethodProgress        = "notifications/progress"
	MethodCancelled       = "notifications/cancelled"
	MethodResourceUpdated = "notifications/resources/updated"
)
