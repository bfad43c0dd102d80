package types

// TranslateRequest is the simplified request accepted by the gateway on POST /.
// Unknown fields are accepted and ignored so callers may send richer payloads.
type TranslateRequest struct {
	// Required prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
}

// TranslateResponse is the gateway's answer to a successful POST /.
type TranslateResponse struct {
	// Generated text returned by the backend engine.
	// example: Salt wind over waves...
	Response string `json:"response" example:"Salt wind over waves..."`
	// Model identifier the gateway is bound to.
	// example: llama3.2:3b
	Model string `json:"model" example:"llama3.2:3b"`
	// Backend-reported creation timestamp; empty when the backend omits it.
	// example: 2025-01-02T15:04:05Z
	CreatedAt string `json:"created_at" example:"2025-01-02T15:04:05Z"`
	// Always true for non-streaming responses.
	// example: true
	Done bool `json:"done" example:"true"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	// "healthy" when the backend answered its probe, "unavailable" otherwise.
	// example: healthy
	Status string `json:"status" example:"healthy"`
	// Model identifier the gateway is bound to.
	// example: llama3.2:3b
	Model string `json:"model" example:"llama3.2:3b"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: backend returned status 500
	Error string `json:"error" example:"backend returned status 500"`
	// HTTP status code.
	// example: 500
	Code int `json:"code" example:"500"`
}

// Model describes one model known to the backend engine.
type Model struct {
	// Backend model name, including tag.
	// example: llama3.2:3b
	Name string `json:"name" example:"llama3.2:3b"`
	// Size in bytes as reported by the backend.
	// example: 2019393189
	Size int64 `json:"size,omitempty" example:"2019393189"`
	// Last modification timestamp reported by the backend.
	// example: 2025-01-02T15:04:05Z
	ModifiedAt string `json:"modified_at,omitempty" example:"2025-01-02T15:04:05Z"`
}
