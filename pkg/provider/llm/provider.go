// Package llm defines the Provider interface for chat-completion backends.
//
// A provider wraps a remote or local model API (DeepSeek, OpenAI, or an
// Ollama instance) behind a uniform interface so that the summarization
// pipeline can request completions, estimate token budgets, and inspect
// model limits without coupling to any specific SDK.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting returned by the model backend. Counts are in
// the model's native token unit and differ between providers for the same
// text.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages
	// and system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Some providers return
	// it directly rather than computing it from the parts.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a
// response. A zero-value request is invalid; at minimum Messages must be
// non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional instruction injected before the
	// conversation. Providers without a dedicated system field prepend it
	// as a "system"-role message.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may
	// generate. Zero means use the provider default.
	MaxTokens int
}

// CompletionResponse is the full reply to a CompletionRequest.
type CompletionResponse struct {
	// Content is the text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
//
// Each method must propagate context cancellation promptly: when ctx is
// cancelled the method returns as quickly as possible.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled before the
	// completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates how many tokens the given messages would
	// consume of the model's context window, used to bound chunk prompts
	// before sending. The result need not be exact but should not
	// undercount by much.
	CountTokens(messages []Message) (int, error)

	// Capabilities returns static limits of the configured model. The
	// result is constant for the lifetime of the Provider instance.
	Capabilities() ModelCapabilities
}
