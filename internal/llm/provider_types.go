package llm

// Request shape we send upstream (OpenAI-compatible).
type providerMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type providerStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type providerChatRequest struct {
	Model         string                 `json:"model"`
	Messages      []providerMessage      `json:"messages"`
	Temperature   *float64               `json:"temperature,omitempty"`
	TopP          *float64               `json:"top_p,omitempty"`
	MaxTokens     *int                   `json:"max_tokens,omitempty"`
	Stop          []string               `json:"stop,omitempty"`
	Stream        bool                   `json:"stream,omitempty"`
	StreamOptions *providerStreamOptions `json:"stream_options,omitempty"`
}

type providerChatChoice struct {
	Index        int             `json:"index"`
	Message      providerMessage `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

type providerUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type providerChatResponse struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []providerChatChoice `json:"choices"`
	Usage   *providerUsage       `json:"usage,omitempty"`
}

type providerErrorResponse struct {
	Error struct {
		Message string      `json:"message"`
		Type    string      `json:"type"`
		Code    interface{} `json:"code"`
	} `json:"error"`
}

// Chunk shape for streaming responses (each SSE "data:" event).
type providerStreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *providerUsage `json:"usage,omitempty"`
}
