package llm

import (
	"fmt"

	"dialectgate/internal/canonical"
)

const maxMessageSize = 512 * 1024 // 512KB per message content

// toProviderRequest flattens a canonical request into chat messages, with the
// system instruction as the leading system message.
func (c *OpenAIClient) toProviderRequest(req *canonical.Request, stream bool) (providerChatRequest, error) {
	msgs := make([]providerMessage, 0, len(req.Messages)+1)
	if req.SystemInstruction != "" {
		msgs = append(msgs, providerMessage{Role: "system", Content: req.SystemInstruction})
	}
	for i, m := range req.Messages {
		text := m.Text()
		if len(text) > maxMessageSize {
			return providerChatRequest{}, fmt.Errorf(
				"openai backend: message[%d] content too large (%d bytes, max %d)",
				i, len(text), maxMessageSize,
			)
		}
		msgs = append(msgs, providerMessage{Role: string(m.Role), Content: text})
	}

	out := providerChatRequest{
		Model:       ResolveModel(req.Model, c.cfg.Model, c.cfg.OverrideModel),
		Messages:    msgs,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxOutputTokens,
		Stop:        req.StopSequences,
		Stream:      stream,
	}
	if stream {
		out.StreamOptions = &providerStreamOptions{IncludeUsage: true}
	}
	return out, nil
}

// FinishReasonFromOpenAI maps an upstream finish_reason. An empty value
// means the choice has not finished.
func FinishReasonFromOpenAI(s string) canonical.FinishReason {
	switch s {
	case "":
		return ""
	case "stop":
		return canonical.FinishStop
	case "length":
		return canonical.FinishLength
	case "content_filter":
		return canonical.FinishContentFilter
	case "tool_calls", "function_call":
		return canonical.FinishToolUse
	default:
		return canonical.FinishOther
	}
}

func fromProviderUsage(u *providerUsage) *canonical.Usage {
	if u == nil {
		return nil
	}
	return &canonical.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
}
