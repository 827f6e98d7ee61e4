package anthropic

import (
	"encoding/json"
	"net/http"

	"dialectgate/internal/canonical"
	"dialectgate/internal/dialect"
)

// stopReason maps a canonical finish reason to stop_reason. Unknown reasons
// fall back to end_turn.
func stopReason(r canonical.FinishReason) string {
	switch r {
	case canonical.FinishLength:
		return "max_tokens"
	case canonical.FinishContentFilter:
		return "stop_sequence"
	case canonical.FinishToolUse:
		return "tool_use"
	default:
		return "end_turn"
	}
}

func (Adapter) EncodeResponse(resp *canonical.Response) ([]byte, error) {
	content := make([]textBlock, 0, len(resp.Content))
	for _, b := range resp.Content {
		if b.Kind == canonical.BlockText {
			content = append(content, textBlock{Type: "text", Text: b.Text})
		}
	}
	if len(content) == 0 {
		content = append(content, textBlock{Type: "text", Text: ""})
	}

	reason := stopReason(resp.FinishReason)
	out := message{
		ID:         resp.ID,
		Type:       "message",
		Role:       roleToWire[canonical.RoleAssistant],
		Model:      resp.Model,
		Content:    content,
		StopReason: &reason,
		Usage:      toUsage(resp.Usage),
	}
	return json.Marshal(out)
}

func (Adapter) EncodeError(err error) (int, []byte) {
	status := dialect.StatusFor(err)
	body, _ := json.Marshal(errorBody{
		Type:  "error",
		Error: errorDetail{Type: errorType(status), Message: canonical.MessageOf(err)},
	})
	return status, body
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusNotFound:
		return "not_found_error"
	case http.StatusGatewayTimeout:
		return "timeout_error"
	default:
		return "api_error"
	}
}

func toUsage(u *canonical.Usage) usage {
	if u == nil {
		return usage{}
	}
	return usage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
}
