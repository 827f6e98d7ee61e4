package gemini

import (
	"encoding/json"
	"net/http"

	"dialectgate/internal/canonical"
	"dialectgate/internal/dialect"
)

func finishReason(r canonical.FinishReason) string {
	switch r {
	case canonical.FinishStop, canonical.FinishToolUse:
		return "STOP"
	case canonical.FinishLength:
		return "MAX_TOKENS"
	case canonical.FinishContentFilter:
		return "SAFETY"
	default:
		return "OTHER"
	}
}

func (Adapter) EncodeResponse(resp *canonical.Response) ([]byte, error) {
	out := generateContentResponse{
		Candidates: []candidate{{
			Content:       modelContent(resp.Text()),
			FinishReason:  finishReason(resp.FinishReason),
			Index:         0,
			SafetyRatings: []safetyRating{},
		}},
		UsageMetadata: toUsage(resp.Usage),
		ModelVersion:  resp.Model,
		ResponseID:    resp.ID,
	}
	return json.Marshal(out)
}

func (Adapter) EncodeError(err error) (int, []byte) {
	status := dialect.StatusFor(err)
	return status, errorJSON(status, err)
}

func errorJSON(status int, err error) []byte {
	body, _ := json.Marshal(errorBody{Error: errorDetail{
		Code:    status,
		Message: canonical.MessageOf(err),
		Status:  errorStatus(status),
	}})
	return body
}

func errorStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_ARGUMENT"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusGatewayTimeout:
		return "DEADLINE_EXCEEDED"
	default:
		return "INTERNAL"
	}
}

func toUsage(u *canonical.Usage) *usageMetadata {
	if u == nil {
		return &usageMetadata{}
	}
	return &usageMetadata{
		PromptTokenCount:     u.InputTokens,
		CandidatesTokenCount: u.OutputTokens,
		TotalTokenCount:      u.Total(),
	}
}

func modelContent(text string) responseContent {
	return responseContent{
		Parts: []textPart{{Text: text}},
		Role:  roleToWire[canonical.RoleAssistant],
	}
}

// Stream framing: nothing at start, one partial candidate per non-empty
// delta, one closing candidate carrying finishReason and usageMetadata.

func (Adapter) StreamContentType() string { return dialect.EventStream }

func (Adapter) EncodeStreamStart(canonical.StreamMeta) ([]byte, error) {
	return nil, nil
}

func (Adapter) EncodeStreamDelta(meta canonical.StreamMeta, d canonical.Delta) ([]byte, error) {
	if d.Text == "" {
		return nil, nil
	}
	return dialect.SSEFrame("", generateContentResponse{
		Candidates: []candidate{{
			Content:       modelContent(d.Text),
			Index:         0,
			SafetyRatings: []safetyRating{},
		}},
		ModelVersion: meta.Model,
		ResponseID:   meta.ID,
	})
}

func (Adapter) EncodeStreamEnd(meta canonical.StreamMeta, end canonical.StreamEnd) ([]byte, error) {
	return dialect.SSEFrame("", generateContentResponse{
		Candidates: []candidate{{
			Content:       modelContent(""),
			FinishReason:  finishReason(end.FinishReason),
			Index:         0,
			SafetyRatings: []safetyRating{},
		}},
		UsageMetadata: toUsage(end.Usage),
		ModelVersion:  meta.Model,
		ResponseID:    meta.ID,
	})
}

func (Adapter) EncodeStreamError(_ canonical.StreamMeta, err error) []byte {
	body := errorJSON(dialect.StatusFor(err), err)
	frame := make([]byte, 0, len(body)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, body...)
	return append(frame, "\n\n"...)
}
