package gemini

import "encoding/json"

type generateContentRequest struct {
	Model    string    `json:"model"`
	Contents []content `json:"contents"`
	History  []content `json:"history"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

// part lists the non-text members only so they can be rejected by name.
type part struct {
	Text             *string         `json:"text"`
	InlineData       json.RawMessage `json:"inlineData"`
	FileData         json.RawMessage `json:"fileData"`
	FunctionCall     json.RawMessage `json:"functionCall"`
	FunctionResponse json.RawMessage `json:"functionResponse"`
	ExecutableCode   json.RawMessage `json:"executableCode"`
}

type textPart struct {
	Text string `json:"text"`
}

type responseContent struct {
	Parts []textPart `json:"parts"`
	Role  string     `json:"role"`
}

type safetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
}

type candidate struct {
	Content       responseContent `json:"content"`
	FinishReason  string          `json:"finishReason,omitempty"`
	Index         int             `json:"index"`
	SafetyRatings []safetyRating  `json:"safetyRatings"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type generateContentResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
	ResponseID    string         `json:"responseId,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
