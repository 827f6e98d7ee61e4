package canonical

import (
	"encoding/json"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the canonical roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type BlockKind string

const BlockText BlockKind = "text"

// ContentBlock is a tagged variant. Only Text is interpreted today; Raw keeps
// the original payload of other kinds so encoders can skip them.
type ContentBlock struct {
	Kind BlockKind       `json:"kind"`
	Text string          `json:"text,omitempty"`
	Raw  json.RawMessage `json:"raw,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(s string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: s}
}

type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Text concatenates the text blocks of the message.
func (m Message) Text() string {
	return joinText(m.Content)
}

type Request struct {
	Model             string    `json:"model"`
	Messages          []Message `json:"messages"`
	SystemInstruction string    `json:"system_instruction,omitempty"`
	MaxOutputTokens   *int      `json:"max_output_tokens,omitempty"`
	Temperature       *float64  `json:"temperature,omitempty"`
	TopP              *float64  `json:"top_p,omitempty"`
	StopSequences     []string  `json:"stop_sequences,omitempty"`
	Stream            bool      `json:"stream"`
}

type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolUse       FinishReason = "tool_use"
	FinishError         FinishReason = "error"
	FinishOther         FinishReason = "other"
)

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

type Response struct {
	ID           string         `json:"id"`
	Model        string         `json:"model"`
	Role         Role           `json:"role"`
	Content      []ContentBlock `json:"content"`
	FinishReason FinishReason   `json:"finish_reason"`
	Usage        *Usage         `json:"usage,omitempty"`
	Created      time.Time      `json:"created"`
}

// Text concatenates the text blocks of the response.
func (r *Response) Text() string {
	return joinText(r.Content)
}

// Delta is one streamed fragment. Index is the choice/content block the
// fragment belongs to, not its position in the stream.
type Delta struct {
	Index        int          `json:"index"`
	Text         string       `json:"text"`
	IsFinal      bool         `json:"is_final"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`
}

// StreamMeta identifies one outbound stream.
type StreamMeta struct {
	ID      string
	Model   string
	Created time.Time
}

// StreamEnd carries what is known once the backend finished.
type StreamEnd struct {
	FinishReason FinishReason
	Usage        *Usage
}

func joinText(blocks []ContentBlock) string {
	var b strings.Builder
	for _, c := range blocks {
		if c.Kind == BlockText {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}
