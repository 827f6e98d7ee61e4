package anthropic

import (
	"encoding/json"
	"strings"

	"dialectgate/internal/canonical"
	"dialectgate/internal/dialect"
)

// Adapter implements the Anthropic messages dialect.
type Adapter struct{}

func New() Adapter { return Adapter{} }

func (Adapter) Name() string { return "anthropic" }

var roleFromWire = map[string]canonical.Role{
	"user":      canonical.RoleUser,
	"assistant": canonical.RoleAssistant,
}

var roleToWire = map[canonical.Role]string{
	canonical.RoleUser:      "user",
	canonical.RoleAssistant: "assistant",
}

func (Adapter) DecodeRequest(body []byte, _ dialect.Route) (*canonical.Request, error) {
	var raw messagesRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, canonical.WrapDecode(err, "request body is not valid JSON")
	}

	model := strings.TrimSpace(raw.Model)
	if model == "" {
		return nil, canonical.Decodef("model: field required")
	}
	if raw.MaxTokens == nil {
		return nil, canonical.Decodef("max_tokens: field required")
	}
	if len(raw.Messages) == 0 {
		return nil, canonical.Decodef("messages: at least one message is required")
	}

	system, err := parseSystem(raw.System)
	if err != nil {
		return nil, err
	}

	msgs := make([]canonical.Message, 0, len(raw.Messages))
	for i, m := range raw.Messages {
		role, ok := roleFromWire[m.Role]
		if !ok {
			return nil, canonical.Decodef("messages.%d.role: unexpected role %q", i, m.Role)
		}
		blocks, err := parseContent(m.Content, i)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, canonical.Message{Role: role, Content: blocks})
	}

	return canonical.NewRequest(&canonical.Request{
		Model:             model,
		Messages:          msgs,
		SystemInstruction: system,
		MaxOutputTokens:   raw.MaxTokens,
		Temperature:       raw.Temperature,
		TopP:              raw.TopP,
		StopSequences:     raw.StopSequences,
		Stream:            raw.Stream,
	})
}

// parseSystem accepts a plain string or a list of text blocks.
func parseSystem(raw json.RawMessage) (string, error) {
	if dialect.IsNull(raw) {
		return "", nil
	}
	if dialect.IsJSONString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", canonical.WrapDecode(err, "system: invalid string")
		}
		return s, nil
	}

	var blocks []contentBlockParam
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", canonical.WrapDecode(err, "system: expected string or list of text blocks")
	}
	parts := make([]string, 0, len(blocks))
	for i, b := range blocks {
		if b.Type != "text" {
			return "", canonical.Unsupportedf("system.%d: content block type %q is not supported", i, b.Type)
		}
		if b.Text != nil {
			parts = append(parts, *b.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func parseContent(raw json.RawMessage, idx int) ([]canonical.ContentBlock, error) {
	if dialect.IsNull(raw) {
		return nil, canonical.Decodef("messages.%d.content: field required", idx)
	}
	if dialect.IsJSONString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, canonical.WrapDecode(err, "messages content: invalid string")
		}
		return []canonical.ContentBlock{canonical.TextBlock(s)}, nil
	}

	var blocks []contentBlockParam
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, canonical.WrapDecode(err, "messages content: expected string or list of content blocks")
	}
	out := make([]canonical.ContentBlock, 0, len(blocks))
	for j, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text == nil {
				return nil, canonical.Decodef("messages.%d.content.%d.text: field required", idx, j)
			}
			out = append(out, canonical.TextBlock(*b.Text))
		case "":
			return nil, canonical.Decodef("messages.%d.content.%d.type: field required", idx, j)
		default:
			return nil, canonical.Unsupportedf("messages.%d.content.%d: content block type %q is not supported", idx, j, b.Type)
		}
	}
	return out, nil
}
