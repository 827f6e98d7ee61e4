package openai

import (
	"encoding/json"
	"strings"

	"dialectgate/internal/canonical"
	"dialectgate/internal/dialect"
)

// Adapter implements the OpenAI chat completions dialect.
type Adapter struct{}

func New() Adapter { return Adapter{} }

func (Adapter) Name() string { return "openai" }

// roleFromWire lists roles that become conversation turns. System and
// developer messages are folded into the system instruction instead.
var roleFromWire = map[string]canonical.Role{
	"user":      canonical.RoleUser,
	"assistant": canonical.RoleAssistant,
}

var systemRoles = map[string]bool{"system": true, "developer": true}

var unsupportedRoles = map[string]bool{"tool": true, "function": true}

func (Adapter) DecodeRequest(body []byte, _ dialect.Route) (*canonical.Request, error) {
	var raw chatCompletionRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, canonical.WrapDecode(err, "request body is not valid JSON")
	}

	model := strings.TrimSpace(raw.Model)
	if model == "" {
		return nil, canonical.Decodef("you must provide a model parameter")
	}
	if len(raw.Messages) == 0 {
		return nil, canonical.Decodef("messages: at least one message is required")
	}
	if raw.N != nil && *raw.N != 1 {
		return nil, canonical.Unsupportedf("n: only a single choice is supported")
	}

	stop, err := parseStop(raw.Stop)
	if err != nil {
		return nil, err
	}

	var system []string
	msgs := make([]canonical.Message, 0, len(raw.Messages))
	for i, m := range raw.Messages {
		switch {
		case systemRoles[m.Role]:
			text, err := parseContent(m.Content, i)
			if err != nil {
				return nil, err
			}
			system = append(system, joinBlocks(text))
		case unsupportedRoles[m.Role]:
			return nil, canonical.Unsupportedf("messages[%d]: role %q is not supported", i, m.Role)
		default:
			role, ok := roleFromWire[m.Role]
			if !ok {
				return nil, canonical.Decodef("messages[%d].role: invalid value %q", i, m.Role)
			}
			if role == canonical.RoleAssistant && dialect.IsNull(m.Content) {
				return nil, canonical.Unsupportedf("messages[%d]: assistant message without text content is not supported", i)
			}
			blocks, err := parseContent(m.Content, i)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, canonical.Message{Role: role, Content: blocks})
		}
	}

	maxTokens := raw.MaxCompletionTokens
	if maxTokens == nil {
		maxTokens = raw.MaxTokens
	}

	return canonical.NewRequest(&canonical.Request{
		Model:             model,
		Messages:          msgs,
		SystemInstruction: strings.Join(system, "\n"),
		MaxOutputTokens:   maxTokens,
		Temperature:       raw.Temperature,
		TopP:              raw.TopP,
		StopSequences:     stop,
		Stream:            raw.Stream,
	})
}

func parseContent(raw json.RawMessage, idx int) ([]canonical.ContentBlock, error) {
	if dialect.IsNull(raw) {
		return nil, canonical.Decodef("messages[%d].content: field required", idx)
	}
	if dialect.IsJSONString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, canonical.WrapDecode(err, "messages content: invalid string")
		}
		return []canonical.ContentBlock{canonical.TextBlock(s)}, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, canonical.WrapDecode(err, "messages content: expected string or array of content parts")
	}
	out := make([]canonical.ContentBlock, 0, len(parts))
	for j, p := range parts {
		switch p.Type {
		case "text":
			if p.Text == nil {
				return nil, canonical.Decodef("messages[%d].content[%d].text: field required", idx, j)
			}
			out = append(out, canonical.TextBlock(*p.Text))
		case "":
			return nil, canonical.Decodef("messages[%d].content[%d].type: field required", idx, j)
		default:
			return nil, canonical.Unsupportedf("messages[%d].content[%d]: content part type %q is not supported", idx, j, p.Type)
		}
	}
	return out, nil
}

// parseStop accepts a single string or a list of strings.
func parseStop(raw json.RawMessage) ([]string, error) {
	if dialect.IsNull(raw) {
		return nil, nil
	}
	if dialect.IsJSONString(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, canonical.WrapDecode(err, "stop: invalid string")
		}
		return []string{s}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, canonical.WrapDecode(err, "stop: expected string or array of strings")
	}
	return list, nil
}

func joinBlocks(blocks []canonical.ContentBlock) string {
	return canonical.Message{Content: blocks}.Text()
}
