package gemini

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"dialectgate/internal/canonical"
	"dialectgate/internal/dialect"
)

// Adapter implements the Gemini generateContent dialect.
type Adapter struct{}

func New() Adapter { return Adapter{} }

func (Adapter) Name() string { return "gemini" }

// An omitted role means user, as in single-turn Gemini calls.
var roleFromWire = map[string]canonical.Role{
	"":      canonical.RoleUser,
	"user":  canonical.RoleUser,
	"model": canonical.RoleAssistant,
}

var roleToWire = map[canonical.Role]string{
	canonical.RoleUser:      "user",
	canonical.RoleAssistant: "model",
}

func (Adapter) DecodeRequest(body []byte, route dialect.Route) (*canonical.Request, error) {
	var raw generateContentRequest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, canonical.WrapDecode(err, "Invalid JSON payload received")
	}

	turns := append(append([]content{}, raw.History...), raw.Contents...)
	if len(turns) == 0 {
		return nil, canonical.Decodef("contents is not specified")
	}

	msgs := make([]canonical.Message, 0, len(turns))
	for i, c := range turns {
		role, ok := roleFromWire[c.Role]
		if !ok {
			return nil, canonical.Decodef("contents[%d].role: please use a valid role: user, model", i)
		}
		blocks, err := parseParts(c.Parts, i)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, canonical.Message{Role: role, Content: blocks})
	}

	system, err := parseSystemInstruction(body)
	if err != nil {
		return nil, err
	}

	req := &canonical.Request{
		Model:             modelName(route.Model, raw.Model),
		Messages:          msgs,
		SystemInstruction: system,
		Stream:            route.Stream,
	}
	if err := applyGenerationConfig(body, req); err != nil {
		return nil, err
	}

	return canonical.NewRequest(req)
}

func parseParts(parts []part, idx int) ([]canonical.ContentBlock, error) {
	if len(parts) == 0 {
		return nil, canonical.Decodef("contents[%d].parts must not be empty", idx)
	}
	out := make([]canonical.ContentBlock, 0, len(parts))
	for j, p := range parts {
		switch {
		case !dialect.IsNull(p.InlineData), !dialect.IsNull(p.FileData):
			return nil, canonical.Unsupportedf("contents[%d].parts[%d]: media parts are not supported", idx, j)
		case !dialect.IsNull(p.FunctionCall), !dialect.IsNull(p.FunctionResponse), !dialect.IsNull(p.ExecutableCode):
			return nil, canonical.Unsupportedf("contents[%d].parts[%d]: function and code parts are not supported", idx, j)
		case p.Text != nil:
			out = append(out, canonical.TextBlock(*p.Text))
		default:
			return nil, canonical.Decodef("contents[%d].parts[%d]: part has no data", idx, j)
		}
	}
	return out, nil
}

// parseSystemInstruction accepts a bare string or a Content object, under
// either the camelCase or snake_case key.
func parseSystemInstruction(body []byte) (string, error) {
	si := field(gjson.ParseBytes(body), "systemInstruction", "system_instruction")
	switch {
	case !si.Exists() || si.Type == gjson.Null:
		return "", nil
	case si.Type == gjson.String:
		return si.String(), nil
	case si.IsObject():
		return joinTextParts(si.Get("parts"))
	default:
		return "", canonical.Decodef("systemInstruction: expected string or content object")
	}
}

func joinTextParts(parts gjson.Result) (string, error) {
	if !parts.IsArray() {
		return "", canonical.Decodef("systemInstruction.parts: expected array")
	}
	var texts []string
	var err error
	parts.ForEach(func(_, p gjson.Result) bool {
		t := p.Get("text")
		if t.Type != gjson.String {
			err = canonical.Unsupportedf("systemInstruction: only text parts are supported")
			return false
		}
		texts = append(texts, t.String())
		return true
	})
	if err != nil {
		return "", err
	}
	return strings.Join(texts, "\n"), nil
}

func applyGenerationConfig(body []byte, req *canonical.Request) error {
	cfg := field(gjson.ParseBytes(body), "generationConfig", "generation_config")
	if !cfg.Exists() || cfg.Type == gjson.Null {
		return nil
	}
	if !cfg.IsObject() {
		return canonical.Decodef("generationConfig: expected object")
	}

	if v := field(cfg, "maxOutputTokens", "max_output_tokens"); v.Exists() {
		if v.Type != gjson.Number {
			return canonical.Decodef("generationConfig.maxOutputTokens: expected integer")
		}
		f := v.Float()
		if f != math.Trunc(f) {
			return canonical.Decodef("generationConfig.maxOutputTokens: expected integer, got %s", v.Raw)
		}
		if f < 0 || f > math.MaxInt32 {
			return canonical.Validationf("max output tokens must be between 1 and %d, got %s", math.MaxInt32, v.Raw)
		}
		n := int(f)
		req.MaxOutputTokens = &n
	}
	if v := cfg.Get("temperature"); v.Exists() {
		if v.Type != gjson.Number {
			return canonical.Decodef("generationConfig.temperature: expected number")
		}
		f := v.Float()
		req.Temperature = &f
	}
	if v := field(cfg, "topP", "top_p"); v.Exists() {
		if v.Type != gjson.Number {
			return canonical.Decodef("generationConfig.topP: expected number")
		}
		f := v.Float()
		req.TopP = &f
	}
	if v := field(cfg, "stopSequences", "stop_sequences"); v.IsArray() {
		for _, s := range v.Array() {
			req.StopSequences = append(req.StopSequences, s.String())
		}
	}
	if cfg.Get("stream").Bool() {
		req.Stream = true
	}
	if v := field(cfg, "candidateCount", "candidate_count"); v.Exists() && v.Int() > 1 {
		return canonical.Unsupportedf("generationConfig.candidateCount: only one candidate is supported")
	}
	return nil
}

// field returns the first present key among aliases.
func field(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func modelName(fromRoute, fromBody string) string {
	m := fromRoute
	if m == "" {
		m = fromBody
	}
	return strings.TrimPrefix(strings.TrimSpace(m), "models/")
}
