package canonical

import "math"

// NewRequest validates r and returns it, so decoders can finish with a
// single call.
func NewRequest(r *Request) (*Request, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate enforces the canonical invariants. Role alternation is left to
// the dialects.
func (r *Request) Validate() error {
	if r == nil {
		return Validationf("request is nil")
	}
	if len(r.Messages) == 0 {
		return Validationf("at least one message is required")
	}

	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return Validationf("invalid role %q in messages[%d]", m.Role, i)
		}
	}

	if r.MaxOutputTokens != nil && *r.MaxOutputTokens <= 0 {
		return Validationf("max output tokens must be positive, got %d", *r.MaxOutputTokens)
	}
	// backends carry the limit as int32
	if r.MaxOutputTokens != nil && *r.MaxOutputTokens > math.MaxInt32 {
		return Validationf("max output tokens must be at most %d, got %d", math.MaxInt32, *r.MaxOutputTokens)
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return Validationf("temperature must be between 0 and 2")
	}
	if r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1) {
		return Validationf("top_p must be between 0 and 1")
	}

	return nil
}
