package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"dialectgate/internal/canonical"
	"dialectgate/internal/dialect"
)

// ParseGeminiTarget splits "{model}:{action}" on the last colon. alt=sse
// forces streaming, as the Gemini SDKs request it that way.
func ParseGeminiTarget(target, alt string) (dialect.Route, error) {
	i := strings.LastIndex(target, ":")
	if i <= 0 || i == len(target)-1 {
		return dialect.Route{}, canonical.NotFoundf("expected models/{model}:{action}, got %q", target)
	}

	route := dialect.Route{Model: target[:i]}
	switch action := target[i+1:]; action {
	case "generateContent":
	case "streamGenerateContent":
		route.Stream = true
	default:
		return dialect.Route{}, canonical.NotFoundf("unknown action %q", action)
	}
	if alt == "sse" {
		route.Stream = true
	}
	return route, nil
}

// GeminiModelAction serves /v1beta/models/{target} for the dialect handler.
func (h *DialectHandler) GeminiModelAction(w http.ResponseWriter, r *http.Request) {
	route, err := ParseGeminiTarget(chi.URLParam(r, "target"), r.URL.Query().Get("alt"))
	if err != nil {
		h.fail(w, r, false, err)
		return
	}
	h.Handle(w, r, route)
}
