package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Endpoints lists the routes advertised by the info and 404 handlers.
var Endpoints = []string{
	"POST /v1/chat/completions (OpenAI format)",
	"POST /v1/messages (Anthropic format)",
	"POST /v1/generateContent (Gemini format)",
	"POST /v1beta/models/{model}:generateContent (Gemini SDK)",
	"POST /v1beta/models/{model}:streamGenerateContent (Gemini SDK)",
	"GET /v1/models",
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// Models answers GET /v1/models with the backend's default model.
func Models(backendKind, model string) http.HandlerFunc {
	created := time.Now().Unix()
	return func(w http.ResponseWriter, r *http.Request) {
		list := modelList{Object: "list", Data: []modelEntry{}}
		if model != "" {
			list.Data = append(list.Data, modelEntry{ID: model, Object: "model", Created: created, OwnedBy: backendKind})
		}
		writeValue(w, http.StatusOK, list)
	}
}

type serviceInfo struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Backend   string   `json:"backend"`
	Model     string   `json:"model,omitempty"`
	Endpoints []string `json:"endpoints"`
	Dialects  []string `json:"dialects"`
}

// Info answers GET / with a description of the gateway.
func Info(version, backendKind, model string) http.HandlerFunc {
	info := serviceInfo{
		Name:      "dialectgate",
		Version:   version,
		Backend:   backendKind,
		Model:     model,
		Endpoints: Endpoints,
		Dialects:  []string{"anthropic", "openai", "gemini"},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeValue(w, http.StatusOK, info)
	}
}

type notFoundBody struct {
	Error              string   `json:"error"`
	Message            string   `json:"message"`
	Path               string   `json:"path"`
	Method             string   `json:"method"`
	Timestamp          string   `json:"timestamp"`
	AvailableEndpoints []string `json:"available_endpoints"`
}

// NotFound is the router fallback for unknown paths and methods.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeValue(w, http.StatusNotFound, notFoundBody{
		Error:              "not_found",
		Message:            fmt.Sprintf("Path %s %s does not exist", r.Method, r.URL.Path),
		Path:               r.URL.Path,
		Method:             r.Method,
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		AvailableEndpoints: Endpoints,
	})
}

func writeValue(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, body)
}
