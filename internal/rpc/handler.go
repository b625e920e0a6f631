// Package rpc exposes procedures over HTTP and provides the matching client
// transport.
//
// Queries are served at GET {prefix}/query/{name}?input=<json> and commands at
// POST {prefix}/command/{name} with a JSON body. A successful call responds
// with the procedure result as JSON. A failed call responds with a
// cache.ErrorInfo document and a status derived from its code.
package rpc

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/goliatone/go-querysync/cache"
	"github.com/goliatone/go-querysync/querysync"
)

const maxBodyBytes = 1 << 20

// Handler serves a querysync.Transport, usually a *querysync.Router.
type Handler struct {
	transport querysync.Transport
}

// NewHandler creates a handler over transport.
func NewHandler(transport querysync.Transport) *Handler {
	return &Handler{transport: transport}
}

// Routes returns a router to mount under a prefix such as /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/query/{name}", h.handleQuery)
	r.Post("/command/{name}", h.handleCommand)
	return r
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var params json.RawMessage
	if input := r.URL.Query().Get("input"); input != "" {
		if !json.Valid([]byte(input)) {
			writeError(w, r, &cache.ErrorInfo{Code: cache.CodeValidation, Message: "input is not valid JSON"})
			return
		}
		params = json.RawMessage(input)
	}

	data, err := h.transport.Read(r.Context(), name, params)
	if err != nil {
		writeError(w, r, cache.Classify(err))
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeError(w, r, &cache.ErrorInfo{Code: cache.CodeValidation, Message: "could not read body"})
		return
	}
	if len(body) > maxBodyBytes {
		writeError(w, r, &cache.ErrorInfo{Code: cache.CodeValidation, Message: "body is too large"})
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		writeError(w, r, &cache.ErrorInfo{Code: cache.CodeValidation, Message: "body is not valid JSON"})
		return
	}

	data, err := h.transport.Write(r.Context(), name, body)
	if err != nil {
		writeError(w, r, cache.Classify(err))
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// StatusFor maps a failure code to its HTTP status.
func StatusFor(code cache.ErrorCode) int {
	switch code {
	case cache.CodeValidation:
		return http.StatusBadRequest
	case cache.CodeUnauthorized:
		return http.StatusUnauthorized
	case cache.CodeNotFound:
		return http.StatusNotFound
	case cache.CodeTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, info *cache.ErrorInfo) {
	status := StatusFor(info.Code)
	level := zerolog.DebugLevel
	if status >= http.StatusInternalServerError {
		level = zerolog.ErrorLevel
	}
	hlog.FromRequest(r).WithLevel(level).
		Str("procedure", chi.URLParam(r, "name")).
		Str("code", string(info.Code)).
		Msg(info.Message)

	body, err := json.Marshal(info)
	if err != nil {
		http.Error(w, info.Message, status)
		return
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
