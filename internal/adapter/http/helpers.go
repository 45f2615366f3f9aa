package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/budget"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/execution"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit. Unknown fields are
// rejected so typos in limits or overrides do not pass silently.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		}
		return v, false
	}
	return v, true
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// queryInt parses an optional integer query parameter. A malformed value
// writes a 400.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

// queryFloat parses an optional float query parameter.
func queryFloat(w http.ResponseWriter, r *http.Request, name string) (float64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		writeError(w, http.StatusBadRequest, name+" must be a non-negative number")
		return 0, false
	}
	return v, true
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
}

type budgetErrorResponse struct {
	Error    string          `json:"error"`
	Scope    string          `json:"scope"`
	Breaches []budget.Breach `json:"breaches"`
	Result   any             `json:"result,omitempty"`
}

type crewConfigErrorResponse struct {
	Error  string `json:"error"`
	CrewID string `json:"crew_id"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps service errors to status codes. result, when non-nil,
// accompanies a budget rejection so callers see the evaluated status.
func writeDomainError(w http.ResponseWriter, err error, fallbackMsg string, result any) {
	var (
		exceeded *budget.ExceededError
		loadErr  *execution.ConfigLoadError
	)
	switch {
	case errors.As(err, &exceeded):
		writeJSON(w, http.StatusPaymentRequired, budgetErrorResponse{
			Error:    "budget exceeded",
			Scope:    exceeded.Scope,
			Breaches: exceeded.Breaches,
			Result:   result,
		})
	case errors.As(err, &loadErr):
		// A broken or missing crew document is a server fault, whatever it wraps.
		slog.Error("crew config unavailable", "crew_id", loadErr.CrewID, "error", err)
		writeJSON(w, http.StatusInternalServerError, crewConfigErrorResponse{
			Error:  loadErr.Error(),
			CrewID: loadErr.CrewID,
		})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, stripSentinel(err, domain.ErrValidation))
	case errors.Is(err, domain.ErrNotFound):
		if fallbackMsg == "" {
			fallbackMsg = stripSentinel(err, domain.ErrNotFound)
		}
		writeError(w, http.StatusNotFound, fallbackMsg)
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, stripSentinel(err, domain.ErrConflict))
	default:
		writeInternalError(w, err)
	}
}

// stripSentinel drops the sentinel prefix from each joined error line.
func stripSentinel(err, sentinel error) string {
	lines := strings.Split(err.Error(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimPrefix(l, sentinel.Error()+": ")
	}
	return strings.Join(lines, "; ")
}

// writeInternalError logs the actual error server-side and returns a generic message to the client.
func writeInternalError(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// orEmpty keeps JSON arrays from encoding as null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
