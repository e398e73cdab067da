package models

import (
	"encoding/json"
	"net/http"
)

const problemBase = "https://api.kmerroute.cm/problems/"

// Problem is an RFC7807 error body, served as application/problem+json.
// Route computation failures use RouteResponse instead.
type Problem struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	TraceID  string       `json:"traceId"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError is one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Kind fixes the type URI, title and status of a class of problems.
type Kind struct {
	Type   string
	Title  string
	Status int
}

// Problem kinds served by the API.
var (
	KindValidation       = Kind{problemBase + "validation-error", "Validation error", http.StatusBadRequest}
	KindNotFound         = Kind{problemBase + "not-found", "Not found", http.StatusNotFound}
	KindUnsupportedMedia = Kind{problemBase + "unsupported-media-type", "Unsupported media type", http.StatusUnsupportedMediaType}
	KindTooManyRequests  = Kind{problemBase + "too-many-requests", "Too many requests", http.StatusTooManyRequests}
	KindInternal         = Kind{problemBase + "internal-error", "Internal server error", http.StatusInternalServerError}
	KindUnavailable      = Kind{problemBase + "service-unavailable", "Service unavailable", http.StatusServiceUnavailable}
	KindTLSRequired      = Kind{problemBase + "tls-required", "TLS required", http.StatusForbidden}
)

// New creates a problem of this kind for the request identified by traceID.
func (k Kind) New(traceID, detail string) *Problem {
	return &Problem{
		Type:    k.Type,
		Title:   k.Title,
		Status:  k.Status,
		Detail:  detail,
		TraceID: traceID,
	}
}

// WithErrors attaches field errors.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write sends the problem. The trace id doubles as the X-Request-Id header.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	h.Set("Cache-Control", "no-store")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
