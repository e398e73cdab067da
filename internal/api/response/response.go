// Package response writes JSON and Problem+JSON responses for the routing API.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/kmerroute/kmerroute/internal/api/middleware"
	"github.com/kmerroute/kmerroute/internal/api/models"
)

// JSON encodes data with the given status. The body is marshalled before the
// header is sent, so an encoding failure still yields a 500 problem. A nil
// data writes no body.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	var body []byte
	if data != nil {
		var err error
		if body, err = json.Marshal(data); err != nil {
			Problem(w, r, models.KindInternal, "response encoding failed")
			return
		}
		body = append(body, '\n')
	}

	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes a prepared problem for this request.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// Problem writes a problem of the given kind.
func Problem(w http.ResponseWriter, r *http.Request, kind models.Kind, detail string) {
	Error(w, r, kind.New(middleware.GetRequestID(r.Context()), detail))
}

// BadRequest writes a 400 validation problem with optional field errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	problem := models.KindValidation.New(middleware.GetRequestID(r.Context()), detail).WithErrors(errors)
	Error(w, r, problem)
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindNotFound, detail)
}

// ServiceUnavailable writes a 503 problem.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Problem(w, r, models.KindUnavailable, detail)
}
