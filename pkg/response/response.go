// Package response writes the JSON bodies of the upload API.
//
// Regular endpoints use the status/message/data envelope. The upload
// endpoints additionally carry Fine Uploader's "success" flag at the top
// level, which the browser widget reads to decide between onComplete and
// onError:
//
//	{"status":200,"success":true,"newUuid":"...","data":{...}}
//	{"status":422,"success":false,"error":"rejected","preventRetry":true}
package response

import (
	"encoding/json"
	"net/http"
)

type envelope struct {
	Status  int         `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

type uploadEnvelope struct {
	Status       int         `json:"status"`
	Success      bool        `json:"success"`
	NewUUID      string      `json:"newUuid,omitempty"`
	Error        string      `json:"error,omitempty"`
	PreventRetry bool        `json:"preventRetry,omitempty"`
	Data         interface{} `json:"data,omitempty"`
}

func write(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body) //nolint:errcheck
}

// Success sends a 200 JSON response with data.
func Success(w http.ResponseWriter, data interface{}) {
	write(w, http.StatusOK, envelope{Status: http.StatusOK, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(w http.ResponseWriter, data interface{}) {
	write(w, http.StatusCreated, envelope{Status: http.StatusCreated, Data: data})
}

// Accepted sends a 202 JSON response with data.
func Accepted(w http.ResponseWriter, data interface{}) {
	write(w, http.StatusAccepted, envelope{Status: http.StatusAccepted, Data: data})
}

// Error sends a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	write(w, status, envelope{Status: status, Message: message})
}

// ValidationError sends a 422 with field-level error map.
func ValidationError(w http.ResponseWriter, errs map[string]string) {
	write(w, http.StatusUnprocessableEntity, envelope{
		Status:  http.StatusUnprocessableEntity,
		Message: "Validation failed",
		Errors:  errs,
	})
}

// UploadSuccess answers an upload request the way Fine Uploader expects.
// uuid becomes newUuid so the widget adopts the server's identifier.
func UploadSuccess(w http.ResponseWriter, status int, uuid string, data interface{}) {
	write(w, status, uploadEnvelope{Status: status, Success: true, NewUUID: uuid, Data: data})
}

// UploadFailure answers a failed upload request. preventRetry tells the
// widget not to offer a retry, which is right for callback vetoes and
// validation errors.
func UploadFailure(w http.ResponseWriter, status int, message string, preventRetry bool) {
	write(w, status, uploadEnvelope{Status: status, Error: message, PreventRetry: preventRetry})
}

// Unauthorized sends a 401.
func Unauthorized(w http.ResponseWriter) {
	Error(w, http.StatusUnauthorized, "Unauthorized")
}

// Forbidden sends a 403.
func Forbidden(w http.ResponseWriter) {
	Error(w, http.StatusForbidden, "Forbidden")
}

// NotFound sends a 404.
func NotFound(w http.ResponseWriter) {
	Error(w, http.StatusNotFound, "Not found")
}
