// JSON response construction. A small builder keeps status, headers and
// body assembly consistent across handlers.
package http

import (
	"encoding/json"
	"net/http"
)

// ResponseBuilder accumulates a JSON API response.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the response payload.
func (b *ResponseBuilder) JSON(payload any) *ResponseBuilder {
	b.payload = payload
	return b
}

// errorBody is the uniform error envelope.
type errorBody struct {
	Error string `json:"error"`
}

func (b *ResponseBuilder) Error(code int, message string) *ResponseBuilder {
	b.statusCode = code
	b.payload = errorBody{Error: message}
	return b
}

func (b *ResponseBuilder) MethodNotAllowed(allowed string) *ResponseBuilder {
	b.headers["Allow"] = allowed
	return b.Error(http.StatusMethodNotAllowed, "method not allowed")
}

func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.payload)
	if err != nil {
		http.Error(w, `{"error":"response encoding failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
}
