package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponseBuilderJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResponse().JSON(map[string]int{"total": 42}).Write(rec)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]int
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["total"] != 42 {
		t.Errorf("body = %v", body)
	}
}

func TestResponseBuilderError(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResponse().Error(http.StatusBadRequest, "invalid from date").Write(rec)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Error != "invalid from date" {
		t.Errorf("error message = %q", body.Error)
	}
}

func TestResponseBuilderMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResponse().MethodNotAllowed(http.MethodGet).Write(rec)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Get("Allow"); allow != http.MethodGet {
		t.Errorf("Allow header = %q, want GET", allow)
	}
}

func TestResponseBuilderCustomHeaderAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResponse().Status(http.StatusAccepted).Header("Retry-After", "60").Write(rec)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Error("custom header missing")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}
