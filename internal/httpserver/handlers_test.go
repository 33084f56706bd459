// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// Unit tests for the HTTP request handlers.

package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"dbgrid/internal/config"
)

func newTestHandler() *handler {
	return &handler{deps: Dependencies{Config: config.Config{MaxRowsDefault: 50}}}
}

func TestHandleLive(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	rec := httptest.NewRecorder()
	h.handleLive(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "alive" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHandleStatusShape(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	h.handleStatus(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"hostname", "os", "architecture", "cpu_count", "cpu_load", "memory"} {
		if _, ok := body[key]; !ok {
			t.Fatalf("expected key %q in status body, got %v", key, body)
		}
	}
}

func TestHandleQueryRejectsMalformedBody(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	h.handleQuery(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["detail"] == "" {
		t.Fatalf("expected detail message, got %v", body)
	}
}

func TestHandleQueryRejectsEmptySQL(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(`{"sql":""}`))
	rec := httptest.NewRecorder()
	h.handleQuery(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
