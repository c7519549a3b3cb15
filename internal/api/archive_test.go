package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func archiveRouter(h *ArchiveHandler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/api/v1/archive/{room}", h.RoomFragments)
	return r
}

func TestArchiveNotConfigured(t *testing.T) {
	r := archiveRouter(NewArchiveHandler(nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/archive/42", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error != "archive not configured" {
		t.Errorf("error = %q, want archive not configured", resp.Error)
	}
}

func TestArchiveInvalidLimit(t *testing.T) {
	r := archiveRouter(NewArchiveHandler(nil))

	for _, limit := range []string{"abc", "0", "-5"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/archive/42?limit="+limit, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", limit, rec.Code)
		}
	}
}
