package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := New()
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var body response
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestReadyz_NoProbes(t *testing.T) {
	t.Parallel()

	h := New()
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReadyz_AllProbesPass(t *testing.T) {
	t.Parallel()

	h := New()
	h.AddProbe("archive", func(context.Context) error { return nil })
	h.AddProbe("providers", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body response
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	for _, name := range []string{"archive", "providers"} {
		if body.Checks[name].Status != "ok" {
			t.Errorf("%s probe = %q, want ok", name, body.Checks[name].Status)
		}
	}
}

func TestReadyz_ProbeFails(t *testing.T) {
	t.Parallel()

	h := New()
	h.AddProbe("archive", func(context.Context) error {
		return errors.New("connection refused")
	})
	h.AddProbe("providers", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body response
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want fail", body.Status)
	}
	archive := body.Checks["archive"]
	if archive.Status != "fail" || archive.Error != "connection refused" {
		t.Errorf("archive probe = %+v, want fail/connection refused", archive)
	}
	if body.Checks["providers"].Status != "ok" {
		t.Errorf("providers probe = %q, want ok", body.Checks["providers"].Status)
	}
}

func TestReadyz_ProbeReplaced(t *testing.T) {
	t.Parallel()

	h := New()
	h.AddProbe("archive", func(context.Context) error { return errors.New("down") })
	h.AddProbe("archive", func(context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest("GET", "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}
