// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestHandlerLiveness(t *testing.T) {
	checker := NewChecker()
	handler := NewHandler(checker)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.Liveness(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var resp probeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != StatusHealthy {
		t.Errorf("expected healthy status, got %s", resp.Status)
	}
}

func TestHandlerReadiness(t *testing.T) {
	checker := NewChecker()
	handler := NewHandler(checker)

	// No checks: ready by default
	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()

	handler.Readiness(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	// A failing check makes readiness return 503
	checker.RegisterCheck("storage", func(ctx context.Context) CheckResult {
		return CheckResult{
			Name:   "storage",
			Status: StatusUnhealthy,
			Error:  "disk full",
		}
	})

	rec = httptest.NewRecorder()
	handler.Readiness(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}

	var resp probeResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy status, got %s", resp.Status)
	}
	if len(resp.Checks) != 1 || resp.Checks[0].Name != "storage" {
		t.Errorf("expected storage check in response, got %+v", resp.Checks)
	}
}

func TestHandlerStartup(t *testing.T) {
	checker := NewChecker()
	handler := NewHandler(checker)

	req := httptest.NewRequest("GET", "/startupz", nil)
	rec := httptest.NewRecorder()

	handler.Startup(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 before MarkStarted, got %d", rec.Code)
	}

	checker.MarkStarted()

	rec = httptest.NewRecorder()
	handler.Startup(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 after MarkStarted, got %d", rec.Code)
	}
}

func TestMountChi(t *testing.T) {
	checker := NewChecker()
	checker.MarkStarted()
	handler := NewHandler(checker)

	router := chi.NewRouter()
	MountChi(router, handler)

	for _, path := range []string{"/healthz", "/readyz", "/startupz"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()

		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, rec.Code)
		}
	}
}
