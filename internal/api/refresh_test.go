package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-it600/internal/device"
	"github.com/nerrad567/gray-logic-it600/internal/poll"
)

func TestRefreshCategory_Success(t *testing.T) {
	srv, _ := testServer(t)

	w := doRequest(srv, http.MethodPost, "/api/v1/categories/climate/refresh", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var result RefreshResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if result.Category != "climate" {
		t.Errorf("category = %q, want climate", result.Category)
	}
	// Seeding ran cycle 1; this request ran cycle 2.
	if result.Sequence != 2 {
		t.Errorf("sequence = %d, want 2", result.Sequence)
	}
	if result.Devices != 1 {
		t.Errorf("devices = %d, want 1", result.Devices)
	}
	if result.Stats.Cycles != 2 {
		t.Errorf("stats cycles = %d, want 2", result.Stats.Cycles)
	}
	if result.Stats.Failures != 0 {
		t.Errorf("stats failures = %d, want 0", result.Stats.Failures)
	}
	if result.Taken.IsZero() {
		t.Error("taken should be set")
	}
}

func TestRefreshCategory_UnknownCategory(t *testing.T) {
	srv, _ := testServer(t)

	w := doRequest(srv, http.MethodPost, "/api/v1/categories/lighting/refresh", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRefreshCategory_GiveUp(t *testing.T) {
	srv, fx := testServer(t)
	fx.gw.setPollErr(errors.New("connection refused"))

	w := doRequest(srv, http.MethodPost, "/api/v1/categories/climate/refresh", "")

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusBadGateway, w.Body.String())
	}

	resp := decodeBody(t, w)
	if resp["code"] != string(poll.KindTransport) {
		t.Errorf("code = %v, want %s", resp["code"], poll.KindTransport)
	}
	msg, _ := resp["message"].(string)
	if !strings.Contains(msg, "refresh failed after") {
		t.Errorf("message = %q, want give-up description", msg)
	}
}

func TestRefreshCategory_NoData(t *testing.T) {
	srv, fx := testServer(t)
	fx.gw.setDevices(device.CategoryClimate, nil)

	w := doRequest(srv, http.MethodPost, "/api/v1/categories/climate/refresh", "")

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	resp := decodeBody(t, w)
	if resp["code"] != string(poll.KindNoData) {
		t.Errorf("code = %v, want %s", resp["code"], poll.KindNoData)
	}
}

func TestRefreshCategory_GiveUpRetainsSnapshot(t *testing.T) {
	srv, fx := testServer(t)
	fx.gw.setPollErr(errors.New("connection refused"))

	w := doRequest(srv, http.MethodPost, "/api/v1/categories/climate/refresh", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}

	// The failed cycle must not disturb reads.
	w = doRequest(srv, http.MethodGet, "/api/v1/devices/trv-01", "")
	if w.Code != http.StatusOK {
		t.Errorf("device read after failed refresh = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRefreshCategory_CallerTimeout(t *testing.T) {
	srv, fx := testServer(t)
	fx.gw.setPollDelay(200 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/categories/climate/refresh", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusGatewayTimeout, w.Body.String())
	}
	resp := decodeBody(t, w)
	if resp["code"] != ErrCodeWaitTimeout {
		t.Errorf("code = %v, want %s", resp["code"], ErrCodeWaitTimeout)
	}

	// The abandoned cycle still completes in the background.
	co, err := srv.manager.Coordinator(device.CategoryClimate)
	if err != nil {
		t.Fatalf("Coordinator: %v", err)
	}
	waitFor(t, func() bool { return co.Stats().Cycles == 2 },
		"expected the cycle to finish after the caller gave up")
}

func TestRefreshCategory_Stopped(t *testing.T) {
	srv, fx := testServer(t)
	fx.manager.Stop()

	w := doRequest(srv, http.MethodPost, "/api/v1/categories/climate/refresh", "")

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
