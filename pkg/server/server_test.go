// Copyright 2025 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/binkynet/PWMWorker/pkg/pca9685"
	"github.com/binkynet/PWMWorker/pkg/service"
	"github.com/binkynet/PWMWorker/pkg/service/bridge"
)

const testOEPin = 4

func newTestRouter(t *testing.T, configure bool) (*echo.Echo, *bridge.VirtualBridge) {
	t.Helper()
	br := bridge.NewVirtualBridge(0x40)
	svc, err := service.NewService(service.Config{
		Address:             0x40,
		PWMFrequency:        50,
		OscillatorFrequency: pca9685.DefaultOscillatorFrequency,
		OutputEnablePin:     testOEPin,
	}, service.Dependencies{Logger: zerolog.Nop(), Bridge: br})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if configure {
		if err := svc.Configure(context.Background()); err != nil {
			t.Fatalf("Configure: %v", err)
		}
	}
	return New(Config{}, zerolog.Nop(), svc).newRouter(), br
}

func do(t *testing.T, e *echo.Echo, method, path, body string, result interface{}) int {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if result != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), result); err != nil {
			t.Fatalf("%s %s: failed to decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestGetStatus(t *testing.T) {
	e, _ := newTestRouter(t, true)
	var status service.Status
	if code := do(t, e, http.MethodGet, "/v1/status", "", &status); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if status.State != "initialized" || status.Prescale == nil || *status.Prescale != 121 {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestSetAndGetChannel(t *testing.T) {
	e, _ := newTestRouter(t, true)
	var ch service.Channel
	if code := do(t, e, http.MethodPut, "/v1/channels/2", `{"on":100,"off":3000}`, &ch); code != http.StatusOK {
		t.Fatalf("PUT status code = %d", code)
	}
	if ch.Channel != 2 || ch.On != 100 || ch.Off != 3000 {
		t.Errorf("unexpected channel %+v", ch)
	}
	ch = service.Channel{}
	if code := do(t, e, http.MethodGet, "/v1/channels/2", "", &ch); code != http.StatusOK {
		t.Fatalf("GET status code = %d", code)
	}
	if ch.On != 100 || ch.Off != 3000 {
		t.Errorf("unexpected channel %+v", ch)
	}
}

func TestSetAllChannels(t *testing.T) {
	e, _ := newTestRouter(t, true)
	var all []service.Channel
	if code := do(t, e, http.MethodPut, "/v1/channels", `{"on":0,"off":2048}`, &all); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if len(all) != pca9685.ChannelCount {
		t.Fatalf("expected %d channels, got %d", pca9685.ChannelCount, len(all))
	}
	for _, ch := range all {
		if ch.Off != 2048 {
			t.Errorf("unexpected channel %+v", ch)
		}
	}
}

func TestPulse(t *testing.T) {
	e, _ := newTestRouter(t, true)
	var resp pulseResponse
	if code := do(t, e, http.MethodPut, "/v1/channels/0/pulse", `{"microseconds":1500}`, &resp); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if resp.Microseconds != 1498 {
		t.Errorf("microseconds = %d, want 1498", resp.Microseconds)
	}
}

func TestFrequency(t *testing.T) {
	e, _ := newTestRouter(t, true)
	var f service.Frequency
	if code := do(t, e, http.MethodPut, "/v1/frequency", `{"hz":200}`, &f); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if f.Hz != 200 || f.Prescale != 30 {
		t.Errorf("unexpected frequency %+v", f)
	}
	f = service.Frequency{}
	if code := do(t, e, http.MethodGet, "/v1/frequency", "", &f); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if f.Hz != 200 {
		t.Errorf("hz = %d, want 200", f.Hz)
	}
}

func TestOutputEnable(t *testing.T) {
	e, br := newTestRouter(t, true)
	var status service.Status
	if code := do(t, e, http.MethodPut, "/v1/output-enable", `{"enabled":false}`, &status); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if status.OutputEnabled || br.Pin(testOEPin).Value() {
		t.Error("expected outputs disabled")
	}
}

func TestInitialize(t *testing.T) {
	e, _ := newTestRouter(t, true)
	do(t, e, http.MethodPut, "/v1/channels/1", `{"on":0,"off":1000}`, nil)
	if code := do(t, e, http.MethodPost, "/v1/initialize", "", nil); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	var ch service.Channel
	do(t, e, http.MethodGet, "/v1/channels/1", "", &ch)
	if ch.Off != 0 {
		t.Errorf("expected channel cleared, got %+v", ch)
	}
}

func TestErrorMapping(t *testing.T) {
	e, _ := newTestRouter(t, true)
	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodGet, "/v1/channels/16", "", http.StatusBadRequest},
		{http.MethodGet, "/v1/channels/x", "", http.StatusBadRequest},
		{http.MethodPut, "/v1/channels/0", `{"on":0,"off":4096}`, http.StatusBadRequest},
		{http.MethodPut, "/v1/channels/0", `{"on":0}`, http.StatusBadRequest},
		{http.MethodPut, "/v1/channels/0", `{"on":`, http.StatusBadRequest},
		{http.MethodPut, "/v1/channels/0/pulse", `{"microseconds":0}`, http.StatusBadRequest},
		{http.MethodPut, "/v1/frequency", `{"hz":10}`, http.StatusBadRequest},
		{http.MethodPut, "/v1/output-enable", `{}`, http.StatusBadRequest},
	}
	for _, tc := range tests {
		if code := do(t, e, tc.method, tc.path, tc.body, nil); code != tc.want {
			t.Errorf("%s %s %s: status code = %d, want %d", tc.method, tc.path, tc.body, code, tc.want)
		}
	}
}

func TestNotInitializedIsConflict(t *testing.T) {
	e, _ := newTestRouter(t, false)
	if code := do(t, e, http.MethodGet, "/v1/channels", "", nil); code != http.StatusConflict {
		t.Errorf("status code = %d, want %d", code, http.StatusConflict)
	}
	if code := do(t, e, http.MethodPost, "/v1/initialize", "", nil); code != http.StatusConflict {
		t.Errorf("status code = %d, want %d", code, http.StatusConflict)
	}
}

func TestBusFailureIsBadGateway(t *testing.T) {
	e, br := newTestRouter(t, true)
	br.Bus().SetFailure(func(address, reg uint8, write bool) error { return errors.New("nack") })
	if code := do(t, e, http.MethodGet, "/v1/channels/0", "", nil); code != http.StatusBadGateway {
		t.Errorf("status code = %d, want %d", code, http.StatusBadGateway)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e, _ := newTestRouter(t, true)
	do(t, e, http.MethodGet, "/v1/channels", "", nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pwmworker_service_operations_total") {
		t.Error("expected service metrics to be exposed")
	}
}
