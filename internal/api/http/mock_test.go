package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeSwitcher struct {
	mocked bool
	live   string
	mock   string
}

func (f *fakeSwitcher) UseMock() (string, error) {
	f.mocked = true
	return f.mock, nil
}

func (f *fakeSwitcher) UseLive() (string, error) {
	f.mocked = false
	return f.live, nil
}

func (f *fakeSwitcher) Mocked() bool { return f.mocked }

func (f *fakeSwitcher) Target() string {
	if f.mocked {
		return f.mock
	}
	return f.live
}

func newMockRecorder(t *testing.T, handler *MockHandler, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/api/v1/wms/mock", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeMock(t *testing.T, rec *httptest.ResponseRecorder) mockResponse {
	t.Helper()
	var resp mockResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestMockHandler_Toggle(t *testing.T) {
	switcher := &fakeSwitcher{live: "http://wms.internal", mock: "http://localhost:19080"}
	handler, err := NewMockHandler(switcher)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := newMockRecorder(t, handler, http.MethodGet, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeMock(t, rec); resp.Enabled || resp.Target != "http://wms.internal" {
		t.Fatalf("expected live state, got %+v", resp)
	}

	rec = newMockRecorder(t, handler, http.MethodPost, `{"enabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeMock(t, rec); !resp.Enabled || resp.Target != "http://localhost:19080" {
		t.Fatalf("expected mock state, got %+v", resp)
	}

	rec = newMockRecorder(t, handler, http.MethodPost, `{"enabled":false}`)
	if resp := decodeMock(t, rec); resp.Enabled {
		t.Fatalf("expected live state after disable, got %+v", resp)
	}
}

func TestMockHandler_BadRequests(t *testing.T) {
	handler, err := NewMockHandler(&fakeSwitcher{})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	if rec := newMockRecorder(t, handler, http.MethodPost, "{broken"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
	if rec := newMockRecorder(t, handler, http.MethodDelete, ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
