package http

import (
	"encoding/json"
	"errors"
	"net/http"
)

// WMSSwitcher retargets the gateway between the live and mock WMS.
type WMSSwitcher interface {
	UseMock() (string, error)
	UseLive() (string, error)
	Mocked() bool
	Target() string
}

// MockHandler toggles the WMS backend at runtime.
type MockHandler struct {
	switcher WMSSwitcher
}

// NewMockHandler constructs the handler.
func NewMockHandler(switcher WMSSwitcher) (*MockHandler, error) {
	if switcher == nil {
		return nil, errors.New("api: nil switcher")
	}
	return &MockHandler{switcher: switcher}, nil
}

type mockRequest struct {
	Enabled bool `json:"enabled"`
}

type mockResponse struct {
	Enabled bool   `json:"enabled"`
	Target  string `json:"target"`
}

// ServeHTTP handles GET and POST /api/v1/wms/mock.
func (h *MockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.respond(w)
	case http.MethodPost:
		var req mockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		var err error
		if req.Enabled {
			_, err = h.switcher.UseMock()
		} else {
			_, err = h.switcher.UseLive()
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.respond(w)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *MockHandler) respond(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(mockResponse{
		Enabled: h.switcher.Mocked(),
		Target:  h.switcher.Target(),
	})
}
