package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

type wmsRecord struct {
	ExternalID     string    `json:"externalId"`
	ShuttleCommand string    `json:"shuttleCommand"`
	Warehouse      string    `json:"warehouse"`
	Cell           string    `json:"cell"`
	Params         string    `json:"params,omitempty"`
	createdAt      time.Time
}

type statusUpdate struct {
	Source     string `json:"source"`
	ExternalID string `json:"externalId"`
	Status     string `json:"status"`
	Quantity   int    `json:"quantity"`
}

type fakeWMSServer struct {
	start    time.Time
	latency  time.Duration
	failRate float64
	username string
	password string

	mu        sync.Mutex
	seq       int64
	shipments []wmsRecord
	transfers []wmsRecord
	updates   []statusUpdate
}

func main() {
	addr := getenvDefault("FAKE_WMS_ADDR", ":19080")
	latencyMs := getenvIntDefault("FAKE_WMS_LATENCY_MS", 0)
	failRate := getenvFloatDefault("FAKE_WMS_FAIL_RATE", 0)
	username := getenvDefault("FAKE_WMS_USERNAME", "")
	password := getenvDefault("FAKE_WMS_PASSWORD", "")

	srv := &fakeWMSServer{
		start:    time.Now().UTC(),
		latency:  time.Duration(latencyMs) * time.Millisecond,
		failRate: failRate,
		username: username,
		password: password,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/shipments/commands", srv.handleShipments)
	mux.HandleFunc("/transfers/commands", srv.handleTransfers)
	mux.HandleFunc("/status-updates", srv.handleStatusUpdates)
	mux.HandleFunc("/admin/commands", srv.handleSeed)
	mux.HandleFunc("/admin/summary", srv.handleSummary)

	log.Printf("fake WMS server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func (s *fakeWMSServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeWMSServer) authorized(r *http.Request) bool {
	if s.username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	return ok && user == s.username && pass == s.password
}

func (s *fakeWMSServer) gate(w http.ResponseWriter, r *http.Request) bool {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if s.latency > 0 {
		time.Sleep(s.latency)
	}
	if s.failRate > 0 && rand.Float64() < s.failRate {
		http.Error(w, "injected failure", http.StatusInternalServerError)
		return false
	}
	return true
}

func (s *fakeWMSServer) handleShipments(w http.ResponseWriter, r *http.Request) {
	s.handleCommands(w, r, func() []wmsRecord { return s.shipments })
}

func (s *fakeWMSServer) handleTransfers(w http.ResponseWriter, r *http.Request) {
	s.handleCommands(w, r, func() []wmsRecord { return s.transfers })
}

func (s *fakeWMSServer) handleCommands(w http.ResponseWriter, r *http.Request, pick func() []wmsRecord) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.gate(w, r) {
		return
	}
	from, to := parseWindow(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	records := pick()
	result := make([]wmsRecord, 0, len(records))
	for _, record := range records {
		if !from.IsZero() && record.createdAt.Before(from) {
			continue
		}
		if !to.IsZero() && !record.createdAt.Before(to) {
			continue
		}
		result = append(result, record)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *fakeWMSServer) handleStatusUpdates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.gate(w, r) {
		return
	}
	var update statusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.updates = append(s.updates, update)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

type seedRequest struct {
	Source         string `json:"source"`
	ShuttleCommand string `json:"shuttleCommand"`
	Warehouse      string `json:"warehouse"`
	Cell           string `json:"cell"`
	Params         string `json:"params,omitempty"`
}

// handleSeed lets operators inject pending commands for testing.
func (s *fakeWMSServer) handleSeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req seedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ShuttleCommand == "" || req.Warehouse == "" {
		http.Error(w, "shuttleCommand and warehouse required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.seq++
	record := wmsRecord{
		ExternalID:     "WMS-" + strconv.FormatInt(s.seq, 10),
		ShuttleCommand: req.ShuttleCommand,
		Warehouse:      req.Warehouse,
		Cell:           req.Cell,
		Params:         req.Params,
		createdAt:      time.Now().UTC(),
	}
	if req.Source == "transfer" {
		s.transfers = append(s.transfers, record)
	} else {
		s.shipments = append(s.shipments, record)
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(record)
}

func (s *fakeWMSServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload := map[string]any{
		"started_at": s.start.Format(time.RFC3339),
		"shipments":  len(s.shipments),
		"transfers":  len(s.transfers),
		"updates":    s.updates,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func parseWindow(r *http.Request) (time.Time, time.Time) {
	var from, to time.Time
	if value := r.URL.Query().Get("from"); value != "" {
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			from = parsed
		}
	}
	if value := r.URL.Query().Get("to"); value != "" {
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			to = parsed
		}
	}
	return from, to
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvIntDefault(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getenvFloatDefault(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
