package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	commandsapp "shuttle-gateway/internal/commands/application"
	commands "shuttle-gateway/internal/commands/domain"
)

// CommandHistory is the read side of the command store.
type CommandHistory interface {
	ListByShuttleAndTime(ctx context.Context, shuttleID string, from, to time.Time) ([]commands.Command, error)
}

// Handler provides command and fleet HTTP endpoints.
type Handler struct {
	service *commandsapp.Service
	history CommandHistory
}

// NewHandler constructs a handler.
func NewHandler(service *commandsapp.Service, history CommandHistory) (*Handler, error) {
	if service == nil {
		return nil, errors.New("api: nil service")
	}
	return &Handler{service: service, history: history}, nil
}

// PlaceRequest is the POST /api/v1/commands body.
type PlaceRequest struct {
	ShuttleID string `json:"shuttle_id"`
	Verb      string `json:"verb"`
	Params    string `json:"params,omitempty"`
}

// PlaceResponse echoes the queued command.
type PlaceResponse struct {
	CommandID string `json:"command_id"`
	ShuttleID string `json:"shuttle_id"`
	Verb      string `json:"verb"`
	Status    string `json:"status"`
}

// Commands handles POST /api/v1/commands.
func (h *Handler) Commands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req PlaceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ShuttleID == "" || req.Verb == "" {
		http.Error(w, "shuttle_id and verb required", http.StatusBadRequest)
		return
	}
	verb, ok := parseVerb(req.Verb)
	if !ok {
		http.Error(w, "unknown verb", http.StatusBadRequest)
		return
	}

	cmd, err := h.service.Place(r.Context(), req.ShuttleID, verb, req.Params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(PlaceResponse{
		CommandID: cmd.ID,
		ShuttleID: cmd.ShuttleID,
		Verb:      string(cmd.Verb),
		Status:    cmd.Status,
	})
}

// Shuttles handles GET /api/v1/shuttles.
func (h *Handler) Shuttles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	states, err := h.service.ShuttleStates(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(states)
}

// ShuttleCommands handles GET /api/v1/shuttles/{id}/commands.
func (h *Handler) ShuttleCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	shuttleID := shuttleIDFromPath(r.URL.Path)
	if shuttleID == "" {
		http.Error(w, "shuttle id required", http.StatusBadRequest)
		return
	}
	from, to, err := parseWindow(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := h.history.ListByShuttleAndTime(r.Context(), shuttleID, from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	fromValue := r.URL.Query().Get("from")
	toValue := r.URL.Query().Get("to")
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if fromValue != "" {
		parsed, err := time.Parse(time.RFC3339, fromValue)
		if err != nil {
			return from, to, errors.New("from must be RFC3339")
		}
		from = parsed
	}
	if toValue != "" {
		parsed, err := time.Parse(time.RFC3339, toValue)
		if err != nil {
			return from, to, errors.New("to must be RFC3339")
		}
		to = parsed
	}
	if !to.After(from) {
		return from, to, errors.New("to must be after from")
	}
	return from, to, nil
}

func shuttleIDFromPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/v1/shuttles/")
	id, _, _ := strings.Cut(trimmed, "/")
	return id
}

func parseVerb(value string) (commands.Verb, bool) {
	switch verb := commands.Verb(strings.ToUpper(strings.TrimSpace(value))); verb {
	case commands.VerbPalletIn, commands.VerbPalletOut, commands.VerbFIFO,
		commands.VerbFILO, commands.VerbStackIn, commands.VerbStackOut,
		commands.VerbHome, commands.VerbCount, commands.VerbStatus,
		commands.VerbBattery, commands.VerbWDH, commands.VerbWLH:
		return verb, true
	default:
		return "", false
	}
}
