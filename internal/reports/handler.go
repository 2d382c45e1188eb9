package reports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	commands "shuttle-gateway/internal/commands/domain"
	fleet "shuttle-gateway/internal/fleet/domain"
)

// StateLister reads the current fleet.
type StateLister interface {
	List(ctx context.Context) ([]fleet.State, error)
}

// CommandLister reads command history in a window.
type CommandLister interface {
	ListByTime(ctx context.Context, from, to time.Time) ([]commands.Command, error)
}

// Handler serves GET /api/v1/exports/fleet.{xlsx,pdf}.
type Handler struct {
	states   StateLister
	commands CommandLister
}

// NewHandler constructs a report handler.
func NewHandler(states StateLister, commandStore CommandLister) (*Handler, error) {
	if states == nil || commandStore == nil {
		return nil, errors.New("reports: nil store")
	}
	return &Handler{states: states, commands: commandStore}, nil
}

// ServeHTTP dispatches by extension.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	report, err := h.build(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch {
	case strings.HasSuffix(r.URL.Path, ".xlsx"):
		payload, err := BuildFleetXLSX(report)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", attachment(report, "xlsx"))
		_, _ = w.Write(payload)
	case strings.HasSuffix(r.URL.Path, ".pdf"):
		payload, err := BuildFleetPDF(report)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", attachment(report, "pdf"))
		_, _ = w.Write(payload)
	default:
		http.Error(w, "unsupported format", http.StatusNotFound)
	}
}

func (h *Handler) build(r *http.Request) (FleetReport, error) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if value := r.URL.Query().Get("from"); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return FleetReport{}, errors.New("from must be RFC3339")
		}
		from = parsed
	}
	if value := r.URL.Query().Get("to"); value != "" {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return FleetReport{}, errors.New("to must be RFC3339")
		}
		to = parsed
	}
	if !to.After(from) {
		return FleetReport{}, errors.New("to must be after from")
	}

	states, err := h.states.List(r.Context())
	if err != nil {
		return FleetReport{}, err
	}
	list, err := h.commands.ListByTime(r.Context(), from, to)
	if err != nil {
		return FleetReport{}, err
	}
	return FleetReport{
		GeneratedAt: time.Now().UTC(),
		From:        from,
		To:          to,
		States:      states,
		Commands:    list,
	}, nil
}

func attachment(report FleetReport, ext string) string {
	return fmt.Sprintf(`attachment; filename="fleet-%s.%s"`, report.GeneratedAt.Format("20060102-150405"), ext)
}
