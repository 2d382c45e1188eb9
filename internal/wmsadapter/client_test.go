package wmsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	commands "shuttle-gateway/internal/commands/domain"
)

func newTestServer(t *testing.T, shipments, transfers http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	if shipments != nil {
		mux.HandleFunc("/shipments/commands", shipments)
	}
	if transfers != nil {
		mux.HandleFunc("/transfers/commands", transfers)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func jsonRecords(records ...map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	}
}

func record(externalID, command string) map[string]string {
	return map[string]string{
		"externalId":     externalID,
		"shuttleCommand": command,
		"warehouse":      "WH-A",
		"cell":           "105",
	}
}

func mustClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestGetCommands_MergesShipmentFirst(t *testing.T) {
	server := newTestServer(t,
		jsonRecords(record("S1", "delivery"), record("S2", "pickup")),
		jsonRecords(record("T1", "pickup")),
	)
	client := mustClient(t, Config{BaseURL: server.URL})

	got, err := client.GetCommands(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(got))
	}
	wantOrder := []string{"S1", "S2", "T1"}
	for i, want := range wantOrder {
		if got[i].ExternalID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, got[i].ExternalID)
		}
	}
	if got[0].Source != commands.SourceShipment || got[2].Source != commands.SourceTransfer {
		t.Fatalf("wrong sources: %s %s", got[0].Source, got[2].Source)
	}
}

func TestGetCommands_RepeatedCallsYieldIdenticalOutput(t *testing.T) {
	server := newTestServer(t,
		jsonRecords(record("S1", "delivery"), record("S2", "pickup")),
		jsonRecords(record("T1", "pickup")),
	)
	client := mustClient(t, Config{BaseURL: server.URL})

	first, err := client.GetCommands(context.Background())
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := client.GetCommands(context.Background())
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	// CreatedAt is stamped per call; everything derived from the WMS
	// response must match exactly.
	for i := range first {
		first[i].CreatedAt = time.Time{}
	}
	for i := range second {
		second[i].CreatedAt = time.Time{}
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated calls diverged:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestGetCommands_Classification(t *testing.T) {
	server := newTestServer(t,
		jsonRecords(record("S1", "delivery"), record("S2", "pickup")),
		jsonRecords(),
	)
	client := mustClient(t, Config{BaseURL: server.URL})

	got, err := client.GetCommands(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0].Kind != commands.KindDelivery || got[0].Verb != commands.VerbPalletIn {
		t.Fatalf("delivery misclassified: kind=%s verb=%s", got[0].Kind, got[0].Verb)
	}
	if got[1].Kind != commands.KindPickup || got[1].Verb != commands.VerbPalletOut {
		t.Fatalf("pickup misclassified: kind=%s verb=%s", got[1].Kind, got[1].Verb)
	}
}

func TestGetCommands_SkipsUnknownAndEmpty(t *testing.T) {
	server := newTestServer(t,
		jsonRecords(
			record("S1", "delivery"),
			record("S2", "Delivery"), // case-sensitive match required
			record("", "pickup"),
			record("S3", "teleport"),
		),
		jsonRecords(),
	)
	client := mustClient(t, Config{BaseURL: server.URL})

	got, err := client.GetCommands(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "S1" {
		t.Fatalf("expected only S1, got %+v", got)
	}
}

func TestGetCommands_PartialFailureKeepsHealthySource(t *testing.T) {
	server := newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		jsonRecords(record("T1", "pickup")),
	)
	client := mustClient(t, Config{BaseURL: server.URL})

	got, err := client.GetCommands(context.Background())
	if err == nil {
		t.Fatal("expected an error for the failed source")
	}
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("expected SourceError, got %T", err)
	}
	if srcErr.Source != commands.SourceShipment {
		t.Fatalf("expected shipment failure, got %s", srcErr.Source)
	}
	if len(got) != 1 || got[0].ExternalID != "T1" {
		t.Fatalf("transfer commands should survive, got %+v", got)
	}
}

func TestGetCommands_BothSourcesFail(t *testing.T) {
	fail := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}
	server := newTestServer(t, fail, fail)
	client := mustClient(t, Config{BaseURL: server.URL})

	got, err := client.GetCommands(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(got) != 0 {
		t.Fatalf("expected no commands, got %d", len(got))
	}
	var srcErr *SourceError
	if !errors.As(err, &srcErr) {
		t.Fatalf("expected SourceError in joined error, got %v", err)
	}
}

func TestGetCommands_Unauthorized(t *testing.T) {
	deny := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
	server := newTestServer(t, deny, deny)
	client := mustClient(t, Config{BaseURL: server.URL, Username: "gw", Password: "wrong"})

	_, err := client.GetCommands(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestGetCommands_SendsBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	server := newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			gotUser, gotPass, _ = r.BasicAuth()
			jsonRecords()(w, r)
		},
		jsonRecords(),
	)
	client := mustClient(t, Config{BaseURL: server.URL, Username: "gateway", Password: "secret"})

	if _, err := client.GetCommands(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotUser != "gateway" || gotPass != "secret" {
		t.Fatalf("basic auth not forwarded: %s/%s", gotUser, gotPass)
	}
}

func TestGetCommands_MalformedJSON(t *testing.T) {
	server := newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		},
		jsonRecords(record("T1", "delivery")),
	)
	client := mustClient(t, Config{BaseURL: server.URL})

	got, err := client.GetCommands(context.Background())
	if err == nil {
		t.Fatal("expected decode error")
	}
	if len(got) != 1 || got[0].ExternalID != "T1" {
		t.Fatalf("healthy source should survive a decode failure, got %+v", got)
	}
}

func TestGetCommandsBetween_WindowParams(t *testing.T) {
	var gotFrom, gotTo string
	server := newTestServer(t,
		func(w http.ResponseWriter, r *http.Request) {
			gotFrom = r.URL.Query().Get("from")
			gotTo = r.URL.Query().Get("to")
			jsonRecords()(w, r)
		},
		jsonRecords(),
	)
	client := mustClient(t, Config{BaseURL: server.URL})

	from := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	to := from.Add(time.Minute)
	if _, err := client.GetCommandsBetween(context.Background(), from, to); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotFrom != "2026-08-01T10:00:00Z" || gotTo != "2026-08-01T10:01:00Z" {
		t.Fatalf("window not forwarded: from=%s to=%s", gotFrom, gotTo)
	}
}

func TestUpdateCommandStatus(t *testing.T) {
	var got StatusUpdate
	mux := http.NewServeMux()
	mux.HandleFunc("/status-updates", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	client := mustClient(t, Config{BaseURL: server.URL})

	err := client.UpdateCommandStatus(context.Background(), StatusUpdate{
		Source:     commands.SourceShipment,
		ExternalID: "S1",
		Status:     "completed",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ExternalID != "S1" || got.Quantity != 1 {
		t.Fatalf("unexpected update %+v", got)
	}
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for empty base url")
	}
}
