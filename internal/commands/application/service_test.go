package application

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	commands "shuttle-gateway/internal/commands/domain"
	"shuttle-gateway/internal/dispatch"
	fleet "shuttle-gateway/internal/fleet/domain"
	"shuttle-gateway/internal/shuttlelink"
)

type stubCommandRepo struct {
	mu      sync.Mutex
	byExtID map[string]*commands.Command
	acked   []string
	done    []string
	failed  map[string]string
	created int
}

func newStubCommandRepo() *stubCommandRepo {
	return &stubCommandRepo{
		byExtID: make(map[string]*commands.Command),
		failed:  make(map[string]string),
	}
}

func (s *stubCommandRepo) Create(_ context.Context, cmd *commands.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *cmd
	s.byExtID[cmd.ExternalID] = &clone
	s.created++
	return nil
}

func (s *stubCommandRepo) FindByExternalID(_ context.Context, externalID string) (*commands.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cmd, ok := s.byExtID[externalID]; ok {
		clone := *cmd
		return &clone, nil
	}
	return nil, nil
}

func (s *stubCommandRepo) GetByID(_ context.Context, id string) (*commands.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cmd := range s.byExtID {
		if cmd.ID == id {
			clone := *cmd
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *stubCommandRepo) MarkAcked(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, id)
	return nil
}

func (s *stubCommandRepo) MarkCompleted(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = append(s.done, id)
	return nil
}

func (s *stubCommandRepo) MarkFailed(_ context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[id] = errMsg
	return nil
}

type stubStateRepo struct {
	mu     sync.Mutex
	states map[string]fleet.State
}

func newStubStateRepo(ids ...string) *stubStateRepo {
	states := make(map[string]fleet.State, len(ids))
	for _, id := range ids {
		states[id] = fleet.NewState(id)
	}
	return &stubStateRepo{states: states}
}

func (s *stubStateRepo) Get(_ context.Context, shuttleID string) (*fleet.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[shuttleID]; ok {
		return &state, nil
	}
	return nil, nil
}

func (s *stubStateRepo) Update(_ context.Context, shuttleID string, update fleet.StateUpdate) (*fleet.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := update.Apply(s.states[shuttleID])
	state.ShuttleID = shuttleID
	s.states[shuttleID] = state
	return &state, nil
}

func (s *stubStateRepo) List(_ context.Context) ([]fleet.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]fleet.State, 0, len(s.states))
	for _, state := range s.states {
		result = append(result, state)
	}
	return result, nil
}

func testFleet() fleet.Config {
	return fleet.Config{
		Shuttles: map[string]fleet.NetworkConfig{
			"shuttle-01": {Host: "127.0.0.1", CommandPort: 2000},
			"shuttle-02": {Host: "127.0.0.2", CommandPort: 2000},
		},
		StockToShuttles: map[string][]string{
			"WH-A": {"shuttle-01", "shuttle-02"},
		},
	}
}

func newTestService(repo *stubCommandRepo, states *stubStateRepo, queue *dispatch.Queue) *Service {
	logger := log.New(os.Stdout, "test ", 0)
	return NewService(repo, states, testFleet(), queue, fleet.NewStateMachine(logger), nil, logger)
}

func incoming(externalID string) commands.Command {
	return commands.Command{
		ExternalID: externalID,
		Source:     commands.SourceShipment,
		Kind:       commands.KindDelivery,
		Verb:       commands.VerbPalletIn,
		Warehouse:  "WH-A",
		Cell:       "105",
		Status:     commands.StatusCreated,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestIngest_QueuesNewCommands(t *testing.T) {
	repo := newStubCommandRepo()
	states := newStubStateRepo("shuttle-01", "shuttle-02")
	queue := dispatch.NewQueue(10)
	service := newTestService(repo, states, queue)

	result, err := service.Ingest(context.Background(), []commands.Command{incoming("S1"), incoming("S2")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Queued != 2 {
		t.Fatalf("expected 2 queued, got %+v", result)
	}
	if queue.Len() != 2 {
		t.Fatalf("expected queue depth 2, got %d", queue.Len())
	}
}

func TestIngest_DuplicateExternalIDSkipped(t *testing.T) {
	repo := newStubCommandRepo()
	states := newStubStateRepo("shuttle-01")
	queue := dispatch.NewQueue(10)
	service := newTestService(repo, states, queue)

	batch := []commands.Command{incoming("S1")}
	if _, err := service.Ingest(context.Background(), batch); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	result, err := service.Ingest(context.Background(), batch)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if result.Queued != 0 || result.Duplicates != 1 {
		t.Fatalf("expected duplicate, got %+v", result)
	}
	if repo.created != 1 {
		t.Fatalf("expected one stored command, got %d", repo.created)
	}
}

func TestIngest_UnmappedWarehouseCountsFailed(t *testing.T) {
	repo := newStubCommandRepo()
	states := newStubStateRepo("shuttle-01")
	queue := dispatch.NewQueue(10)
	service := newTestService(repo, states, queue)

	cmd := incoming("S1")
	cmd.Warehouse = "WH-UNKNOWN"
	result, err := service.Ingest(context.Background(), []commands.Command{cmd})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Failed != 1 || result.Queued != 0 {
		t.Fatalf("expected failed count, got %+v", result)
	}
}

func TestIngest_PrefersFreeShuttle(t *testing.T) {
	repo := newStubCommandRepo()
	states := newStubStateRepo("shuttle-01", "shuttle-02")
	busy := fleet.StatusBusy
	if _, err := states.Update(context.Background(), "shuttle-01", fleet.StateUpdate{Status: &busy}); err != nil {
		t.Fatalf("seed state: %v", err)
	}
	queue := dispatch.NewQueue(10)
	service := newTestService(repo, states, queue)

	if _, err := service.Ingest(context.Background(), []commands.Command{incoming("S1")}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	stored, _ := repo.FindByExternalID(context.Background(), "S1")
	if stored.ShuttleID != "shuttle-02" {
		t.Fatalf("expected free shuttle-02, got %s", stored.ShuttleID)
	}
}

func TestPlace_HomeGetsHigherPriority(t *testing.T) {
	repo := newStubCommandRepo()
	states := newStubStateRepo("shuttle-01")
	queue := dispatch.NewQueue(10)
	service := newTestService(repo, states, queue)

	if _, err := service.Place(context.Background(), "shuttle-01", commands.VerbFIFO, "5"); err != nil {
		t.Fatalf("place fifo: %v", err)
	}
	if _, err := service.Place(context.Background(), "shuttle-01", commands.VerbHome, ""); err != nil {
		t.Fatalf("place home: %v", err)
	}

	first, err := queue.Pop()
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if first.Command.Verb != commands.VerbHome {
		t.Fatalf("HOME should preempt, got %s", first.Command.Verb)
	}
}

func TestPlace_UnknownShuttleRejected(t *testing.T) {
	repo := newStubCommandRepo()
	states := newStubStateRepo("shuttle-01")
	queue := dispatch.NewQueue(10)
	service := newTestService(repo, states, queue)

	if _, err := service.Place(context.Background(), "shuttle-99", commands.VerbHome, ""); err == nil {
		t.Fatal("expected error for unknown shuttle")
	}
}

func TestHandleMessage_DoneCompletesActiveCommand(t *testing.T) {
	repo := newStubCommandRepo()
	states := newStubStateRepo("shuttle-01")
	queue := dispatch.NewQueue(10)
	service := newTestService(repo, states, queue)

	if _, err := service.Ingest(context.Background(), []commands.Command{incoming("S1")}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	// Simulate the dispatcher stamping the active command on the state.
	if _, err := states.Update(context.Background(), "shuttle-01", fleet.StateUpdate{
		Status:     fleet.StatusPtr(fleet.StatusLoading),
		ExternalID: fleet.StringPtr("S1"),
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	service.HandleMessage(context.Background(), "shuttle-01", shuttlelink.ParseMessage("PALLET_IN_DONE"))

	if len(repo.done) != 1 {
		t.Fatalf("expected one completed command, got %d", len(repo.done))
	}
	state, _ := states.Get(context.Background(), "shuttle-01")
	if state.Status != fleet.StatusFree {
		t.Fatalf("expected FREE after done, got %s", state.Status)
	}
}

func TestHandleMessage_FaultMarksError(t *testing.T) {
	repo := newStubCommandRepo()
	states := newStubStateRepo("shuttle-01")
	queue := dispatch.NewQueue(10)
	service := newTestService(repo, states, queue)

	service.HandleMessage(context.Background(), "shuttle-01", shuttlelink.ParseMessage("F_CODE=31"))

	state, _ := states.Get(context.Background(), "shuttle-01")
	if state.Status != fleet.StatusError {
		t.Fatalf("expected ERROR, got %s", state.Status)
	}
	if state.ErrorCode != "31" {
		t.Fatalf("expected error code 31, got %q", state.ErrorCode)
	}
}

func TestHandleMessage_BatteryUpdatesState(t *testing.T) {
	repo := newStubCommandRepo()
	states := newStubStateRepo("shuttle-01")
	queue := dispatch.NewQueue(10)
	service := newTestService(repo, states, queue)

	service.HandleMessage(context.Background(), "shuttle-01", shuttlelink.ParseMessage("BATTERY=87"))

	state, _ := states.Get(context.Background(), "shuttle-01")
	if state.BatteryLevel != "87" {
		t.Fatalf("expected battery 87, got %q", state.BatteryLevel)
	}
}

func TestHandleMessage_CountUpdatesPalletCount(t *testing.T) {
	repo := newStubCommandRepo()
	states := newStubStateRepo("shuttle-01")
	queue := dispatch.NewQueue(10)
	service := newTestService(repo, states, queue)

	service.HandleMessage(context.Background(), "shuttle-01", shuttlelink.ParseMessage("COUNT_FIFO-001=5"))

	state, _ := states.Get(context.Background(), "shuttle-01")
	if state.PalletCount != "5" {
		t.Fatalf("expected pallet count 5, got %q", state.PalletCount)
	}
}
