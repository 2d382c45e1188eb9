package fleet

import (
	"context"
	"testing"
)

func TestStateMachine_AllowedTransitions(t *testing.T) {
	machine := NewStateMachine(nil)
	cases := []struct {
		from    OperationalStatus
		trigger Trigger
		want    OperationalStatus
	}{
		{StatusFree, TriggerPalletIn, StatusLoading},
		{StatusFree, TriggerPalletOut, StatusUnloading},
		{StatusFree, TriggerFIFO, StatusMoving},
		{StatusFree, TriggerHome, StatusMoving},
		{StatusLoading, TriggerDone, StatusFree},
		{StatusUnloading, TriggerDone, StatusFree},
		{StatusMoving, TriggerDone, StatusFree},
		{StatusFree, TriggerBatteryLow, StatusLowBattery},
		{StatusLowBattery, TriggerCharging, StatusCharging},
		{StatusCharging, TriggerCharged, StatusFree},
		{StatusError, TriggerReset, StatusFree},
	}
	for _, tc := range cases {
		got, ok := machine.TryTransition(context.Background(), "shuttle-01", tc.from, tc.trigger)
		if !ok {
			t.Fatalf("%s + %s should be allowed", tc.from, tc.trigger)
		}
		if got != tc.want {
			t.Fatalf("%s + %s: expected %s, got %s", tc.from, tc.trigger, tc.want, got)
		}
	}
}

func TestStateMachine_RejectsInvalidTransitions(t *testing.T) {
	machine := NewStateMachine(nil)
	if _, ok := machine.TryTransition(context.Background(), "shuttle-01", StatusLoading, TriggerPalletIn); ok {
		t.Fatal("LOADING should not accept PALLET_IN")
	}
	if got, ok := machine.TryTransition(context.Background(), "shuttle-01", StatusError, TriggerDone); ok {
		t.Fatalf("ERROR should only leave via RESET, got %s", got)
	}
}

func TestStateMachine_HandlerFires(t *testing.T) {
	machine := NewStateMachine(nil)
	var fired string
	machine.RegisterHandler("FREE:PALLET_IN:LOADING", func(_ context.Context, shuttleID, transition string) error {
		fired = shuttleID + ":" + transition
		return nil
	})
	if _, ok := machine.TryTransition(context.Background(), "shuttle-07", StatusFree, TriggerPalletIn); !ok {
		t.Fatal("transition should be allowed")
	}
	if fired != "shuttle-07:FREE:PALLET_IN:LOADING" {
		t.Fatalf("handler not fired, got %q", fired)
	}
}

func TestStateUpdate_ApplyPartial(t *testing.T) {
	state := NewState("shuttle-01")
	state.Location = "100"

	updated := StateUpdate{
		Status:       StatusPtr(StatusBusy),
		BatteryLevel: StringPtr("42"),
	}.Apply(state)

	if updated.Status != StatusBusy {
		t.Fatalf("expected BUSY, got %s", updated.Status)
	}
	if updated.BatteryLevel != "42" {
		t.Fatalf("expected battery 42, got %q", updated.BatteryLevel)
	}
	if updated.Location != "100" {
		t.Fatalf("untouched field changed: %q", updated.Location)
	}
	if !updated.LastSeen.After(state.LastSeen) && !updated.LastSeen.Equal(state.LastSeen) {
		t.Fatal("last seen should be refreshed")
	}
}

func TestState_Available(t *testing.T) {
	state := NewState("shuttle-01")
	if !state.Available() {
		t.Fatal("UNKNOWN should count as available")
	}
	state.Status = StatusFree
	if !state.Available() {
		t.Fatal("FREE should be available")
	}
	state.Status = StatusBusy
	if state.Available() {
		t.Fatal("BUSY should not be available")
	}
}
