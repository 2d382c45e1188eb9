package dispatch

import (
	"errors"
	"testing"

	commands "shuttle-gateway/internal/commands/domain"
)

func cmd(id string) commands.Command {
	return commands.Command{ID: id, Verb: commands.VerbPalletIn}
}

func TestQueue_PriorityOrdering(t *testing.T) {
	queue := NewQueue(10)
	if err := queue.Push(cmd("regular-1"), commands.PriorityDefault); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := queue.Push(cmd("regular-2"), commands.PriorityDefault); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := queue.Push(cmd("home"), commands.PriorityHome); err != nil {
		t.Fatalf("push: %v", err)
	}

	first, err := queue.Pop()
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if first.Command.ID != "home" {
		t.Fatalf("expected home first, got %s", first.Command.ID)
	}

	second, _ := queue.Pop()
	third, _ := queue.Pop()
	if second.Command.ID != "regular-1" || third.Command.ID != "regular-2" {
		t.Fatalf("FIFO within priority broken: %s %s", second.Command.ID, third.Command.ID)
	}
}

func TestQueue_Bounded(t *testing.T) {
	queue := NewQueue(2)
	if err := queue.Push(cmd("a"), 10); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := queue.Push(cmd("b"), 10); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := queue.Push(cmd("c"), 10); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestQueue_CloseUnblocksPop(t *testing.T) {
	queue := NewQueue(2)
	done := make(chan error, 1)
	go func() {
		_, err := queue.Pop()
		done <- err
	}()
	queue.Close()
	if err := <-done; !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if err := queue.Push(cmd("late"), 10); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("push after close: %v", err)
	}
}
