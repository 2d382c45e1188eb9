package shuttlelink

import (
	"bufio"
	"context"
	"log"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	fleet "shuttle-gateway/internal/fleet/domain"
)

type capturedMessage struct {
	shuttleID string
	msg       Message
}

type messageRecorder struct {
	mu       sync.Mutex
	messages []capturedMessage
}

func (r *messageRecorder) handle(_ context.Context, shuttleID string, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, capturedMessage{shuttleID: shuttleID, msg: msg})
}

func (r *messageRecorder) wait(t *testing.T, n int) []capturedMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.messages) >= n {
			out := make([]capturedMessage, len(r.messages))
			copy(out, r.messages)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages", n)
	return nil
}

func startListener(t *testing.T, handler Handler) string {
	t.Helper()
	logger := log.New(os.Stdout, "test ", 0)
	cfg := fleet.Config{
		Shuttles: map[string]fleet.NetworkConfig{
			"shuttle-01": {Host: "127.0.0.1", CommandPort: 2000},
		},
	}
	l := NewListener("127.0.0.1:0", cfg, handler, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Wait for the socket to come up.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		bound := l.listener
		l.mu.Unlock()
		if bound != nil {
			return bound.Addr().String()
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("listener never bound")
	return ""
}

func TestListener_AcksLifecycleMessages(t *testing.T) {
	recorder := &messageRecorder{}
	addr := startListener(t, recorder.handle)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("FIFO-012_DONE\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if reply != "MRCD\n" {
		t.Fatalf("expected MRCD ack, got %q", reply)
	}

	got := recorder.wait(t, 1)
	if got[0].shuttleID != "shuttle-01" {
		t.Fatalf("expected shuttle-01, got %s", got[0].shuttleID)
	}
	if got[0].msg.Type != MessageDone || got[0].msg.Verb != "FIFO" {
		t.Fatalf("unexpected message %+v", got[0].msg)
	}
}

func TestListener_ReportsAreNotAcked(t *testing.T) {
	recorder := &messageRecorder{}
	addr := startListener(t, recorder.handle)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("BATTERY=87\nLOCATION=105\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := recorder.wait(t, 2)
	if got[0].msg.Type != MessageBattery || got[0].msg.Value != "87" {
		t.Fatalf("unexpected first message %+v", got[0].msg)
	}
	if got[1].msg.Type != MessageLocation || got[1].msg.Value != "105" {
		t.Fatalf("unexpected second message %+v", got[1].msg)
	}

	// No MRCD should come back for plain reports.
	conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	buf := make([]byte, 8)
	if n, err := conn.Read(buf); err == nil {
		t.Fatalf("unexpected reply %q", buf[:n])
	}
}
