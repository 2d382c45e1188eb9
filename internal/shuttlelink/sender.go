package shuttlelink

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	commands "shuttle-gateway/internal/commands/domain"
	fleet "shuttle-gateway/internal/fleet/domain"
)

// Error codes reported on send failures, keyed off the network condition.
const (
	ErrCodeConnectionRefused = "CONNECTION_REFUSED"
	ErrCodeTimeoutSend       = "TCP_TIMEOUT_SEND"
	ErrCodeDNS               = "DNS_ERROR"
)

// SendError wraps a transport failure with a coarse code for metrics and
// the WMS status report.
type SendError struct {
	Code string
	Err  error
}

func (e *SendError) Error() string {
	return e.Code + ": " + e.Err.Error()
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Sender writes command lines to shuttles over short-lived TCP connections.
// One connection per command, matching how the shuttle controllers behave.
type Sender struct {
	fleet       fleet.Config
	dialer      *net.Dialer
	idleTimeout time.Duration
	logger      *log.Logger
}

// NewSender builds a sender over the fleet network map.
func NewSender(cfg fleet.Config, logger *log.Logger) *Sender {
	if logger == nil {
		logger = log.Default()
	}
	return &Sender{
		fleet:       cfg,
		dialer:      &net.Dialer{Timeout: 5 * time.Second},
		idleTimeout: 10 * time.Second,
		logger:      logger,
	}
}

// FormatCommand renders a command as a wire line without the trailing newline.
// Count-taking verbs carry the parameter as "VERB-NNN".
func FormatCommand(verb commands.Verb, params string) string {
	params = strings.TrimSpace(params)
	if params == "" {
		return string(verb)
	}
	switch verb {
	case commands.VerbFIFO, commands.VerbFILO, commands.VerbStackIn, commands.VerbStackOut:
		return fmt.Sprintf("%s-%s", verb, params)
	default:
		return string(verb)
	}
}

// Send delivers one command line to a shuttle and returns once the line is
// written. Acknowledgement arrives asynchronously on the listener.
func (s *Sender) Send(ctx context.Context, shuttleID string, verb commands.Verb, params string) error {
	network, ok := s.fleet.Shuttles[shuttleID]
	if !ok {
		return fmt.Errorf("shuttlelink: unknown shuttle %s", shuttleID)
	}
	addr := net.JoinHostPort(network.Host, fmt.Sprint(network.CommandPort))

	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &SendError{Code: classifyDialError(err), Err: err}
	}
	defer conn.Close()

	line := FormatCommand(verb, params) + "\n"
	deadline := time.Now().Add(s.idleTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return &SendError{Code: ErrCodeTimeoutSend, Err: err}
	}
	if _, err := conn.Write([]byte(line)); err != nil {
		return &SendError{Code: classifyWriteError(err), Err: err}
	}
	s.logger.Printf("shuttlelink: sent %q to %s (%s)", strings.TrimSpace(line), shuttleID, addr)
	return nil
}

func classifyDialError(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrCodeDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrCodeTimeoutSend
	}
	return ErrCodeConnectionRefused
}

func classifyWriteError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrCodeTimeoutSend
	}
	return ErrCodeConnectionRefused
}
