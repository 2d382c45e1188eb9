package poller

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"shuttle-gateway/internal/commands/application"
	commands "shuttle-gateway/internal/commands/domain"
	"shuttle-gateway/internal/eventing"
	"shuttle-gateway/internal/observability/metrics"
	"shuttle-gateway/internal/retry"
	"shuttle-gateway/internal/wmsadapter"
)

// CommandReporter is the slice of the command repository the poller uses
// to push completions back to the WMS.
type CommandReporter interface {
	ListCompletedUnreported(ctx context.Context, limit int) ([]commands.Command, error)
	MarkWMSUpdated(ctx context.Context, id string) error
	MarkTimeoutBefore(ctx context.Context, before time.Time) (int, error)
}

// Options configures the poll loop.
type Options struct {
	Interval       time.Duration // poll period, default 30s
	WindowOverlap  time.Duration // how far behind last poll each window starts
	CommandTimeout time.Duration // sent commands older than this time out
	ReportBatch    int
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
	if o.WindowOverlap < 0 {
		o.WindowOverlap = 0
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 5 * time.Minute
	}
	if o.ReportBatch <= 0 {
		o.ReportBatch = 100
	}
	return o
}

// Poller drives the WMS integration: it pulls new commands on a fixed
// interval, hands them to the ingest service, reports completed work back,
// and times out commands the shuttles never acknowledged.
//
// The WMS client is swappable at runtime so operators can point the
// gateway at the mock server without a restart.
type Poller struct {
	live    wmsadapter.Config
	mock    wmsadapter.Config
	client  atomic.Pointer[wmsadapter.Client]
	mocked  atomic.Bool
	service *application.Service
	repo    CommandReporter
	opts    Options
	logger  *log.Logger

	mu       sync.Mutex
	lastPoll time.Time
}

// New builds a poller starting against the live WMS.
func New(live, mock wmsadapter.Config, service *application.Service, repo CommandReporter, opts Options, logger *log.Logger) (*Poller, error) {
	if logger == nil {
		logger = log.Default()
	}
	p := &Poller{
		live:    live,
		mock:    mock,
		service: service,
		repo:    repo,
		opts:    opts.withDefaults(),
		logger:  logger,
	}
	client, err := wmsadapter.NewClient(live, wmsadapter.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	p.client.Store(client)
	return p, nil
}

// UseMock rebuilds the client against the mock WMS. Safe under concurrent
// polls; in-flight requests finish against the old client.
func (p *Poller) UseMock() (string, error) {
	client, err := wmsadapter.NewClient(p.mock, wmsadapter.WithLogger(p.logger))
	if err != nil {
		return "", err
	}
	p.client.Store(client)
	p.mocked.Store(true)
	p.logger.Printf("poller: switched to mock WMS at %s", client.BaseURL())
	return client.BaseURL(), nil
}

// UseLive rebuilds the client against the production WMS.
func (p *Poller) UseLive() (string, error) {
	client, err := wmsadapter.NewClient(p.live, wmsadapter.WithLogger(p.logger))
	if err != nil {
		return "", err
	}
	p.client.Store(client)
	p.mocked.Store(false)
	p.logger.Printf("poller: switched to live WMS at %s", client.BaseURL())
	return client.BaseURL(), nil
}

// Mocked reports whether the gateway currently targets the mock server.
func (p *Poller) Mocked() bool {
	return p.mocked.Load()
}

// Target returns the base URL of the current WMS client.
func (p *Poller) Target() string {
	return p.client.Load().BaseURL()
}

// Run polls until the context is canceled. The first cycle fires
// immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	p.pull(ctx)
	p.reportCompleted(ctx)
	p.sweepTimeouts(ctx)
}

// pull fetches the next window of commands. A partial WMS failure still
// queues whatever came back; only the window advance is held back when a
// source failed, so the failed source is retried next cycle.
func (p *Poller) pull(ctx context.Context) {
	client := p.client.Load()

	p.mu.Lock()
	from := p.lastPoll.Add(-p.opts.WindowOverlap)
	p.mu.Unlock()
	to := time.Now().UTC()

	started := time.Now()
	batch, err := client.GetCommandsBetween(ctx, from, to)
	metrics.ObserveWMSRequest("commands", resultLabel(err), time.Since(started).Seconds())
	if err != nil {
		var srcErr *wmsadapter.SourceError
		if errors.As(err, &srcErr) {
			metrics.IncWMSAPIError("commands", string(srcErr.Source))
		} else {
			metrics.IncWMSAPIError("commands", "request")
		}
		p.logger.Printf("poller: pull: %v", err)
	}
	if len(batch) > 0 {
		// One correlation id per pull so every event from this window
		// can be traced back to the same WMS round trip.
		ingestCtx := eventing.WithCorrelationID(ctx, uuid.NewString())
		result, ingestErr := p.service.Ingest(ingestCtx, batch)
		if ingestErr != nil {
			p.logger.Printf("poller: ingest: %v", ingestErr)
		}
		p.logger.Printf("poller: window %s..%s queued=%d duplicates=%d skipped=%d failed=%d",
			from.Format(time.RFC3339), to.Format(time.RFC3339),
			result.Queued, result.Duplicates, result.Skipped, result.Failed)
	}
	if err == nil {
		p.mu.Lock()
		p.lastPoll = to
		p.mu.Unlock()
	}
}

// reportCompleted pushes finished commands back to the WMS with retry and
// marks them reported only on success, so a WMS outage never loses a
// completion.
func (p *Poller) reportCompleted(ctx context.Context) {
	done, err := p.repo.ListCompletedUnreported(ctx, p.opts.ReportBatch)
	if err != nil {
		p.logger.Printf("poller: list completed: %v", err)
		return
	}
	client := p.client.Load()
	for _, cmd := range done {
		update := wmsadapter.StatusUpdate{
			Source:     cmd.Source,
			ExternalID: cmd.ExternalID,
			Status:     cmd.Status,
		}
		err := retry.Do(ctx, func(ctx context.Context) error {
			return client.UpdateCommandStatus(ctx, update)
		}, retry.Options{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
			Jitter:      0.2,
			OnRetry: func(attempt int, err error) {
				metrics.IncWMSRetry("status-updates")
				p.logger.Printf("poller: status update %s attempt %d: %v", cmd.ExternalID, attempt, err)
			},
		})
		if err != nil {
			metrics.IncWMSStatusUpdate(string(cmd.Source), "error")
			p.logger.Printf("poller: status update %s: %v", cmd.ExternalID, err)
			continue
		}
		metrics.IncWMSStatusUpdate(string(cmd.Source), "ok")
		if err := p.repo.MarkWMSUpdated(ctx, cmd.ID); err != nil {
			p.logger.Printf("poller: mark reported %s: %v", cmd.ID, err)
		}
	}
}

func (p *Poller) sweepTimeouts(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.opts.CommandTimeout)
	count, err := p.repo.MarkTimeoutBefore(ctx, cutoff)
	if err != nil {
		p.logger.Printf("poller: timeout sweep: %v", err)
		return
	}
	if count > 0 {
		metrics.IncCommandResult(metrics.CommandResultTimeout)
		p.logger.Printf("poller: timed out %d unacknowledged commands", count)
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
