package wmsadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	commands "shuttle-gateway/internal/commands/domain"
)

// ErrUnauthorized is returned when the WMS rejects the configured credentials.
var ErrUnauthorized = errors.New("wmsadapter: unauthorized")

// SourceError reports a failure fetching one command source. A failure in one
// source never discards the other source's results; GetCommands returns the
// successful branch's commands together with a SourceError for the failed one.
type SourceError struct {
	Source commands.Source
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("wmsadapter: fetch %s commands: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Config holds WMS connection parameters. The client treats it as immutable;
// switching to a mock endpoint means building a new client from a new Config.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Client is a minimal WMS REST client. It is stateless and safe for
// concurrent use; every call allocates fresh request state.
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	logger   *log.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// WithLogger overrides the logger used for skipped-record reports.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient constructs a WMS client. No I/O is performed here.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("wmsadapter: empty base url")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: timeout},
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// BaseURL returns the endpoint this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RawRecord is one command line as the WMS returns it.
type RawRecord struct {
	ExternalID     string `json:"externalId"`
	ShuttleCommand string `json:"shuttleCommand"`
	Warehouse      string `json:"warehouse"`
	Cell           string `json:"cell"`
	Params         string `json:"params"`
}

// GetCommands fetches pending shipment and transfer commands concurrently and
// returns them classified and merged, shipment commands first, each source in
// WMS response order. Records with an unknown shuttleCommand or an empty
// externalId are logged and skipped rather than failing the batch.
//
// When one source fails the other source's commands are still returned and the
// error identifies the failed source; errors.Join combines two failures.
func (c *Client) GetCommands(ctx context.Context) ([]commands.Command, error) {
	return c.GetCommandsBetween(ctx, time.Time{}, time.Time{})
}

// GetCommandsBetween is GetCommands restricted to a WMS-side time window.
// Zero times omit the window parameters.
func (c *Client) GetCommandsBetween(ctx context.Context, from, to time.Time) ([]commands.Command, error) {
	var (
		group        errgroup.Group
		shipments    []commands.Command
		transfers    []commands.Command
		shipmentsErr error
		transfersErr error
	)
	group.Go(func() error {
		shipments, shipmentsErr = c.fetchSource(ctx, commands.SourceShipment, "/shipments/commands", from, to)
		return nil
	})
	group.Go(func() error {
		transfers, transfersErr = c.fetchSource(ctx, commands.SourceTransfer, "/transfers/commands", from, to)
		return nil
	})
	_ = group.Wait()

	merged := make([]commands.Command, 0, len(shipments)+len(transfers))
	merged = append(merged, shipments...)
	merged = append(merged, transfers...)
	return merged, errors.Join(shipmentsErr, transfersErr)
}

func (c *Client) fetchSource(ctx context.Context, source commands.Source, path string, from, to time.Time) ([]commands.Command, error) {
	endpoint := c.baseURL + path
	if !from.IsZero() || !to.IsZero() {
		query := url.Values{}
		if !from.IsZero() {
			query.Set("from", from.UTC().Format(time.RFC3339))
		}
		if !to.IsZero() {
			query.Set("to", to.UTC().Format(time.RFC3339))
		}
		endpoint += "?" + query.Encode()
	}

	var records []RawRecord
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &records); err != nil {
		return nil, &SourceError{Source: source, Err: err}
	}

	now := time.Now().UTC()
	result := make([]commands.Command, 0, len(records))
	for _, record := range records {
		if record.ExternalID == "" {
			c.logger.Printf("wms: %s record without externalId skipped", source)
			continue
		}
		kind := commands.KindFromWMS(record.ShuttleCommand)
		if kind == commands.KindUnknown {
			c.logger.Printf("wms: %s command %s has unknown kind %q, skipped", source, record.ExternalID, record.ShuttleCommand)
			continue
		}
		verb, _ := kind.WireVerb()
		result = append(result, commands.Command{
			ExternalID: record.ExternalID,
			Source:     source,
			Kind:       kind,
			Verb:       verb,
			Warehouse:  record.Warehouse,
			Cell:       record.Cell,
			Params:     record.Params,
			Status:     commands.StatusCreated,
			CreatedAt:  now,
		})
	}
	return result, nil
}

// StatusUpdate reports a processed command line back to the WMS.
type StatusUpdate struct {
	Source     commands.Source `json:"source"`
	ExternalID string          `json:"externalId"`
	Status     string          `json:"status"`
	Quantity   int             `json:"quantity"`
}

// UpdateCommandStatus posts a completion status for a command line.
func (c *Client) UpdateCommandStatus(ctx context.Context, update StatusUpdate) error {
	if update.ExternalID == "" {
		return errors.New("wmsadapter: empty external id")
	}
	if update.Quantity <= 0 {
		update.Quantity = 1
	}
	return c.doJSON(ctx, http.MethodPost, c.baseURL+"/status-updates", update, nil)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 300:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("wmsadapter: %s %s returned %d: %s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("wmsadapter: decode %s response: %w", endpoint, err)
	}
	return nil
}
