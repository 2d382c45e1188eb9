package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	fleet "shuttle-gateway/internal/fleet/domain"
)

const stateColumns = `shuttle_id, status, current_command, last_message, battery_level,
	location, pallet_count, wdh_hours, wlh_hours, error_code, last_seen, external_id`

// StateRepository persists last-known shuttle states.
type StateRepository struct {
	db *sql.DB
}

// NewStateRepository constructs a repository.
func NewStateRepository(db *sql.DB) *StateRepository {
	return &StateRepository{db: db}
}

// EnsureStates inserts an initial row for each configured shuttle that has
// no state yet. Existing rows are left alone across restarts.
func (r *StateRepository) EnsureStates(ctx context.Context, shuttleIDs []string) error {
	if r == nil || r.db == nil {
		return errors.New("state repo: nil db")
	}
	for _, id := range shuttleIDs {
		state := fleet.NewState(id)
		_, err := r.db.ExecContext(ctx, `
INSERT INTO shuttle_states (shuttle_id, status, last_seen)
VALUES ($1, $2, $3)
ON CONFLICT (shuttle_id) DO NOTHING`, state.ShuttleID, state.Status, state.LastSeen)
		if err != nil {
			return err
		}
	}
	return nil
}

// Get returns the state for a shuttle, or nil when unknown.
func (r *StateRepository) Get(ctx context.Context, shuttleID string) (*fleet.State, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("state repo: nil db")
	}
	if shuttleID == "" {
		return nil, errors.New("state repo: empty shuttle id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+stateColumns+`
FROM shuttle_states
WHERE shuttle_id = $1`, shuttleID)
	return scanState(row)
}

// Update applies a partial update and returns the resulting state.
func (r *StateRepository) Update(ctx context.Context, shuttleID string, update fleet.StateUpdate) (*fleet.State, error) {
	current, err := r.Get(ctx, shuttleID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.New("state repo: unknown shuttle " + shuttleID)
	}
	next := update.Apply(*current)
	_, err = r.db.ExecContext(ctx, `
UPDATE shuttle_states
SET status = $1, current_command = $2, last_message = $3, battery_level = $4,
	location = $5, pallet_count = $6, wdh_hours = $7, wlh_hours = $8,
	error_code = $9, last_seen = $10, external_id = $11
WHERE shuttle_id = $12`,
		next.Status, next.CurrentCommand, next.LastMessage, next.BatteryLevel,
		next.Location, next.PalletCount, next.WDHHours, next.WLHHours,
		next.ErrorCode, next.LastSeen, next.ExternalID, shuttleID)
	if err != nil {
		return nil, err
	}
	return &next, nil
}

// List returns all shuttle states ordered by id.
func (r *StateRepository) List(ctx context.Context) ([]fleet.State, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("state repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+stateColumns+`
FROM shuttle_states
ORDER BY shuttle_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var states []fleet.State
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

// Touch refreshes last_seen for a shuttle without changing anything else.
func (r *StateRepository) Touch(ctx context.Context, shuttleID string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("state repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE shuttle_states SET last_seen = $1 WHERE shuttle_id = $2`, at.UTC(), shuttleID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (*fleet.State, error) {
	var state fleet.State
	var currentCommand, lastMessage, battery, location, palletCount sql.NullString
	var errorCode, externalID sql.NullString
	var wdh, wlh sql.NullInt64
	if err := row.Scan(
		&state.ShuttleID,
		&state.Status,
		&currentCommand,
		&lastMessage,
		&battery,
		&location,
		&palletCount,
		&wdh,
		&wlh,
		&errorCode,
		&state.LastSeen,
		&externalID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	state.CurrentCommand = currentCommand.String
	state.LastMessage = lastMessage.String
	state.BatteryLevel = battery.String
	state.Location = location.String
	state.PalletCount = palletCount.String
	state.WDHHours = int(wdh.Int64)
	state.WLHHours = int(wlh.Int64)
	state.ErrorCode = errorCode.String
	state.ExternalID = externalID.String
	state.LastSeen = state.LastSeen.UTC()
	return &state, nil
}
