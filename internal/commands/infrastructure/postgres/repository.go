package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	commands "shuttle-gateway/internal/commands/domain"
)

const commandColumns = `id, external_id, source, kind, verb, warehouse, cell, params,
	shuttle_id, status, created_at, sent_at, acked_at, done_at, wms_updated, error`

// CommandRepository is the Postgres store for shuttle commands.
type CommandRepository struct {
	db *sql.DB
}

// NewCommandRepository constructs a repository.
func NewCommandRepository(db *sql.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// Create inserts a command.
func (r *CommandRepository) Create(ctx context.Context, cmd *commands.Command) error {
	if r == nil || r.db == nil {
		return errors.New("command repo: nil db")
	}
	if cmd == nil {
		return errors.New("command repo: nil command")
	}
	if cmd.ExternalID == "" {
		return errors.New("command repo: empty external id")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO shuttle_commands (
	id, external_id, source, kind, verb, warehouse, cell, params,
	shuttle_id, status, created_at, wms_updated
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false
)`, cmd.ID, cmd.ExternalID, cmd.Source, cmd.Kind, cmd.Verb, cmd.Warehouse,
		cmd.Cell, cmd.Params, cmd.ShuttleID, cmd.Status, cmd.CreatedAt)
	return err
}

// FindByExternalID returns the most recent command for a WMS external id,
// or nil when the gateway has never seen it.
func (r *CommandRepository) FindByExternalID(ctx context.Context, externalID string) (*commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	if externalID == "" {
		return nil, errors.New("command repo: empty external id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+commandColumns+`
FROM shuttle_commands
WHERE external_id = $1
ORDER BY created_at DESC
LIMIT 1`, externalID)
	return scanCommand(row)
}

// GetByID fetches a command by gateway id.
func (r *CommandRepository) GetByID(ctx context.Context, id string) (*commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+commandColumns+`
FROM shuttle_commands
WHERE id = $1
LIMIT 1`, id)
	return scanCommand(row)
}

// MarkSent marks a command as sent to the shuttle.
func (r *CommandRepository) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	return r.setStatus(ctx, `UPDATE shuttle_commands SET status = $1, sent_at = $2 WHERE id = $3`,
		commands.StatusSent, sentAt, id)
}

// MarkAcked marks a command as acknowledged (MRCD received).
func (r *CommandRepository) MarkAcked(ctx context.Context, id string, ackedAt time.Time) error {
	return r.setStatus(ctx, `UPDATE shuttle_commands SET status = $1, acked_at = $2 WHERE id = $3`,
		commands.StatusAcked, ackedAt, id)
}

// MarkCompleted marks a command as done.
func (r *CommandRepository) MarkCompleted(ctx context.Context, id string, doneAt time.Time) error {
	return r.setStatus(ctx, `UPDATE shuttle_commands SET status = $1, done_at = $2 WHERE id = $3`,
		commands.StatusCompleted, doneAt, id)
}

// MarkFailed marks a command as failed with a reason.
func (r *CommandRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.setStatus(ctx, `UPDATE shuttle_commands SET status = $1, error = $2 WHERE id = $3`,
		commands.StatusFailed, errMsg, id)
}

func (r *CommandRepository) setStatus(ctx context.Context, query string, args ...any) error {
	if r == nil || r.db == nil {
		return errors.New("command repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

// MarkTimeoutBefore times out commands sent before the cutoff without an ack.
func (r *CommandRepository) MarkTimeoutBefore(ctx context.Context, before time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("command repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE shuttle_commands
SET status = $1, error = 'timeout'
WHERE status = $2 AND sent_at < $3`,
		commands.StatusTimeout, commands.StatusSent, before)
	if err != nil {
		return 0, err
	}
	count, _ := result.RowsAffected()
	return int(count), nil
}

// ListCompletedUnreported returns completed commands not yet reported to the WMS.
func (r *CommandRepository) ListCompletedUnreported(ctx context.Context, limit int) ([]commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+commandColumns+`
FROM shuttle_commands
WHERE status = $1 AND wms_updated = false
ORDER BY done_at ASC
LIMIT $2`, commands.StatusCompleted, limit)
	if err != nil {
		return nil, err
	}
	return scanCommands(rows)
}

// MarkWMSUpdated flags a command as reported back to the WMS.
func (r *CommandRepository) MarkWMSUpdated(ctx context.Context, id string) error {
	if r == nil || r.db == nil {
		return errors.New("command repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE shuttle_commands SET wms_updated = true WHERE id = $1`, id)
	return err
}

// ListByShuttleAndTime lists commands for a shuttle in a time range.
func (r *CommandRepository) ListByShuttleAndTime(ctx context.Context, shuttleID string, from, to time.Time) ([]commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+commandColumns+`
FROM shuttle_commands
WHERE shuttle_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at ASC`, shuttleID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return scanCommands(rows)
}

// ListByTime lists all commands in a time range, oldest first.
func (r *CommandRepository) ListByTime(ctx context.Context, from, to time.Time) ([]commands.Command, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("command repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+commandColumns+`
FROM shuttle_commands
WHERE created_at >= $1 AND created_at < $2
ORDER BY created_at ASC`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return scanCommands(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCommand(row rowScanner) (*commands.Command, error) {
	var cmd commands.Command
	var sentAt, ackedAt, doneAt sql.NullTime
	var errMsg sql.NullString
	if err := row.Scan(
		&cmd.ID,
		&cmd.ExternalID,
		&cmd.Source,
		&cmd.Kind,
		&cmd.Verb,
		&cmd.Warehouse,
		&cmd.Cell,
		&cmd.Params,
		&cmd.ShuttleID,
		&cmd.Status,
		&cmd.CreatedAt,
		&sentAt,
		&ackedAt,
		&doneAt,
		&cmd.WMSUpdated,
		&errMsg,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cmd.CreatedAt = cmd.CreatedAt.UTC()
	if sentAt.Valid {
		cmd.SentAt = sentAt.Time.UTC()
	}
	if ackedAt.Valid {
		cmd.AckedAt = ackedAt.Time.UTC()
	}
	if doneAt.Valid {
		cmd.DoneAt = doneAt.Time.UTC()
	}
	if errMsg.Valid {
		cmd.Error = errMsg.String
	}
	return &cmd, nil
}

func scanCommands(rows *sql.Rows) ([]commands.Command, error) {
	defer rows.Close()
	var result []commands.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *cmd)
	}
	return result, rows.Err()
}
