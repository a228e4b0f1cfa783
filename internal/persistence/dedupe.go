package persistence

import (
	"context"
	"database/sql"
	"time"
)

// CommandDeduper tracks processed command IDs so JetStream redeliveries do not
// re-apply an operation that already went through the engine.
type CommandDeduper struct {
	db *sql.DB
}

func NewCommandDeduper(db *sql.DB) *CommandDeduper {
	return &CommandDeduper{db: db}
}

// Seen reports whether the command ID was already processed.
func (d *CommandDeduper) Seen(ctx context.Context, commandID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	var one int
	err := d.db.QueryRowContext(ctx,
		`SELECT 1 FROM round_ledger.processed_commands WHERE command_id = $1`,
		commandID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkProcessed records a command ID. Safe to call twice.
func (d *CommandDeduper) MarkProcessed(ctx context.Context, commandID string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO round_ledger.processed_commands (command_id) VALUES ($1)
		 ON CONFLICT (command_id) DO NOTHING`,
		commandID,
	)
	return err
}
