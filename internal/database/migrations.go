package database

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS call_logs (
		id BIGSERIAL PRIMARY KEY,
		call_id VARCHAR(64) NOT NULL,
		sender VARCHAR(255) NOT NULL,
		receiver VARCHAR(255) NOT NULL,
		receiver_team VARCHAR(255) NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		accepted_at TIMESTAMP WITH TIME ZONE,
		rejected_at TIMESTAMP WITH TIME ZONE,
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE(call_id, receiver, receiver_team)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_call_logs_call_id ON call_logs(call_id)`,
	`CREATE INDEX IF NOT EXISTS idx_call_logs_sender ON call_logs(sender)`,
	`CREATE INDEX IF NOT EXISTS idx_call_logs_receiver_team ON call_logs(receiver_team)`,
	`CREATE INDEX IF NOT EXISTS idx_call_logs_created_at ON call_logs(created_at DESC)`,

	// Sweeps for unanswered calls only touch pending rows
	`CREATE INDEX IF NOT EXISTS idx_call_logs_pending ON call_logs(created_at) WHERE status = 'pending'`,
}

func (db *DB) Migrate(ctx context.Context) error {
	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
