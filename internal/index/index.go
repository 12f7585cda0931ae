package index

import "context"

// Journal records completed moves so a later --verify can prove every
// checkpointed file reached its destination intact.
type Journal interface {
	RecordMove(ctx context.Context, m Move) error
	Moves(ctx context.Context, migrationID string) ([]Move, error)
}

// Verify *DB satisfies Journal at compile time.
var _ Journal = (*DB)(nil)
