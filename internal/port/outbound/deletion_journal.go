package outbound

import (
	"context"

	"github.com/Commandability/commandability-web-sub001/internal/domain/deletion"
)

// DeletionJournal persists a record of every committed deletion.
type DeletionJournal interface {
	// Record appends entry. A failure never undoes the deletion.
	Record(ctx context.Context, entry deletion.JournalEntry) error
}
