package deletion

import "time"

// Outcomes recorded in the journal.
const (
	OutcomeOK      = "ok"
	OutcomePartial = "partial"
)

// JournalEntry records one committed deletion. Entries are written only
// after the metadata batch committed, so every entry names records that
// are gone; FailedObjects lists what was orphaned.
type JournalEntry struct {
	Time             time.Time       `json:"time"`
	RequestID        string          `json:"request_id,omitempty"`
	IdentityID       string          `json:"identity_id"`
	All              bool            `json:"all,omitempty"`
	DeletedRecordIDs []string        `json:"deleted_record_ids"`
	DeletedObjects   int             `json:"deleted_objects"`
	FailedObjects    []ObjectFailure `json:"failed_objects,omitempty"`
	Outcome          string          `json:"outcome"`
}

// NewJournalEntry summarizes result for req.
func NewJournalEntry(at time.Time, req Request, result *Result) JournalEntry {
	outcome := OutcomeOK
	if result.Partial() {
		outcome = OutcomePartial
	}
	return JournalEntry{
		Time:             at.UTC(),
		IdentityID:       req.Identity.ID,
		All:              req.All,
		DeletedRecordIDs: append([]string(nil), result.DeletedRecordIDs...),
		DeletedObjects:   result.DeletedObjects,
		FailedObjects:    append([]ObjectFailure(nil), result.FailedObjects...),
		Outcome:          outcome,
	}
}
