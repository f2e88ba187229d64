package deletion

import (
	"errors"
	"testing"
	"time"

	"github.com/Commandability/commandability-web-sub001/internal/domain/session"
)

func TestNewJournalEntry(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	req := Request{Identity: session.Identity{ID: "u1"}, Secret: "s", All: true}

	ok := NewJournalEntry(at, req, &Result{DeletedRecordIDs: []string{"r1"}, DeletedObjects: 2})
	if ok.Outcome != OutcomeOK || ok.IdentityID != "u1" || !ok.All {
		t.Errorf("entry = %+v", ok)
	}
	if ok.Time.Location() != time.UTC || !ok.Time.Equal(at) {
		t.Errorf("time = %v, want %v in UTC", ok.Time, at)
	}

	result := &Result{
		DeletedRecordIDs: []string{"r1"},
		FailedObjects:    []ObjectFailure{{RecordID: "r1", Key: "k", Err: errors.New("boom"), Message: "boom"}},
	}
	partial := NewJournalEntry(at, req, result)
	if partial.Outcome != OutcomePartial {
		t.Errorf("outcome = %q, want %q", partial.Outcome, OutcomePartial)
	}

	// The entry owns its slices.
	result.DeletedRecordIDs[0] = "changed"
	if partial.DeletedRecordIDs[0] != "r1" {
		t.Error("entry shares DeletedRecordIDs with the result")
	}
}
