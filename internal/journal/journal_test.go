package journal

import (
	"errors"
	"testing"

	"rally-tagger/internal/domain"
)

func appendRally(t *testing.T, j *Journal, id string) Entry {
	t.Helper()
	e, err := j.Append(Entry{Op: OpSaveRally, SetID: "SET-1", RallyID: id, Rally: &domain.Rally{ID: id}})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	return e
}

func TestJournal_AppliesInOrderAndRetriesFailures(t *testing.T) {
	j := New()
	first := appendRally(t, j, "R1")
	appendRally(t, j, "R2")

	e, ok := j.Next()
	if !ok || e.Seq != first.Seq {
		t.Fatalf("Next = %+v, want seq %d", e, first.Seq)
	}
	if _, ok := j.Next(); ok {
		t.Fatal("Next must not hand out a second entry while one is applying")
	}

	j.Done(e.Seq, errors.New("disk full"))
	retry, ok := j.Next()
	if !ok || retry.Seq != first.Seq || retry.Attempts != 2 {
		t.Fatalf("retry = %+v, want seq %d attempt 2", retry, first.Seq)
	}
	j.Done(retry.Seq, nil)

	second, _ := j.Next()
	if second.RallyID != "R2" {
		t.Errorf("second entry = %s, want R2", second.RallyID)
	}
	j.Done(second.Seq, nil)

	if j.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", j.Pending())
	}
	if n := j.Compact(); n != 2 || len(j.Entries()) != 0 {
		t.Errorf("Compact dropped %d, left %d", n, len(j.Entries()))
	}
}

func TestJournal_CancelRallySave(t *testing.T) {
	j := New()
	appendRally(t, j, "R1")

	if !j.CancelRallySave("R1") {
		t.Fatal("pending save should cancel in place")
	}
	if j.Pending() != 0 {
		t.Errorf("Pending = %d after cancel", j.Pending())
	}

	appendRally(t, j, "R2")
	e, _ := j.Next()
	if j.CancelRallySave("R2") {
		t.Error("applying save must not be cancelled")
	}
	j.Done(e.Seq, nil)
	if j.CancelRallySave("R2") {
		t.Error("applied save must not be cancelled")
	}
}

func TestJournal_ProgressSupersedes(t *testing.T) {
	j := New()
	for i := 1; i <= 3; i++ {
		j.Append(Entry{Op: OpAdvanceProgress, SetID: "SET-1", Progress: &domain.Progress{Phase: domain.PhaseCaptureActive, LastRallyIndex: i}})
	}
	if j.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", j.Pending())
	}
	e, _ := j.Next()
	if e.Progress.LastRallyIndex != 3 {
		t.Errorf("surviving progress = %+v, want last rally 3", e.Progress)
	}
}

func TestJournal_AppendCopiesRally(t *testing.T) {
	j := New()
	r := &domain.Rally{ID: "R1", Shots: []domain.Shot{{Ordinal: 1}}}
	j.Append(Entry{Op: OpSaveRally, RallyID: "R1", Rally: r})
	r.Shots[0].Ordinal = 99

	e, _ := j.Next()
	if e.Rally.Shots[0].Ordinal != 1 {
		t.Error("journal entry aliases the caller's rally")
	}
}
