// Package journal is the append-only command log that sits between the tagging
// machines and the durable store. Every persistence intent is appended here
// first and applied to the store in sequence order by a flusher.
package journal

import (
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"rally-tagger/internal/domain"
)

type Op string

const (
	OpSaveRally       Op = "save_rally"
	OpSaveShot        Op = "save_shot"
	OpUpdateShot      Op = "update_shot"
	OpDeleteRally     Op = "delete_rally"
	OpAdvanceProgress Op = "advance_progress"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApplying  Status = "applying"
	StatusApplied   Status = "applied"
	StatusCancelled Status = "cancelled"
)

type Entry struct {
	ID        string
	Seq       uint64
	Op        Op
	SetID     string
	RallyID   string
	Rally     *domain.Rally
	Shot      *domain.Shot
	Progress  *domain.Progress
	Status    Status
	Attempts  int
	LastError string
	CreatedAt time.Time
}

type Journal struct {
	mu      sync.Mutex
	entries []*Entry
	seq     uint64
	now     func() time.Time
}

func New() *Journal {
	return &Journal{now: time.Now}
}

// Append adds an entry to the end of the log. A new progress entry supersedes
// any progress entry for the same set that has not started applying.
func (j *Journal) Append(e Entry) (Entry, error) {
	id, err := gonanoid.New()
	if err != nil {
		return Entry{}, fmt.Errorf("failed to generate journal id: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if e.Op == OpAdvanceProgress {
		for _, prev := range j.entries {
			if prev.Op == OpAdvanceProgress && prev.SetID == e.SetID && prev.Status == StatusPending {
				prev.Status = StatusCancelled
			}
		}
	}

	j.seq++
	e.ID = id
	e.Seq = j.seq
	e.Status = StatusPending
	e.CreatedAt = j.now()
	e.Rally = cloneRally(e.Rally)
	if e.Shot != nil {
		s := *e.Shot
		e.Shot = &s
	}
	if e.Progress != nil {
		p := *e.Progress
		e.Progress = &p
	}

	stored := e
	j.entries = append(j.entries, &stored)
	return stored, nil
}

// CancelRallySave cancels a save for the rally that has not started applying.
// It reports false when the save is already applying or applied, in which case
// the caller must compensate with a delete.
func (j *Journal) CancelRallySave(rallyID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	cancelled := false
	for _, e := range j.entries {
		if e.RallyID != rallyID {
			continue
		}
		switch {
		case e.Op == OpSaveRally && e.Status == StatusPending:
			e.Status = StatusCancelled
			cancelled = true
		case e.Op == OpSaveRally:
			if e.Status != StatusCancelled {
				return false
			}
		case e.Status == StatusPending:
			// shot writes for a withdrawn rally are moot
			e.Status = StatusCancelled
		}
	}
	return cancelled
}

// Next marks the oldest pending entry as applying and returns a copy of it.
func (j *Journal) Next() (Entry, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, e := range j.entries {
		if e.Status == StatusApplying {
			return Entry{}, false
		}
		if e.Status == StatusPending {
			e.Status = StatusApplying
			e.Attempts++
			return *e, true
		}
	}
	return Entry{}, false
}

// Done records the outcome of applying the entry with the given sequence. A
// failed entry goes back to pending and keeps its place in the order.
func (j *Journal) Done(seq uint64, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, e := range j.entries {
		if e.Seq != seq {
			continue
		}
		if err != nil {
			e.Status = StatusPending
			e.LastError = err.Error()
			return
		}
		e.Status = StatusApplied
		e.LastError = ""
		return
	}
}

// Pending counts entries not yet applied.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := 0
	for _, e := range j.entries {
		if e.Status == StatusPending || e.Status == StatusApplying {
			n++
		}
	}
	return n
}

// Compact drops the settled prefix of the log.
func (j *Journal) Compact() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	i := 0
	for i < len(j.entries) && (j.entries[i].Status == StatusApplied || j.entries[i].Status == StatusCancelled) {
		i++
	}
	j.entries = append([]*Entry(nil), j.entries[i:]...)
	return i
}

func (j *Journal) Entries() []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Entry, len(j.entries))
	for i, e := range j.entries {
		out[i] = *e
	}
	return out
}

func cloneRally(r *domain.Rally) *domain.Rally {
	if r == nil {
		return nil
	}
	c := *r
	c.Shots = append([]domain.Shot(nil), r.Shots...)
	return &c
}
