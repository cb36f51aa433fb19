package persistence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"rally-tagger/internal/domain"
)

type memStore struct {
	mu       sync.Mutex
	rallies  map[string]domain.Rally
	progress map[string]domain.Progress
	fail     error
	calls    []string
}

func newMemStore() *memStore {
	return &memStore{rallies: map[string]domain.Rally{}, progress: map[string]domain.Progress{}}
}

func (m *memStore) record(call string) error {
	m.calls = append(m.calls, call)
	return m.fail
}

func (m *memStore) SaveRally(ctx context.Context, r domain.Rally) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("save_rally"); err != nil {
		return err
	}
	r.Shots = append([]domain.Shot(nil), r.Shots...)
	m.rallies[r.ID] = r
	return nil
}

func (m *memStore) SaveShot(ctx context.Context, s domain.Shot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("save_shot"); err != nil {
		return err
	}
	r, ok := m.rallies[s.RallyID]
	if !ok {
		return errors.New("no such rally")
	}
	for i := range r.Shots {
		if r.Shots[i].Ordinal == s.Ordinal {
			r.Shots[i] = s
			return nil
		}
	}
	r.Shots = append(r.Shots, s)
	m.rallies[r.ID] = r
	return nil
}

func (m *memStore) count(call string) int {
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (m *memStore) UpdateShot(ctx context.Context, rallyID string, ordinal int, ann domain.Annotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("update_shot"); err != nil {
		return err
	}
	r := m.rallies[rallyID]
	for i := range r.Shots {
		if r.Shots[i].Ordinal == ordinal {
			r.Shots[i].Annotation = ann
		}
	}
	return nil
}

func (m *memStore) DeleteRally(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete_rally"); err != nil {
		return err
	}
	delete(m.rallies, id)
	return nil
}

func (m *memStore) UpdateProgress(ctx context.Context, setID string, p domain.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("progress"); err != nil {
		return err
	}
	m.progress[setID] = p
	return nil
}

func (m *memStore) RalliesBySet(ctx context.Context, setID string) ([]domain.Rally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	var out []domain.Rally
	for _, r := range m.rallies {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordinal < out[j].Ordinal })
	return out, nil
}

func testRally(ordinal, shots int) domain.Rally {
	r := domain.Rally{Ordinal: ordinal, EndCondition: domain.EndWinner}
	for i := 1; i <= shots; i++ {
		r.Shots = append(r.Shots, domain.Shot{Ordinal: i, Time: float64(ordinal*10 + i)})
	}
	return r
}

func TestCommitRally_AssignsIDsAndFlushes(t *testing.T) {
	store := newMemStore()
	a := NewAdapter("SET-1", store, zerolog.Nop())

	r := a.CommitRally(testRally(1, 2))
	if r.ID == "" || r.SetID != "SET-1" {
		t.Fatalf("rally not stamped: %+v", r)
	}
	for _, s := range r.Shots {
		if s.ID == "" || s.RallyID != r.ID {
			t.Errorf("shot not stamped: %+v", s)
		}
	}
	if len(store.rallies) != 0 {
		t.Fatal("commit must not write synchronously")
	}

	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if _, ok := store.rallies[r.ID]; !ok {
		t.Error("rally missing after flush")
	}
	st := a.Status()
	if st.Pending != 0 || st.LastSavedAt == nil || st.LastError != "" {
		t.Errorf("status = %+v", st)
	}
}

func TestFlush_FailureKeepsOrderAndRetries(t *testing.T) {
	store := newMemStore()
	a := NewAdapter("SET-1", store, zerolog.Nop())

	store.fail = errors.New("store unreachable")
	r1 := a.CommitRally(testRally(1, 1))
	a.AdvanceProgress(domain.Progress{Phase: domain.PhaseCaptureActive, LastRallyIndex: 1})

	if err := a.Flush(context.Background()); err == nil {
		t.Fatal("Flush should report the failure")
	}
	st := a.Status()
	if st.Pending != 2 || st.LastError == "" {
		t.Errorf("status after failure = %+v", st)
	}

	store.fail = nil
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if _, ok := store.rallies[r1.ID]; !ok {
		t.Error("rally not written on retry")
	}
	if store.progress["SET-1"].LastRallyIndex != 1 {
		t.Errorf("progress = %+v", store.progress["SET-1"])
	}
	if a.Status().LastError != "" {
		t.Error("LastError should clear after a successful flush")
	}
}

func TestRetractRally_CancelsUnflushedSave(t *testing.T) {
	store := newMemStore()
	a := NewAdapter("SET-1", store, zerolog.Nop())

	r := a.CommitRally(testRally(1, 2))
	a.RetractRally(r)
	a.Flush(context.Background())

	for _, c := range store.calls {
		if c == "save_rally" || c == "delete_rally" {
			t.Errorf("unexpected store call %s for a cancelled rally", c)
		}
	}
}

func TestRetractRally_DeletesFlushedRally(t *testing.T) {
	store := newMemStore()
	a := NewAdapter("SET-1", store, zerolog.Nop())

	r := a.CommitRally(testRally(1, 2))
	a.Flush(context.Background())
	a.RetractRally(r)
	a.Flush(context.Background())

	if _, ok := store.rallies[r.ID]; ok {
		t.Error("flushed rally should be deleted by the compensating write")
	}
}

func TestBulkSave_FillsGapsByOrdinal(t *testing.T) {
	store := newMemStore()
	a := NewAdapter("SET-1", store, zerolog.Nop())

	r1 := a.CommitRally(testRally(1, 3))
	r2 := a.CommitRally(testRally(2, 2))
	a.Flush(context.Background())

	// Simulate a crashed attempt that lost rally 2 and the last shot of rally 1.
	delete(store.rallies, r2.ID)
	partial := store.rallies[r1.ID]
	partial.Shots = partial.Shots[:2]
	store.rallies[r1.ID] = partial

	r1.Shots[0].Annotation = domain.Annotation{Direction: "left_left"}
	report, err := a.BulkSave(context.Background(), []domain.Rally{r1, r2})
	if err != nil {
		t.Fatalf("BulkSave failed: %v", err)
	}
	if report.RalliesSaved != 1 || report.ShotsSaved != 3 || report.ShotsAnnotated != 1 {
		t.Errorf("report = %+v", report)
	}
	if got := len(store.rallies[r1.ID].Shots); got != 3 {
		t.Errorf("rally 1 shots = %d, want 3", got)
	}
	if store.rallies[r1.ID].Shots[0].Annotation.Direction != "left_left" {
		t.Error("annotation not re-applied")
	}

	again, err := a.BulkSave(context.Background(), []domain.Rally{r1, r2})
	if err != nil {
		t.Fatalf("second BulkSave failed: %v", err)
	}
	if again.RalliesSaved != 0 || again.ShotsSaved != 0 {
		t.Errorf("second report = %+v, want nothing saved", again)
	}
}

func TestCommitShot_KeyedByRallyAndOrdinal(t *testing.T) {
	store := newMemStore()
	a := NewAdapter("SET-1", store, zerolog.Nop())

	r := a.CommitRally(testRally(1, 1))
	a.Flush(context.Background())

	id := a.CommitShot(r.ID, domain.Shot{Ordinal: 2, Time: 12})
	if id == "" {
		t.Fatal("CommitShot returned an empty id")
	}
	if got := len(store.rallies[r.ID].Shots); got != 1 {
		t.Fatalf("shot written before flush: %d shots", got)
	}
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// Requeueing the same ordinal overwrites instead of adding a row.
	a.CommitShot(r.ID, domain.Shot{ID: id, Ordinal: 2, Time: 12.5})
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush failed: %v", err)
	}

	shots := store.rallies[r.ID].Shots
	if len(shots) != 2 {
		t.Fatalf("shots = %d, want 2", len(shots))
	}
	got := shots[1]
	if got.ID != id || got.RallyID != r.ID || got.Ordinal != 2 || got.Time != 12.5 {
		t.Errorf("stored shot = %+v", got)
	}
}

func TestBulkSave_RetriesAfterUnreachableStore(t *testing.T) {
	store := newMemStore()
	a := NewAdapter("SET-1", store, zerolog.Nop())

	r := a.CommitRally(testRally(1, 2))
	a.Flush(context.Background())
	partial := store.rallies[r.ID]
	partial.Shots = partial.Shots[:1]
	store.rallies[r.ID] = partial

	store.fail = errors.New("store unreachable")
	report, err := a.BulkSave(context.Background(), []domain.Rally{r})
	if err == nil {
		t.Fatal("BulkSave should report the unreachable store")
	}
	if report.ShotsSaved != 0 {
		t.Errorf("report = %+v, want nothing saved", report)
	}

	store.fail = nil
	store.calls = nil
	report, err = a.BulkSave(context.Background(), []domain.Rally{r})
	if err != nil {
		t.Fatalf("BulkSave failed: %v", err)
	}
	if report.ShotsSaved != 1 {
		t.Errorf("report = %+v, want one shot saved", report)
	}
	if got := store.count("save_shot"); got != 1 {
		t.Errorf("save_shot calls = %d, want 1", got)
	}
	if got := len(store.rallies[r.ID].Shots); got != 2 {
		t.Errorf("rally shots = %d, want 2", got)
	}
	if a.Status().Pending != 0 {
		t.Errorf("pending = %d after bulk save", a.Status().Pending)
	}
}

func TestBulkSave_SkipsSupersededRally(t *testing.T) {
	store := newMemStore()
	a := NewAdapter("SET-1", store, zerolog.Nop())

	store.rallies["OLD"] = domain.Rally{ID: "OLD", SetID: "SET-1", Ordinal: 1, Shots: []domain.Shot{{ID: "S1", RallyID: "OLD", Ordinal: 1}}}
	current := testRally(1, 3)
	current.ID = "NEW"
	for i, id := range []string{"N1", "N2", "N3"} {
		current.Shots[i].ID = id
		current.Shots[i].RallyID = "NEW"
	}
	current.Shots[0].Annotation = domain.Annotation{Direction: "left_left"}

	report, err := a.BulkSave(context.Background(), []domain.Rally{current})
	if err != nil {
		t.Fatalf("BulkSave failed: %v", err)
	}
	if report != (SaveReport{}) {
		t.Errorf("report = %+v, want nothing repaired", report)
	}
	if got := len(store.rallies["OLD"].Shots); got != 1 {
		t.Errorf("stale rally shots = %d, want 1", got)
	}
	if store.rallies["OLD"].Shots[0].Annotation.Direction != "" {
		t.Error("annotation written under the stale rally id")
	}
	if store.count("save_shot") != 0 || store.count("update_shot") != 0 {
		t.Errorf("unexpected store calls %v", store.calls)
	}
}

func TestRun_FlushesOnKick(t *testing.T) {
	store := newMemStore()
	a := NewAdapter("SET-1", store, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		a.Run(ctx, time.Hour)
		close(done)
	}()

	r := a.CommitRally(testRally(1, 1))
	deadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.Lock()
		_, ok := store.rallies[r.ID]
		store.mu.Unlock()
		if ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("rally was not flushed by the background runner")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	<-done
}
