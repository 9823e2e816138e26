package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"porter/contexts/messaging-core/dead-letter/adapters/memory"
	domainerrors "porter/contexts/messaging-core/dead-letter/domain/errors"
	"porter/contexts/messaging-core/dead-letter/ports"
	"porter/internal/shared/units"
)

type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time { return c.now }

type sequenceIDs struct {
	next int
}

func (g *sequenceIDs) NewID() string {
	g.next++
	return "entry-" + string(rune('0'+g.next))
}

var errHandler = errors.New("handler blew up")

func newQueue(store *memory.Store, clock *stubClock) Service {
	return Service{
		Repo:         store,
		IDs:          &sequenceIDs{},
		Clock:        clock,
		MaxRetries:   3,
		FirstBackoff: time.Minute,
		BackoffBase:  5,
	}
}

func sampleUnit() units.Unit {
	return units.Unit{
		MessageID:     "m2",
		Subject:       "user-1",
		Kind:          units.KindText,
		Payload:       []byte(`{"text":"help"}`),
		CorrelationID: "corr-1",
	}
}

func TestSaveFailedCreatesPendingEntry(t *testing.T) {
	store := memory.NewStore()
	clock := &stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	queue := newQueue(store, clock)

	entryID := queue.SaveFailed(context.Background(), sampleUnit(), errHandler)
	if entryID == "" {
		t.Fatal("expected entry id")
	}

	entry, err := store.Get(context.Background(), entryID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if entry.Status != ports.StatusPending {
		t.Fatalf("expected pending, got %s", entry.Status)
	}
	if entry.RetryCount != 0 || entry.MaxRetries != 3 {
		t.Fatalf("unexpected retry bookkeeping: %+v", entry)
	}
	if entry.NextRetryAt == nil || !entry.NextRetryAt.Equal(clock.now.Add(time.Minute)) {
		t.Fatalf("expected next retry one minute out, got %v", entry.NextRetryAt)
	}
	if entry.ErrorMessage != errHandler.Error() {
		t.Fatalf("expected original error captured, got %q", entry.ErrorMessage)
	}
}

func TestSaveFailedNeverSurfacesPersistenceFailure(t *testing.T) {
	clock := &stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	queue := newQueue(memory.NewStore(), clock)
	queue.Repo = failingRepo{}

	// Must not panic or error; the returned id is simply empty.
	if entryID := queue.SaveFailed(context.Background(), sampleUnit(), errHandler); entryID != "" {
		t.Fatalf("expected empty id, got %q", entryID)
	}
}

func TestRecordRetryFailureSchedulesBackoff(t *testing.T) {
	store := memory.NewStore()
	clock := &stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	queue := newQueue(store, clock)

	entryID := queue.SaveFailed(context.Background(), sampleUnit(), errHandler)
	clock.now = clock.now.Add(2 * time.Minute)

	if err := queue.RecordRetryFailure(context.Background(), entryID, errHandler); err != nil {
		t.Fatalf("record retry failure failed: %v", err)
	}

	entry, _ := store.Get(context.Background(), entryID)
	if entry.Status != ports.StatusRetrying || entry.RetryCount != 1 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	// base^1 = 5 minutes after the attempt.
	if entry.NextRetryAt == nil || !entry.NextRetryAt.Equal(clock.now.Add(5*time.Minute)) {
		t.Fatalf("expected 5 minute backoff, got %v", entry.NextRetryAt)
	}
}

func TestRetryExhaustionIsTerminal(t *testing.T) {
	store := memory.NewStore()
	clock := &stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	queue := newQueue(store, clock)

	entryID := queue.SaveFailed(context.Background(), sampleUnit(), errHandler)
	for i := 0; i < 3; i++ {
		if err := queue.RecordRetryFailure(context.Background(), entryID, errHandler); err != nil {
			t.Fatalf("retry %d failed: %v", i+1, err)
		}
	}

	entry, _ := store.Get(context.Background(), entryID)
	if entry.Status != ports.StatusFailed {
		t.Fatalf("expected failed, got %s", entry.Status)
	}
	if entry.NextRetryAt != nil {
		t.Fatal("terminal entry must have no next retry")
	}
	if entry.RetryCount != entry.MaxRetries {
		t.Fatalf("retry count %d must equal max retries %d", entry.RetryCount, entry.MaxRetries)
	}

	// Terminal means terminal: further bookkeeping is refused.
	if err := queue.RecordRetryFailure(context.Background(), entryID, errHandler); !errors.Is(err, domainerrors.ErrEntryTerminal) {
		t.Fatalf("expected ErrEntryTerminal, got %v", err)
	}
}

func TestMarkProcessedAndSkippedAreTerminal(t *testing.T) {
	store := memory.NewStore()
	clock := &stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	queue := newQueue(store, clock)

	processedID := queue.SaveFailed(context.Background(), sampleUnit(), errHandler)
	if err := queue.MarkProcessed(context.Background(), processedID); err != nil {
		t.Fatalf("mark processed failed: %v", err)
	}

	skippedUnit := sampleUnit()
	skippedUnit.MessageID = "m3"
	skippedID := queue.SaveFailed(context.Background(), skippedUnit, errHandler)
	if err := queue.MarkSkipped(context.Background(), skippedID, "media expired"); err != nil {
		t.Fatalf("mark skipped failed: %v", err)
	}

	clock.now = clock.now.Add(24 * time.Hour)
	due, err := queue.Due(context.Background(), 10)
	if err != nil {
		t.Fatalf("due failed: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("terminal entries must never be selected, got %d", len(due))
	}

	skipped, _ := store.Get(context.Background(), skippedID)
	if skipped.Status != ports.StatusSkipped || skipped.ErrorMessage != "media expired" {
		t.Fatalf("unexpected skipped entry: %+v", skipped)
	}
}

func TestDueSelectsOnlyEligibleEntries(t *testing.T) {
	store := memory.NewStore()
	clock := &stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	queue := newQueue(store, clock)

	dueID := queue.SaveFailed(context.Background(), sampleUnit(), errHandler)

	laterUnit := sampleUnit()
	laterUnit.MessageID = "m4"
	queue.SaveFailed(context.Background(), laterUnit, errHandler)

	clock.now = clock.now.Add(90 * time.Second)
	// Push the second entry's next retry beyond the sweep time.
	second, _ := store.Get(context.Background(), "entry-2")
	future := clock.now.Add(time.Hour)
	second.NextRetryAt = &future
	if err := store.Update(context.Background(), second); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	due, err := queue.Due(context.Background(), 10)
	if err != nil {
		t.Fatalf("due failed: %v", err)
	}
	if len(due) != 1 || due[0].EntryID != dueID {
		t.Fatalf("expected only the first entry due, got %+v", due)
	}
}

type failingRepo struct{}

func (failingRepo) Create(context.Context, ports.Entry) error {
	return errors.New("store down")
}

func (failingRepo) Get(context.Context, string) (ports.Entry, error) {
	return ports.Entry{}, errors.New("store down")
}

func (failingRepo) ListDue(context.Context, time.Time, int) ([]ports.Entry, error) {
	return nil, errors.New("store down")
}

func (failingRepo) Update(context.Context, ports.Entry) error {
	return errors.New("store down")
}

func (failingRepo) CountByStatus(context.Context) (map[string]int, error) {
	return nil, errors.New("store down")
}

func (failingRepo) DeleteTerminalBefore(context.Context, time.Time) (int, error) {
	return 0, errors.New("store down")
}
