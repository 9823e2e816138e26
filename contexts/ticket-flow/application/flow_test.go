package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	breakers "porter/contexts/messaging-core/circuit-breaker/application"
	breakerports "porter/contexts/messaging-core/circuit-breaker/ports"
	sessionmemory "porter/contexts/messaging-core/session-state/adapters/memory"
	sessions "porter/contexts/messaging-core/session-state/application"
	sessionports "porter/contexts/messaging-core/session-state/ports"
	"porter/contexts/ticket-flow/adapters/memory"
	domainerrors "porter/contexts/ticket-flow/domain/errors"
	"porter/contexts/ticket-flow/ports"
	"porter/internal/shared/faults"
	"porter/internal/shared/units"
)

type fixture struct {
	flow      Flow
	store     *sessionmemory.Store
	directory *memory.EquipmentDirectory
	desk      *memory.TicketDesk
	ratings   *memory.RatingBook
	outbox    *memory.Outbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := sessionmemory.NewStore()
	directory := memory.NewEquipmentDirectory(ports.Equipment{
		Ref:      "EQ-100",
		Name:     "Coffee machine",
		Location: "3rd floor kitchen",
	})
	desk := memory.NewTicketDesk()
	ratings := memory.NewRatingBook()
	outbox := memory.NewOutbox()
	return &fixture{
		flow: Flow{
			Sessions:  sessions.Controller{Repo: store, BackoffBase: time.Millisecond},
			Breakers:  breakers.NewRegistry(breakerports.Config{FailureThreshold: 3, Cooldown: time.Minute}, nil, nil),
			Equipment: directory,
			Tickets:   desk,
			Ratings:   ratings,
			Channel:   outbox,
		},
		store:     store,
		directory: directory,
		desk:      desk,
		ratings:   ratings,
		outbox:    outbox,
	}
}

func textUnit(id string, text string) units.Unit {
	return units.Unit{
		MessageID: id,
		Subject:   "user-1",
		Kind:      units.KindText,
		Payload:   []byte(fmt.Sprintf(`{"text":%q}`, text)),
	}
}

func ratingUnit(id string, score int) units.Unit {
	return units.Unit{
		MessageID: id,
		Subject:   "user-1",
		Kind:      units.KindRatingReply,
		Payload:   []byte(fmt.Sprintf(`{"score":%d}`, score)),
	}
}

func (f *fixture) sessionState(t *testing.T) string {
	t.Helper()
	session, found, err := f.store.Get(context.Background(), "user-1")
	if err != nil || !found {
		t.Fatalf("session missing: found=%v err=%v", found, err)
	}
	return session.StateCode
}

func TestFullConversationOpensTicketAndRecordsRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.flow.Handle(ctx, textUnit("m1", "hello")); err != nil {
		t.Fatalf("greeting failed: %v", err)
	}
	if state := f.sessionState(t); state != sessionports.StateAwaitEquipment {
		t.Fatalf("expected await_equipment, got %s", state)
	}

	if err := f.flow.Handle(ctx, textUnit("m2", "EQ-100")); err != nil {
		t.Fatalf("equipment step failed: %v", err)
	}
	if state := f.sessionState(t); state != sessionports.StateAwaitIssue {
		t.Fatalf("expected await_issue, got %s", state)
	}

	if err := f.flow.Handle(ctx, textUnit("m3", "it leaks water")); err != nil {
		t.Fatalf("issue step failed: %v", err)
	}
	if state := f.sessionState(t); state != sessionports.StateAwaitRating {
		t.Fatalf("expected await_rating, got %s", state)
	}
	if len(f.desk.Opened) != 1 || f.desk.Opened[0].EquipmentRef != "EQ-100" {
		t.Fatalf("unexpected tickets: %+v", f.desk.Opened)
	}

	if err := f.flow.Handle(ctx, ratingUnit("m4", 5)); err != nil {
		t.Fatalf("rating step failed: %v", err)
	}
	if state := f.sessionState(t); state != sessionports.StateClosed {
		t.Fatalf("expected closed, got %s", state)
	}
	if len(f.ratings.Saved) != 1 || f.ratings.Saved[0].Score != 5 {
		t.Fatalf("unexpected ratings: %+v", f.ratings.Saved)
	}

	sent := f.outbox.Texts()
	if len(sent) != 4 {
		t.Fatalf("expected 4 replies, got %d: %+v", len(sent), sent)
	}
	if !strings.Contains(sent[2].Text, "TCK-0001") {
		t.Fatalf("confirmation must carry the ticket id, got %q", sent[2].Text)
	}
}

func TestUnknownEquipmentRepromptsWithoutFailing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.flow.Handle(ctx, textUnit("m1", "hello"))
	if err := f.flow.Handle(ctx, textUnit("m2", "EQ-999")); err != nil {
		t.Fatalf("unknown equipment must not error: %v", err)
	}
	if state := f.sessionState(t); state != sessionports.StateAwaitEquipment {
		t.Fatalf("session must stay in await_equipment, got %s", state)
	}

	sent := f.outbox.Texts()
	if !strings.Contains(sent[len(sent)-1].Text, "EQ-999") {
		t.Fatalf("reprompt must name the bad reference, got %q", sent[len(sent)-1].Text)
	}
}

func TestUnknownEquipmentDoesNotTripBreaker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.flow.Handle(ctx, textUnit("m1", "hello"))
	for i := 0; i < 5; i++ {
		f.flow.Handle(ctx, textUnit(fmt.Sprintf("m%d", i+2), "EQ-999"))
	}

	snapshot := f.flow.Breakers.Get(ports.BreakerEquipmentAPI).Snapshot()
	if snapshot.State != breakerports.StateClosed {
		t.Fatalf("breaker must stay closed on business misses, got %s", snapshot.State)
	}
}

func TestTicketAPIOutageSurfacesForRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.flow.Handle(ctx, textUnit("m1", "hello"))
	f.flow.Handle(ctx, textUnit("m2", "EQ-100"))

	f.desk.FailNext = errors.New("desk API 502")
	err := f.flow.Handle(ctx, textUnit("m3", "it leaks water"))
	if err == nil {
		t.Fatal("expected the outage to surface")
	}
	if faults.ClassOf(err) != faults.ClassTransient {
		t.Fatalf("expected transient class, got %s", faults.ClassOf(err))
	}
	if state := f.sessionState(t); state != sessionports.StateAwaitIssue {
		t.Fatalf("session must remain await_issue for replay, got %s", state)
	}

	// The replay of the same unit succeeds once the desk recovers.
	if err := f.flow.Handle(ctx, textUnit("m3", "it leaks water")); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(f.desk.Opened) != 1 {
		t.Fatalf("expected exactly one ticket, got %d", len(f.desk.Opened))
	}
}

func TestRepeatedTicketAPIFailuresOpenBreaker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.flow.Handle(ctx, textUnit("m1", "hello"))
	f.flow.Handle(ctx, textUnit("m2", "EQ-100"))

	for i := 0; i < 3; i++ {
		f.desk.FailNext = errors.New("desk API 502")
		if err := f.flow.Handle(ctx, textUnit(fmt.Sprintf("m%d", i+3), "still broken")); err == nil {
			t.Fatalf("attempt %d should fail", i+1)
		}
	}

	snapshot := f.flow.Breakers.Get(ports.BreakerTicketAPI).Snapshot()
	if snapshot.State != breakerports.StateOpen {
		t.Fatalf("expected open breaker after 3 failures, got %s", snapshot.State)
	}

	// With the circuit open the desk is not even called.
	before := len(f.desk.Opened)
	if err := f.flow.Handle(ctx, textUnit("m9", "try again")); err == nil {
		t.Fatal("expected circuit-open error")
	}
	if len(f.desk.Opened) != before {
		t.Fatal("open circuit must not reach the desk")
	}
}

func TestOutOfRangeRatingIsValidationFault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.flow.Handle(ctx, textUnit("m1", "hello"))
	f.flow.Handle(ctx, textUnit("m2", "EQ-100"))
	f.flow.Handle(ctx, textUnit("m3", "it leaks water"))

	err := f.flow.Handle(ctx, ratingUnit("m4", 9))
	if err == nil {
		t.Fatal("expected validation fault")
	}
	if faults.ClassOf(err) != faults.ClassValidation {
		t.Fatalf("expected validation class, got %s", faults.ClassOf(err))
	}
	if !errors.Is(err, domainerrors.ErrRatingOutOfRange) {
		t.Fatalf("expected ErrRatingOutOfRange, got %v", err)
	}
	if len(f.ratings.Saved) != 0 {
		t.Fatalf("out-of-range rating must not be saved: %+v", f.ratings.Saved)
	}
}

func TestClosedSessionReopensOnNewMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.flow.Handle(ctx, textUnit("m1", "hello"))
	f.flow.Handle(ctx, textUnit("m2", "EQ-100"))
	f.flow.Handle(ctx, textUnit("m3", "it leaks water"))
	f.flow.Handle(ctx, ratingUnit("m4", 4))

	if err := f.flow.Handle(ctx, textUnit("m5", "hi again")); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if state := f.sessionState(t); state != sessionports.StateAwaitEquipment {
		t.Fatalf("expected await_equipment after reopen, got %s", state)
	}
}

func TestRatingAcceptsBareNumericText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.flow.Handle(ctx, textUnit("m1", "hello"))
	f.flow.Handle(ctx, textUnit("m2", "EQ-100"))
	f.flow.Handle(ctx, textUnit("m3", "it leaks water"))

	if err := f.flow.Handle(ctx, textUnit("m4", "3")); err != nil {
		t.Fatalf("numeric text rating failed: %v", err)
	}
	if len(f.ratings.Saved) != 1 || f.ratings.Saved[0].Score != 3 {
		t.Fatalf("unexpected ratings: %+v", f.ratings.Saved)
	}
}
