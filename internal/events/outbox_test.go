package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestOutboxStoreFlow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newOutboxStoreWithExec(mock)

	mock.ExpectExec("INSERT INTO outbox").WithArgs(pgxmock.AnyArg(), "apt-1", TypeAppointmentBooked, pgxmock.AnyArg()).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	if _, err := store.Insert(context.Background(), "apt-1", TypeAppointmentBooked, AppointmentBookedV1{AppointmentID: "apt-1"}); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	now := time.Now().UTC()
	id := uuid.New()
	rows := pgxmock.NewRows([]string{"id", "aggregate_id", "type", "payload", "created_at"}).AddRow(id, "apt-1", TypeAppointmentBooked, []byte(`{"appointment_id":"apt-1"}`), now)
	mock.ExpectQuery("SELECT id").WithArgs(int32(10)).WillReturnRows(rows)

	entries, err := store.FetchPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("fetch pending failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id || entries[0].AggregateID != "apt-1" {
		t.Fatalf("unexpected entries: %#v", entries)
	}

	mock.ExpectExec("UPDATE outbox").WithArgs(id).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := store.MarkDelivered(context.Background(), id)
	if err != nil {
		t.Fatalf("mark delivered failed: %v", err)
	}
	if !ok {
		t.Fatal("expected mark delivered to report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

type memoryPending struct {
	entries   []OutboxEntry
	delivered map[uuid.UUID]bool
}

func (m *memoryPending) FetchPending(_ context.Context, limit int32) ([]OutboxEntry, error) {
	var out []OutboxEntry
	for _, e := range m.entries {
		if !m.delivered[e.ID] && int32(len(out)) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryPending) MarkDelivered(_ context.Context, id uuid.UUID) (bool, error) {
	if m.delivered[id] {
		return false, nil
	}
	m.delivered[id] = true
	return true, nil
}

type flakyHandler struct {
	failFor uuid.UUID
	seen    []uuid.UUID
}

func (h *flakyHandler) Handle(_ context.Context, entry OutboxEntry) error {
	h.seen = append(h.seen, entry.ID)
	if entry.ID == h.failFor {
		return errors.New("queue unavailable")
	}
	return nil
}

func TestDelivererLeavesFailedEntriesPending(t *testing.T) {
	ok1, bad, ok2 := uuid.New(), uuid.New(), uuid.New()
	store := &memoryPending{
		entries:   []OutboxEntry{{ID: ok1}, {ID: bad}, {ID: ok2}},
		delivered: map[uuid.UUID]bool{},
	}
	handler := &flakyHandler{failFor: bad}
	d := newDeliverer(store, handler, nil)

	if got := d.drain(context.Background()); got != 2 {
		t.Fatalf("expected 2 delivered, got %d", got)
	}
	if store.delivered[bad] {
		t.Fatalf("failed entry must stay pending")
	}

	handler.failFor = uuid.Nil
	if got := d.drain(context.Background()); got != 1 {
		t.Fatalf("expected retry to deliver the remaining entry, got %d", got)
	}
}
