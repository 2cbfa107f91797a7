package idempotency

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	rec    Record
	found  bool
	getErr error
	saveN  int
}

func (f *fakeStore) GetIdempotencyRecord(ctx context.Context, key, endpoint string) (Record, bool, error) {
	if f.getErr != nil {
		return Record{}, false, f.getErr
	}
	return f.rec, f.found, nil
}

func (f *fakeStore) SaveIdempotencyRecord(ctx context.Context, key, endpoint string, rec Record) error {
	f.rec = rec
	f.found = true
	f.saveN++
	return nil
}

func TestReplayNoKeyNoop(t *testing.T) {
	st := &fakeStore{found: true}
	_, replayed, err := Replay(context.Background(), st, "", "POST /negotiations")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if replayed {
		t.Fatalf("expected replayed=false without key")
	}
	if err := Save(context.Background(), st, "", "POST /negotiations", 201, nil); err != nil {
		t.Fatalf("save err: %v", err)
	}
	if st.saveN != 0 {
		t.Fatalf("expected no save without key")
	}
}

func TestReplayStoreError(t *testing.T) {
	st := &fakeStore{getErr: errors.New("db down")}
	_, replayed, err := Replay(context.Background(), st, "k1", "POST /negotiations")
	if replayed {
		t.Fatalf("expected replayed=false on error")
	}
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestMemoryStoreSaveThenReplay(t *testing.T) {
	st, err := NewMemoryStore(2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	body := map[string]any{"request_id": "req_1", "negotiation_id": "neg_1"}

	if err := Save(ctx, st, "k1", "POST /negotiations", 201, body); err != nil {
		t.Fatalf("save err: %v", err)
	}
	rec, replayed, err := Replay(ctx, st, "k1", "POST /negotiations")
	if err != nil || !replayed {
		t.Fatalf("expected replay, got replayed=%v err=%v", replayed, err)
	}
	if rec.Status != 201 || rec.Body["negotiation_id"] != "neg_1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, replayed, _ := Replay(ctx, st, "k1", "POST /negotiations/neg_1/commit"); replayed {
		t.Fatalf("keys are scoped to their endpoint")
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	st, err := NewMemoryStore(1)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = Save(ctx, st, "a", "e", 200, nil)
	_ = Save(ctx, st, "b", "e", 200, nil)
	if _, replayed, _ := Replay(ctx, st, "a", "e"); replayed {
		t.Fatalf("expected a to be evicted")
	}
	if _, replayed, _ := Replay(ctx, st, "b", "e"); !replayed {
		t.Fatalf("expected b to be kept")
	}
}
