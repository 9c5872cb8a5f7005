package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/idempotency"
)

func TestGetPut(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	fp := idempotency.Fingerprint{
		Key:      "key-1",
		Subject:  "user-1",
		Method:   "POST",
		Route:    "/attendance",
		BodyHash: "abc",
	}

	if _, found, err := s.Get(ctx, fp); err != nil || found {
		t.Fatalf("found=%v err=%v on empty store", found, err)
	}

	rec := idempotency.Record{
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(`{"ok":true}`),
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := s.Put(ctx, fp, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, found, err := s.Get(ctx, fp)
	if err != nil || !found {
		t.Fatalf("found=%v err=%v", found, err)
	}
	if got.StatusCode != 200 || string(got.Body) != `{"ok":true}` {
		t.Fatalf("got=%+v", got)
	}

	// Mutating the returned body must not affect the stored record.
	got.Body[0] = 'X'
	again, _, _ := s.Get(ctx, fp)
	if string(again.Body) != `{"ok":true}` {
		t.Fatalf("stored body mutated: %q", again.Body)
	}

	// A different body hash is a different fingerprint.
	fp2 := fp
	fp2.BodyHash = "def"
	if _, found, _ := s.Get(ctx, fp2); found {
		t.Fatal("distinct fingerprints must not collide")
	}
}
