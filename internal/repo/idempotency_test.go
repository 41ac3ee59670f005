package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIdempotencyRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id := mustSession(t, db)
	msg, err := CreateMessage(db, id, "hello")
	if err != nil {
		t.Fatalf("message: %v", err)
	}

	rec, err := CreateIdempotency(ctx, db, id, "key-1", msg.ID, 201, time.Hour)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.MessageID != msg.ID {
		t.Fatalf("message id = %q; want %q", rec.MessageID, msg.ID)
	}

	got, err := GetIdempotency(ctx, db, id, "key-1", time.Now().UTC())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.MessageID != msg.ID {
		t.Fatalf("got message id = %q; want %q", got.MessageID, msg.ID)
	}
}

func TestIdempotencyDuplicateKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id := mustSession(t, db)
	msg, err := CreateMessage(db, id, "hello")
	if err != nil {
		t.Fatalf("message: %v", err)
	}

	if _, err := CreateIdempotency(ctx, db, id, "key-1", msg.ID, 201, time.Hour); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, id, "key-1", msg.ID, 201, time.Hour); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second create = %v; want ErrDuplicate", err)
	}

	// Same key under another session is a distinct scope.
	other := mustSession(t, db)
	msg2, err := CreateMessage(db, other, "hello")
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if _, err := CreateIdempotency(ctx, db, other, "key-1", msg2.ID, 201, time.Hour); err != nil {
		t.Fatalf("other session create: %v", err)
	}
}

func TestIdempotencyExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id := mustSession(t, db)
	msg, err := CreateMessage(db, id, "hello")
	if err != nil {
		t.Fatalf("message: %v", err)
	}

	if _, err := CreateIdempotency(ctx, db, id, "key-1", msg.ID, 201, time.Millisecond); err != nil {
		t.Fatalf("create: %v", err)
	}
	later := time.Now().UTC().Add(time.Second)
	if _, err := GetIdempotency(ctx, db, id, "key-1", later); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired get = %v; want ErrNotFound", err)
	}
}

func TestIdempotencyEmptySessionScope(t *testing.T) {
	db := newTestDB(t)
	if _, err := GetIdempotency(context.Background(), db, "", "key-1", time.Now().UTC()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v; want ErrNotFound", err)
	}
}
