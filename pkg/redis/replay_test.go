package redis

import (
	"context"
	"testing"
	"time"
)

func TestReplayLifecycle(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	client := NewWithCmdable(fake)
	const scope = "buyer-1|POST|/api/v1/checkout/orders"

	record, err := client.LoadReplay(ctx, scope, "key-1")
	if err != nil || record != nil {
		t.Fatalf("expected no record, got %+v %v", record, err)
	}

	ok, err := client.ReserveReplay(ctx, scope, "key-1", "fp")
	if err != nil || !ok {
		t.Fatalf("reserve: ok=%v err=%v", ok, err)
	}
	if fake.expires[client.ReplayKey(scope, "key-1")] != pendingTTL {
		t.Fatal("reservation should use the short pending ttl")
	}
	if ok, _ := client.ReserveReplay(ctx, scope, "key-1", "fp"); ok {
		t.Fatal("second reservation must fail")
	}
	record, err = client.LoadReplay(ctx, scope, "key-1")
	if err != nil || record == nil || !record.Pending() || record.Fingerprint != "fp" {
		t.Fatalf("expected pending record, got %+v %v", record, err)
	}

	err = client.CompleteReplay(ctx, scope, "key-1", ReplayRecord{
		Status: 201, ContentType: "application/json", Body: []byte(`{"data":{}}`), Fingerprint: "fp",
	}, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	record, _ = client.LoadReplay(ctx, scope, "key-1")
	if record.Pending() || record.Status != 201 || string(record.Body) != `{"data":{}}` {
		t.Fatalf("unexpected completed record %+v", record)
	}

	if err := client.AbandonReplay(ctx, scope, "key-1"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if ok, _ := client.ReserveReplay(ctx, scope, "key-1", "fp"); !ok {
		t.Fatal("expected key reusable after abandon")
	}
}

func TestLoadReplayRejectsCorruptRecord(t *testing.T) {
	fake := newFakeRedis()
	client := NewWithCmdable(fake)
	fake.data[client.ReplayKey("s", "k")] = "{not json"
	if _, err := client.LoadReplay(context.Background(), "s", "k"); err == nil {
		t.Fatal("expected decode error")
	}
}
