package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/albumauth/kvstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewStore(kvstore.NewRedis(rdb), "aa"), mr
}

func testRecord(id, familyID string) *Record {
	now := time.Now()
	return &Record{
		ID:        id,
		MemberID:  "m-1",
		Username:  "alice",
		FamilyID:  familyID,
		Status:    StatusActive,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}
}

func TestCreateFamilyWritesAllKeys(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	rec := testRecord("r1", "f1")
	if err := store.CreateFamily(ctx, rec, time.Hour, 2*time.Hour); err != nil {
		t.Fatalf("CreateFamily failed: %v", err)
	}

	got, err := store.GetRecord(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if *got != *rec {
		t.Fatalf("record mismatch: got %+v want %+v", got, rec)
	}

	status, err := store.GetFamilyStatus(ctx, "f1")
	if err != nil || status != FamilyActive {
		t.Fatalf("expected active family, got %q err=%v", status, err)
	}

	members, err := store.FamilyMembers(ctx, "f1")
	if err != nil || len(members) != 1 || members[0] != "r1" {
		t.Fatalf("unexpected members %v err=%v", members, err)
	}

	families, err := store.MemberFamilies(ctx, "m-1")
	if err != nil || len(families) != 1 || families[0] != "f1" {
		t.Fatalf("unexpected member index %v err=%v", families, err)
	}

	if ttl := mr.TTL("aa:rec:r1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected record ttl %s", ttl)
	}
	if ttl := mr.TTL("aa:fam:f1:status"); ttl <= time.Hour {
		t.Fatalf("family status ttl must exceed record ttl, got %s", ttl)
	}
}

func TestCreateRecordKeepsFamilyStatus(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.CreateFamily(ctx, testRecord("r1", "f1"), time.Hour, time.Hour); err != nil {
		t.Fatalf("CreateFamily failed: %v", err)
	}
	if err := store.SetFamilyStatus(ctx, "f1", FamilyCompromised, time.Hour); err != nil {
		t.Fatalf("SetFamilyStatus failed: %v", err)
	}

	mr.FastForward(30 * time.Minute)
	if err := store.CreateRecord(ctx, testRecord("r2", "f1"), time.Hour, time.Hour); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	status, err := store.GetFamilyStatus(ctx, "f1")
	if err != nil {
		t.Fatalf("GetFamilyStatus failed: %v", err)
	}
	if status != FamilyCompromised {
		t.Fatalf("CreateRecord must not overwrite status, got %q", status)
	}
	if ttl := mr.TTL("aa:fam:f1:status"); ttl <= 30*time.Minute {
		t.Fatalf("family ttl was not extended, got %s", ttl)
	}

	members, err := store.FamilyMembers(ctx, "f1")
	if err != nil || len(members) != 2 {
		t.Fatalf("expected 2 members, got %v err=%v", members, err)
	}
}

func TestCompareAndSetStatus(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.CreateFamily(ctx, testRecord("r1", "f1"), time.Hour, time.Hour); err != nil {
		t.Fatalf("CreateFamily failed: %v", err)
	}

	res, observed, err := store.CompareAndSetStatus(ctx, "r1", StatusActive, StatusRotated)
	if err != nil || res != kvstore.CASSwapped || observed != StatusActive {
		t.Fatalf("expected swap from active, got %s/%q err=%v", res, observed, err)
	}

	res, observed, err = store.CompareAndSetStatus(ctx, "r1", StatusActive, StatusRotated)
	if err != nil || res != kvstore.CASMismatch || observed != StatusRotated {
		t.Fatalf("expected mismatch on rotated, got %s/%q err=%v", res, observed, err)
	}
}

func TestSetFamilyStatusUnlessKeepsCompromise(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.CreateFamily(ctx, testRecord("r1", "f1"), time.Hour, time.Hour); err != nil {
		t.Fatalf("CreateFamily failed: %v", err)
	}
	if ok, err := store.FamilyExists(ctx, "f1"); err != nil || !ok {
		t.Fatalf("expected family to exist, ok=%v err=%v", ok, err)
	}
	if ok, err := store.FamilyExists(ctx, "f2"); err != nil || ok {
		t.Fatalf("expected unknown family to be absent, ok=%v err=%v", ok, err)
	}

	if err := store.SetFamilyStatus(ctx, "f1", FamilyCompromised, time.Hour); err != nil {
		t.Fatalf("SetFamilyStatus failed: %v", err)
	}
	written, err := store.SetFamilyStatusUnless(ctx, "f1", FamilyRevoked, FamilyCompromised, time.Hour)
	if err != nil || written {
		t.Fatalf("compromised status must be kept, written=%v err=%v", written, err)
	}
	if status, _ := store.GetFamilyStatus(ctx, "f1"); status != FamilyCompromised {
		t.Fatalf("expected compromised, got %q", status)
	}
}

func TestMarkRevokedSkipsExpired(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.CreateFamily(ctx, testRecord("r1", "f1"), time.Minute, time.Hour); err != nil {
		t.Fatalf("CreateFamily failed: %v", err)
	}

	ok, err := store.MarkRevoked(ctx, "r1")
	if err != nil || !ok {
		t.Fatalf("expected revoke of live record, ok=%v err=%v", ok, err)
	}
	rec, err := store.GetRecord(ctx, "r1")
	if err != nil || rec.Status != StatusRevoked {
		t.Fatalf("expected revoked record, got %+v err=%v", rec, err)
	}

	mr.FastForward(2 * time.Minute)
	ok, err = store.MarkRevoked(ctx, "r1")
	if err != nil {
		t.Fatalf("MarkRevoked failed: %v", err)
	}
	if ok || mr.Exists("aa:rec:r1") {
		t.Fatal("revoking an expired record must not recreate it")
	}
	if _, err := store.GetRecord(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetRecordCorrupt(t *testing.T) {
	store, mr := newSessionStoreTest(t)

	mr.HSet("aa:rec:bad", "status", "active")
	if _, err := store.GetRecord(context.Background(), "bad"); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("expected ErrCorruptRecord, got %v", err)
	}
}

func TestMemberIndexMaintenance(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	for _, fam := range []string{"f1", "f2", "f3"} {
		if err := store.CreateFamily(ctx, testRecord("r-"+fam, fam), time.Hour, time.Hour); err != nil {
			t.Fatalf("CreateFamily failed: %v", err)
		}
	}
	if err := store.RemoveMemberFamilies(ctx, "m-1", "f2"); err != nil {
		t.Fatalf("RemoveMemberFamilies failed: %v", err)
	}
	families, err := store.MemberFamilies(ctx, "m-1")
	if err != nil || len(families) != 2 {
		t.Fatalf("expected 2 families, got %v err=%v", families, err)
	}

	if err := store.DeleteMemberIndex(ctx, "m-1"); err != nil {
		t.Fatalf("DeleteMemberIndex failed: %v", err)
	}
	families, err = store.MemberFamilies(ctx, "m-1")
	if err != nil || len(families) != 0 {
		t.Fatalf("expected empty index, got %v err=%v", families, err)
	}
}
