package event

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSQLStore(db)
}

func mustInsert(t *testing.T, store *SQLStore, e *Event) {
	t.Helper()
	if e.ServerTimestamp.IsZero() {
		e.ServerTimestamp = time.Now().UTC()
	}
	if err := store.Insert(context.Background(), e); err != nil {
		t.Fatalf("insert %s: %v", e.ID, err)
	}
}

func TestInsertAndGetByIDRoundTrip(t *testing.T) {
	store := openTestStore(t)
	mustInsert(t, store, &Event{
		ID:        "ev-1",
		User:      "a1b2",
		Ops:       OpsCreate,
		Code:      CodeEventCreate,
		Data:      map[string]any{"title": "first"},
		Tags:      Tags{NewTag("t", "book")},
		CreatedAt: 1700000000000,
	})

	got, err := store.GetByID(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.User != "a1b2" || got.Code != CodeEventCreate {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Data["title"] != "first" {
		t.Fatalf("data did not round-trip: %+v", got.Data)
	}
	if value, ok := got.Tags.First("t"); !ok || value != "book" {
		t.Fatalf("tags did not round-trip: %+v", got.Tags)
	}
}

func TestGetByIDReturnsNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetByID(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByFilterNarrowsByUser(t *testing.T) {
	store := openTestStore(t)
	mustInsert(t, store, &Event{ID: "ev-1", User: "alice", Ops: OpsCreate, Code: 200, CreatedAt: 1})
	mustInsert(t, store, &Event{ID: "ev-2", User: "bob", Ops: OpsCreate, Code: 200, CreatedAt: 2})

	rows, err := store.FindByFilter(context.Background(), Filter{User: "alice"}, 0, 0, SortServerTimeDesc)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "ev-1" {
		t.Fatalf("expected only alice's event, got %+v", rows)
	}
}

func TestFindByFilterDomainBoundaryCodeSelectsWholeDomain(t *testing.T) {
	store := openTestStore(t)
	mustInsert(t, store, &Event{ID: "ev-1", User: "u", Ops: OpsCreate, Code: 200, CreatedAt: 1})
	mustInsert(t, store, &Event{ID: "ev-2", User: "u", Ops: OpsCreate, Code: 250, CreatedAt: 2})
	mustInsert(t, store, &Event{ID: "ev-3", User: "u", Ops: OpsCreate, Code: 300, CreatedAt: 3})

	code := 200
	rows, err := store.FindByFilter(context.Background(), Filter{Code: &code}, 0, 0, SortServerTimeDesc)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected the two event-domain rows, got %d", len(rows))
	}

	exact := 250
	rows, err = store.FindByFilter(context.Background(), Filter{Code: &exact}, 0, 0, SortServerTimeDesc)
	if err != nil {
		t.Fatalf("find exact: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "ev-2" {
		t.Fatalf("expected exact code match, got %+v", rows)
	}
}

func TestFindByFilterTagContainment(t *testing.T) {
	store := openTestStore(t)
	mustInsert(t, store, &Event{
		ID: "ev-1", User: "u", Ops: OpsCreate, Code: 200, CreatedAt: 1,
		Tags: Tags{NewTag("t", "book"), NewTag("bid", "5")},
	})
	mustInsert(t, store, &Event{
		ID: "ev-2", User: "u", Ops: OpsCreate, Code: 200, CreatedAt: 2,
		Tags: Tags{NewTag("t", "music")},
	})

	rows, err := store.FindByFilter(context.Background(), Filter{Tags: Tags{NewTag("t", "book")}}, 0, 0, SortServerTimeDesc)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "ev-1" {
		t.Fatalf("expected tag-matched row, got %+v", rows)
	}

	rows, err = store.FindByFilter(context.Background(), Filter{Tags: Tags{NewTag("t", "book"), NewTag("bid", "9")}}, 0, 0, SortServerTimeDesc)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("partial tag match must not qualify, got %+v", rows)
	}
}

func TestFindByFilterStatusDefaultsAreCallerDriven(t *testing.T) {
	store := openTestStore(t)
	mustInsert(t, store, &Event{ID: "ev-1", User: "u", Ops: OpsCreate, Code: 200, CreatedAt: 1, Status: StatusActive})
	mustInsert(t, store, &Event{ID: "ev-2", User: "u", Ops: OpsCreate, Code: 200, CreatedAt: 2, Status: StatusDeleted})

	active := StatusActive
	rows, err := store.FindByFilter(context.Background(), Filter{Status: &active}, 0, 0, SortServerTimeDesc)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "ev-1" {
		t.Fatalf("expected only the active row, got %+v", rows)
	}

	deleted := StatusDeleted
	rows, err = store.FindByFilter(context.Background(), Filter{Status: &deleted}, 0, 0, SortServerTimeDesc)
	if err != nil {
		t.Fatalf("find deleted: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "ev-2" {
		t.Fatalf("expected only the soft-deleted row, got %+v", rows)
	}
}

func TestFindByFilterLimitAppliesAfterTagMatch(t *testing.T) {
	store := openTestStore(t)
	for i, id := range []string{"ev-1", "ev-2", "ev-3"} {
		mustInsert(t, store, &Event{
			ID: id, User: "u", Ops: OpsCreate, Code: 200, CreatedAt: int64(i),
			Tags:            Tags{NewTag("t", "book")},
			ServerTimestamp: time.Unix(int64(1700000000+i), 0).UTC(),
		})
	}

	rows, err := store.FindByFilter(context.Background(), Filter{Tags: Tags{NewTag("t", "book")}}, 2, 0, SortServerTimeDesc)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected limit 2, got %d", len(rows))
	}
	if rows[0].ID != "ev-3" {
		t.Fatalf("expected newest admitted first, got %s", rows[0].ID)
	}
}

func TestDeleteManyRemovesOnlyMatchingReplaceables(t *testing.T) {
	store := openTestStore(t)
	mustInsert(t, store, &Event{
		ID: "ev-1", User: "alice", Ops: OpsCreate, Code: 200, CreatedAt: 1,
		Tags: Tags{NewTag(ReplaceableTagKey, "profile")},
	})
	mustInsert(t, store, &Event{
		ID: "ev-2", User: "alice", Ops: OpsCreate, Code: 200, CreatedAt: 2,
		Tags: Tags{NewTag(ReplaceableTagKey, "settings")},
	})
	mustInsert(t, store, &Event{
		ID: "ev-3", User: "bob", Ops: OpsCreate, Code: 200, CreatedAt: 3,
		Tags: Tags{NewTag(ReplaceableTagKey, "profile")},
	})

	removed, err := store.DeleteMany(context.Background(), DeleteSpec{
		User: "alice",
		Tag:  NewTag(ReplaceableTagKey, "profile"),
	})
	if err != nil {
		t.Fatalf("delete many: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 row removed, got %d", removed)
	}
	if _, err := store.GetByID(context.Background(), "ev-1"); err != ErrNotFound {
		t.Fatalf("superseded event should be gone, got %v", err)
	}
	if _, err := store.GetByID(context.Background(), "ev-2"); err != nil {
		t.Fatalf("other tag value must survive: %v", err)
	}
	if _, err := store.GetByID(context.Background(), "ev-3"); err != nil {
		t.Fatalf("other author must survive: %v", err)
	}
}

func TestUpdateStatusFlipsSoftDeleteMarker(t *testing.T) {
	store := openTestStore(t)
	mustInsert(t, store, &Event{ID: "ev-1", User: "u", Ops: OpsCreate, Code: 200, CreatedAt: 1})

	if err := store.UpdateStatus(context.Background(), "ev-1", StatusDeleted); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, err := store.GetByID(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusDeleted {
		t.Fatalf("expected soft-deleted status, got %d", got.Status)
	}

	if err := store.UpdateStatus(context.Background(), "absent", StatusDeleted); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for absent id, got %v", err)
	}
}

func TestReplaceSwapsPayloadAndRestamps(t *testing.T) {
	store := openTestStore(t)
	mustInsert(t, store, &Event{
		ID: "ev-1", User: "u", Ops: OpsCreate, Code: 200, CreatedAt: 1,
		Data:            map[string]any{"title": "old"},
		ServerTimestamp: time.Unix(1700000000, 0).UTC(),
	})

	stamped := time.Unix(1700000999, 0).UTC()
	err := store.Replace(context.Background(), "ev-1",
		map[string]any{"title": "new"}, Tags{NewTag("t", "book")}, stamped)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := store.GetByID(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Data["title"] != "new" {
		t.Fatalf("payload not replaced: %+v", got.Data)
	}
	if !got.ServerTimestamp.Equal(stamped) {
		t.Fatalf("expected restamped server time, got %v", got.ServerTimestamp)
	}

	if err := store.Replace(context.Background(), "absent", nil, nil, stamped); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for absent id, got %v", err)
	}
}

func TestCountHonorsTagFilter(t *testing.T) {
	store := openTestStore(t)
	mustInsert(t, store, &Event{ID: "ev-1", User: "u", Ops: OpsCreate, Code: 200, CreatedAt: 1, Tags: Tags{NewTag("t", "book")}})
	mustInsert(t, store, &Event{ID: "ev-2", User: "u", Ops: OpsCreate, Code: 200, CreatedAt: 2})

	total, err := store.Count(context.Background(), Filter{User: "u"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2, got %d", total)
	}

	total, err = store.Count(context.Background(), Filter{Tags: Tags{NewTag("t", "book")}})
	if err != nil {
		t.Fatalf("count tags: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 tagged row, got %d", total)
	}
}
