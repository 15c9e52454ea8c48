package stores

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/oarkflow/squealx"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/permit"
)

func newTestDB(t *testing.T) *squealx.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	db := squealx.NewDb(sqlDB, "sqlite", "testdb")
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestSQLAuditStoreTraceIDRoundtrip(t *testing.T) {
	db := newTestDB(t)
	store, _ := NewSQLAuditStore(db)

	entry := &permit.AuditEntry{
		ID:            "evt-1",
		Timestamp:     time.Now(),
		TenantID:      "tenant-1",
		PrincipalID:   "user-x",
		PermissionKey: "projects:project:read",
		Allowed:       true,
		Source:        "rbac:role:Viewer",
		TraceID:       "trace-abc-123",
		Metadata:      map[string]any{"trace_id": "trace-abc-123"},
	}

	if err := store.LogDecision(context.Background(), entry); err != nil {
		t.Fatalf("log decision: %v", err)
	}

	logs, err := store.GetAccessLog(context.Background(), permit.AuditFilter{PrincipalID: "user-x", Limit: 10})
	if err != nil {
		t.Fatalf("get access log: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	got := logs[0]
	if got.TraceID != "trace-abc-123" {
		t.Fatalf("expected trace_id=trace-abc-123 got=%s", got.TraceID)
	}
	if got.Source != "rbac:role:Viewer" || !got.Allowed {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestSQLAuditStoreFilters(t *testing.T) {
	db := newTestDB(t)
	store, _ := NewSQLAuditStore(db)
	ctx := context.Background()

	for i, principal := range []string{"alice", "bob", "alice"} {
		entry := &permit.AuditEntry{
			ID:            "evt-" + string(rune('a'+i)),
			Timestamp:     time.Now().Add(time.Duration(i) * time.Second),
			TenantID:      "tenant-1",
			PrincipalID:   principal,
			PermissionKey: "projects:project:read",
			Allowed:       i != 1,
			Source:        "rbac:role:Viewer",
		}
		if err := store.LogDecision(ctx, entry); err != nil {
			t.Fatalf("log decision %d: %v", i, err)
		}
	}

	logs, err := store.GetAccessLog(ctx, permit.AuditFilter{PrincipalID: "alice"})
	if err != nil {
		t.Fatalf("get access log: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 alice entries, got %d", len(logs))
	}
	for _, l := range logs {
		if l.PrincipalID != "alice" {
			t.Fatalf("filter leaked entry for %s", l.PrincipalID)
		}
	}
}
