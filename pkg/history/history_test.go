package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func TestRecordAndList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := &Record{
		InstanceID:    "8f5d9a30-6a4c-4e1b-9e2a-3f8b6f0b7c11",
		Deployment:    "2c0873b5-1da1-46e6-9658-c40379774edf",
		WorkspaceType: "fixed_misty2",
		Region:        "us:cali",
		KeyPath:       "/home/user/key.pem",
		LaunchedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	second := &Record{
		InstanceID:    "c9fa09a7-25cb-42b3-94cd-e0f2ab2b3ee4",
		Deployment:    "b47e046a-f7b5-4c87-9f58-9e2b0a4e53d2",
		WorkspaceType: "basic_robot",
		Region:        "eu:berlin",
		LaunchedAt:    time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
	}

	if err := store.RecordLaunch(ctx, first); err != nil {
		t.Fatalf("RecordLaunch() error = %v", err)
	}
	if err := store.RecordLaunch(ctx, second); err != nil {
		t.Fatalf("RecordLaunch() error = %v", err)
	}

	records, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(records))
	}
	if records[0].InstanceID != second.InstanceID {
		t.Errorf("most recent first: got %s", records[0].InstanceID)
	}
	if records[1].WorkspaceType != "fixed_misty2" {
		t.Errorf("workspace type = %q", records[1].WorkspaceType)
	}
	if records[1].KeyPath != "/home/user/key.pem" {
		t.Errorf("key path = %q", records[1].KeyPath)
	}
	if records[0].TerminatedAt != nil {
		t.Errorf("running instance has termination time %v", records[0].TerminatedAt)
	}
}

func TestRecordTermination(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := &Record{
		InstanceID: "8f5d9a30-6a4c-4e1b-9e2a-3f8b6f0b7c11",
		Deployment: "2c0873b5-1da1-46e6-9658-c40379774edf",
		LaunchedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := store.RecordLaunch(ctx, rec); err != nil {
		t.Fatalf("RecordLaunch() error = %v", err)
	}

	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	if err := store.RecordTermination(ctx, rec.InstanceID, "TERMINATED", at); err != nil {
		t.Fatalf("RecordTermination() error = %v", err)
	}

	records, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("List() returned %d records, want 1", len(records))
	}
	if records[0].FinalStatus != "TERMINATED" {
		t.Errorf("final status = %q, want TERMINATED", records[0].FinalStatus)
	}
	if records[0].TerminatedAt == nil || !records[0].TerminatedAt.Equal(at) {
		t.Errorf("terminated at = %v, want %v", records[0].TerminatedAt, at)
	}
}

func TestRecordTerminationUnknownInstance(t *testing.T) {
	store := openTestStore(t)

	err := store.RecordTermination(context.Background(), "never-launched", "TERMINATED", time.Now())
	if err != nil {
		t.Errorf("RecordTermination() error = %v, want nil for unknown instance", err)
	}
}

func TestListLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		rec := &Record{
			InstanceID: fmt.Sprintf("instance-%d", i),
			Deployment: "2c0873b5-1da1-46e6-9658-c40379774edf",
			LaunchedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.RecordLaunch(ctx, rec); err != nil {
			t.Fatalf("RecordLaunch() error = %v", err)
		}
	}

	records, err := store.List(ctx, 3)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Errorf("List(3) returned %d records", len(records))
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	rec := &Record{
		InstanceID: "8f5d9a30-6a4c-4e1b-9e2a-3f8b6f0b7c11",
		Deployment: "2c0873b5-1da1-46e6-9658-c40379774edf",
		LaunchedAt: time.Now().UTC(),
	}
	if err := store.RecordLaunch(ctx, rec); err != nil {
		t.Fatalf("RecordLaunch() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Reopen runs migrations again; they must be a no-op.
	store, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()

	records, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Errorf("List() after reopen returned %d records, want 1", len(records))
	}
}
