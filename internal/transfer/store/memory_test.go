package store

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ruhanslop/tabpipe/internal/pkg/pkgerror"
	"github.com/ruhanslop/tabpipe/internal/transfer/entity"
	"github.com/ruhanslop/tabpipe/internal/transfer/usecase"
)

func testUpload(id string) entity.Upload {
	return entity.Upload{
		ID:           id,
		SessionID:    "s1",
		OriginalName: id + ".csv",
		StoragePath:  "/spool/" + id,
		Status:       entity.UploadStatusReceived,
	}
}

func testTable() entity.Table {
	return entity.Table{Columns: []entity.Column{
		{Name: "a", Type: entity.ColumnTypeInt, Cells: []string{"1", "2"}},
	}}
}

func TestReplaceUploadReturnsPrevious(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessionStore()

	_, existed, err := s.ReplaceUpload(ctx, "s1", testUpload("u1"))
	if err != nil {
		t.Fatalf("ReplaceUpload: %v", err)
	}
	if existed {
		t.Fatal("first upload should not report a predecessor")
	}

	prev, existed, err := s.ReplaceUpload(ctx, "s1", testUpload("u2"))
	if err != nil {
		t.Fatalf("ReplaceUpload: %v", err)
	}
	if !existed || prev.ID != "u1" {
		t.Fatalf("expected previous upload u1, got existed=%v prev=%q", existed, prev.ID)
	}
}

func TestUpdateUploadStaleIDIsSuperseded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessionStore()

	if _, _, err := s.ReplaceUpload(ctx, "s1", testUpload("u1")); err != nil {
		t.Fatalf("ReplaceUpload: %v", err)
	}
	if _, _, err := s.ReplaceUpload(ctx, "s1", testUpload("u2")); err != nil {
		t.Fatalf("ReplaceUpload: %v", err)
	}

	err := s.UpdateUpload(ctx, "s1", "u1", func(meta *entity.Upload) {
		meta.Status = entity.UploadStatusReady
	})
	if !errors.Is(err, usecase.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}

	err = s.SaveTable(ctx, "s1", "u1", testTable())
	if !errors.Is(err, usecase.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded from SaveTable, got %v", err)
	}

	sess, err := s.Snapshot(ctx, "s1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if sess.Upload.Status != entity.UploadStatusReceived {
		t.Fatalf("stale update leaked into current upload: %s", sess.Upload.Status)
	}
}

func TestSnapshotUnknownSession(t *testing.T) {
	t.Parallel()

	s := NewSessionStore()
	if _, err := s.Snapshot(context.Background(), "nope"); !errors.Is(err, pkgerror.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAwaitSettledBlocksUntilReady(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessionStore()

	type result struct {
		sess usecase.Session
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sess, err := s.AwaitSettled(ctx, "s1")
		done <- result{sess, err}
	}()

	select {
	case <-done:
		t.Fatal("AwaitSettled returned before any upload settled")
	case <-time.After(30 * time.Millisecond):
	}

	if _, _, err := s.ReplaceUpload(ctx, "s1", testUpload("u1")); err != nil {
		t.Fatalf("ReplaceUpload: %v", err)
	}
	err := s.UpdateUpload(ctx, "s1", "u1", func(meta *entity.Upload) {
		meta.Status = entity.UploadStatusReady
	})
	if err != nil {
		t.Fatalf("UpdateUpload: %v", err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("AwaitSettled: %v", r.err)
		}
		if r.sess.Upload.ID != "u1" || r.sess.Upload.Status != entity.UploadStatusReady {
			t.Fatalf("unexpected session: %#v", r.sess.Upload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("AwaitSettled never unblocked")
	}
}

func TestAwaitSettledHonorsContext(t *testing.T) {
	t.Parallel()

	s := NewSessionStore()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := s.AwaitSettled(ctx, "s1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCleanedTableMemoization(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessionStore()

	if _, _, err := s.ReplaceUpload(ctx, "s1", testUpload("u1")); err != nil {
		t.Fatalf("ReplaceUpload: %v", err)
	}
	if err := s.SaveTable(ctx, "s1", "u1", testTable()); err != nil {
		t.Fatalf("SaveTable: %v", err)
	}

	var calls atomic.Int32
	clean := func(t entity.Table, _ usecase.CleanOptions) entity.Table {
		calls.Add(1)
		return t
	}

	first, err := s.CleanedTable(ctx, "s1", clean)
	if err != nil {
		t.Fatalf("CleanedTable: %v", err)
	}
	second, err := s.CleanedTable(ctx, "s1", clean)
	if err != nil {
		t.Fatalf("CleanedTable: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected memoized result, clean ran %d times", got)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("memoized table differs from computed one")
	}

	// Changing options invalidates the memo.
	if err := s.SetOptions(ctx, "s1", usecase.CleanOptions{DropEmpty: true}); err != nil {
		t.Fatalf("SetOptions: %v", err)
	}
	if _, err := s.CleanedTable(ctx, "s1", clean); err != nil {
		t.Fatalf("CleanedTable: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected recompute after option change, clean ran %d times", got)
	}

	// So does a new upload.
	if _, _, err := s.ReplaceUpload(ctx, "s1", testUpload("u2")); err != nil {
		t.Fatalf("ReplaceUpload: %v", err)
	}
	if err := s.SaveTable(ctx, "s1", "u2", testTable()); err != nil {
		t.Fatalf("SaveTable: %v", err)
	}
	if _, err := s.CleanedTable(ctx, "s1", clean); err != nil {
		t.Fatalf("CleanedTable: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected recompute after new upload, clean ran %d times", got)
	}
}

func TestCleanedTableWithoutParse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessionStore()

	if _, _, err := s.ReplaceUpload(ctx, "s1", testUpload("u1")); err != nil {
		t.Fatalf("ReplaceUpload: %v", err)
	}

	_, err := s.CleanedTable(ctx, "s1", func(t entity.Table, _ usecase.CleanOptions) entity.Table { return t })
	if !errors.Is(err, pkgerror.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEvictIdle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewSessionStore()

	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	if _, _, err := s.ReplaceUpload(ctx, "old", testUpload("u1")); err != nil {
		t.Fatalf("ReplaceUpload: %v", err)
	}

	now = now.Add(time.Hour)
	if _, _, err := s.ReplaceUpload(ctx, "fresh", testUpload("u2")); err != nil {
		t.Fatalf("ReplaceUpload: %v", err)
	}

	evicted := s.EvictIdle(30 * time.Minute)
	if len(evicted) != 1 || evicted[0].SessionID != "old" {
		t.Fatalf("unexpected evictions: %#v", evicted)
	}
	if !reflect.DeepEqual(evicted[0].Paths, []string{"/spool/u1"}) {
		t.Fatalf("unexpected paths: %v", evicted[0].Paths)
	}

	if _, err := s.Snapshot(ctx, "old"); !errors.Is(err, pkgerror.ErrNotFound) {
		t.Fatalf("evicted session still present: %v", err)
	}
	if _, err := s.Snapshot(ctx, "fresh"); err != nil {
		t.Fatalf("fresh session missing: %v", err)
	}
}
