package service

import (
	"testing"
	"time"

	"github.com/storymaker/internal/db"
)

func TestScheduleNextCreatesSingleRow(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewScheduleService(gdb)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if err := svc.ScheduleNext(3); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	// 重复排期不能累积多条
	if err := svc.ScheduleNext(3); err != nil {
		t.Fatalf("reschedule failed: %v", err)
	}

	var count int64
	if err := gdb.Model(&db.ScheduledRun{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one scheduled run, got %d", count)
	}

	next, ok, err := svc.NextRun()
	if err != nil || !ok {
		t.Fatalf("next run lookup failed: ok=%v err=%v", ok, err)
	}
	want := now.Add(3 * 24 * time.Hour)
	if !next.Equal(want) {
		t.Fatalf("expected next run %v, got %v", want, next)
	}
}

func TestScheduleNextZeroClearsPending(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewScheduleService(gdb)

	if err := svc.ScheduleNext(2); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	if err := svc.ScheduleNext(0); err != nil {
		t.Fatalf("clearing schedule failed: %v", err)
	}

	_, ok, err := svc.NextRun()
	if err != nil {
		t.Fatalf("next run lookup failed: %v", err)
	}
	if ok {
		t.Fatal("expected no pending schedule after interval 0")
	}
}

func TestScheduleDue(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewScheduleService(gdb)

	now := time.Now()
	svc.now = func() time.Time { return now }

	if err := svc.ScheduleNext(1); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	due, err := svc.Due()
	if err != nil {
		t.Fatalf("due check failed: %v", err)
	}
	if due {
		t.Fatal("expected schedule not to be due yet")
	}

	svc.now = func() time.Time { return now.Add(25 * time.Hour) }
	due, err = svc.Due()
	if err != nil {
		t.Fatalf("due check failed: %v", err)
	}
	if !due {
		t.Fatal("expected schedule to be due after the interval elapsed")
	}
}
