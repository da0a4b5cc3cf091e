package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"safi/internal/testsupport"
)

func TestSweepOnceRemovesOnlyExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.mp3")
	fresh := filepath.Join(dir, "fresh.wav")
	testsupport.WriteFile(t, old, []byte("x"))
	testsupport.WriteFile(t, fresh, []byte("y"))
	testsupport.Backdate(t, old, 11*time.Minute)
	testsupport.Backdate(t, fresh, 9*time.Minute)

	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}
	testsupport.Backdate(t, filepath.Join(dir, "nested"), time.Hour)

	s := New(dir, time.Minute, 10*time.Minute)
	if removed := s.SweepOnce(time.Now()); removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old file removed, stat err = %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh file should remain: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "nested")); err != nil {
		t.Fatalf("directories are not swept: %v", err)
	}
}

func TestSweepOnceMissingDirectory(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"), 0, 0)
	if removed := s.SweepOnce(time.Now()); removed != 0 {
		t.Fatalf("expected 0, got %d", removed)
	}
}

func TestNewDefaults(t *testing.T) {
	s := New("x", 0, -1)
	if s.interval != DefaultInterval || s.retention != DefaultRetention {
		t.Fatalf("unexpected defaults %v %v", s.interval, s.retention)
	}
}

func TestStartStopLoop(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.mp4")
	testsupport.WriteFile(t, old, []byte("x"))
	testsupport.Backdate(t, old, time.Hour)

	s := New(dir, 10*time.Millisecond, time.Minute)
	s.Start(context.Background())
	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(old); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("loop did not sweep the expired file")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Stop()
	s.Stop()
}
