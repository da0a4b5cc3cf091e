package testsupport

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"safi/config"
	"safi/db"
	"safi/repository"

	"gorm.io/gorm"
)

// NewConfig returns a config rooted in per-test temp directories, backed by sqlite.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.FromEnv()
	cfg.UploadDir = filepath.Join(base, "uploads")
	cfg.DBDriver = db.DriverSQLite
	cfg.SQLitePath = filepath.Join(base, "safi.db")
	cfg.ReplicateAPIToken = ""
	cfg.RedisEnabled = false
	cfg.MinioEnabled = false
	cfg.FFmpegTimeout = 5 * time.Second
	cfg.SeparationPollWait = 10 * time.Millisecond

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		t.Fatalf("mkdir uploads: %v", err)
	}
	return cfg
}

// NewGormDB opens and migrates the sqlite database named by cfg.
func NewGormDB(t testing.TB, cfg *config.Config) *gorm.DB {
	t.Helper()

	gdb, err := db.Open(cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	return gdb
}

// NewTrackRepository returns a gorm repository over a fresh sqlite database.
func NewTrackRepository(t testing.TB) repository.TrackRepository {
	t.Helper()
	return repository.NewGormTrackRepository(NewGormDB(t, NewConfig(t)))
}

// WriteFile creates path (and parents) with the given content.
func WriteFile(t testing.TB, path string, content []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteScript writes an executable /bin/sh script standing in for an external binary.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script %s: %v", path, err)
	}
	return path
}

// Backdate sets the modification time of path to now minus age.
func Backdate(t testing.TB, path string, age time.Duration) {
	t.Helper()

	ts := time.Now().Add(-age)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}
