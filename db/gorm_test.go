package db

import (
	"path/filepath"
	"strings"
	"testing"

	"safi/config"
	"safi/model"
)

func TestMySQLDSN(t *testing.T) {
	cfg := &config.Config{DBUser: "root", DBPassword: "secret", DBHost: "db", DBPort: "3307", DBName: "safi"}
	dsn := MySQLDSN(cfg)
	if !strings.HasPrefix(dsn, "root:secret@tcp(db:3307)/safi?") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	for _, want := range []string{"parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestOpenSQLiteAndMigrate(t *testing.T) {
	cfg := &config.Config{DBDriver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "safi.db")}
	gdb, err := Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer Close(gdb)

	if err := Migrate(gdb); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if !gdb.Migrator().HasTable(&model.Track{}) {
		t.Fatal("expected tracks table")
	}
	for _, col := range []string{"original_url", "vocals_url", "instrumental_url", "replicate_id", "error", "created_at"} {
		if !gdb.Migrator().HasColumn(&model.Track{}, col) {
			t.Errorf("missing column %s", col)
		}
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(&config.Config{DBDriver: "postgres"}); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
