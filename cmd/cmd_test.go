package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"safi/internal/testsupport"
	"safi/model"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func useTempEnv(t *testing.T) (uploadDir string) {
	t.Helper()
	base := t.TempDir()
	uploadDir = filepath.Join(base, "uploads")
	t.Setenv("UPLOAD_DIR", uploadDir)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(base, "cli.db"))
	t.Setenv("RETENTION_WINDOW", "10m")
	return uploadDir
}

func TestRenderTable(t *testing.T) {
	got := renderTable([]string{"ID", "Title"}, [][]string{{"1", "First"}, {"22"}}, []columnAlignment{alignRight})
	for _, want := range []string{"ID", "Title", "First", "22"} {
		if !strings.Contains(got, want) {
			t.Fatalf("table missing %q:\n%s", want, got)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("expected empty output without headers")
	}
}

func TestPrintTracks(t *testing.T) {
	vocals := "https://cdn/v.mp3"
	now := time.Now()
	tracks := []*model.Track{
		{ID: 1, Title: "Done", Status: model.TrackStatusCompleted, VocalsURL: &vocals, CreatedAt: now.Add(-time.Hour)},
		{ID: 2, Title: "Busy", Status: model.TrackStatusProcessing, CreatedAt: now},
	}

	var out bytes.Buffer
	printTracks(&out, tracks, now)
	for _, want := range []string{"Done", "completed", "yes", "Busy", "processing", "1 hour ago"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}

	out.Reset()
	printTracks(&out, nil, now)
	if !strings.Contains(out.String(), "暂无曲目") {
		t.Fatalf("unexpected empty output %q", out.String())
	}
}

func TestSweepCommand(t *testing.T) {
	uploadDir := useTempEnv(t)
	old := filepath.Join(uploadDir, "old.mp3")
	testsupport.WriteFile(t, old, []byte("x"))
	testsupport.WriteFile(t, filepath.Join(uploadDir, "new.mp3"), []byte("y"))
	testsupport.Backdate(t, old, time.Hour)

	out, err := runCommand(t, "sweep")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, "已清理 1 个文件") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestTracksCommands(t *testing.T) {
	useTempEnv(t)

	if _, err := runCommand(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	out, err := runCommand(t, "tracks", "list")
	if err != nil {
		t.Fatalf("tracks list: %v", err)
	}
	if !strings.Contains(out, "暂无曲目") {
		t.Fatalf("unexpected list output %q", out)
	}

	if _, err := runCommand(t, "tracks", "delete", "5"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if _, err := runCommand(t, "tracks", "delete", "abc"); err == nil {
		t.Fatal("expected error for invalid id")
	}
}

type fakeStems struct {
	removed []int64
	err     error
}

func (f *fakeStems) RemoveTrack(_ context.Context, trackID int64) error {
	f.removed = append(f.removed, trackID)
	return f.err
}

func TestDeleteTrackRemovesArchivedStems(t *testing.T) {
	uploadDir := useTempEnv(t)
	if _, err := runCommand(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo, closeDB, err := openTrackRepository()
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	defer closeDB()

	ctx := context.Background()
	upload := filepath.Join(uploadDir, "a.wav")
	testsupport.WriteFile(t, upload, []byte("x"))
	first, _ := repo.Create(ctx, "First", "/uploads/a.wav")
	second, _ := repo.Create(ctx, "Second", "/uploads/b.mp3")

	stems := &fakeStems{}
	var out bytes.Buffer
	if err := deleteTrack(ctx, &out, repo, stems, first.ID); err != nil {
		t.Fatalf("deleteTrack: %v", err)
	}
	if len(stems.removed) != 1 || stems.removed[0] != first.ID {
		t.Fatalf("expected stems of track %d removed, got %v", first.ID, stems.removed)
	}
	if _, err := os.Stat(upload); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected upload removed, stat err %v", err)
	}
	if !strings.Contains(out.String(), "已删除曲目") {
		t.Fatalf("unexpected output %q", out.String())
	}

	// 归档删除失败不影响记录删除
	out.Reset()
	failing := &fakeStems{err: errors.New("bucket unavailable")}
	if err := deleteTrack(ctx, &out, repo, failing, second.ID); err != nil {
		t.Fatalf("deleteTrack with failing stems: %v", err)
	}
	if !strings.Contains(out.String(), "归档分轨删除失败") {
		t.Fatalf("expected warning in output %q", out.String())
	}

	if err := deleteTrack(ctx, &out, repo, stems, first.ID); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if len(stems.removed) != 1 {
		t.Fatalf("stems must not be touched for unknown track, got %v", stems.removed)
	}
}
