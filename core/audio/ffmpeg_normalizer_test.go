package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"safi/internal/testsupport"
)

// fakeFFmpeg writes "pcm" to its last argument, mirroring ffmpeg's output handling.
const fakeFFmpeg = `for last; do :; done
printf pcm > "$last"`

func TestClassifyExtension(t *testing.T) {
	cases := map[string]MediaKind{
		"mp3":   MediaAudio,
		".WAV":  MediaAudio,
		"ogg":   MediaAudio,
		"mp4":   MediaVideo,
		".MkV":  MediaVideo,
		"wmv":   MediaVideo,
		"txt":   MediaUnsupported,
		"":      MediaUnsupported,
		"mpeg3": MediaUnsupported,
	}
	for ext, want := range cases {
		if got := ClassifyExtension(ext); got != want {
			t.Errorf("ClassifyExtension(%q) = %s, want %s", ext, got, want)
		}
	}
}

func TestNeedsNormalization(t *testing.T) {
	if NeedsNormalization("mp3") || NeedsNormalization(".MP3") {
		t.Fatal("mp3 must pass through")
	}
	for _, ext := range []string{"wav", "flac", "m4a", "mp4", "webm"} {
		if !NeedsNormalization(ext) {
			t.Errorf("expected %s to need normalization", ext)
		}
	}
	if NeedsNormalization("exe") {
		t.Fatal("unsupported formats are never normalized")
	}
}

func TestOutputPath(t *testing.T) {
	if got := OutputPath("/u/abc.mp4"); got != "/u/abc.wav" {
		t.Fatalf("unexpected output path %s", got)
	}
	if got := OutputPath("/u/abc.wav"); got != "/u/abc.norm.wav" {
		t.Fatalf("wav input must not be overwritten, got %s", got)
	}
}

func TestNormalizeMP3PassThrough(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "song.mp3")
	testsupport.WriteFile(t, input, []byte("id3"))

	// a binary that cannot run proves no process is started
	n := NewFFmpegNormalizer(filepath.Join(dir, "missing-ffmpeg"), 0, 0)
	if got := n.Normalize(context.Background(), input, "mp3"); got != input {
		t.Fatalf("expected pass-through, got %s", got)
	}
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("input must be kept: %v", err)
	}
}

func TestNormalizeConvertsAndDeletesInput(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := testsupport.WriteScript(t, dir, "ffmpeg", fakeFFmpeg)
	input := filepath.Join(dir, "clip.mp4")
	testsupport.WriteFile(t, input, []byte("video"))

	n := NewFFmpegNormalizer(ffmpeg, 5*time.Second, 0)
	got := n.Normalize(context.Background(), input, "mp4")

	if got != filepath.Join(dir, "clip.wav") {
		t.Fatalf("unexpected output %s", got)
	}
	data, err := os.ReadFile(got)
	if err != nil || string(data) != "pcm" {
		t.Fatalf("unexpected output content %q (%v)", data, err)
	}
	if _, err := os.Stat(input); !os.IsNotExist(err) {
		t.Fatalf("expected original to be deleted, stat err %v", err)
	}
}

func TestNormalizeFallsBackOnFailure(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := testsupport.WriteScript(t, dir, "ffmpeg", `for last; do :; done
printf partial > "$last"
echo "Invalid data found when processing input" >&2
exit 1`)
	input := filepath.Join(dir, "clip.flac")
	testsupport.WriteFile(t, input, []byte("flac"))

	n := NewFFmpegNormalizer(ffmpeg, 5*time.Second, 0)
	if got := n.Normalize(context.Background(), input, "flac"); got != input {
		t.Fatalf("expected fallback to input, got %s", got)
	}
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("input must survive a failed conversion: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "clip.wav")); !os.IsNotExist(err) {
		t.Fatalf("partial output should be removed, stat err %v", err)
	}
}

func TestNormalizeFallsBackOnTimeout(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := testsupport.WriteScript(t, dir, "ffmpeg", "exec sleep 10")
	input := filepath.Join(dir, "clip.mov")
	testsupport.WriteFile(t, input, []byte("mov"))

	n := NewFFmpegNormalizer(ffmpeg, 200*time.Millisecond, 0)
	start := time.Now()
	if got := n.Normalize(context.Background(), input, "mov"); got != input {
		t.Fatalf("expected fallback to input, got %s", got)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
}

func TestNormalizeFallsBackOnEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := testsupport.WriteScript(t, dir, "ffmpeg", `for last; do :; done
: > "$last"`)
	input := filepath.Join(dir, "clip.ogg")
	testsupport.WriteFile(t, input, []byte("ogg"))

	n := NewFFmpegNormalizer(ffmpeg, 5*time.Second, 0)
	if got := n.Normalize(context.Background(), input, "ogg"); got != input {
		t.Fatalf("expected fallback on empty output, got %s", got)
	}
}

func TestCappedBufferDropsOverflow(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("abcdef"))
	if err != nil || n != 6 {
		t.Fatalf("write must report full length, got %d %v", n, err)
	}
	_, _ = b.Write([]byte("gh"))
	if b.String() != "abcd" {
		t.Fatalf("unexpected buffer %q", b.String())
	}
	if !strings.HasPrefix("abcdef", b.String()) {
		t.Fatal("buffer must keep the head of the output")
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		".wav": "audio/wav",
		"MP3":  "audio/mpeg",
		"flac": "audio/flac",
		".m4a": "audio/aac",
		"mp4":  "application/octet-stream",
	}
	for ext, want := range cases {
		if got := ContentType(ext); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", ext, got, want)
		}
	}
}
