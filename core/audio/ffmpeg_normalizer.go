package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"safi/logger"

	"github.com/dustin/go-humanize"
)

const (
	DefaultTimeout   = 120 * time.Second
	DefaultMaxOutput = 50 << 20
)

// Normalizer converts an upload into audio the separation model accepts.
type Normalizer interface {
	// Normalize returns the path to process next. It never fails: on error the input path comes back.
	Normalize(ctx context.Context, inputPath, ext string) string
}

// FFmpegNormalizer re-encodes media to 16-bit PCM, 44.1kHz stereo using ffmpeg.
type FFmpegNormalizer struct {
	ffmpegPath string
	timeout    time.Duration
	maxOutput  int64
}

// NewFFmpegNormalizer creates a new FFmpegNormalizer. Zero timeout or maxOutput use the defaults.
func NewFFmpegNormalizer(ffmpegPath string, timeout time.Duration, maxOutput int64) *FFmpegNormalizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	return &FFmpegNormalizer{ffmpegPath: ffmpegPath, timeout: timeout, maxOutput: maxOutput}
}

// FFmpegPath returns the configured ffmpeg binary.
func (n *FFmpegNormalizer) FFmpegPath() string {
	return n.ffmpegPath
}

// OutputPath is where the WAV for inputPath is written.
func OutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	base := strings.TrimSuffix(inputPath, ext)
	if strings.EqualFold(ext, ".wav") {
		return base + ".norm.wav"
	}
	return base + ".wav"
}

// Normalize transcodes inputPath to WAV and deletes the input on success.
func (n *FFmpegNormalizer) Normalize(ctx context.Context, inputPath, ext string) string {
	if !NeedsNormalization(ext) {
		return inputPath
	}

	outputPath := OutputPath(inputPath)
	start := time.Now()
	if err := n.transcode(ctx, inputPath, outputPath); err != nil {
		logger.Warn("ffmpeg conversion failed, continuing with original file",
			logger.String("input", inputPath),
			logger.ErrorField(err))
		if rmErr := os.Remove(outputPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			logger.Warn("failed to remove partial output", logger.String("path", outputPath), logger.ErrorField(rmErr))
		}
		return inputPath
	}

	if err := os.Remove(inputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to delete original after conversion",
			logger.String("path", inputPath),
			logger.ErrorField(err))
	}

	logger.Info("converted upload to wav",
		logger.String("input", inputPath),
		logger.String("output", outputPath),
		logger.Duration("elapsed", time.Since(start)))
	return outputPath
}

func (n *FFmpegNormalizer) transcode(ctx context.Context, inputPath, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	args := []string{
		"-y",
		"-i", inputPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "44100",
		"-ac", "2",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, n.ffmpegPath, args...)
	output := &cappedBuffer{limit: n.maxOutput}
	cmd.Stdout = output
	cmd.Stderr = output
	// children that inherit the pipes must not keep Wait blocked after a kill
	cmd.WaitDelay = time.Second

	logger.Debug("Executing FFmpeg command", logger.String("cmd", n.ffmpegPath+" "+strings.Join(args, " ")))

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("ffmpeg timed out after %s for %s", n.timeout, inputPath)
		}
		return fmt.Errorf("ffmpeg execution failed for %s: %w\nFFmpeg output (%s): %s",
			inputPath, err, humanize.Bytes(uint64(output.Len())), output.String())
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("ffmpeg reported success but %s is missing: %w", outputPath, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("ffmpeg produced an empty file %s", outputPath)
	}
	return nil
}

// cappedBuffer keeps at most limit bytes and silently drops the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int64
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if remaining := c.limit - int64(c.buf.Len()); remaining > 0 {
		if int64(len(p)) > remaining {
			c.buf.Write(p[:remaining])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) Len() int { return c.buf.Len() }

func (c *cappedBuffer) String() string { return c.buf.String() }
