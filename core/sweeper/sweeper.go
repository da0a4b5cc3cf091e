package sweeper

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"safi/logger"
)

const (
	DefaultInterval  = time.Minute
	DefaultRetention = 10 * time.Minute
)

// Sweeper 定期清理上传目录中超过保留期的文件
type Sweeper struct {
	dir       string
	interval  time.Duration
	retention time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a sweeper for dir. Non-positive durations use the defaults.
func New(dir string, interval, retention time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Sweeper{dir: dir, interval: interval, retention: retention}
}

// Start 启动清理循环，重复调用无效果
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(loopCtx)

	logger.Info("文件清理服务启动",
		logger.String("dir", s.dir),
		logger.Duration("interval", s.interval),
		logger.Duration("retention", s.retention))
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	logger.Info("文件清理服务已停止")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.SweepOnce(now)
		}
	}
}

// SweepOnce removes regular files in the directory modified before now minus the retention window.
func (s *Sweeper) SweepOnce(now time.Time) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Error("读取上传目录失败", logger.String("dir", s.dir), logger.ErrorField(err))
		}
		return 0
	}

	cutoff := now.Add(-s.retention)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// 文件可能已被删除接口或任务移除
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("stat upload failed", logger.String("file", entry.Name()), logger.ErrorField(err))
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Error("删除过期文件失败", logger.String("file", path), logger.ErrorField(err))
			}
			continue
		}
		removed++
		logger.Info("已清理过期文件", logger.String("file", entry.Name()))
	}
	return removed
}
