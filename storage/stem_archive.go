package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"safi/core/audio"
	"safi/logger"

	"github.com/dustin/go-humanize"
)

const (
	stemPrefix   = "stems"
	staticPrefix = "/static/"
)

// StemKey returns the object key of one archived stem.
func StemKey(trackID int64, stem, ext string) string {
	return fmt.Sprintf("%s/%d/%s%s", stemPrefix, trackID, stem, ext)
}

// StaticURL maps an object key to the URL served by StaticHandler.
func StaticURL(key string) string {
	return staticPrefix + key
}

// StemArchive copies separated stems from the provider into the bucket.
type StemArchive struct {
	store      ObjectStore
	httpClient *http.Client
}

// NewStemArchive 创建分轨归档
func NewStemArchive(store ObjectStore) *StemArchive {
	return &StemArchive{
		store:      store,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// ArchiveStem downloads sourceURL and stores it as stems/<id>/<stem><ext>.
func (a *StemArchive) ArchiveStem(ctx context.Context, trackID int64, stem, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("创建下载请求失败: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("下载文件失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("下载文件失败，状态码: %d", resp.StatusCode)
	}

	ext := stemExtension(sourceURL)
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "audio/") {
		contentType = audio.ContentType(ext)
	}

	key := StemKey(trackID, stem, ext)
	if err := a.store.Put(ctx, key, resp.Body, resp.ContentLength, contentType); err != nil {
		return "", err
	}

	size := "unknown size"
	if resp.ContentLength >= 0 {
		size = humanize.Bytes(uint64(resp.ContentLength))
	}
	logger.Info("分轨已归档",
		logger.TrackID(trackID),
		logger.String("key", key),
		logger.String("size", size))
	return StaticURL(key), nil
}

// RemoveTrack deletes every archived stem of the track.
func (a *StemArchive) RemoveTrack(ctx context.Context, trackID int64) error {
	n, err := a.store.RemovePrefix(ctx, fmt.Sprintf("%s/%d/", stemPrefix, trackID))
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("已删除归档分轨", logger.TrackID(trackID), logger.Int("objects", n))
	}
	return nil
}

func stemExtension(rawURL string) string {
	ext := ".mp3"
	if u, err := url.Parse(rawURL); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); audio.ClassifyExtension(e) == audio.MediaAudio {
			ext = e
		}
	}
	return ext
}
