package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"safi/core/audio"
	"safi/logger"
)

// StaticHandler 处理 MinIO 静态文件请求
type StaticHandler struct {
	store ObjectStore
}

// NewStaticHandler 创建 StaticHandler 实例
func NewStaticHandler(store ObjectStore) *StaticHandler {
	return &StaticHandler{store: store}
}

// ServeHTTP 实现 http.Handler 接口
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, staticPrefix)
	if key == "" || strings.Contains(key, "..") {
		http.NotFound(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	object, info, err := h.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrObjectNotFound) {
			logger.Error("Error reading file from MinIO", logger.String("key", key), logger.ErrorField(err))
		}
		http.NotFound(w, r)
		return
	}
	defer object.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = audio.ContentType(path.Ext(key))
	}
	w.Header().Set("Content-Type", contentType)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000")

	if _, err := io.Copy(w, object); err != nil {
		logger.Error("Error serving file from MinIO", logger.ErrorField(err))
	}
}
