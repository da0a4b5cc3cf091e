package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"safi/core/audio"
	"safi/core/events"
	"safi/core/job"
	"safi/logger"
	"safi/model"
	"safi/repository"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	msgTrackNotFound = "Track not found"
	msgUploadFailed  = "Upload failed. Please try again"
	msgInternal      = "Internal server error"

	// multipart 头部与 title 字段的额外空间
	formOverhead = 1 << 20
)

// JobSubmitter starts background processing for a stored upload.
type JobSubmitter interface {
	Submit(trackID int64, filePath string) *job.Handle
}

// StemRemover deletes archived stems of a track.
type StemRemover interface {
	RemoveTrack(ctx context.Context, trackID int64) error
}

// TrackHandler 处理曲目相关的 HTTP 请求
type TrackHandler struct {
	tracks         repository.TrackRepository
	jobs           JobSubmitter
	stems          StemRemover      // optional
	publisher      events.Publisher // optional
	uploadDir      string
	maxUploadBytes int64
}

// NewTrackHandler creates a TrackHandler.
func NewTrackHandler(tracks repository.TrackRepository, jobs JobSubmitter, uploadDir string, maxUploadBytes int64) *TrackHandler {
	return &TrackHandler{
		tracks:         tracks,
		jobs:           jobs,
		uploadDir:      uploadDir,
		maxUploadBytes: maxUploadBytes,
	}
}

// WithStemRemover enables removal of archived stems on delete.
func (h *TrackHandler) WithStemRemover(stems StemRemover) *TrackHandler {
	h.stems = stems
	return h
}

// WithPublisher announces created and deleted tracks on p.
func (h *TrackHandler) WithPublisher(p events.Publisher) *TrackHandler {
	h.publisher = p
	return h
}

// ListTracksHandler returns every track, oldest first.
func (h *TrackHandler) ListTracksHandler(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.tracks.List(r.Context())
	if err != nil {
		logger.Error("获取曲目列表失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// GetTrackHandler returns one track.
func (h *TrackHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := trackIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid track id")
		return
	}

	track, err := h.tracks.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrTrackNotFound) {
			writeError(w, http.StatusNotFound, msgTrackNotFound)
			return
		}
		logger.Error("获取曲目失败", logger.TrackID(id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// UploadTrackHandler stores the upload, creates a processing track and starts the job.
func (h *TrackHandler) UploadTrackHandler(w http.ResponseWriter, r *http.Request) {
	logger.Info("开始处理上传请求",
		logger.String("remoteAddr", r.RemoteAddr),
		logger.Int64("contentLength", r.ContentLength))

	if r.ContentLength > h.maxUploadBytes+formOverhead {
		h.rejectTooLarge(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if isTooLarge(err) {
			h.rejectTooLarge(w)
			return
		}
		logger.Warn("解析表单失败", logger.ErrorField(err))
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		h.rejectTooLarge(w)
		return
	}

	ext := audio.NormalizeExtension(filepath.Ext(header.Filename))
	if !audio.IsSupported(ext) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf(
			"File format .%s is not supported. Please upload audio (MP3, WAV, FLAC, M4A, AAC) or video (MP4, MKV, MOV) files.", ext))
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = strings.TrimSpace(header.Filename)
	}
	if title == "" {
		writeError(w, http.StatusBadRequest, "Title is required")
		return
	}

	fileName := uuid.NewString() + "." + ext
	destPath := filepath.Join(h.uploadDir, fileName)
	if err := saveUploadedFile(file, destPath); err != nil {
		removeFile(destPath)
		if isTooLarge(err) {
			h.rejectTooLarge(w)
			return
		}
		logger.Error("保存上传文件失败", logger.String("path", destPath), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, msgUploadFailed)
		return
	}

	track, err := h.tracks.Create(r.Context(), title, "/uploads/"+fileName)
	if err != nil {
		logger.Error("创建曲目记录失败", logger.ErrorField(err))
		removeFile(destPath)
		writeError(w, http.StatusInternalServerError, msgUploadFailed)
		return
	}

	logger.Info("上传成功，开始后台处理",
		logger.TrackID(track.ID),
		logger.String("file", fileName),
		logger.String("size", humanize.Bytes(uint64(header.Size))))

	if h.publisher != nil {
		h.publisher.Publish(model.TrackEvent{Type: model.TrackCreated, Track: track})
	}
	writeJSON(w, http.StatusCreated, track)

	// 任务与请求生命周期解耦
	h.jobs.Submit(track.ID, destPath)
}

// DeleteTrackHandler removes the track and, best effort, its files.
func (h *TrackHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := trackIDFromRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid track id")
		return
	}

	// 先读取记录以便清理文件；读取失败不影响删除
	track, getErr := h.tracks.GetByID(r.Context(), id)

	if err := h.tracks.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrTrackNotFound) {
			writeError(w, http.StatusNotFound, msgTrackNotFound)
			return
		}
		logger.Error("删除曲目失败", logger.TrackID(id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}

	if getErr == nil {
		RemoveUploadFiles(h.uploadDir, track.OriginalURL)
	} else {
		track = &model.Track{ID: id}
	}
	if h.stems != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := h.stems.RemoveTrack(ctx, id); err != nil {
			logger.Warn("删除归档分轨失败", logger.TrackID(id), logger.ErrorField(err))
		}
		cancel()
	}
	if h.publisher != nil {
		h.publisher.Publish(model.TrackEvent{Type: model.TrackDeleted, Track: track})
	}

	logger.Info("曲目已删除", logger.TrackID(id))
	w.WriteHeader(http.StatusNoContent)
}

// RemoveUploadFiles deletes the upload behind originalURL and its normalized sibling.
func RemoveUploadFiles(uploadDir, originalURL string) {
	name := path.Base(strings.TrimPrefix(originalURL, "/uploads/"))
	if name == "." || name == "/" || name == "" {
		return
	}
	original := filepath.Join(uploadDir, name)
	removeFile(original)
	removeFile(audio.OutputPath(original))
}

func (h *TrackHandler) rejectTooLarge(w http.ResponseWriter) {
	writeError(w, http.StatusRequestEntityTooLarge,
		fmt.Sprintf("File too large. Maximum size is %s", humanize.IBytes(uint64(h.maxUploadBytes))))
}

func saveUploadedFile(file multipart.File, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("创建文件失败: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		return fmt.Errorf("保存文件失败: %w", err)
	}
	return out.Close()
}

func removeFile(p string) {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("删除文件失败", logger.String("path", p), logger.ErrorField(err))
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge)
}
