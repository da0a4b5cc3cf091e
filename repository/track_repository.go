package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"safi/model"

	"gorm.io/gorm"
)

var (
	// ErrTrackNotFound is returned when the id does not exist (or no longer exists).
	ErrTrackNotFound = errors.New("track not found")
	// ErrTrackFinalized is returned when a status change targets a completed or failed track.
	ErrTrackFinalized = errors.New("track already in a terminal state")
	// ErrInvalidTrack is returned by Create for missing title or original URL.
	ErrInvalidTrack = errors.New("invalid track")
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	List(ctx context.Context) ([]*model.Track, error)
	GetByID(ctx context.Context, id int64) (*model.Track, error)
	Create(ctx context.Context, title, originalURL string) (*model.Track, error)
	Update(ctx context.Context, id int64, update model.TrackUpdate) (*model.Track, error)
	Delete(ctx context.Context, id int64) error
}

// gormTrackRepository GORM 实现
type gormTrackRepository struct {
	db *gorm.DB
}

// NewGormTrackRepository 创建 GORM 曲目仓库
func NewGormTrackRepository(db *gorm.DB) TrackRepository {
	return &gormTrackRepository{db: db}
}

// List returns every track, oldest first.
func (r *gormTrackRepository) List(ctx context.Context) ([]*model.Track, error) {
	tracks := make([]*model.Track, 0)
	if err := r.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&tracks).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return tracks, nil
}

// GetByID 根据ID获取曲目
func (r *gormTrackRepository) GetByID(ctx context.Context, id int64) (*model.Track, error) {
	return getTrack(r.db.WithContext(ctx), id)
}

func getTrack(tx *gorm.DB, id int64) (*model.Track, error) {
	var track model.Track
	if err := tx.First(&track, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTrackNotFound
		}
		return nil, fmt.Errorf("failed to get track %d: %w", id, err)
	}
	return &track, nil
}

// Create inserts a new track in the processing state.
func (r *gormTrackRepository) Create(ctx context.Context, title, originalURL string) (*model.Track, error) {
	title = strings.TrimSpace(title)
	if title == "" || originalURL == "" {
		return nil, fmt.Errorf("%w: title and original url are required", ErrInvalidTrack)
	}

	track := &model.Track{
		Title:       title,
		Status:      model.TrackStatusProcessing,
		OriginalURL: originalURL,
	}
	if err := r.db.WithContext(ctx).Create(track).Error; err != nil {
		return nil, fmt.Errorf("failed to create track: %w", err)
	}
	return track, nil
}

// Update merges the non-nil fields of update into the row and returns the result.
func (r *gormTrackRepository) Update(ctx context.Context, id int64, update model.TrackUpdate) (*model.Track, error) {
	var updated *model.Track
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := getTrack(tx, id)
		if err != nil {
			return err
		}
		if update.Status != nil && current.Status.IsTerminal() {
			return fmt.Errorf("%w: track %d is %s", ErrTrackFinalized, id, current.Status)
		}

		cols := update.Columns()
		if len(cols) > 0 {
			res := tx.Model(&model.Track{}).Where("id = ?", id).Updates(cols)
			if res.Error != nil {
				return fmt.Errorf("failed to update track %d: %w", id, res.Error)
			}
		}

		updated, err = getTrack(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes the row; ErrTrackNotFound when nothing was deleted.
func (r *gormTrackRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Track{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete track %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrTrackNotFound
	}
	return nil
}
