package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"safi/logger"
	"safi/model"
	"safi/repository"

	"github.com/go-redis/redis/v8"
)

// DefaultTrackTTL is used when NewCachedTrackRepository gets a non-positive ttl.
const DefaultTrackTTL = 30 * time.Second

// deletedMarker 删除后留在缓存中的墓碑值，读到即视为曲目不存在
const deletedMarker = "deleted"

// TrackKey 根据曲目ID生成Redis键
func TrackKey(id int64) string {
	return fmt.Sprintf("track:%d", id)
}

// CachedTrackRepository reads tracks through Redis and falls back to the inner
// repository whenever Redis misbehaves.
type CachedTrackRepository struct {
	inner  repository.TrackRepository
	client *redis.Client
	ttl    time.Duration
}

var _ repository.TrackRepository = (*CachedTrackRepository)(nil)

// NewCachedTrackRepository wraps inner with a read-through cache.
func NewCachedTrackRepository(inner repository.TrackRepository, client *redis.Client, ttl time.Duration) *CachedTrackRepository {
	if ttl <= 0 {
		ttl = DefaultTrackTTL
	}
	return &CachedTrackRepository{inner: inner, client: client, ttl: ttl}
}

func (r *CachedTrackRepository) List(ctx context.Context) ([]*model.Track, error) {
	return r.inner.List(ctx)
}

func (r *CachedTrackRepository) Create(ctx context.Context, title, originalURL string) (*model.Track, error) {
	return r.inner.Create(ctx, title, originalURL)
}

// GetByID 优先从缓存读取曲目。只有终态曲目会被缓存，处理中的曲目总是读数据库。
func (r *CachedTrackRepository) GetByID(ctx context.Context, id int64) (*model.Track, error) {
	key := TrackKey(id)

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil && string(data) == deletedMarker:
		return nil, repository.ErrTrackNotFound
	case err == nil:
		var track model.Track
		if jsonErr := json.Unmarshal(data, &track); jsonErr == nil {
			return &track, nil
		}
		logger.Warn("discarding corrupt cached track", logger.TrackID(id))
		r.Invalidate(ctx, id)
	case !errors.Is(err, redis.Nil):
		logger.Warn("redis get failed, reading from database", logger.TrackID(id), logger.ErrorField(err))
	}

	track, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, track)
	return track, nil
}

// Update writes through the inner repository and drops the cached copy.
func (r *CachedTrackRepository) Update(ctx context.Context, id int64, update model.TrackUpdate) (*model.Track, error) {
	track, err := r.inner.Update(ctx, id, update)
	r.Invalidate(ctx, id)
	return track, err
}

// Delete removes the row and leaves a tombstone so that a read racing with
// the delete cannot put the row back into the cache.
func (r *CachedTrackRepository) Delete(ctx context.Context, id int64) error {
	err := r.inner.Delete(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrTrackNotFound) {
		r.Invalidate(ctx, id)
		return err
	}
	if setErr := r.client.Set(ctx, TrackKey(id), deletedMarker, r.ttl).Err(); setErr != nil {
		logger.Warn("failed to mark cached track deleted", logger.TrackID(id), logger.ErrorField(setErr))
	}
	return err
}

// Invalidate 删除曲目缓存
func (r *CachedTrackRepository) Invalidate(ctx context.Context, id int64) {
	if err := r.client.Del(ctx, TrackKey(id)).Err(); err != nil {
		logger.Warn("failed to invalidate cached track", logger.TrackID(id), logger.ErrorField(err))
	}
}

// store caches terminal rows only. SetNX never overwrites a tombstone or a
// newer entry written by another reader.
func (r *CachedTrackRepository) store(ctx context.Context, track *model.Track) {
	if !track.Status.IsTerminal() {
		return
	}
	data, err := json.Marshal(track)
	if err != nil {
		return
	}
	if err := r.client.SetNX(ctx, TrackKey(track.ID), data, r.ttl).Err(); err != nil {
		logger.Warn("failed to cache track", logger.TrackID(track.ID), logger.ErrorField(err))
	}
}
