package model

import "time"

// TrackStatus is the processing state of a track.
type TrackStatus string

const (
	TrackStatusPending    TrackStatus = "pending"
	TrackStatusProcessing TrackStatus = "processing"
	TrackStatusCompleted  TrackStatus = "completed"
	TrackStatusFailed     TrackStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s TrackStatus) IsTerminal() bool {
	return s == TrackStatusCompleted || s == TrackStatusFailed
}

// Track represents one uploaded media item and its separated stems.
type Track struct {
	ID              int64       `json:"id" gorm:"primaryKey;autoIncrement"`
	Title           string      `json:"title" gorm:"type:text;not null"`
	Status          TrackStatus `json:"status" gorm:"size:20;not null;default:'pending';index"`
	OriginalURL     string      `json:"originalUrl" gorm:"column:original_url;type:text;not null"`
	VocalsURL       *string     `json:"vocalsUrl" gorm:"column:vocals_url;type:text"`
	InstrumentalURL *string     `json:"instrumentalUrl" gorm:"column:instrumental_url;type:text"`
	ReplicateID     *string     `json:"replicateId" gorm:"column:replicate_id;size:64"`
	Error           *string     `json:"error" gorm:"type:text"`
	CreatedAt       time.Time   `json:"createdAt" gorm:"autoCreateTime;index"`
}

// TableName 指定表名
func (Track) TableName() string {
	return "tracks"
}

// TrackUpdate carries the fields a job may set on a track. Nil fields are left untouched.
type TrackUpdate struct {
	Status          *TrackStatus
	VocalsURL       *string
	InstrumentalURL *string
	ReplicateID     *string
	Error           *string
}

// Columns converts the update into a gorm column map.
func (u TrackUpdate) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if u.Status != nil {
		cols["status"] = *u.Status
	}
	if u.VocalsURL != nil {
		cols["vocals_url"] = *u.VocalsURL
	}
	if u.InstrumentalURL != nil {
		cols["instrumental_url"] = *u.InstrumentalURL
	}
	if u.ReplicateID != nil {
		cols["replicate_id"] = *u.ReplicateID
	}
	if u.Error != nil {
		cols["error"] = *u.Error
	}
	return cols
}

// TrackEventType describes what happened to a track.
type TrackEventType string

const (
	TrackCreated TrackEventType = "created"
	TrackUpdated TrackEventType = "updated"
	TrackDeleted TrackEventType = "deleted"
)

// TrackEvent is pushed to websocket subscribers.
type TrackEvent struct {
	Type  TrackEventType `json:"type"`
	Track *Track         `json:"track"`
}
