package model

import "time"

// Sound categories. The set is fixed; "all" is the identity filter and is
// never stored on a row.
const (
	CategoryAll    = "all"
	CategoryNature = "nature"
	CategoryMusic  = "music"
	CategoryVoice  = "voice"
	CategoryBeats  = "beats"
	CategoryUpload = "uploads"
	CategoryMixes  = "mixes"
)

// Categories lists every storable sound category.
var Categories = []string{
	CategoryNature,
	CategoryMusic,
	CategoryVoice,
	CategoryBeats,
	CategoryUpload,
	CategoryMixes,
}

// ValidCategory reports whether c is a storable category.
func ValidCategory(c string) bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// AudioTrack represents one selectable sound in the catalog.
// Built-in sounds have no owner; user uploads carry the uploader's id.
type AudioTrack struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    *int64    `json:"userId,omitempty" gorm:"index"`
	Name      string    `json:"name" gorm:"size:255;not null;index"`
	Category  string    `json:"category" gorm:"size:32;not null;index"`
	URL       string    `json:"url" gorm:"size:767;not null"`
	Duration  float64   `json:"duration"` // natural media duration in seconds, 0 when unknown
	IsBuiltIn bool      `json:"isBuiltIn" gorm:"default:false"`
	State     int8      `json:"state" gorm:"default:1"` // 0=soft deleted, 1=normal
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (AudioTrack) TableName() string {
	return "audio_tracks"
}
