package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// MixSchemaVersion is written on every new mix row. Version 1 rows live in
// the legacy `mixes` table and are read through the fallback path only.
const MixSchemaVersion = 2

// DefaultLoopTime is applied when a persisted snapshot carries no loop time.
const DefaultLoopTime = 30

// TrackSnapshot is one saved track slot inside a mix. Only assigned slots
// are ever persisted.
type TrackSnapshot struct {
	ID       string  `json:"id,omitempty"`
	Name     string  `json:"name"`
	SourceID int64   `json:"sourceId,omitempty"`
	URL      string  `json:"url"`
	Volume   float64 `json:"volume"`
	LoopTime int     `json:"loopTime"`
}

// TrackSnapshots stores the ordered slot list as a JSON column.
type TrackSnapshots []TrackSnapshot

// Value implements driver.Valuer.
func (s TrackSnapshots) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal track snapshots: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (s *TrackSnapshots) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for track snapshots", value)
	}
	if len(data) == 0 {
		*s = nil
		return nil
	}
	return json.Unmarshal(data, s)
}

// Mix is a saved named collection of track assignments plus a master
// duration. Duration is always whole seconds; callers must round before
// constructing a Mix.
type Mix struct {
	ID            string         `json:"id" gorm:"primaryKey;size:36"`
	UserID        int64          `json:"userId" gorm:"index;not null"`
	Name          string         `json:"name" gorm:"size:255;not null"`
	Duration      int            `json:"duration" gorm:"not null"`
	IsPublic      bool           `json:"isPublic" gorm:"default:false"`
	SchemaVersion int            `json:"schemaVersion" gorm:"default:2"`
	Tracks        TrackSnapshots `json:"tracks" gorm:"type:json"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// TableName 指定表名
func (Mix) TableName() string {
	return "mixes_v2"
}

// LegacyMix is a row of the original `mixes` table, read only as a
// fallback when a mix id has no `mixes_v2` row. Sound names and URLs are
// parallel JSON arrays; per-track volume and loop time were not stored.
type LegacyMix struct {
	ID         string
	UserID     int64
	Name       string
	Duration   int
	SoundNames []string
	SoundURLs  []string
	CreatedAt  time.Time
}

// Snapshots converts the legacy parallel arrays into ordered track
// snapshots with default volume and loop time.
func (m *LegacyMix) Snapshots() TrackSnapshots {
	out := make(TrackSnapshots, 0, len(m.SoundNames))
	for i, name := range m.SoundNames {
		if name == "" {
			continue
		}
		url := ""
		if i < len(m.SoundURLs) {
			url = m.SoundURLs[i]
		}
		out = append(out, TrackSnapshot{
			Name:     name,
			URL:      url,
			Volume:   1,
			LoopTime: DefaultLoopTime,
		})
	}
	return out
}
