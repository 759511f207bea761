package database

import (
	"time"
)

// ShareSource is a configured remote share endpoint the catalog indexes from.
// Rows are synced from configuration at startup; the ID scopes catalog paths.
type ShareSource struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	Host      string    `gorm:"not null" json:"host"`
	Share     string    `gorm:"not null" json:"share"`
	RootPath  string    `json:"root_path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Track is one indexed media file. FullPath and ParentPath are index paths:
// share-relative, forward-slash separated. Uniqueness is scoped per source.
type Track struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SourceID    uint      `gorm:"not null;index;uniqueIndex:idx_source_path,priority:1" json:"source_id"`
	FullPath    string    `gorm:"not null;uniqueIndex:idx_source_path,priority:2" json:"full_path"`
	ParentPath  string    `gorm:"index" json:"parent_path"`
	ContentHash string    `gorm:"index" json:"content_hash"`
	SizeBytes   int64     `json:"size_bytes"`
	DurationSec float64   `json:"duration_sec"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Album       string    `json:"album"`
	Genre       string    `json:"genre"`
	Year        int       `json:"year"`
	Lyrics      string    `gorm:"type:text" json:"lyrics,omitempty"`
	LyricsLang  string    `json:"lyrics_lang,omitempty"`
	AddedAt     time.Time `json:"added_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
