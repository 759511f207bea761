package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/muselink/muselink/internal/config"
)

// TrackRepository wraps catalog queries used by the indexer, the job worker,
// and the HTTP layer.
type TrackRepository struct {
	db *gorm.DB
}

// NewTrackRepository creates a repository over the given database handle
func NewTrackRepository(db *gorm.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// DB exposes the underlying handle for callers that need raw queries
func (r *TrackRepository) DB() *gorm.DB {
	return r.db
}

// UpsertBatch inserts tracks, updating tag fields for rows that already exist
// for the same (source, path) pair.
func (r *TrackRepository) UpsertBatch(tracks []Track) error {
	if len(tracks) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_id"}, {Name: "full_path"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"content_hash", "size_bytes", "title", "artist", "album", "genre", "year", "updated_at",
		}),
	}).Create(&tracks).Error
}

// IndexedPaths returns the set of already-indexed index paths for a source.
// Used by the scanner for O(1) skip checks.
func (r *TrackRepository) IndexedPaths(sourceID uint) (map[string]struct{}, error) {
	var paths []string
	if err := r.db.Model(&Track{}).Where("source_id = ?", sourceID).Pluck("full_path", &paths).Error; err != nil {
		return nil, fmt.Errorf("failed to load indexed paths for source %d: %w", sourceID, err)
	}

	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set, nil
}

// GetTrack returns a single track by id
func (r *TrackRepository) GetTrack(id uint) (*Track, error) {
	var track Track
	if err := r.db.First(&track, id).Error; err != nil {
		return nil, err
	}
	return &track, nil
}

// FindByPath returns the track at an index path within a source.
func (r *TrackRepository) FindByPath(sourceID uint, fullPath string) (*Track, error) {
	var track Track
	if err := r.db.Where("source_id = ? AND full_path = ?", sourceID, fullPath).First(&track).Error; err != nil {
		return nil, err
	}
	return &track, nil
}

// DeleteTrack removes a track's catalog row
func (r *TrackRepository) DeleteTrack(id uint) error {
	return r.db.Delete(&Track{}, id).Error
}

// GetTracks returns the tracks matching the given ids, in no particular order
func (r *TrackRepository) GetTracks(ids []uint) ([]Track, error) {
	var tracks []Track
	if err := r.db.Where("id IN ?", ids).Find(&tracks).Error; err != nil {
		return nil, err
	}
	return tracks, nil
}

// ListTracks returns tracks for a source ordered by path
func (r *TrackRepository) ListTracks(sourceID uint, limit, offset int) ([]Track, error) {
	var tracks []Track
	q := r.db.Where("source_id = ?", sourceID).Order("full_path")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&tracks).Error; err != nil {
		return nil, err
	}
	return tracks, nil
}

// UpdateDuration persists a duration discovered after indexing (the transcoder
// scrapes it from ffmpeg diagnostics).
func (r *TrackRepository) UpdateDuration(id uint, seconds float64) error {
	return r.db.Model(&Track{}).Where("id = ?", id).Updates(map[string]interface{}{
		"duration_sec": seconds,
		"updated_at":   time.Now(),
	}).Error
}

// UpdateTags applies AI-suggested tag fields to a track
func (r *TrackRepository) UpdateTags(id uint, genre string, year int) error {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if genre != "" {
		updates["genre"] = genre
	}
	if year != 0 {
		updates["year"] = year
	}
	return r.db.Model(&Track{}).Where("id = ?", id).Updates(updates).Error
}

// SetLyrics stores transcribed lyrics for a track
func (r *TrackRepository) SetLyrics(id uint, lyrics, language string) error {
	return r.db.Model(&Track{}).Where("id = ?", id).Updates(map[string]interface{}{
		"lyrics":      lyrics,
		"lyrics_lang": language,
		"updated_at":  time.Now(),
	}).Error
}

// SyncSources reconciles ShareSource rows with the configured endpoints,
// creating rows for new endpoints and updating changed ones. Endpoints removed
// from configuration keep their rows (and their catalog entries).
func SyncSources(db *gorm.DB, shares []config.ShareEndpoint) ([]ShareSource, error) {
	sources := make([]ShareSource, 0, len(shares))
	for _, share := range shares {
		var source ShareSource
		err := db.Where("name = ?", share.Name).First(&source).Error
		switch {
		case err == nil:
			source.Host = share.Host
			source.Share = share.Share
			source.RootPath = share.RootPath
			if err := db.Save(&source).Error; err != nil {
				return nil, fmt.Errorf("failed to update source %q: %w", share.Name, err)
			}
		case err == gorm.ErrRecordNotFound:
			source = ShareSource{
				Name:     share.Name,
				Host:     share.Host,
				Share:    share.Share,
				RootPath: share.RootPath,
			}
			if err := db.Create(&source).Error; err != nil {
				return nil, fmt.Errorf("failed to create source %q: %w", share.Name, err)
			}
		default:
			return nil, fmt.Errorf("failed to query source %q: %w", share.Name, err)
		}
		sources = append(sources, source)
	}
	return sources, nil
}
