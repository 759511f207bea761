package metadata

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dhowden/tag"
)

// TrackMetadata holds the tags extracted from an audio stream.
type TrackMetadata struct {
	Title  string
	Artist string
	Album  string
	Genre  string
	Year   int
}

// ExtractFromStream reads embedded tags from an audio stream. The reader
// must support seeking because the tag formats place their headers at
// different offsets (ID3v1 lives at the end of the file).
func ExtractFromStream(r io.ReadSeeker) (*TrackMetadata, error) {
	m, err := tag.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	meta := &TrackMetadata{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Genre:  m.Genre(),
	}
	if m.Year() != 0 {
		meta.Year = m.Year()
	}
	return meta, nil
}

// FallbackTitle derives a display title from the file path when a file
// carries no usable tags.
func FallbackTitle(filePath string) string {
	base := path.Base(filePath)
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext)
}
