package ai

import (
	"context"
	"fmt"

	"github.com/muselink/muselink/internal/config"
	"github.com/muselink/muselink/internal/database"
	"github.com/muselink/muselink/internal/jobs"
)

const defaultTagPrompt = "For each track, infer the musical genre and release year from the title, artist and album. Answer strictly as JSON."

// Tagger asks a text-completion service for genre and year suggestions.
type Tagger struct {
	client       *client
	defaultModel string
}

func NewTagger(cfg config.AIConfig) *Tagger {
	return &Tagger{
		client:       newClient(cfg.TaggerURL, cfg.RequestTimeout, cfg.HealthTimeout, "ai.tagger"),
		defaultModel: cfg.TaggerModel,
	}
}

type enrichTrack struct {
	ID     uint   `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

type enrichRequest struct {
	Model  string        `json:"model"`
	Prompt string        `json:"prompt"`
	Tracks []enrichTrack `json:"tracks"`
}

type enrichResponse struct {
	Results []struct {
		ID    uint   `json:"id"`
		Genre string `json:"genre"`
		Year  int    `json:"year"`
	} `json:"results"`
}

// EnrichChunk submits one chunk of tracks. Results for unknown track
// IDs are discarded; the service answers only for tracks it was asked
// about.
func (t *Tagger) EnrichChunk(ctx context.Context, tracks []database.Track, prompt, model string) ([]jobs.TagSuggestion, error) {
	if !t.client.healthy(ctx) {
		return nil, fmt.Errorf("tagger: %w", ErrUnavailable)
	}

	req := enrichRequest{Model: t.defaultModel, Prompt: defaultTagPrompt}
	if model != "" {
		req.Model = model
	}
	if prompt != "" {
		req.Prompt = prompt
	}

	asked := make(map[uint]struct{}, len(tracks))
	for _, track := range tracks {
		asked[track.ID] = struct{}{}
		req.Tracks = append(req.Tracks, enrichTrack{
			ID:     track.ID,
			Title:  track.Title,
			Artist: track.Artist,
			Album:  track.Album,
		})
	}

	var resp enrichResponse
	if err := t.client.postJSON(ctx, "/enrich", req, &resp); err != nil {
		return nil, err
	}

	suggestions := make([]jobs.TagSuggestion, 0, len(resp.Results))
	for _, r := range resp.Results {
		if _, ok := asked[r.ID]; !ok {
			t.client.log.Warn("Dropping suggestion for track not in chunk", "track_id", r.ID)
			continue
		}
		suggestions = append(suggestions, jobs.TagSuggestion{TrackID: r.ID, Genre: r.Genre, Year: r.Year})
	}
	return suggestions, nil
}
