package ai

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/muselink/muselink/internal/config"
	"github.com/muselink/muselink/internal/database"
)

// Transcriber calls the speech-to-text lyrics service. The service sees
// the share through its own mount, so catalog paths are rebased onto
// the configured mount root rather than streamed over.
type Transcriber struct {
	client    *client
	mountRoot string
}

func NewTranscriber(cfg config.AIConfig) *Transcriber {
	return &Transcriber{
		client:    newClient(cfg.LyricsURL, cfg.RequestTimeout, cfg.HealthTimeout, "ai.lyrics"),
		mountRoot: strings.TrimRight(cfg.LyricsMount, "/"),
	}
}

type transcribeRequest struct {
	FilePath string `json:"file_path"`
	Language string `json:"language,omitempty"`
}

type transcribeResponse struct {
	Language     string  `json:"language"`
	LanguageProb float64 `json:"language_prob"`
	Segments     []struct {
		Time string `json:"time"`
		Text string `json:"text"`
	} `json:"segments"`
	FullText string `json:"full_text"`
}

// TranscribeTrack returns LRC-formatted lyrics when the service yields
// timestamped segments, otherwise the flat transcript.
func (t *Transcriber) TranscribeTrack(ctx context.Context, track database.Track, language string) (string, string, error) {
	if !t.client.healthy(ctx) {
		return "", "", fmt.Errorf("lyrics: %w", ErrUnavailable)
	}

	req := transcribeRequest{
		FilePath: path.Join(t.mountRoot, track.FullPath),
		Language: language,
	}

	var resp transcribeResponse
	if err := t.client.postJSON(ctx, "/transcribe", req, &resp); err != nil {
		return "", "", err
	}

	if len(resp.Segments) > 0 {
		lines := make([]string, 0, len(resp.Segments))
		for _, s := range resp.Segments {
			lines = append(lines, s.Time+s.Text)
		}
		return strings.Join(lines, "\n"), resp.Language, nil
	}
	return resp.FullText, resp.Language, nil
}
