package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/muselink/muselink/internal/config"
	"github.com/muselink/muselink/internal/database"
	"github.com/muselink/muselink/internal/events"
	"github.com/muselink/muselink/internal/logger"
)

// ScanRunner runs a full index pass for one share source.
type ScanRunner interface {
	RunScan(ctx context.Context, sourceID uint) error
}

// TagSuggestion is one track's AI-proposed tag update.
type TagSuggestion struct {
	TrackID uint
	Genre   string
	Year    int
}

// TagEnricher asks an AI backend for tag suggestions for a chunk of
// tracks. A chunk-level error fails the whole chunk, not the batch.
type TagEnricher interface {
	EnrichChunk(ctx context.Context, tracks []database.Track, prompt, model string) ([]TagSuggestion, error)
}

// LyricsTranscriber produces lyrics for a single track.
type LyricsTranscriber interface {
	TranscribeTrack(ctx context.Context, track database.Track, language string) (lyrics, detectedLang string, err error)
}

// Worker drains the queue on a single goroutine, so jobs of all kinds
// execute strictly one at a time in submission order.
type Worker struct {
	queue    *Queue
	statuses *StatusTable
	repo     *database.TrackRepository
	scans    ScanRunner
	tagger   TagEnricher
	lyrics   LyricsTranscriber
	eventBus events.EventBus
	cfg      config.AIConfig
	log      hclog.Logger
}

func NewWorker(queue *Queue, statuses *StatusTable, repo *database.TrackRepository,
	scans ScanRunner, tagger TagEnricher, lyrics LyricsTranscriber,
	eventBus events.EventBus, cfg config.AIConfig) *Worker {
	return &Worker{
		queue:    queue,
		statuses: statuses,
		repo:     repo,
		scans:    scans,
		tagger:   tagger,
		lyrics:   lyrics,
		eventBus: eventBus,
		cfg:      cfg,
		log:      logger.Named("jobs"),
	}
}

// Run loops until the queue is closed and drained. It is meant to be
// launched as a goroutine once at startup.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("Job worker started")
	for {
		payload, ok := w.queue.Dequeue()
		if !ok {
			w.log.Info("Job worker stopped")
			return
		}
		w.process(ctx, payload)
	}
}

// process runs one job with panic isolation. A panicking handler fails
// its own job and the worker keeps draining.
func (w *Worker) process(ctx context.Context, payload Payload) {
	id := payload.JobID()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panicked", "job_id", id, "kind", payload.Kind(), "panic", r)
			w.statuses.markFailed(id, fmt.Sprintf("internal error: %v", r))
			w.publish(events.EventJobFailed, id, payload.Kind())
		}
	}()

	if ctx.Err() != nil {
		w.statuses.markFailed(id, "canceled before start")
		return
	}

	w.statuses.markRunning(id)
	w.log.Info("Job started", "job_id", id, "kind", payload.Kind())

	var err error
	switch p := payload.(type) {
	case ScanJob:
		err = w.scans.RunScan(ctx, p.SourceID)
	case AiBatchJob:
		err = w.runAiBatch(ctx, p)
	case LyricsBatchJob:
		err = w.runLyricsBatch(ctx, p)
	default:
		err = fmt.Errorf("unknown job kind %q", payload.Kind())
	}

	if err != nil {
		w.log.Error("Job failed", "job_id", id, "kind", payload.Kind(), "error", err)
		w.statuses.markFailed(id, err.Error())
		w.publish(events.EventJobFailed, id, payload.Kind())
		return
	}
	w.statuses.markCompleted(id)
	w.log.Info("Job completed", "job_id", id, "kind", payload.Kind())
	w.publish(events.EventJobCompleted, id, payload.Kind())
}

// runAiBatch enriches tracks in fixed-size chunks. Cancellation is
// checked between chunks only; an in-flight chunk finishes its request.
func (w *Worker) runAiBatch(ctx context.Context, job AiBatchJob) error {
	tracks, err := w.repo.GetTracks(job.TrackIDs)
	if err != nil {
		return fmt.Errorf("failed to load tracks: %w", err)
	}

	chunkSize := w.cfg.BatchChunkSize
	if chunkSize <= 0 {
		chunkSize = 15
	}

	for start := 0; start < len(tracks); start += chunkSize {
		if ctx.Err() != nil {
			return fmt.Errorf("batch canceled after %d tracks", start)
		}
		end := start + chunkSize
		if end > len(tracks) {
			end = len(tracks)
		}
		chunk := tracks[start:end]

		suggestions, err := w.tagger.EnrichChunk(ctx, chunk, job.Prompt, job.Model)
		if err != nil {
			w.log.Warn("Enrichment chunk failed, continuing batch", "job_id", job.ID, "size", len(chunk), "error", err)
			w.statuses.addProgress(job.ID, 0, len(chunk))
			continue
		}

		done, failed := 0, 0
		for _, s := range suggestions {
			if err := w.repo.UpdateTags(s.TrackID, s.Genre, s.Year); err != nil {
				w.log.Warn("Failed to save tags", "track_id", s.TrackID, "error", err)
				failed++
				continue
			}
			done++
		}
		failed += len(chunk) - len(suggestions)
		w.statuses.addProgress(job.ID, done, failed)
		w.publish(events.EventJobProgress, job.ID, job.Kind())
	}
	return nil
}

// runLyricsBatch transcribes tracks one at a time. Transcription is
// heavy on the AI side, so requests are spaced out by a fixed delay.
func (w *Worker) runLyricsBatch(ctx context.Context, job LyricsBatchJob) error {
	tracks, err := w.repo.GetTracks(job.TrackIDs)
	if err != nil {
		return fmt.Errorf("failed to load tracks: %w", err)
	}

	for i, track := range tracks {
		if ctx.Err() != nil {
			return fmt.Errorf("batch canceled after %d tracks", i)
		}
		if i > 0 && w.cfg.LyricsDelay > 0 {
			select {
			case <-time.After(w.cfg.LyricsDelay):
			case <-ctx.Done():
				return fmt.Errorf("batch canceled after %d tracks", i)
			}
		}

		lyrics, lang, err := w.lyrics.TranscribeTrack(ctx, track, job.Language)
		if err != nil {
			w.log.Warn("Transcription failed, continuing batch", "track_id", track.ID, "error", err)
			w.statuses.addProgress(job.ID, 0, 1)
			continue
		}
		if err := w.repo.SetLyrics(track.ID, lyrics, lang); err != nil {
			w.log.Warn("Failed to save lyrics", "track_id", track.ID, "error", err)
			w.statuses.addProgress(job.ID, 0, 1)
			continue
		}
		w.statuses.addProgress(job.ID, 1, 0)
		w.publish(events.EventJobProgress, job.ID, job.Kind())
	}
	return nil
}

func (w *Worker) publish(eventType events.EventType, jobID, kind string) {
	if w.eventBus == nil {
		return
	}
	evt := events.NewSystemEvent(eventType, "Job "+string(eventType), jobID)
	evt.Data["job_id"] = jobID
	evt.Data["kind"] = kind
	w.eventBus.PublishAsync(evt)
}
