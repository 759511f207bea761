package scanner

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/muselink/muselink/internal/config"
	"github.com/muselink/muselink/internal/database"
	"github.com/muselink/muselink/internal/events"
	"github.com/muselink/muselink/internal/logger"
	"github.com/muselink/muselink/internal/metadata"
	"github.com/muselink/muselink/internal/smb"
)

// Indexer walks a remote share and upserts one Track row per media file.
// Files already present in the catalog are skipped without being opened,
// so a rescan of an unchanged library stays cheap.
type Indexer struct {
	dialer   smb.Dialer
	repo     *database.TrackRepository
	eventBus events.EventBus
	cfg      config.ScannerConfig
	log      hclog.Logger
}

func NewIndexer(dialer smb.Dialer, repo *database.TrackRepository, eventBus events.EventBus, cfg config.ScannerConfig) *Indexer {
	return &Indexer{
		dialer:   dialer,
		repo:     repo,
		eventBus: eventBus,
		cfg:      cfg,
		log:      logger.Named("scanner"),
	}
}

// ScanSource indexes one configured share end to end. The whole walk
// reuses a single SMB session. Per-file failures are counted and the
// scan moves on; only connection-level failures abort it.
func (ix *Indexer) ScanSource(ctx context.Context, source database.ShareSource, endpoint config.ShareEndpoint, state *ScanState) error {
	state.setPhase(PhaseConnecting)
	ix.publish(events.EventScanStarted, "Scan started", source.Name, nil)

	session, err := smb.OpenSession(ctx, ix.dialer, endpoint)
	if err != nil {
		state.setPhase(PhaseFailed)
		state.recordError(err)
		ix.publish(events.EventScanFailed, "Scan failed", source.Name, map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to connect to share %s: %w", source.Name, err)
	}
	defer session.Close()

	known, err := ix.repo.IndexedPaths(source.ID)
	if err != nil {
		state.setPhase(PhaseFailed)
		state.recordError(err)
		return fmt.Errorf("failed to load indexed paths: %w", err)
	}
	ix.log.Info("Starting scan", "source", source.Name, "known_tracks", len(known))

	state.setPhase(PhaseWalking)
	throttle := newMemoryThrottle(ix.cfg.MemoryThreshold,
		time.Duration(ix.cfg.ThrottleSleepMs)*time.Millisecond, ix.cfg.ThrottleCheckSize)

	batch := make([]database.Track, 0, ix.cfg.BatchSize)
	walker := smb.NewWalker()
	walkErr := walker.Walk(ctx, session.Share(), endpoint.RootPath, func(entry smb.FileEntry) error {
		state.fileSeen(entry.Path)
		throttle.maybePause(ctx)

		indexPath := ix.toIndexPath(endpoint, entry.Path)
		if _, ok := known[indexPath]; ok {
			state.fileSkipped()
			return nil
		}

		track, err := ix.buildTrack(session, source.ID, indexPath, entry)
		if err != nil {
			state.recordError(err)
			ix.log.Warn("Failed to index file, continuing", "path", entry.Path, "error", err)
			return nil
		}

		batch = append(batch, *track)
		if len(batch) >= ix.cfg.BatchSize {
			ix.flush(&batch, state, source.Name)
		}
		return nil
	})

	ix.flush(&batch, state, source.Name)

	if walkErr != nil {
		state.setPhase(PhaseFailed)
		state.recordError(walkErr)
		ix.publish(events.EventScanFailed, "Scan failed", source.Name, map[string]interface{}{"error": walkErr.Error()})
		return walkErr
	}

	state.setPhase(PhaseCompleted)
	snap := state.Snapshot()
	ix.log.Info("Scan completed", "source", source.Name,
		"seen", snap.FilesSeen, "indexed", snap.FilesIndexed, "skipped", snap.FilesSkipped, "errors", snap.ErrorCount)
	ix.publish(events.EventScanCompleted, "Scan completed", source.Name, map[string]interface{}{
		"files_seen":    snap.FilesSeen,
		"files_indexed": snap.FilesIndexed,
		"files_skipped": snap.FilesSkipped,
		"errors":        snap.ErrorCount,
	})
	return nil
}

// buildTrack opens the file once, reads its tags and fingerprint, and
// assembles the catalog row. Files that refuse tag parsing still get a
// row with a title derived from the file name.
func (ix *Indexer) buildTrack(session *smb.Session, sourceID uint, indexPath string, entry smb.FileEntry) (*database.Track, error) {
	stream, err := smb.OpenFileStream(session, entry.Path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", entry.Path, err)
	}
	defer stream.Close()

	track := &database.Track{
		SourceID:   sourceID,
		FullPath:   indexPath,
		ParentPath: parentOf(indexPath),
		SizeBytes:  entry.Size,
		Title:      metadata.FallbackTitle(indexPath),
		AddedAt:    time.Now(),
		UpdatedAt:  time.Now(),
	}

	meta, err := metadata.ExtractFromStream(stream)
	if err != nil {
		ix.log.Debug("No readable tags", "path", entry.Path, "error", err)
	} else {
		if meta.Title != "" {
			track.Title = meta.Title
		}
		track.Artist = meta.Artist
		track.Album = meta.Album
		track.Genre = meta.Genre
		track.Year = meta.Year
	}

	hash, err := ix.fingerprint(stream, entry.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to fingerprint %s: %w", entry.Path, err)
	}
	track.ContentHash = hash
	return track, nil
}

// fingerprint hashes the head of the file together with its length.
// Reading whole files over the wire would dominate scan time, and the
// prefix plus size is distinctive enough for duplicate detection.
func (ix *Indexer) fingerprint(stream io.ReadSeeker, size int64) (string, error) {
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	h := sha1.New()
	if _, err := io.CopyN(h, stream, int64(ix.cfg.FingerprintBytes)); err != nil && err != io.EOF {
		return "", err
	}
	fmt.Fprintf(h, ":%d", size)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// flush persists the pending batch. A failed write is logged and the
// batch dropped; losing a handful of rows to a transient database error
// is recoverable on the next scan.
func (ix *Indexer) flush(batch *[]database.Track, state *ScanState, sourceName string) {
	if len(*batch) == 0 {
		return
	}
	n := len(*batch)
	if err := ix.repo.UpsertBatch(*batch); err != nil {
		state.recordError(err)
		ix.log.Error("Failed to persist batch, continuing scan", "count", n, "error", err)
	} else {
		state.fileIndexed(n)
		snap := state.Snapshot()
		ix.publish(events.EventScanProgress, "Scan progress", sourceName, map[string]interface{}{
			"files_seen":    snap.FilesSeen,
			"files_indexed": snap.FilesIndexed,
		})
	}
	*batch = (*batch)[:0]
}

// toIndexPath strips the endpoint root so catalog rows stay stable even
// if the share is later mounted under a different root.
func (ix *Indexer) toIndexPath(endpoint config.ShareEndpoint, protocolPath string) string {
	root := smb.NormalizePath(endpoint.RootPath)
	p := smb.NormalizePath(protocolPath)
	if root == "" {
		return p
	}
	if smb.IsPathMatch(p, root, true) && len(p) > len(root) {
		return p[len(root)+1:]
	}
	return p
}

func parentOf(indexPath string) string {
	dir := path.Dir(indexPath)
	if dir == "." {
		return ""
	}
	return dir
}

func (ix *Indexer) publish(eventType events.EventType, title, source string, data map[string]interface{}) {
	if ix.eventBus == nil {
		return
	}
	evt := events.NewSystemEvent(eventType, title, source)
	if data != nil {
		evt.Data = data
	}
	ix.eventBus.PublishAsync(evt)
}
