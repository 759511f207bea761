package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/muselink/muselink/internal/config"
	"github.com/muselink/muselink/internal/database"
)

func workerTestRepo(t *testing.T, trackCount int) *database.TrackRepository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&database.ShareSource{}, &database.Track{}))

	repo := database.NewTrackRepository(db)
	for i := 1; i <= trackCount; i++ {
		require.NoError(t, db.Create(&database.Track{
			SourceID: 1,
			FullPath: fmt.Sprintf("t%d.mp3", i),
			Title:    fmt.Sprintf("Track %d", i),
			AddedAt:  time.Now(),
		}).Error)
	}
	return repo
}

type fakeScanRunner struct {
	sourceIDs []uint
	err       error
}

func (f *fakeScanRunner) RunScan(ctx context.Context, sourceID uint) error {
	f.sourceIDs = append(f.sourceIDs, sourceID)
	return f.err
}

type fakeEnricher struct {
	chunkSizes []int
	failFirst  bool
	panics     bool
}

func (f *fakeEnricher) EnrichChunk(ctx context.Context, tracks []database.Track, prompt, model string) ([]TagSuggestion, error) {
	if f.panics {
		panic("enricher exploded")
	}
	f.chunkSizes = append(f.chunkSizes, len(tracks))
	if f.failFirst && len(f.chunkSizes) == 1 {
		return nil, fmt.Errorf("model overloaded")
	}
	out := make([]TagSuggestion, 0, len(tracks))
	for _, tr := range tracks {
		out = append(out, TagSuggestion{TrackID: tr.ID, Genre: "Rock", Year: 1999})
	}
	return out, nil
}

type fakeTranscriber struct {
	calls []uint
	err   error
}

func (f *fakeTranscriber) TranscribeTrack(ctx context.Context, track database.Track, language string) (string, string, error) {
	f.calls = append(f.calls, track.ID)
	if f.err != nil {
		return "", "", f.err
	}
	return fmt.Sprintf("[00:01.00]la la %d", track.ID), "en", nil
}

func testAIConfig() config.AIConfig {
	return config.AIConfig{BatchChunkSize: 2}
}

// drain runs the worker over a pre-closed queue so all queued jobs are
// processed synchronously.
func drain(ctx context.Context, w *Worker, q *Queue) {
	q.Close()
	w.Run(ctx)
}

func TestWorkerAiBatchChunking(t *testing.T) {
	repo := workerTestRepo(t, 5)
	q := NewQueue()
	statuses := NewStatusTable()
	m := NewManager(q, statuses)
	enricher := &fakeEnricher{}
	w := NewWorker(q, statuses, repo, &fakeScanRunner{}, enricher, &fakeTranscriber{}, nil, testAIConfig())

	id := m.SubmitAiBatch([]uint{1, 2, 3, 4, 5}, "custom prompt", "")
	drain(context.Background(), w, q)

	assert.Equal(t, []int{2, 2, 1}, enricher.chunkSizes)

	status, ok := m.Status(id)
	require.True(t, ok)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 5, status.Done)
	assert.Zero(t, status.Failed)

	track, err := repo.GetTrack(3)
	require.NoError(t, err)
	assert.Equal(t, "Rock", track.Genre)
	assert.Equal(t, 1999, track.Year)
}

func TestWorkerAiBatchChunkFailureDoesNotAbortBatch(t *testing.T) {
	repo := workerTestRepo(t, 4)
	q := NewQueue()
	statuses := NewStatusTable()
	m := NewManager(q, statuses)
	enricher := &fakeEnricher{failFirst: true}
	w := NewWorker(q, statuses, repo, &fakeScanRunner{}, enricher, &fakeTranscriber{}, nil, testAIConfig())

	id := m.SubmitAiBatch([]uint{1, 2, 3, 4}, "", "")
	drain(context.Background(), w, q)

	status, _ := m.Status(id)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 2, status.Done)
	assert.Equal(t, 2, status.Failed)
}

func TestWorkerLyricsBatchSerial(t *testing.T) {
	repo := workerTestRepo(t, 3)
	q := NewQueue()
	statuses := NewStatusTable()
	m := NewManager(q, statuses)
	scribe := &fakeTranscriber{}
	w := NewWorker(q, statuses, repo, &fakeScanRunner{}, &fakeEnricher{}, scribe, nil, testAIConfig())

	id := m.SubmitLyricsBatch([]uint{1, 2, 3}, "en")
	drain(context.Background(), w, q)

	assert.Len(t, scribe.calls, 3)

	status, _ := m.Status(id)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, 3, status.Done)

	track, err := repo.GetTrack(2)
	require.NoError(t, err)
	assert.Contains(t, track.Lyrics, "la la 2")
	assert.Equal(t, "en", track.LyricsLang)
}

func TestWorkerPanicFailsJobOnly(t *testing.T) {
	repo := workerTestRepo(t, 2)
	q := NewQueue()
	statuses := NewStatusTable()
	m := NewManager(q, statuses)
	w := NewWorker(q, statuses, repo, &fakeScanRunner{}, &fakeEnricher{panics: true}, &fakeTranscriber{}, nil, testAIConfig())

	bad := m.SubmitAiBatch([]uint{1, 2}, "", "")
	good := m.SubmitLyricsBatch([]uint{1}, "")
	drain(context.Background(), w, q)

	badStatus, _ := m.Status(bad)
	assert.Equal(t, StateFailed, badStatus.State)
	assert.Contains(t, badStatus.Message, "internal error")

	goodStatus, _ := m.Status(good)
	assert.Equal(t, StateCompleted, goodStatus.State)
}

func TestWorkerScanDispatch(t *testing.T) {
	repo := workerTestRepo(t, 0)
	q := NewQueue()
	statuses := NewStatusTable()
	m := NewManager(q, statuses)
	scans := &fakeScanRunner{}
	w := NewWorker(q, statuses, repo, scans, &fakeEnricher{}, &fakeTranscriber{}, nil, testAIConfig())

	id := m.SubmitScan(9)
	drain(context.Background(), w, q)

	assert.Equal(t, []uint{9}, scans.sourceIDs)
	status, _ := m.Status(id)
	assert.Equal(t, StateCompleted, status.State)
}

func TestWorkerScanFailureRecorded(t *testing.T) {
	repo := workerTestRepo(t, 0)
	q := NewQueue()
	statuses := NewStatusTable()
	m := NewManager(q, statuses)
	w := NewWorker(q, statuses, repo, &fakeScanRunner{err: fmt.Errorf("share offline")},
		&fakeEnricher{}, &fakeTranscriber{}, nil, testAIConfig())

	id := m.SubmitScan(1)
	drain(context.Background(), w, q)

	status, _ := m.Status(id)
	assert.Equal(t, StateFailed, status.State)
	assert.Contains(t, status.Message, "share offline")
}

func TestWorkerCancellationFailsPendingJobs(t *testing.T) {
	repo := workerTestRepo(t, 2)
	q := NewQueue()
	statuses := NewStatusTable()
	m := NewManager(q, statuses)
	w := NewWorker(q, statuses, repo, &fakeScanRunner{}, &fakeEnricher{}, &fakeTranscriber{}, nil, testAIConfig())

	id := m.SubmitAiBatch([]uint{1, 2}, "", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	drain(ctx, w, q)

	status, _ := m.Status(id)
	assert.Equal(t, StateFailed, status.State)
}
