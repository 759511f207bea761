package scanner

import (
	"sync"
	"time"
)

// ScanPhase describes where a scan currently is in its lifecycle.
type ScanPhase string

const (
	PhaseIdle       ScanPhase = "idle"
	PhaseConnecting ScanPhase = "connecting"
	PhaseWalking    ScanPhase = "walking"
	PhaseCompleted  ScanPhase = "completed"
	PhaseFailed     ScanPhase = "failed"
)

// ScanProgress is a point-in-time snapshot of a running scan.
type ScanProgress struct {
	SourceID     uint      `json:"source_id"`
	Phase        ScanPhase `json:"phase"`
	FilesSeen    int       `json:"files_seen"`
	FilesIndexed int       `json:"files_indexed"`
	FilesSkipped int       `json:"files_skipped"`
	ErrorCount   int       `json:"error_count"`
	CurrentPath  string    `json:"current_path,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// ScanState is the single-writer progress container for one source. The
// scan goroutine mutates it, HTTP handlers read snapshots concurrently.
type ScanState struct {
	mu       sync.RWMutex
	progress ScanProgress
}

func NewScanState(sourceID uint) *ScanState {
	return &ScanState{progress: ScanProgress{SourceID: sourceID, Phase: PhaseIdle}}
}

// Snapshot returns a copy safe to serialize without holding the lock.
func (s *ScanState) Snapshot() ScanProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

func (s *ScanState) setPhase(phase ScanPhase) {
	s.mu.Lock()
	s.progress.Phase = phase
	if phase == PhaseConnecting {
		s.progress.StartedAt = time.Now()
	}
	if phase == PhaseCompleted || phase == PhaseFailed {
		s.progress.FinishedAt = time.Now()
		s.progress.CurrentPath = ""
	}
	s.mu.Unlock()
}

func (s *ScanState) fileSeen(path string) {
	s.mu.Lock()
	s.progress.FilesSeen++
	s.progress.CurrentPath = path
	s.mu.Unlock()
}

func (s *ScanState) fileIndexed(n int) {
	s.mu.Lock()
	s.progress.FilesIndexed += n
	s.mu.Unlock()
}

func (s *ScanState) fileSkipped() {
	s.mu.Lock()
	s.progress.FilesSkipped++
	s.mu.Unlock()
}

func (s *ScanState) recordError(err error) {
	s.mu.Lock()
	s.progress.ErrorCount++
	s.progress.LastError = err.Error()
	s.mu.Unlock()
}
