package scanner

import (
	"context"
	"fmt"
	"sync"

	"github.com/muselink/muselink/internal/config"
	"github.com/muselink/muselink/internal/database"
)

// Service pairs catalog sources with their configured endpoints and
// keeps one ScanState per source across runs. It satisfies the job
// worker's ScanRunner contract.
type Service struct {
	indexer *Indexer

	mu        sync.Mutex
	sources   map[uint]database.ShareSource
	endpoints map[string]config.ShareEndpoint
	states    map[uint]*ScanState
}

func NewService(indexer *Indexer, sources []database.ShareSource, shares []config.ShareEndpoint) *Service {
	s := &Service{
		indexer: indexer,
		states:  make(map[uint]*ScanState),
	}
	s.UpdateSources(sources, shares)
	return s
}

// UpdateSources replaces the source and endpoint sets. Called at startup
// and again from the config reload watcher after the catalog re-sync; a
// scan already running keeps the endpoint it started with.
func (s *Service) UpdateSources(sources []database.ShareSource, shares []config.ShareEndpoint) {
	byID := make(map[uint]database.ShareSource, len(sources))
	for _, src := range sources {
		byID[src.ID] = src
	}
	byName := make(map[string]config.ShareEndpoint, len(shares))
	for _, share := range shares {
		byName[share.Name] = share
	}

	s.mu.Lock()
	s.sources = byID
	s.endpoints = byName
	s.mu.Unlock()
}

// RunScan indexes one source. The job worker serializes calls, so a
// source never has two concurrent scans.
func (s *Service) RunScan(ctx context.Context, sourceID uint) error {
	s.mu.Lock()
	source, ok := s.sources[sourceID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown source %d", sourceID)
	}
	endpoint, ok := s.endpoints[source.Name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("source %q has no configured endpoint", source.Name)
	}
	return s.indexer.ScanSource(ctx, source, endpoint, s.stateFor(sourceID))
}

// Progress reports the latest scan snapshot for a source. The second
// return value is false when the source was never scanned.
func (s *Service) Progress(sourceID uint) (ScanProgress, bool) {
	s.mu.Lock()
	state, ok := s.states[sourceID]
	s.mu.Unlock()
	if !ok {
		return ScanProgress{}, false
	}
	return state.Snapshot(), true
}

func (s *Service) Sources() []database.ShareSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]database.ShareSource, 0, len(s.sources))
	for _, src := range s.sources {
		out = append(out, src)
	}
	return out
}

func (s *Service) Source(id uint) (database.ShareSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	return src, ok
}

// Endpoint returns the connection settings for a source by name.
func (s *Service) Endpoint(name string) (config.ShareEndpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.endpoints[name]
	return ep, ok
}

// stateFor installs a fresh state for the source so a new scan starts
// with zero counters while older snapshots stay valid for readers.
func (s *Service) stateFor(sourceID uint) *ScanState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := NewScanState(sourceID)
	s.states[sourceID] = state
	return state
}
