package jobs

import (
	"sync"
	"time"
)

type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// JobStatus tracks one job's lifecycle and progress counters.
type JobStatus struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	State      JobState  `json:"state"`
	Total      int       `json:"total"`
	Done       int       `json:"done"`
	Failed     int       `json:"failed"`
	Message    string    `json:"message,omitempty"`
	QueuedAt   time.Time `json:"queued_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// StatusTable is the in-memory registry of job statuses. The enqueue
// path writes the initial Queued entry synchronously, before the job is
// visible to the worker, so a status lookup immediately after submit
// never misses.
type StatusTable struct {
	mu       sync.RWMutex
	statuses map[string]*JobStatus
}

func NewStatusTable() *StatusTable {
	return &StatusTable{statuses: make(map[string]*JobStatus)}
}

func (t *StatusTable) Register(id, kind string, total int) {
	t.mu.Lock()
	t.statuses[id] = &JobStatus{
		ID:       id,
		Kind:     kind,
		State:    StateQueued,
		Total:    total,
		QueuedAt: time.Now(),
	}
	t.mu.Unlock()
}

// Get returns a copy; callers can serialize it without racing the worker.
func (t *StatusTable) Get(id string) (JobStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.statuses[id]
	if !ok {
		return JobStatus{}, false
	}
	return *s, true
}

func (t *StatusTable) List() []JobStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]JobStatus, 0, len(t.statuses))
	for _, s := range t.statuses {
		out = append(out, *s)
	}
	return out
}

func (t *StatusTable) markRunning(id string) {
	t.update(id, func(s *JobStatus) {
		s.State = StateRunning
		s.StartedAt = time.Now()
	})
}

func (t *StatusTable) addProgress(id string, done, failed int) {
	t.update(id, func(s *JobStatus) {
		s.Done += done
		s.Failed += failed
	})
}

func (t *StatusTable) markCompleted(id string) {
	t.update(id, func(s *JobStatus) {
		s.State = StateCompleted
		s.FinishedAt = time.Now()
	})
}

func (t *StatusTable) markFailed(id, msg string) {
	t.update(id, func(s *JobStatus) {
		s.State = StateFailed
		s.Message = msg
		s.FinishedAt = time.Now()
	})
}

func (t *StatusTable) update(id string, fn func(*JobStatus)) {
	t.mu.Lock()
	if s, ok := t.statuses[id]; ok {
		fn(s)
	}
	t.mu.Unlock()
}
