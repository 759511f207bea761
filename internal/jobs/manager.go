package jobs

import (
	"github.com/google/uuid"
)

// Manager is the submission front door. Submit methods register the
// Queued status before the job hits the queue, so a status lookup right
// after submit always finds the job.
type Manager struct {
	queue    *Queue
	statuses *StatusTable
}

func NewManager(queue *Queue, statuses *StatusTable) *Manager {
	return &Manager{queue: queue, statuses: statuses}
}

func (m *Manager) SubmitScan(sourceID uint) string {
	job := ScanJob{ID: uuid.NewString(), SourceID: sourceID}
	m.statuses.Register(job.ID, job.Kind(), 1)
	m.queue.Enqueue(job)
	return job.ID
}

func (m *Manager) SubmitAiBatch(trackIDs []uint, prompt, model string) string {
	job := AiBatchJob{ID: uuid.NewString(), TrackIDs: trackIDs, Prompt: prompt, Model: model}
	m.statuses.Register(job.ID, job.Kind(), len(trackIDs))
	m.queue.Enqueue(job)
	return job.ID
}

func (m *Manager) SubmitLyricsBatch(trackIDs []uint, language string) string {
	job := LyricsBatchJob{ID: uuid.NewString(), TrackIDs: trackIDs, Language: language}
	m.statuses.Register(job.ID, job.Kind(), len(trackIDs))
	m.queue.Enqueue(job)
	return job.ID
}

func (m *Manager) Status(id string) (JobStatus, bool) {
	return m.statuses.Get(id)
}

func (m *Manager) All() []JobStatus {
	return m.statuses.List()
}

func (m *Manager) Pending() int {
	return m.queue.Len()
}
