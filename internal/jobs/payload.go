package jobs

// Payload is the closed set of work item types the queue carries. Each
// variant holds everything its handler needs; handlers never reach back
// into request state.
type Payload interface {
	JobID() string
	Kind() string
}

// ScanJob requests a full index pass over one configured share.
type ScanJob struct {
	ID       string `json:"id"`
	SourceID uint   `json:"source_id"`
}

func (j ScanJob) JobID() string { return j.ID }
func (j ScanJob) Kind() string  { return "scan" }

// AiBatchJob requests AI tag enrichment for a set of tracks.
type AiBatchJob struct {
	ID       string `json:"id"`
	TrackIDs []uint `json:"track_ids"`
	Prompt   string `json:"prompt,omitempty"`
	Model    string `json:"model,omitempty"`
}

func (j AiBatchJob) JobID() string { return j.ID }
func (j AiBatchJob) Kind() string  { return "ai_batch" }

// LyricsBatchJob requests lyrics transcription for a set of tracks.
type LyricsBatchJob struct {
	ID       string `json:"id"`
	TrackIDs []uint `json:"track_ids"`
	Language string `json:"language,omitempty"`
}

func (j LyricsBatchJob) JobID() string { return j.ID }
func (j LyricsBatchJob) Kind() string  { return "lyrics_batch" }
