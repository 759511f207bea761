// Package events provides the in-process event bus used for scan, job, and
// playback lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	// Scan events
	EventScanStarted   EventType = "scan.started"
	EventScanProgress  EventType = "scan.progress"
	EventScanCompleted EventType = "scan.completed"
	EventScanFailed    EventType = "scan.failed"

	// Job events
	EventJobQueued    EventType = "job.queued"
	EventJobProgress  EventType = "job.progress"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"

	// Playback events
	EventTranscodeStarted  EventType = "transcode.started"
	EventTranscodeFinished EventType = "transcode.finished"

	// General events
	EventError EventType = "error"
	EventInfo  EventType = "info"
)

// Event represents a system event
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventHandler represents a function that handles events
type EventHandler func(event Event)

// EventFilter restricts a subscription to certain event types. An empty
// filter matches everything.
type EventFilter struct {
	Types []EventType `json:"types,omitempty"`
}

// Subscription represents an event subscription
type Subscription struct {
	ID      string       `json:"id"`
	Filter  EventFilter  `json:"filter"`
	Handler EventHandler `json:"-"`
	Created time.Time    `json:"created"`
}

// NewSystemEvent creates an event originating from the system itself
func NewSystemEvent(eventType EventType, title, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    "system",
		Title:     title,
		Message:   message,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now(),
	}
}

// Matches reports whether the event passes the filter
func (f EventFilter) Matches(event Event) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if event.Type == t {
			return true
		}
	}
	return false
}
