// Package productivity implements the relationship-manager assistant:
// meeting scheduling, note capture, call recording and transcript
// summarization. The scheduler and call services return mocked payloads
// shaped like the real integrations (Microsoft Graph, a recording provider)
// so the web UI runs end to end without external dependencies.
package productivity

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pii-toolkit/internal/logger"
)

func newID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Meeting is one scheduled client meeting with its captured artifacts.
type Meeting struct {
	EventID         string    `json:"eventId"`
	RMName          string    `json:"rmName"`
	ClientName      string    `json:"clientName"`
	Objective       string    `json:"objective"`
	ScheduledFor    time.Time `json:"scheduledFor"`
	DurationMinutes int       `json:"durationMinutes"`
	Notes           []string  `json:"notes,omitempty"`
	Summary         string    `json:"summary,omitempty"`
	RecordingID     string    `json:"recordingId,omitempty"`
}

// NewMeeting creates a meeting with a fresh event ID.
func NewMeeting(rmName, clientName, objective string, scheduledFor time.Time, durationMinutes int) *Meeting {
	return &Meeting{
		EventID:         newID("evt"),
		RMName:          rmName,
		ClientName:      clientName,
		Objective:       objective,
		ScheduledFor:    scheduledFor,
		DurationMinutes: durationMinutes,
	}
}

// ScheduleResult mirrors the calendar provider's event creation response.
type ScheduleResult struct {
	Status          string    `json:"status"`
	GraphEventID    string    `json:"graph_event_id"`
	JoinURL         string    `json:"join_url"`
	RMName          string    `json:"rm_name"`
	ClientName      string    `json:"client_name"`
	ScheduledFor    time.Time `json:"scheduled_for"`
	DurationMinutes int       `json:"duration_minutes"`
	Objective       string    `json:"objective"`
}

// Scheduler stands in for Microsoft Graph meeting orchestration.
// ScheduleMeeting returns a payload shaped like a Graph event response.
type Scheduler struct {
	log *logger.Logger
}

// NewScheduler returns a Scheduler. log may be nil.
func NewScheduler(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.New("scheduler", "info")
	}
	return &Scheduler{log: log}
}

// ScheduleMeeting pretends to create a calendar invitation for the meeting.
func (s *Scheduler) ScheduleMeeting(m *Meeting) ScheduleResult {
	res := ScheduleResult{
		Status:          "success",
		GraphEventID:    newID("graph"),
		JoinURL:         "https://teams.microsoft.com/l/meetup-join/placeholder",
		RMName:          m.RMName,
		ClientName:      m.ClientName,
		ScheduledFor:    m.ScheduledFor,
		DurationMinutes: m.DurationMinutes,
		Objective:       m.Objective,
	}
	s.log.Infof("schedule", "meeting %s for %s with %s at %s",
		m.EventID, m.RMName, m.ClientName, m.ScheduledFor.Format(time.RFC3339))
	return res
}

// RecordingResult describes a started recording session.
type RecordingResult struct {
	Status      string `json:"status"`
	RecordingID string `json:"recording_id"`
	Details     string `json:"details"`
}

// TranscriptResult describes a stored transcript.
type TranscriptResult struct {
	Status      string `json:"status"`
	StorageID   string `json:"storage_id"`
	RecordingID string `json:"recording_id"`
	Characters  int    `json:"characters"`
}

// CallAutomation stands in for a call recording provider.
type CallAutomation struct{}

// StartRecording simulates starting a recording session for the meeting and
// attaches the recording ID to it.
func (CallAutomation) StartRecording(m *Meeting) RecordingResult {
	m.RecordingID = newID("rec")
	return RecordingResult{
		Status:      "recording_started",
		RecordingID: m.RecordingID,
		Details:     "Recording service invoked (placeholder).",
	}
}

// IngestTranscript simulates pushing the raw transcript to storage.
func (CallAutomation) IngestTranscript(m *Meeting, transcript string) TranscriptResult {
	return TranscriptResult{
		Status:      "stored",
		StorageID:   newID("trn"),
		RecordingID: m.RecordingID,
		Characters:  len(transcript),
	}
}

// TranscriptSummary is the output of transcript processing.
type TranscriptSummary struct {
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items"`
}

// TranscriptProcessor produces a synthetic summary: the first non-empty line
// becomes the summary and lines opening with "action", "follow up" or "task"
// become action items.
type TranscriptProcessor struct{}

// Summarize extracts a summary and action items from a raw transcript.
func (TranscriptProcessor) Summarize(transcript string) TranscriptSummary {
	if strings.TrimSpace(transcript) == "" {
		return TranscriptSummary{Summary: "No transcript provided.", ActionItems: []string{}}
	}

	var sentences []string
	for _, line := range strings.Split(transcript, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			sentences = append(sentences, line)
		}
	}

	summary := transcript
	if len(summary) > 140 {
		summary = summary[:140]
	}
	if len(sentences) > 0 {
		summary = sentences[0]
	}

	var items []string
	for _, s := range sentences {
		lower := strings.ToLower(s)
		if strings.HasPrefix(lower, "action") || strings.HasPrefix(lower, "follow up") || strings.HasPrefix(lower, "task") {
			items = append(items, s)
		}
	}
	return TranscriptSummary{Summary: summary, ActionItems: items}
}

// Render formats the summary payload the way the dashboard attaches it to a
// meeting: the summary line followed by a bulleted action item list.
func (ts TranscriptSummary) Render() string {
	lines := []string{ts.Summary}
	if len(ts.ActionItems) > 0 {
		lines = append(lines, "\nAction items:")
		for _, item := range ts.ActionItems {
			lines = append(lines, "- "+item)
		}
	}
	return strings.Join(lines, "\n")
}

// clone returns a deep copy so readers never share state with the stored
// meeting.
func (m *Meeting) clone() *Meeting {
	c := *m
	c.Notes = append([]string(nil), m.Notes...)
	return &c
}

// Repository is an in-memory meeting store, safe for concurrent use.
// Accessors return copies; all mutation goes through locked methods.
type Repository struct {
	mu       sync.RWMutex
	meetings map[string]*Meeting
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{meetings: make(map[string]*Meeting)}
}

// Add stores a copy of the meeting, keyed by its event ID.
func (r *Repository) Add(m *Meeting) *Meeting {
	r.mu.Lock()
	r.meetings[m.EventID] = m.clone()
	r.mu.Unlock()
	return m
}

// Get returns a copy of the meeting with the given event ID, or nil.
func (r *Repository) Get(eventID string) *Meeting {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.meetings[eventID]
	if !ok {
		return nil
	}
	return m.clone()
}

// ListOrdered returns copies of all meetings sorted by scheduled time.
func (r *Repository) ListOrdered() []*Meeting {
	r.mu.RLock()
	out := make([]*Meeting, 0, len(r.meetings))
	for _, m := range r.meetings {
		out = append(out, m.clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledFor.Before(out[j].ScheduledFor)
	})
	return out
}

// AppendNote attaches a note to the meeting. Returns false when the meeting
// is unknown.
func (r *Repository) AppendNote(eventID, note string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[eventID]
	if !ok {
		return false
	}
	m.Notes = append(m.Notes, note)
	return true
}

// SetRecordingID attaches a recording session ID to the meeting. Returns
// false when the meeting is unknown.
func (r *Repository) SetRecordingID(eventID, recordingID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[eventID]
	if !ok {
		return false
	}
	m.RecordingID = recordingID
	return true
}

// UpdateSummary replaces the meeting's summary. Returns false when the
// meeting is unknown.
func (r *Repository) UpdateSummary(eventID, summary string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meetings[eventID]
	if !ok {
		return false
	}
	m.Summary = summary
	return true
}

// SeedDemo inserts an illustrative meeting when the repository is empty.
func (r *Repository) SeedDemo() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.meetings) > 0 {
		return
	}
	m := &Meeting{
		EventID:         newID("evt"),
		RMName:          "Anita Gomez",
		ClientName:      "Northwind Trading",
		Objective:       "Portfolio review and Q1 expansion plan",
		ScheduledFor:    time.Now(),
		DurationMinutes: 45,
	}
	r.meetings[m.EventID] = m
}
