// Package webui serves the demonstration front-end: the anonymizer page,
// the relationship-manager dashboard and the summarization page.
package webui

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"pii-toolkit/internal/anonymize"
	"pii-toolkit/internal/auditstore"
	"pii-toolkit/internal/document"
	"pii-toolkit/internal/logger"
	"pii-toolkit/internal/productivity"
	"pii-toolkit/internal/summarize"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

const defaultMaxUpload = 5 << 20

// Server holds the handlers behind the web front-end. All pages share one
// anonymization engine and one meeting repository.
type Server struct {
	engine     *anonymize.Engine
	audits     *auditstore.Store
	summarizer *summarize.Client
	meetings   *productivity.Repository
	scheduler  *productivity.Scheduler
	automation productivity.CallAutomation
	processor  productivity.TranscriptProcessor
	log        *logger.Logger
	maxUpload  int64
	tmpl       *template.Template
}

// NewServer wires the front-end against the given engine and services.
// audits may be nil to disable run persistence; log may be nil.
func NewServer(engine *anonymize.Engine, audits *auditstore.Store, summarizer *summarize.Client, meetings *productivity.Repository, log *logger.Logger, maxUpload int64) *Server {
	if log == nil {
		log = logger.New("webui", "info")
	}
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	if meetings == nil {
		meetings = productivity.NewRepository()
	}
	if summarizer == nil {
		summarizer = summarize.New("", "", "")
	}
	return &Server{
		engine:     engine,
		audits:     audits,
		summarizer: summarizer,
		meetings:   meetings,
		scheduler:  productivity.NewScheduler(log),
		log:        log,
		maxUpload:  maxUpload,
		tmpl:       template.Must(template.ParseFS(templatesFS, "templates/*.tmpl")),
	}
}

// Handler returns the routed front-end.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/", s.handleIndex)
	r.Post("/api/anonymize", s.handleAPIAnonymize)
	r.Get("/api/runs", s.handleRuns)
	r.Get("/api/runs/{id}", s.handleRunRecords)

	r.Get("/productivity", s.handleDashboard)
	r.Post("/productivity/schedule", s.handleSchedule)
	r.Post("/productivity/notes", s.handleNotes)
	r.Post("/productivity/transcripts", s.handleTranscripts)

	r.Get("/summarize", s.handleSummarizePage)
	r.Post("/summarize", s.handleSummarizePage)

	return r
}

type indexPage struct {
	OriginalText   string
	AnonymizedText string
	DetectedType   string
	Mappings       []anonymize.AuditRecord
	Error          string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page := indexPage{}

	if r.Method == http.MethodPost {
		text, filename, err := s.sourceText(w, r)
		page.OriginalText = text
		switch {
		case err != nil:
			page.Error = err.Error()
		case strings.TrimSpace(text) == "":
			page.Error = "Please provide a file or paste content to anonymize."
		default:
			format := document.DetectFormat(filename, []byte(text))
			page.DetectedType = string(format)
			res, err := s.engine.Anonymize(r.Context(), []byte(text), format)
			if err != nil {
				page.Error = fmt.Sprintf("Failed to anonymize document: %v", err)
			} else {
				page.AnonymizedText = string(res.Output)
				page.Mappings = res.Audit
				s.recordRun(res, "web")
			}
		}
	}

	s.render(w, "index.html.tmpl", page)
}

// sourceText extracts the document to anonymize from either the uploaded
// file or the pasted text field. The uploaded file wins when both are set.
func (s *Server) sourceText(w http.ResponseWriter, r *http.Request) (text, filename string, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		if err := r.ParseForm(); err != nil {
			return "", "", fmt.Errorf("upload too large or malformed")
		}
	}

	if file, header, err := r.FormFile("document"); err == nil {
		defer file.Close() //nolint:errcheck
		raw, err := io.ReadAll(file)
		if err != nil {
			return "", "", fmt.Errorf("read upload: %v", err)
		}
		return string(raw), header.Filename, nil
	}

	return strings.TrimSpace(r.FormValue("text_input")), "", nil
}

type anonymizeRequest struct {
	Content string `json:"content"`
	Format  string `json:"format"`
}

type anonymizeResponse struct {
	RunID    string            `json:"run_id"`
	Format   string            `json:"format"`
	Output   string            `json:"output"`
	Degraded bool              `json:"degraded"`
	Mappings map[string]string `json:"mappings"`
}

func (s *Server) handleAPIAnonymize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	var req anonymizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	format := document.Format(req.Format)
	switch format {
	case document.FormatJSON, document.FormatXML, document.FormatText:
	case "":
		format = document.DetectFormat("", []byte(req.Content))
	default:
		writeError(w, http.StatusBadRequest, "format must be json, xml or text")
		return
	}

	res, err := s.engine.Anonymize(r.Context(), []byte(req.Content), format)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, anonymizeResponse{
		RunID:    s.recordRun(res, "api"),
		Format:   string(res.Format),
		Output:   string(res.Output),
		Degraded: res.Degraded,
		Mappings: res.AuditMap(),
	})
}

// recordRun persists the run's audit trail and returns its run ID.
func (s *Server) recordRun(res *anonymize.Result, source string) string {
	id := uuid.NewString()
	if s.audits != nil {
		s.audits.RecordRun(&auditstore.Run{
			ID:       id,
			Format:   string(res.Format),
			Source:   source,
			Degraded: res.Degraded,
			Records:  res.Audit,
		})
	}
	return id
}

const defaultRunListLimit = 50

// handleRuns lists recent anonymization runs from the audit store.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.audits == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store disabled")
		return
	}

	limit := defaultRunListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.audits.Recent(r.Context(), limit)
	if err != nil {
		s.log.Errorf("runs", "list runs: %v", err)
		writeError(w, http.StatusInternalServerError, "query run history")
		return
	}
	if runs == nil {
		runs = []auditstore.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// handleRunRecords returns one run's summary with its full audit trail.
func (s *Server) handleRunRecords(w http.ResponseWriter, r *http.Request) {
	if s.audits == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store disabled")
		return
	}

	runID := chi.URLParam(r, "id")
	run, err := s.audits.Run(r.Context(), runID)
	if err != nil {
		s.log.Errorf("runs", "lookup run %s: %v", runID, err)
		writeError(w, http.StatusInternalServerError, "query run history")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}

	records, err := s.audits.Records(r.Context(), runID)
	if err != nil {
		s.log.Errorf("runs", "records for %s: %v", runID, err)
		writeError(w, http.StatusInternalServerError, "query run history")
		return
	}
	if records == nil {
		records = []anonymize.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, struct {
		Run     auditstore.RunSummary   `json:"run"`
		Records []anonymize.AuditRecord `json:"records"`
	}{Run: *run, Records: records})
}

type dashboardPage struct {
	Meetings []*productivity.Meeting
	Message  string
	Error    string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.render(w, "productivity.html.tmpl", dashboardPage{
		Meetings: s.meetings.ListOrdered(),
		Message:  r.URL.Query().Get("msg"),
		Error:    r.URL.Query().Get("err"),
	})
}

// scheduledForLayouts covers datetime-local inputs with and without seconds.
var scheduledForLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05"}

func parseScheduledFor(value string) (time.Time, error) {
	for _, layout := range scheduledForLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid meeting time %q", value)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.redirectDashboard(w, r, "err", "Missing or invalid scheduling details.")
		return
	}

	rmName := strings.TrimSpace(r.FormValue("rm_name"))
	clientName := strings.TrimSpace(r.FormValue("client_name"))
	objective := strings.TrimSpace(r.FormValue("objective"))
	scheduledForStr := strings.TrimSpace(r.FormValue("scheduled_for"))
	if rmName == "" || clientName == "" || scheduledForStr == "" {
		s.redirectDashboard(w, r, "err", "Relationship Manager, client, and time are required.")
		return
	}

	scheduledFor, err := parseScheduledFor(scheduledForStr)
	if err != nil {
		s.redirectDashboard(w, r, "err", "Missing or invalid scheduling details.")
		return
	}

	durationMinutes := 30
	if v := r.FormValue("duration_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.redirectDashboard(w, r, "err", "Missing or invalid scheduling details.")
			return
		}
		durationMinutes = n
	}

	meeting := productivity.NewMeeting(rmName, clientName, objective, scheduledFor, durationMinutes)
	event := s.scheduler.ScheduleMeeting(meeting)
	s.meetings.Add(meeting)

	s.redirectDashboard(w, r, "msg",
		fmt.Sprintf("Meeting scheduled via Microsoft Graph placeholder (event %s).", event.GraphEventID))
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.redirectDashboard(w, r, "err", "Select a meeting and add a note.")
		return
	}

	eventID := strings.TrimSpace(r.FormValue("event_id"))
	note := strings.TrimSpace(r.FormValue("note"))
	if eventID == "" || note == "" {
		s.redirectDashboard(w, r, "err", "Select a meeting and add a note.")
		return
	}
	if !s.meetings.AppendNote(eventID, note) {
		s.redirectDashboard(w, r, "err", "Unknown meeting.")
		return
	}
	s.redirectDashboard(w, r, "msg", "Note captured for the meeting.")
}

func (s *Server) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.redirectDashboard(w, r, "err", "Select a valid meeting before uploading a transcript.")
		return
	}

	eventID := strings.TrimSpace(r.FormValue("event_id_transcript"))
	transcript := r.FormValue("transcript")

	meeting := s.meetings.Get(eventID)
	if meeting == nil {
		s.redirectDashboard(w, r, "err", "Select a valid meeting before uploading a transcript.")
		return
	}

	rec := s.automation.StartRecording(meeting)
	s.meetings.SetRecordingID(eventID, rec.RecordingID)
	s.automation.IngestTranscript(meeting, transcript)
	summary := s.processor.Summarize(transcript)
	s.meetings.UpdateSummary(eventID, summary.Render())

	s.redirectDashboard(w, r, "msg", "Transcript processed and summary attached.")
}

func (s *Server) redirectDashboard(w http.ResponseWriter, r *http.Request, key, msg string) {
	q := url.Values{key: {msg}}
	http.Redirect(w, r, "/productivity?"+q.Encode(), http.StatusSeeOther)
}

type summarizePage struct {
	OriginalText string
	SummaryText  string
	Deployed     bool
	Error        string
}

func (s *Server) handleSummarizePage(w http.ResponseWriter, r *http.Request) {
	page := summarizePage{Deployed: s.summarizer.Deployed()}

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			page.OriginalText = strings.TrimSpace(r.FormValue("text_input"))
		}
		summary, err := s.summarizer.Summarize(r.Context(), page.OriginalText)
		switch {
		case errors.Is(err, summarize.ErrEmptyInput):
			page.Error = "Provide text to summarise."
		case err != nil:
			page.Error = fmt.Sprintf("Summarization failed: %v", err)
		default:
			page.SummaryText = summary
		}
	}

	s.render(w, "summarize.html.tmpl", page)
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.log.Errorf("render", "template %s: %v", name, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
