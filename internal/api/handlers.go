package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/events"
	"github.com/wesm/vaultsearch/internal/importer"
	"github.com/wesm/vaultsearch/internal/restriction"
	"github.com/wesm/vaultsearch/internal/searchview"
	"github.com/wesm/vaultsearch/internal/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// settleTimeout bounds how long a request with wait=true waits for the view.
const settleTimeout = 10 * time.Second

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// NavigateRequest moves the view. URL wins over the other fields.
type NavigateRequest struct {
	URL   string `json:"url,omitempty"`
	Query string `json:"query"`
	restriction.Params
	Wait bool `json:"wait,omitempty"`
}

// FiltersRequest edits filters as a user would. Absent members are left
// unchanged; ClearDates removes the date range.
type FiltersRequest struct {
	Start      *string `json:"start,omitempty"`
	End        *string `json:"end,omitempty"`
	ClearDates bool    `json:"clear_dates,omitempty"`
	Field      *string `json:"field,omitempty"`
	FolderID   *string `json:"folder_id,omitempty"`
	Wait       bool    `json:"wait,omitempty"`
}

// SelectRequest replaces the result selection.
type SelectRequest struct {
	IDs     []string `json:"ids"`
	Clicked bool     `json:"clicked,omitempty"`
	Multi   bool     `json:"multi,omitempty"`
	Wait    bool     `json:"wait,omitempty"`
}

// AnswerRequest answers the pending prompt. ID 0 answers whatever is pending.
type AnswerRequest struct {
	ID      uint64 `json:"id"`
	Confirm bool   `json:"confirm"`
}

// WriteResponse reports the outcome of an entity write.
type WriteResponse struct {
	Type      entity.Type      `json:"type"`
	ID        entity.ID        `json:"id"`
	Operation entity.Operation `json:"operation"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("Invalid JSON body: %v", err))
		return false
	}
	return true
}

func (s *Server) requireView(w http.ResponseWriter) bool {
	if s.deps.View == nil {
		writeError(w, http.StatusServiceUnavailable, "view_unavailable", "Search view not running")
		return false
	}
	return true
}

// respondView answers with the view state, after it settled when wait is set.
func (s *Server) respondView(w http.ResponseWriter, r *http.Request, status int, wait bool) {
	var (
		snap searchview.Snapshot
		err  error
	)
	if wait {
		ctx, cancel := context.WithTimeout(r.Context(), settleTimeout)
		defer cancel()
		snap, err = s.deps.View.SettledSnapshot(ctx, 0)
		if errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil {
			// Still searching; report what is there.
			snap, err = s.deps.View.Snapshot(r.Context())
		}
	} else {
		snap, err = s.deps.View.Snapshot(r.Context())
	}
	if err != nil {
		s.logger.Error("failed to read view state", "error", err)
		writeError(w, http.StatusServiceUnavailable, "view_unavailable", "Search view not available")
		return
	}
	writeJSON(w, status, snap)
}

// handleNavigate moves the view to a URL or a search.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	if !s.requireView(w) {
		return
	}
	var req NavigateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.URL != "" {
		s.deps.View.Navigate(req.URL)
	} else {
		rs, err := req.Params.Restriction()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_restriction", err.Error())
			return
		}
		s.deps.View.Search(req.Query, rs)
	}
	s.respondView(w, r, http.StatusAccepted, req.Wait)
}

// handleFilters applies filter edits.
func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	if !s.requireView(w) {
		return
	}
	var req FiltersRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var start, end *time.Time
	if !req.ClearDates && (req.Start != nil || req.End != nil) {
		var p restriction.Params
		if req.Start != nil {
			p.Start = *req.Start
		}
		if req.End != nil {
			p.End = *req.End
		}
		rs, err := p.Restriction()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_restriction", err.Error())
			return
		}
		start, end = rs.Start, rs.End
	}
	if req.Field != nil && !restriction.Field(*req.Field).Valid() {
		writeError(w, http.StatusBadRequest, "invalid_restriction", fmt.Sprintf("Unknown field %q", *req.Field))
		return
	}

	if !req.ClearDates && (start != nil || end != nil) && (req.Start == nil || req.End == nil) {
		// Keep the bound the request leaves out.
		cur, err := s.deps.View.Snapshot(r.Context())
		if err != nil {
			s.logger.Error("failed to read view state", "error", err)
			writeError(w, http.StatusServiceUnavailable, "view_unavailable", "Search view not available")
			return
		}
		if req.Start == nil {
			start = cur.Filter.Start
		}
		if req.End == nil {
			end = cur.Filter.End
		}
		if start != nil && end != nil && start.After(*end) {
			writeError(w, http.StatusBadRequest, "invalid_restriction", "Start is after the current end")
			return
		}
	}
	if req.ClearDates || start != nil || end != nil {
		s.deps.View.SetDateRange(start, end)
	}
	if req.Field != nil {
		s.deps.View.SetField(restriction.Field(*req.Field))
	}
	if req.FolderID != nil {
		s.deps.View.SetFolder(*req.FolderID)
	}
	s.respondView(w, r, http.StatusAccepted, req.Wait)
}

// handleSelect replaces the selection.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	if !s.requireView(w) {
		return
	}
	var req SelectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.deps.View.Select(req.IDs, req.Clicked, req.Multi)
	s.respondView(w, r, http.StatusAccepted, req.Wait)
}

// handleView returns the view state.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	if !s.requireView(w) {
		return
	}
	s.respondView(w, r, http.StatusOK, r.URL.Query().Get("wait") == "true")
}

// handleGetPrompt returns the pending confirmation question, if any.
func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prompts == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	prompt, ok := s.deps.Prompts.Pending()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

// handleAnswerPrompt answers the pending confirmation question.
func (s *Server) handleAnswerPrompt(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prompts == nil {
		writeError(w, http.StatusConflict, "no_prompt", "No question is pending")
		return
	}
	var req AnswerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.deps.Prompts.Answer(req.ID, req.Confirm); err != nil {
		if errors.Is(err, searchview.ErrNoPrompt) {
			writeError(w, http.StatusConflict, "no_prompt", err.Error())
			return
		}
		s.logger.Error("failed to answer prompt", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to answer prompt")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"confirmed": req.Confirm})
}

func (s *Server) requireWriter(w http.ResponseWriter) bool {
	if s.deps.Writer == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return false
	}
	return true
}

// writeFailure maps entity write errors to responses.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, importer.ErrMissingID):
		writeError(w, http.StatusBadRequest, "invalid_entity", err.Error())
	case errors.Is(err, importer.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, "invalid_type", err.Error())
	case errors.Is(err, store.ErrUnknownFolder):
		writeError(w, http.StatusUnprocessableEntity, "unknown_folder", err.Error())
	default:
		s.logger.Error("failed to write entity", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to write entity")
	}
}

func writeStatus(op entity.Operation) int {
	if op == entity.OpCreate {
		return http.StatusCreated
	}
	return http.StatusOK
}

// handlePutEntity creates or updates a mail or contact.
func (s *Server) handlePutEntity(w http.ResponseWriter, r *http.Request) {
	if !s.requireWriter(w) {
		return
	}
	typ := entity.Type(chi.URLParam(r, "type"))

	var (
		id  entity.ID
		op  entity.Operation
		err error
	)
	switch typ {
	case entity.TypeMail:
		var m entity.Mail
		if !decodeBody(w, r, &m) {
			return
		}
		id = m.ID
		op, err = s.deps.Writer.PutMail(r.Context(), &m)
	case entity.TypeContact:
		var c entity.Contact
		if !decodeBody(w, r, &c) {
			return
		}
		id = c.ID
		op, err = s.deps.Writer.PutContact(r.Context(), &c)
	default:
		writeError(w, http.StatusBadRequest, "invalid_type", fmt.Sprintf("Unknown entity type %q", typ))
		return
	}
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, writeStatus(op), WriteResponse{Type: typ, ID: id, Operation: op})
}

// handleDeleteEntity deletes a mail or contact.
func (s *Server) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	if !s.requireWriter(w) {
		return
	}
	typ := entity.Type(chi.URLParam(r, "type"))
	id := entity.ID{ListID: chi.URLParam(r, "listID"), ElementID: chi.URLParam(r, "id")}

	deleted, err := s.deps.Writer.Delete(r.Context(), typ, id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("%s %s not found", typ, id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListFolders returns the mail folders.
func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	if s.deps.Folders == nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "Database not available")
		return
	}
	folders, err := s.deps.Folders.ListFolders(r.Context())
	if err != nil {
		s.logger.Error("failed to list folders", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list folders")
		return
	}
	if folders == nil {
		folders = []store.Folder{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"folders": folders})
}

// handlePutFolder creates or updates a folder.
func (s *Server) handlePutFolder(w http.ResponseWriter, r *http.Request) {
	if !s.requireWriter(w) {
		return
	}
	var f store.Folder
	if !decodeBody(w, r, &f) {
		return
	}
	op, err := s.deps.Writer.PutFolder(r.Context(), &f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, writeStatus(op), WriteResponse{Type: entity.TypeFolder, ID: entity.ID{ListID: f.ListID}, Operation: op})
}

// handleDeleteFolder deletes a folder and its mails.
func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	if !s.requireWriter(w) {
		return
	}
	listID := chi.URLParam(r, "listID")
	deleted, err := s.deps.Writer.DeleteFolder(r.Context(), listID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("Folder %s not found", listID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSchedulerStatus returns the scheduler status.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	resp := SchedulerStatusResponse{Jobs: []JobStatus{}}
	if s.deps.Scheduler != nil {
		resp.Running = s.deps.Scheduler.IsRunning()
		if jobs := s.deps.Scheduler.Status(); jobs != nil {
			resp.Jobs = jobs
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTriggerJob runs a scheduled job now.
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	if s.deps.Scheduler == nil || !s.deps.Scheduler.IsScheduled(job) {
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("Job %s is not scheduled", job))
		return
	}
	if err := s.deps.Scheduler.Trigger(job); err != nil {
		writeError(w, http.StatusConflict, "job_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "job": job})
}

// handleSSE streams entity updates as server-sent events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "events_unavailable", "Event stream not available")
		return
	}

	rc := http.NewResponseController(w)
	// Lift the server write timeout for this response.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Warn("clear write deadline", "error", err)
	}

	updates, unsubscribe := s.deps.Events.Subscribe()
	defer unsubscribe()

	events.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("event stream not flushable", "error", err)
		return
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case batch, ok := <-updates:
			if !ok {
				return
			}
			if err := events.WriteSSE(w, batch); err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}
		case now := <-ticker.C:
			if err := events.WriteHeartbeat(w, now); err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}
		}
	}
}
