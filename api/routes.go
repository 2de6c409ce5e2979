// Package api exposes one in-memory stage-gate session over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/DarlingtonDeveloper/StageGate/gate"
	"github.com/DarlingtonDeveloper/StageGate/kpi"
	"github.com/DarlingtonDeveloper/StageGate/score"
	"github.com/DarlingtonDeveloper/StageGate/snapshot"
	"github.com/DarlingtonDeveloper/StageGate/stage"
	"github.com/DarlingtonDeveloper/StageGate/state"
)

// MaxSnapshotBytes bounds uploaded snapshot files.
const MaxSnapshotBytes = 10 << 20

// Event types sent to the notifier.
const (
	EventAnswersRecorded  = "answers_recorded"
	EventStagePassed      = "stage_passed"
	EventStageFailed      = "stage_failed"
	EventStagesReset      = "stages_reset"
	EventSnapshotImported = "snapshot_imported"
	EventUploadCleared    = "upload_cleared"
)

// EventNotifier receives workflow changes, typically the websocket hub.
type EventNotifier interface {
	Notify(eventType string, data interface{})
}

// Handler holds API dependencies.
type Handler struct {
	Machine  *gate.Machine
	Notifier EventNotifier
	// Now is the clock used for export file names.
	Now func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(m *gate.Machine, notifier EventNotifier) *Handler {
	return &Handler{
		Machine:  m,
		Notifier: notifier,
		Now:      time.Now,
	}
}

// RegisterRoutes registers the API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/stages", h.handleStages)
	mux.HandleFunc("/api/stages/", h.handleStage)
	mux.HandleFunc("/api/score", h.handleScore)
	mux.HandleFunc("/api/kpi", h.handleKPI)
	mux.HandleFunc("/api/session", h.handleSession)
	mux.HandleFunc("/api/snapshot", h.handleSnapshot)
	mux.HandleFunc("/api/snapshot/upload", h.handleUpload)
}

// State returns the progress view, used for the websocket initial sync.
func (h *Handler) State() interface{} {
	return h.Machine.Progress()
}

func (h *Handler) notify(eventType string, data interface{}) {
	if h.Notifier != nil {
		h.Notifier.Notify(eventType, data)
	}
}

// ============================================================================
// Stages
// ============================================================================

func (h *Handler) handleStages(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.Machine.Progress())
}

// StageDetail is the response for GET /api/stages/{key}.
type StageDetail struct {
	Stage     gate.StageView   `json:"stage"`
	Questions []stage.Question `json:"questions"`
	Answers   gate.Answers     `json:"answers"`
}

// AnswersRequest is the body of the answers and submit endpoints.
type AnswersRequest struct {
	Answers map[string]interface{} `json:"answers"`
}

// SubmitResponse is the response for POST /api/stages/{key}/submit.
type SubmitResponse struct {
	Result   gate.Result   `json:"result"`
	Progress gate.Progress `json:"progress"`
}

// handleStage routes /api/stages/{key}[/answers|/submit].
func (h *Handler) handleStage(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/stages/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	id := stage.ID(parts[0])
	if id == "" {
		http.Error(w, "Stage required", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.getStage(w, id)
	case len(parts) == 2 && parts[1] == "answers":
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.recordAnswers(w, r, id)
	case len(parts) == 2 && parts[1] == "submit":
		if r.Method != "POST" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.submitStage(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) stageDetail(id stage.ID) (StageDetail, error) {
	answers, err := h.Machine.Answers(id)
	if err != nil {
		return StageDetail{}, err
	}
	progress := h.Machine.Progress()
	return StageDetail{
		Stage:     progress.Stages[stage.Index(id)],
		Questions: stage.Questions(id),
		Answers:   answers,
	}, nil
}

func (h *Handler) getStage(w http.ResponseWriter, id stage.ID) {
	detail, err := h.stageDetail(id)
	if err != nil {
		writeGateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func decodeAnswers(r *http.Request) (gate.Answers, error) {
	var req AnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	out := make(gate.Answers, len(req.Answers))
	for k, v := range req.Answers {
		out[state.Key(k)] = v
	}
	return out, nil
}

func (h *Handler) recordAnswers(w http.ResponseWriter, r *http.Request, id stage.ID) {
	answers, err := decodeAnswers(r)
	if err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Machine.Record(id, answers); err != nil {
		writeGateError(w, err)
		return
	}
	detail, err := h.stageDetail(id)
	if err != nil {
		writeGateError(w, err)
		return
	}
	h.notify(EventAnswersRecorded, map[string]interface{}{"stage": id, "count": len(answers)})
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) submitStage(w http.ResponseWriter, r *http.Request, id stage.ID) {
	answers, err := decodeAnswers(r)
	if err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	res, err := h.Machine.Submit(id, answers)
	if err != nil {
		writeGateError(w, err)
		return
	}
	resp := SubmitResponse{Result: res, Progress: h.Machine.Progress()}

	switch {
	case res.Passed:
		h.notify(EventStagePassed, resp)
	case len(res.Reset) > 0:
		log.Printf("[api] go-live rejected, reset %v", res.Reset)
		h.notify(EventStagesReset, resp)
	default:
		h.notify(EventStageFailed, resp)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ============================================================================
// Score and KPI
// ============================================================================

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in score.Inputs
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	res, err := score.Compute(in)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// KPIResponse is the response for GET /api/kpi.
type KPIResponse struct {
	Available bool         `json:"available"`
	ShowChart bool         `json:"show_chart"`
	Figures   *kpi.Figures `json:"figures,omitempty"`
}

func (h *Handler) handleKPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := KPIResponse{ShowChart: h.Machine.Store().Ephemeral().ShowChart}
	if f, ok := h.Machine.CostBenefit(); ok {
		resp.Available = true
		resp.Figures = &f
	}
	writeJSON(w, http.StatusOK, resp)
}

// SessionResponse is the response for GET /api/session.
type SessionResponse struct {
	SessionID string          `json:"session_id"`
	StartedAt time.Time       `json:"started_at"`
	Ephemeral state.Ephemeral `json:"ephemeral"`
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s := h.Machine.Store()
	writeJSON(w, http.StatusOK, SessionResponse{
		SessionID: s.SessionID(),
		StartedAt: s.StartedAt(),
		Ephemeral: s.Ephemeral(),
	})
}

// ============================================================================
// Snapshots
// ============================================================================

// DecodeErrorResponse is returned when an uploaded snapshot is unreadable.
type DecodeErrorResponse struct {
	Kind    snapshot.Kind `json:"kind"`
	Message string        `json:"message"`
	Line    int           `json:"line,omitempty"`
	Column  int           `json:"column,omitempty"`
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		h.exportSnapshot(w, r)
	case "POST":
		h.importSnapshot(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) exportSnapshot(w http.ResponseWriter, r *http.Request) {
	f, err := snapshot.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	store := h.Machine.Store()
	data, err := snapshot.Encode(snapshot.Export(store), f)
	if err != nil {
		log.Printf("[api] export failed: %v", err)
		http.Error(w, "Export failed", http.StatusInternalServerError)
		return
	}
	var name string
	store.View(func(tx *state.Tx) { name = tx.String(stage.KeyProcessName) })

	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", snapshot.FileName(name, h.Now(), f)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) importSnapshot(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "upload"
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxSnapshotBytes))
	if err != nil {
		http.Error(w, "Snapshot too large or unreadable", http.StatusRequestEntityTooLarge)
		return
	}

	rep, err := snapshot.Import(h.Machine.Store(), name, data)
	if err != nil {
		var de *snapshot.DecodeError
		if errors.As(err, &de) {
			writeJSON(w, http.StatusUnprocessableEntity, DecodeErrorResponse{
				Kind:    de.Kind,
				Message: de.Message(),
				Line:    de.Line,
				Column:  de.Column,
			})
			return
		}
		log.Printf("[api] import failed: %v", err)
		http.Error(w, "Import failed", http.StatusInternalServerError)
		return
	}
	if !rep.Skipped {
		log.Printf("[api] imported %s: %d fields", name, rep.Applied)
		h.notify(EventSnapshotImported, h.Machine.Progress())
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != "DELETE" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snapshot.ClearUpload(h.Machine.Store())
	e := h.Machine.Store().Ephemeral()
	h.notify(EventUploadCleared, map[string]string{"uploader_token": e.UploaderToken})
	writeJSON(w, http.StatusOK, e)
}

// ============================================================================
// Helpers
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeGateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gate.ErrUnknownStage):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, gate.ErrStageLocked):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, gate.ErrForeignKey), errors.Is(err, gate.ErrInvalidAnswer):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("[api] unexpected error: %v", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
