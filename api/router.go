// Package api serves a project over REST: read-only views of the layout,
// validation, previews, generation runs and the DBC export, plus the mutation
// endpoints behind basic auth.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"canforge/batch"
	"canforge/engine"
	"canforge/layout"
	"canforge/logging"
)

// publishTimeout bounds a POST /publish across all sinks.
const publishTimeout = 10 * time.Second

// ProjectResponse is the JSON response for GET /api/.
type ProjectResponse struct {
	Name      string        `json:"name"`
	Frame     layout.Frame  `json:"frame"`
	Width     uint          `json:"width"`
	Fields    int           `json:"fields"`
	Messages  int           `json:"messages"`
	Presets   []string      `json:"presets"`
	Summary   batch.Summary `json:"summary"`
	Generated bool          `json:"generated"`
}

// GeneratedResponse is the JSON response for GET /api/generated.
type GeneratedResponse struct {
	GeneratedAt time.Time `json:"generated_at"`
	*batch.Result
}

// PatternRequest is the JSON request for POST /api/pattern/validate.
type PatternRequest struct {
	Pattern string `json:"pattern"`
}

type handlers struct {
	engine *engine.Engine
	hub    *eventHub
	subID  engine.SubscriberID
}

// NewRouter creates a chi router with all API routes. The returned cleanup
// function stops the event stream and must be called on shutdown.
func NewRouter(eng *engine.Engine) (chi.Router, func()) {
	h := &handlers{
		engine: eng,
		hub:    newEventHub(),
	}
	cleanup := h.setupSSE()

	r := chi.NewRouter()

	r.Get("/", h.handleProject)
	r.Get("/fields", h.handleFieldList)
	r.Get("/fields/{name}", h.handleFieldDetails)
	r.Get("/messages", h.handleMessageList)
	r.Get("/messages/{name}", h.handleMessageDetails)
	r.Get("/presets", h.handlePresetList)
	r.Get("/validate", h.handleValidate)
	r.Get("/summary", h.handleSummary)
	r.Get("/preview", h.handlePreview)
	r.Post("/pattern/validate", h.handlePatternValidate)
	r.Get("/generated", h.handleGenerated)
	r.Get("/export", h.handleExport)
	r.Get("/lint", h.handleLint)
	r.Get("/sinks", h.handleSinkList)
	r.Get("/events", h.handleSSE)

	// Generation only replaces the in-memory result, so it stays open along
	// with the other reads.
	r.Post("/generate", h.handleGenerate)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)

		r.Post("/publish", h.handlePublish)
		r.Delete("/generated", h.handleClearGenerated)

		r.Put("/frame", h.handleSetFrame)
		r.Post("/presets/{name}", h.handleLoadPreset)

		r.Post("/fields/arrange", h.handleArrangeFields)
		r.Post("/fields/{name}", h.handleCreateField)
		r.Put("/fields/{name}", h.handleUpdateField)
		r.Delete("/fields/{name}", h.handleDeleteField)
		r.Post("/fields/{name}/segments", h.handleAddSegment)
		r.Put("/fields/{name}/segments/{index}", h.handleUpdateSegment)
		r.Delete("/fields/{name}/segments/{index}", h.handleRemoveSegment)

		r.Post("/messages/{name}", h.handleCreateMessage)
		r.Put("/messages/{name}", h.handleUpdateMessage)
		r.Delete("/messages/{name}", h.handleDeleteMessage)
		r.Post("/messages/{name}/signals", h.handleAddSignal)
		r.Delete("/messages/{name}/signals/{index}", h.handleRemoveSignal)

		r.Post("/sinks/{kind}/{name}/start", h.handleStartSink)
		r.Post("/sinks/{kind}/{name}/stop", h.handleStopSink)
	})

	return r, cleanup
}

func (h *handlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *handlers) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeEngineError maps engine and generation errors to HTTP status codes.
func (h *handlers) writeEngineError(w http.ResponseWriter, err error) {
	var warning *batch.SizeWarning
	var conflicts *batch.ConflictError

	switch {
	case errors.As(err, &warning):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":            err.Error(),
			"confirm_required": true,
			"total":            warning.Total,
			"threshold":        warning.Threshold,
		})
	case errors.As(err, &conflicts):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":      err.Error(),
			"violations": conflicts.Violations,
		})
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, engine.ErrNothingGenerated):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrAlreadyExists):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrInvalidInput),
		errors.Is(err, batch.ErrNoTemplates),
		errors.Is(err, batch.ErrNoBatchFields),
		errors.Is(err, batch.ErrInvalidPattern),
		errors.Is(err, batch.ErrInvalidTemplate),
		errors.Is(err, batch.ErrInvalidFrame),
		errors.Is(err, batch.ErrTooLarge):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrNoSinks):
		h.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logging.DebugError(logging.CatAPI, "request", err)
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathParam(r *http.Request, key string) string {
	v, err := url.PathUnescape(chi.URLParam(r, key))
	if err != nil {
		return chi.URLParam(r, key)
	}
	return v
}

func (h *handlers) handleProject(w http.ResponseWriter, r *http.Request) {
	cfg := h.engine.GetConfig()
	cfg.Lock()
	resp := ProjectResponse{
		Name:     cfg.ProjectName(),
		Frame:    cfg.Frame,
		Width:    cfg.Frame.Width(),
		Fields:   len(cfg.Fields),
		Messages: len(cfg.Messages),
		Presets:  layout.PresetNames(),
	}
	cfg.Unlock()

	resp.Summary = h.engine.Summary()
	_, _, err := h.engine.Generated()
	resp.Generated = err == nil
	h.writeJSON(w, resp)
}

func (h *handlers) handleFieldList(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.engine.ListFields())
}

func (h *handlers) handleFieldDetails(w http.ResponseWriter, r *http.Request) {
	f, err := h.engine.GetField(pathParam(r, "name"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, f)
}

func (h *handlers) handleMessageList(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.engine.ListMessages())
}

func (h *handlers) handleMessageDetails(w http.ResponseWriter, r *http.Request) {
	m, err := h.engine.GetMessage(pathParam(r, "name"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, m)
}

func (h *handlers) handlePresetList(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, layout.PresetNames())
}

func (h *handlers) handleValidate(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.engine.Validate())
}

func (h *handlers) handleSummary(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.engine.Summary())
}

func (h *handlers) handlePreview(w http.ResponseWriter, r *http.Request) {
	previews, err := h.engine.Preview(r.URL.Query().Get("message"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, previews)
}

func (h *handlers) handlePatternValidate(w http.ResponseWriter, r *http.Request) {
	var req PatternRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	h.writeJSON(w, h.engine.ValidatePattern(req.Pattern))
}

func (h *handlers) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req engine.GenerateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}
	if r.URL.Query().Get("confirm") == "true" {
		req.Confirm = true
	}

	res, err := h.engine.Generate(req)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]interface{}{
		"messages":     len(res.Messages),
		"combinations": res.Combinations,
		"total":        res.Total,
	})
}

func (h *handlers) handleGenerated(w http.ResponseWriter, r *http.Request) {
	res, at, err := h.engine.Generated()
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, GeneratedResponse{GeneratedAt: at, Result: res})
}

func (h *handlers) handleExport(w http.ResponseWriter, r *http.Request) {
	text := h.engine.Export()
	name := h.engine.GetConfig().ProjectName()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if r.URL.Query().Get("download") == "true" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".dbc"))
	}
	w.Write([]byte(text))
}

func (h *handlers) handleLint(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Lint()
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.writeJSON(w, report)
}

func (h *handlers) handleSinkList(w http.ResponseWriter, r *http.Request) {
	sinks := h.engine.ListSinks()
	if sinks == nil {
		sinks = []engine.SinkStatus{}
	}
	h.writeJSON(w, sinks)
}
