package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"canforge/engine"
	"canforge/layout"
	"canforge/message"
)

// FrameRequest is the JSON request for PUT /api/frame.
type FrameRequest struct {
	Frame string `json:"frame"`
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (h *handlers) pathIndex(w http.ResponseWriter, r *http.Request, what string) (int, bool) {
	index, err := strconv.Atoi(pathParam(r, "index"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, what+" index must be an integer")
		return 0, false
	}
	return index, true
}

// --- Project ---

func (h *handlers) handleSetFrame(w http.ResponseWriter, r *http.Request) {
	var req FrameRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.SetFrame(req.Frame); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "updated"})
}

func (h *handlers) handleLoadPreset(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.LoadPreset(pathParam(r, "name")); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "loaded"})
}

func (h *handlers) handleClearGenerated(w http.ResponseWriter, r *http.Request) {
	h.engine.ClearGenerated()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handlePublish(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), publishTimeout)
	defer cancel()

	report, err := h.engine.Publish(ctx)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if report.Failed() == len(report.Results) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(report)
		return
	}
	h.writeJSON(w, report)
}

// --- Fields ---

func (h *handlers) handleCreateField(w http.ResponseWriter, r *http.Request) {
	var req engine.FieldCreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Name = pathParam(r, "name")
	if err := h.engine.CreateField(req); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, map[string]string{"status": "created"})
}

func (h *handlers) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	var req engine.FieldUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.UpdateField(pathParam(r, "name"), req); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "updated"})
}

func (h *handlers) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteField(pathParam(r, "name")); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "deleted"})
}

func (h *handlers) handleArrangeFields(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ArrangeFields(); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, h.engine.ListFields())
}

func (h *handlers) handleAddSegment(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	if err := h.engine.AddSegment(name); err != nil {
		h.writeEngineError(w, err)
		return
	}
	f, err := h.engine.GetField(name)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, f)
}

func (h *handlers) handleUpdateSegment(w http.ResponseWriter, r *http.Request) {
	index, ok := h.pathIndex(w, r, "segment")
	if !ok {
		return
	}
	var seg layout.Segment
	if !h.decode(w, r, &seg) {
		return
	}
	if err := h.engine.UpdateSegment(pathParam(r, "name"), index, seg); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "updated"})
}

func (h *handlers) handleRemoveSegment(w http.ResponseWriter, r *http.Request) {
	index, ok := h.pathIndex(w, r, "segment")
	if !ok {
		return
	}
	if err := h.engine.RemoveSegment(pathParam(r, "name"), index); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "deleted"})
}

// --- Messages ---

func (h *handlers) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req engine.MessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.CreateMessage(pathParam(r, "name"), req); err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, map[string]string{"status": "created"})
}

func (h *handlers) handleUpdateMessage(w http.ResponseWriter, r *http.Request) {
	var req engine.MessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.engine.UpdateMessage(pathParam(r, "name"), req); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "updated"})
}

func (h *handlers) handleAddSignal(w http.ResponseWriter, r *http.Request) {
	var sig *message.Signal
	if r.ContentLength != 0 {
		sig = &message.Signal{}
		if !h.decode(w, r, sig) {
			return
		}
	}
	added, err := h.engine.AddSignal(pathParam(r, "name"), sig)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	h.writeJSON(w, added)
}

func (h *handlers) handleRemoveSignal(w http.ResponseWriter, r *http.Request) {
	index, ok := h.pathIndex(w, r, "signal")
	if !ok {
		return
	}
	if err := h.engine.RemoveSignal(pathParam(r, "name"), index); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "deleted"})
}

func (h *handlers) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteMessage(pathParam(r, "name")); err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "deleted"})
}

// --- Sinks ---

func (h *handlers) handleStartSink(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.StartSink(pathParam(r, "kind"), pathParam(r, "name")); err != nil {
		h.writeSinkError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "started"})
}

func (h *handlers) handleStopSink(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.StopSink(pathParam(r, "kind"), pathParam(r, "name")); err != nil {
		h.writeSinkError(w, err)
		return
	}
	h.writeJSON(w, map[string]string{"status": "stopped"})
}

// writeSinkError reports connection failures as 502 rather than 500.
func (h *handlers) writeSinkError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrNotFound) || errors.Is(err, engine.ErrInvalidInput) {
		h.writeEngineError(w, err)
		return
	}
	h.writeError(w, http.StatusBadGateway, err.Error())
}
