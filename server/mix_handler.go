package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"ZenMix/core/mixstore"
	"ZenMix/logger"
	"ZenMix/model"

	"github.com/gorilla/mux"
)

// saveMixRequest 保存混音请求体。Tracks 为空时落盘当前会话的实时状态。
type saveMixRequest struct {
	Name     string                `json:"name"`
	IsPublic bool                  `json:"isPublic"`
	Duration float64               `json:"duration"`
	Tracks   []model.TrackSnapshot `json:"tracks"`
}

// SaveMixHandler persists a mix. When the body carries no tracks the
// caller's live mixer session is snapshotted instead.
func (h *APIHandler) SaveMixHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req saveMixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	snapshots := req.Tracks
	duration := req.Duration
	if len(snapshots) == 0 {
		if session := h.sessions.Peek(userID); session != nil {
			snapshots = session.Engine.Snapshots()
			if duration <= 0 {
				duration = float64(session.Engine.MixDuration())
			}
		}
	}

	id, err := h.mixes.Save(r.Context(), snapshots, duration, req.Name, req.IsPublic)
	if err != nil {
		switch {
		case errors.Is(err, mixstore.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, mixstore.ErrEmptyMix):
			http.Error(w, "Cannot save an empty mix", http.StatusBadRequest)
		default:
			logger.Error("mix save failed", logger.ErrorField(err))
			http.Error(w, "Failed to save mix", http.StatusInternalServerError)
		}
		return
	}

	logger.Info("混音保存成功", logger.String("mixId", id), logger.Int64("userId", userID))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"id": id})
}

// ListMixesHandler returns the caller's saved mixes.
func (h *APIHandler) ListMixesHandler(w http.ResponseWriter, r *http.Request) {
	mixes, err := h.mixes.ListMine(r.Context())
	if err != nil {
		logger.Error("mix listing failed", logger.ErrorField(err))
		http.Error(w, "Failed to list mixes", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"mixes": mixes})
}

// GetMixHandler loads a saved mix by id, falling back to the legacy table
// for mixes saved before the schema migration.
func (h *APIHandler) GetMixHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	loaded, err := h.mixes.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, mixstore.ErrNotFound) {
			http.Error(w, "Mix not found", http.StatusNotFound)
			return
		}
		logger.Error("mix load failed", logger.String("mixId", id), logger.ErrorField(err))
		http.Error(w, "Failed to load mix", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loaded)
}

// DeleteMixHandler removes one of the caller's saved mixes.
func (h *APIHandler) DeleteMixHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.mixes.Delete(r.Context(), id); err != nil {
		if errors.Is(err, mixstore.ErrNotFound) {
			http.Error(w, "Mix not found", http.StatusNotFound)
			return
		}
		logger.Error("mix delete failed", logger.String("mixId", id), logger.ErrorField(err))
		http.Error(w, "Failed to delete mix", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
