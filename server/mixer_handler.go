package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"ZenMix/core/mixer"
	"ZenMix/core/mixstore"
	"ZenMix/logger"

	"github.com/gorilla/mux"
)

// session resolves the caller's mixer session, creating one on first use.
func (h *APIHandler) session(r *http.Request) (*mixer.Session, error) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		return nil, err
	}
	return h.sessions.Get(userID), nil
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mixer.ErrTrackNotFound):
		http.Error(w, "Track not found", http.StatusNotFound)
	case errors.Is(err, mixer.ErrTrackLimit):
		http.Error(w, "Track limit reached", http.StatusConflict)
	case errors.Is(err, mixer.ErrTrackUnassigned):
		http.Error(w, "Track has no sound assigned", http.StatusBadRequest)
	case errors.Is(err, mixer.ErrNothingToPlay):
		http.Error(w, "No tracks to play", http.StatusBadRequest)
	default:
		logger.Error("mixer operation failed", logger.ErrorField(err))
		http.Error(w, "Mixer operation failed", http.StatusInternalServerError)
	}
}

// GetMixerStateHandler returns the full state of the caller's mixer.
func (h *APIHandler) GetMixerStateHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session.Engine.State())
}

// AddTrackHandler appends an empty track slot.
func (h *APIHandler) AddTrackHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := session.Engine.AddTrack()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"trackId": id})
}

// assignSourceRequest 轨道绑定音源请求体。
type assignSourceRequest struct {
	SoundID int64 `json:"soundId"`
}

// AssignSourceHandler binds a catalog sound to a track slot.
func (h *APIHandler) AssignSourceHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req assignSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sound, err := h.catalog.GetSound(r.Context(), req.SoundID)
	if err != nil {
		logger.Error("sound lookup failed", logger.Int64("soundId", req.SoundID), logger.ErrorField(err))
		http.Error(w, "Failed to look up sound", http.StatusInternalServerError)
		return
	}
	if sound == nil {
		http.Error(w, "Sound not found", http.StatusNotFound)
		return
	}

	src := mixer.Source{
		ID:       sound.ID,
		Name:     sound.Name,
		URL:      sound.URL,
		Duration: sound.Duration,
	}
	if err := session.Engine.AssignSource(mux.Vars(r)["id"], src); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PlayTrackHandler starts playback of one track.
func (h *APIHandler) PlayTrackHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := session.Engine.PlayTrack(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PauseTrackHandler pauses one track, keeping its position.
func (h *APIHandler) PauseTrackHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := session.Engine.PauseTrack(mux.Vars(r)["id"]); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// trackVolumeRequest 轨道音量请求体。
type trackVolumeRequest struct {
	Volume float64 `json:"volume"`
}

// SetTrackVolumeHandler updates a single track's gain.
func (h *APIHandler) SetTrackVolumeHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req trackVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := session.Engine.SetTrackVolume(mux.Vars(r)["id"], req.Volume); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// trackLoopRequest 轨道循环时长请求体。
type trackLoopRequest struct {
	LoopTime int `json:"loopTime"`
}

// SetLoopTimeHandler updates a track's loop window in seconds.
func (h *APIHandler) SetLoopTimeHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req trackLoopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := session.Engine.SetLoopTime(mux.Vars(r)["id"], req.LoopTime); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveTrackHandler unloads a track and clears its slot.
func (h *APIHandler) RemoveTrackHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := session.Engine.RemoveTrack(mux.Vars(r)["id"]); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PlayAllHandler starts the whole mix.
func (h *APIHandler) PlayAllHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := session.Engine.PlayAll(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PauseAllHandler stops the whole mix and resets mix progress.
func (h *APIHandler) PauseAllHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	session.Engine.PauseAll()
	w.WriteHeader(http.StatusNoContent)
}

// masterVolumeRequest 主音量请求体。
type masterVolumeRequest struct {
	Volume float64 `json:"volume"`
}

// SetMasterVolumeHandler updates the master gain.
func (h *APIHandler) SetMasterVolumeHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req masterVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	session.Engine.SetMasterVolume(req.Volume)
	w.WriteHeader(http.StatusNoContent)
}

// UpdateMasterSettingsHandler applies a partial update to the master
// transport (duration, volume, long-duration mode).
func (h *APIHandler) UpdateMasterSettingsHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var patch mixer.MasterSettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	session.Engine.UpdateMasterSettings(patch)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session.Engine.State())
}

// LoadMixHandler loads a saved mix into the caller's live mixer.
func (h *APIHandler) LoadMixHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.session(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	mixID := mux.Vars(r)["mixId"]
	loaded, err := h.mixes.Load(r.Context(), mixID)
	if err != nil {
		if errors.Is(err, mixstore.ErrNotFound) {
			http.Error(w, "Mix not found", http.StatusNotFound)
			return
		}
		logger.Error("mix load failed", logger.String("mixId", mixID), logger.ErrorField(err))
		http.Error(w, "Failed to load mix", http.StatusInternalServerError)
		return
	}

	session.Engine.ApplyMix(loaded.Snapshots, loaded.Duration)
	logger.Info("混音已载入调音台",
		logger.String("mixId", mixID),
		logger.Int("tracks", len(loaded.Snapshots)))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session.Engine.State())
}

// CloseMixerHandler tears down the caller's mixer session.
func (h *APIHandler) CloseMixerHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.sessions.Close(userID)
	w.WriteHeader(http.StatusNoContent)
}
