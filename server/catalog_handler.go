package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"ZenMix/core/catalog"
	"ZenMix/logger"
	"ZenMix/model"

	"github.com/gorilla/mux"
)

// maxUploadSize 上传文件大小上限 (64MB)
const maxUploadSize = 64 << 20

// GetSoundsHandler lists catalog sounds, optionally filtered by category
// and owner scope. A failing catalog yields 503 with an empty list so the
// client can render its error indicator.
func (h *APIHandler) GetSoundsHandler(w http.ResponseWriter, r *http.Request) {
	f := catalog.Filter{
		Category: r.URL.Query().Get("category"),
		Scope:    catalog.OwnerScope(r.URL.Query().Get("scope")),
	}
	if f.Scope == "" {
		f.Scope = catalog.ScopeAll
	}

	sounds, err := h.catalog.ListSounds(r.Context(), f)
	if err != nil {
		if errors.Is(err, catalog.ErrCatalogUnavailable) {
			logger.Error("catalog listing failed", logger.ErrorField(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"sounds": []interface{}{},
				"error":  "catalog unavailable",
			})
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"sounds": sounds})
}

// GetCategoriesHandler returns the fixed category enumeration plus "all".
func (h *APIHandler) GetCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories := append([]string{model.CategoryAll}, model.Categories...)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"categories": categories})
}

// UploadSoundHandler accepts a multipart audio upload and registers it in
// the catalog.
func (h *APIHandler) UploadSoundHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Audio file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	category := r.FormValue("category")

	var duration float64
	if d := r.FormValue("duration"); d != "" {
		if parsed, err := strconv.ParseFloat(d, 64); err == nil && parsed > 0 {
			duration = parsed
		}
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	sound, err := h.catalog.UploadSound(r.Context(), name, category, header.Filename, file, header.Size, contentType, duration)
	if err != nil {
		logger.Error("sound upload failed", logger.ErrorField(err))
		http.Error(w, "Failed to upload sound", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(sound)
}

// DeleteSoundHandler soft-deletes one of the caller's uploads.
func (h *APIHandler) DeleteSoundHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid sound id", http.StatusBadRequest)
		return
	}

	if err := h.catalog.DeleteSound(r.Context(), id); err != nil {
		logger.Error("sound delete failed", logger.Int64("soundId", id), logger.ErrorField(err))
		http.Error(w, "Failed to delete sound", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
