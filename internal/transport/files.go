package transport

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"file_manager/internal/events"
	"file_manager/internal/storage"
	"file_manager/types"

	"github.com/rs/zerolog/log"
)

const maxJSONBody = 64 << 10

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f, info, err := h.store.OpenRead(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			sendJSON(w, http.StatusNotFound, "File Not Found.", nil)
			return
		}
		sendJSON(w, http.StatusInternalServerError, "File Read Error.", map[string]any{"error": err.Error()})
		return
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Str("filename", name).Msg("Failed to close download")
		}
	}()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModifiedAt, f)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := storage.ValidateName(name); err != nil {
		sendJSON(w, http.StatusBadRequest, "Invalid file name.", map[string]any{"error": err.Error()})
		return
	}

	release, err := h.reserve("delete", name)
	if err != nil {
		sendJSON(w, http.StatusConflict, "File Delete Failed: File is busy.", map[string]any{"error": err.Error()})
		return
	}
	defer release()

	if err = h.store.Delete(name); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			sendJSON(w, http.StatusNotFound, "File Delete Failed: File Not Found.", nil)
			return
		}
		sendJSON(w, http.StatusInternalServerError, "File Delete Failed.", map[string]any{"error": err.Error()})
		return
	}

	log.Info().Str("filename", name).Msg("File deleted")
	h.publish(events.New(types.FileDeleted, map[string]any{"filename": name}))
	sendJSON(w, http.StatusOK, "File deleted successfully.", map[string]any{"filename": name})
}

type renameRequest struct {
	NewName string `json:"newName"`
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	oldName := r.PathValue("name")

	var req renameRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		sendJSON(w, http.StatusBadRequest, "Invalid JSON body.", map[string]any{"error": err.Error()})
		return
	}
	if req.NewName == "" {
		sendJSON(w, http.StatusBadRequest, `Missing "newName" parameter in request body.`, nil)
		return
	}
	for _, name := range []string{oldName, req.NewName} {
		if err := storage.ValidateName(name); err != nil {
			sendJSON(w, http.StatusBadRequest, "Invalid file name.", map[string]any{"error": err.Error()})
			return
		}
	}

	release, err := h.reserve("rename", oldName, req.NewName)
	if err != nil {
		sendJSON(w, http.StatusConflict, "Rename Failed: File is busy.", map[string]any{"error": err.Error()})
		return
	}
	defer release()

	if err = h.store.Rename(oldName, req.NewName); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			sendJSON(w, http.StatusNotFound, "Rename Failed: Old File Not Found.", nil)
		case errors.Is(err, storage.ErrExists):
			sendJSON(w, http.StatusConflict, "Rename Failed: A file with the new name already exists (Overwrite Prevention).", nil)
		default:
			sendJSON(w, http.StatusInternalServerError, "Rename Failed.", map[string]any{"error": err.Error()})
		}
		return
	}

	log.Info().Str("old_name", oldName).Str("new_name", req.NewName).Msg("File renamed")
	data := map[string]any{"oldName": oldName, "newName": req.NewName}
	h.publish(events.New(types.FileRenamed, data))
	sendJSON(w, http.StatusOK, "File renamed successfully.", data)
}

func (h *Handler) metadata(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	info, err := h.store.Stat(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			sendJSON(w, http.StatusNotFound, "File Metadata Not Found.", nil)
			return
		}
		sendJSON(w, http.StatusInternalServerError, "File Metadata Error.", map[string]any{"error": err.Error()})
		return
	}
	sendJSON(w, http.StatusOK, "File metadata retrieved successfully.", map[string]any{"metadata": info})
}
