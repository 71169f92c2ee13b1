package transport

import (
	"errors"
	"net/http"

	"file_manager/internal/events"
	"file_manager/internal/pipeline"
	"file_manager/internal/storage"
	"file_manager/types"

	"filippo.io/age"
	"github.com/rs/zerolog/log"
)

func (h *Handler) compress(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	codec, ok := types.ParseCodec(r.URL.Query().Get("codec"))
	if !ok {
		sendJSON(w, http.StatusBadRequest, "Unknown compression codec.", map[string]any{"codec": r.URL.Query().Get("codec")})
		return
	}
	if err := storage.ValidateName(name); err != nil {
		sendJSON(w, http.StatusNotFound, "Compression Failed: Original File Not Found.", nil)
		return
	}

	output := name + codec.Extension()
	release, err := h.reserve("compress", name, output)
	if err != nil {
		sendJSON(w, http.StatusConflict, "Compression Failed: File is busy.", map[string]any{"error": err.Error()})
		return
	}
	defer release()

	res, err := pipeline.Compress(r.Context(), h.store, name, codec)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			sendJSON(w, http.StatusNotFound, "Compression Failed: Original File Not Found.", nil)
			return
		}
		log.Error().Err(err).Str("filename", name).Msg("Compression failed")
		sendJSON(w, http.StatusInternalServerError, "Compression Failed.", map[string]any{"error": err.Error()})
		return
	}

	h.publish(events.New(types.FileCompressed, map[string]any{"filename": res.Output, "original": res.Original}))
	sendJSON(w, http.StatusOK, "File compressed successfully.", map[string]any{
		"original":   res.Original,
		"compressed": res.Output,
		"path":       "/uploads/" + res.Output,
		"codec":      string(codec),
		"bytes_in":   res.BytesIn,
		"bytes_out":  res.BytesOut,
	})
}

func (h *Handler) encrypt(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := storage.ValidateName(name); err != nil {
		sendJSON(w, http.StatusNotFound, "Encryption Failed: Original File Not Found.", nil)
		return
	}

	output := name + types.EncryptedExtension
	release, err := h.reserve("encrypt", name, output)
	if err != nil {
		sendJSON(w, http.StatusConflict, "Encryption Failed: File is busy.", map[string]any{"error": err.Error()})
		return
	}
	defer release()

	recipients := make([]age.Recipient, 0, len(h.opts.Recipients))
	labels := make([]string, 0, len(h.opts.Recipients))
	for _, rcpt := range h.opts.Recipients {
		recipients = append(recipients, rcpt.Recipient)
		labels = append(labels, rcpt.Label)
	}

	res, err := pipeline.Encrypt(r.Context(), h.store, name, recipients...)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			sendJSON(w, http.StatusNotFound, "Encryption Failed: Original File Not Found.", nil)
			return
		}
		log.Error().Err(err).Str("filename", name).Msg("Encryption failed")
		sendJSON(w, http.StatusInternalServerError, "Encryption Failed.", map[string]any{"error": err.Error()})
		return
	}

	h.publish(events.New(types.FileEncrypted, map[string]any{"filename": res.Output, "original": res.Original}))
	sendJSON(w, http.StatusOK, "File encrypted successfully.", map[string]any{
		"original":   res.Original,
		"encrypted":  res.Output,
		"path":       "/uploads/" + res.Output,
		"recipients": labels,
		"bytes_in":   res.BytesIn,
		"bytes_out":  res.BytesOut,
	})
}
