package transport

import (
	"errors"
	"io"
	"net/http"

	"file_manager/internal/events"
	"file_manager/internal/extract"
	"file_manager/internal/storage"
	"file_manager/types"

	"github.com/rs/zerolog/log"
)

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := storage.ValidateName(name); err != nil {
		sendJSON(w, http.StatusBadRequest, "Invalid file name.", map[string]any{"error": err.Error()})
		return
	}

	token, err := extract.BoundaryFromContentType(r.Header.Get("Content-Type"))
	if err != nil {
		sendJSON(w, http.StatusBadRequest, "Invalid Content-Type or missing boundary for file upload.", map[string]any{"error": err.Error()})
		return
	}

	if h.opts.MaxUploadSize > 0 && r.ContentLength > h.opts.MaxUploadSize {
		sendJSON(w, http.StatusRequestEntityTooLarge, "Upload exceeds the configured size limit.", nil)
		return
	}

	release, err := h.reserve("upload", name)
	if err != nil {
		sendJSON(w, http.StatusConflict, "Upload Failed: File is busy.", map[string]any{"error": err.Error()})
		return
	}
	defer release()

	session, err := extract.Begin(name, token, h.store,
		extract.WithMaxHeaderSize(h.opts.MaxHeaderSize),
		extract.WithStrictTermination(h.opts.Strict),
		extract.WithCompletion(h.uploadCompleted(name, r.RemoteAddr)),
	)
	if err != nil {
		sendJSON(w, http.StatusBadRequest, "Invalid Content-Type or missing boundary for file upload.", map[string]any{"error": err.Error()})
		return
	}

	var body io.Reader = r.Body
	if h.opts.MaxUploadSize > 0 {
		body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadSize)
	}

	buf := h.getBuffer()
	defer h.putBuffer(buf)

	outcome := extract.Drain(r.Context(), body, session, buf)
	if !outcome.Success() {
		status, message := uploadFailureStatus(outcome.Err)
		sendJSON(w, status, message, map[string]any{"filename": name, "error": outcome.Err.Error()})
		return
	}

	part := session.Part()
	sendJSON(w, http.StatusCreated, "File uploaded successfully.", map[string]any{
		"filename":      name,
		"bytes_written": outcome.BytesWritten,
		"termination":   outcome.Kind.String(),
		"part": map[string]string{
			"field":        part.Name,
			"filename":     part.FileName,
			"content_type": part.ContentType,
		},
	})
}

func (h *Handler) uploadCompleted(name, remoteAddr string) func(extract.Outcome) {
	return func(outcome extract.Outcome) {
		if outcome.Success() {
			log.Info().
				Str("filename", name).
				Int64("bytes", outcome.BytesWritten).
				Str("termination", outcome.Kind.String()).
				Str("client", remoteAddr).
				Msg("Upload completed")
			h.publish(events.New(types.FileUploaded, map[string]any{
				"filename":      name,
				"bytes_written": outcome.BytesWritten,
			}))
			return
		}

		log.Warn().Err(outcome.Err).Str("filename", name).Str("client", remoteAddr).Msg("Upload failed")
		h.publish(events.New(types.UploadFailed, map[string]any{
			"filename": name,
			"error":    outcome.Err.Error(),
		}))
	}
}

func uploadFailureStatus(err error) (int, string) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, "Upload exceeds the configured size limit."
	case errors.Is(err, extract.ErrHeaderTooLarge):
		return http.StatusRequestEntityTooLarge, "Multipart part header too large."
	case errors.Is(err, extract.ErrNoFilePartFound):
		return http.StatusBadRequest, "No file part found in request."
	case errors.Is(err, extract.ErrMalformedFraming):
		return http.StatusBadRequest, "Malformed multipart body."
	case errors.Is(err, extract.ErrUnterminatedPayload):
		return http.StatusBadRequest, "Multipart body ended before the closing boundary."
	case errors.Is(err, extract.ErrSourceFailure):
		return http.StatusBadRequest, "Request stream error."
	default:
		return http.StatusInternalServerError, "File write error."
	}
}
