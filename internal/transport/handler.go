package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"file_manager/internal/events"
	"file_manager/internal/extract"
	"file_manager/internal/key"
	"file_manager/internal/registry"
	"file_manager/internal/storage"

	"github.com/rs/zerolog/log"
)

var ErrBusy = errors.New("file is busy")

// Publisher receives the events produced by completed operations.
type Publisher interface {
	Publish(ev events.Event)
}

type HandlerOptions struct {
	BufferSize    int
	MaxHeaderSize int
	MaxUploadSize int64
	Strict        bool
	Recipients    []key.Recipient
	// Events serves GET /ws. Nil disables the route.
	Events http.Handler
}

// Handler serves the file API. Names that an upload, compression or
// encryption is currently writing are reserved in the active registry and
// refused to every other mutating request.
type Handler struct {
	store     *storage.Store
	publisher Publisher
	active    registry.Registry[string, string]
	opts      HandlerOptions

	bufferPool sync.Pool
	mux        *http.ServeMux
}

func NewHandler(store *storage.Store, publisher Publisher, active registry.Registry[string, string], opts HandlerOptions) *Handler {
	if opts.BufferSize <= 0 {
		opts.BufferSize = extract.DefaultChunkSize
	}
	if opts.MaxHeaderSize <= 0 {
		opts.MaxHeaderSize = extract.DefaultMaxHeaderSize
	}

	h := &Handler{
		store:     store,
		publisher: publisher,
		active:    active,
		opts:      opts,
		mux:       http.NewServeMux(),
	}
	bufferSize := opts.BufferSize
	h.bufferPool = sync.Pool{
		New: func() interface{} {
			return make([]byte, bufferSize)
		},
	}

	h.mux.HandleFunc("POST /uploads/{name}", h.upload)
	h.mux.HandleFunc("GET /uploads/{name}", h.download)
	h.mux.HandleFunc("DELETE /uploads/{name}", h.remove)
	h.mux.HandleFunc("PUT /uploads/{name}", h.rename)
	h.mux.HandleFunc("GET /compress/{name}", h.compress)
	h.mux.HandleFunc("GET /encrypt/{name}", h.encrypt)
	h.mux.HandleFunc("GET /api/files/{name}", h.metadata)
	if opts.Events != nil {
		h.mux.Handle("GET /ws", opts.Events)
	}
	h.mux.HandleFunc("/", notFound)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// reserve claims names for op. It either claims all of them or none.
func (h *Handler) reserve(op string, names ...string) (release func(), err error) {
	claimed := make([]string, 0, len(names))
	release = func() {
		for _, name := range claimed {
			h.active.Remove(name)
		}
	}
	for _, name := range names {
		if !h.active.Register(name, op) {
			holder, _ := h.active.Get(name)
			release()
			return nil, fmt.Errorf("%w: %s in progress for %s", ErrBusy, holder, name)
		}
		claimed = append(claimed, name)
	}
	return release, nil
}

func (h *Handler) publish(ev events.Event) {
	if h.publisher == nil {
		return
	}
	h.publisher.Publish(ev)
}

func (h *Handler) getBuffer() []byte {
	return h.bufferPool.Get().([]byte)
}

func (h *Handler) putBuffer(buf []byte) {
	h.bufferPool.Put(buf)
}

func sendJSON(w http.ResponseWriter, status int, message string, data map[string]any) {
	body := make(map[string]any, len(data)+1)
	for k, v := range data {
		body[k] = v
	}
	body["message"] = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("Failed to write response body")
	}
}

func notFound(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusNotFound, fmt.Sprintf("Cannot %s %s", r.Method, r.URL.RequestURI()), nil)
}
