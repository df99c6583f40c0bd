package handler

import (
	"errors"
	"net/http"
	"os"
	"time"

	"evernote-syncd/internal/localstore"
	"evernote-syncd/pkg/response"

	"github.com/gorilla/mux"
)

type NoteHandler struct {
	store *localstore.Store
}

func NewNoteHandler(store *localstore.Store) *NoteHandler {
	return &NoteHandler{store: store}
}

type noteSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Tags       []string  `json:"tags,omitempty"`
}

// List returns the local notes without their content. Individual notes
// are fetched by ID when the body is wanted.
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	notes, err := h.store.List()
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	summaries := make([]noteSummary, 0, len(notes))
	for _, n := range notes {
		summaries = append(summaries, noteSummary{
			ID:         n.ID,
			Title:      n.Title,
			CreatedAt:  n.CreatedAt,
			ModifiedAt: n.ModifiedAt,
			Tags:       n.Tags,
		})
	}

	response.Success(w, map[string]any{
		"notes": summaries,
	})
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	note, err := h.store.Get(id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			response.Error(w, http.StatusNotFound, "Note not found")
			return
		}
		response.InternalError(w, err.Error())
		return
	}

	response.Success(w, note)
}
