package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/database"
)

// ArchiveHandler serves fragments previously archived to Postgres. Unlike
// the live transcript endpoints it survives process restarts, so it is the
// read path for finished rooms.
type ArchiveHandler struct {
	db *database.DB
}

func NewArchiveHandler(db *database.DB) *ArchiveHandler {
	return &ArchiveHandler{db: db}
}

// RoomFragments returns a room's archived fragments ordered by start time.
// An optional ?limit=N caps the result.
func (h *ArchiveHandler) RoomFragments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if h.db == nil {
		WriteError(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}

	room := chi.URLParam(r, "room")
	rows, err := h.db.FragmentsByRoom(r.Context(), room, limit)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("room", room).Msg("archive query failed")
		WriteError(w, http.StatusInternalServerError, "archive query failed")
		return
	}
	if rows == nil {
		rows = []database.FragmentRow{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"room":      room,
		"count":     len(rows),
		"fragments": rows,
	})
}
