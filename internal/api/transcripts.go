package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/session"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/transcript"
)

// TranscriptHandler serves live reads of the session's transcripts.
type TranscriptHandler struct {
	sess *session.Session
}

func NewTranscriptHandler(sess *session.Session) *TranscriptHandler {
	return &TranscriptHandler{sess: sess}
}

type transcriptResponse struct {
	Room      string                `json:"room"`
	UID       string                `json:"uid,omitempty"`
	Fragments []transcript.Fragment `json:"fragments"`
}

// Master returns the room-wide master transcript.
func (h *TranscriptHandler) Master(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, transcriptResponse{
		Room:      h.sess.Room,
		Fragments: h.sess.Master.Fragments(),
	})
}

type userSummary struct {
	UID       string `json:"uid"`
	Fragments int    `json:"fragments"`
}

// Users lists registered users and their fragment counts.
func (h *TranscriptHandler) Users(w http.ResponseWriter, r *http.Request) {
	users := h.sess.Users()
	out := make([]userSummary, 0, len(users))
	for _, u := range users {
		out = append(out, userSummary{UID: u.ID, Fragments: u.Transcript.Len()})
	}
	WriteJSON(w, http.StatusOK, out)
}

// UserTranscript returns one user's ordered transcript.
func (h *TranscriptHandler) UserTranscript(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	user, ok := h.sess.User(uid)
	if !ok {
		WriteError(w, http.StatusNotFound, "unknown user")
		return
	}
	WriteJSON(w, http.StatusOK, transcriptResponse{
		Room:      h.sess.Room,
		UID:       user.ID,
		Fragments: user.Transcript.Fragments(),
	})
}
