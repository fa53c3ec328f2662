package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/typegpt/internal/errs"
	"github.com/and161185/typegpt/internal/model"
)

type createChatRequest struct {
	Title string `json:"title"`
}

type sendRequest struct {
	Content string `json:"content"`
}

// threadID parses the {id} path parameter. A malformed id is indistinguishable
// from an unknown one.
func threadID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errs.ErrNotFound
	}
	return id, nil
}

func writeChatError(w http.ResponseWriter, err error) {
	status, body := statusFor(err)
	if status == http.StatusNotFound {
		body.Error = "Chat not found"
	}
	writeJSON(w, status, body)
}

func (s *Server) listChats(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	chats, err := s.d.Chats.List(r.Context(), p)
	if err != nil {
		s.logFailure("list chats", err)
		writeError(w, err)
		return
	}
	if chats == nil {
		chats = []model.Thread{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.Thread{"chats": chats})
}

func (s *Server) createChat(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	var req createChatRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.d.Chats.Create(r.Context(), p, req.Title)
	if err != nil {
		s.logFailure("create chat", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]*model.Thread{"chat": t})
}

func (s *Server) deleteChat(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	id, err := threadID(r)
	if err == nil {
		err = s.d.Chats.Delete(r.Context(), p, id)
	}
	if err != nil {
		s.logFailure("delete chat", err)
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	id, err := threadID(r)
	var msgs []model.Message
	if err == nil {
		msgs, err = s.d.Chats.Messages(r.Context(), p, id)
	}
	if err != nil {
		s.logFailure("list messages", err)
		writeChatError(w, err)
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.Message{"messages": msgs})
}

// sendMessage streams the assistant answer as server-sent events.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFromCtx(r.Context())
	id, err := threadID(r)
	if err != nil {
		writeChatError(w, err)
		return
	}
	var req sendRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, err)
		return
	}

	sink := newSSESink(w)
	err = s.d.Relay.Send(r.Context(), p, id, req.Content, sink)
	if err == nil {
		return
	}
	if !sink.started {
		s.logFailure("send message", err)
		writeChatError(w, err)
		return
	}
	s.log.Debug("stream aborted", zap.String("chat_id", id.String()), zap.Error(err))
}
