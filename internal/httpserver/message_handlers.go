package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"medchat/internal/domain"
	"medchat/internal/service"
	"medchat/internal/ws"
)

type messageCreateRequest struct {
	Content string `json:"content"`
}

func (h *handlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	claims := CurrentClaims(r)
	chatID := chi.URLParam(r, "chatID")

	var req messageCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.BadRequest("invalid JSON body"))
		return
	}

	msg, err := h.events.SendMessage(r.Context(), chatID, claims.UserID(), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	h.broadcast.ToRoom(r.Context(), chatID, "", ws.EventNewMessage, msg)
	writeJSON(w, http.StatusCreated, msg)
}

func (h *handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	claims := CurrentClaims(r)

	opts := service.PageOptions{Before: r.URL.Query().Get("before")}
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, domain.BadRequest("invalid limit"))
			return
		}
		opts.Limit = limit
	}

	page, err := h.events.Messages().GetMessages(r.Context(), chi.URLParam(r, "chatID"), claims.UserID(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *handlers) markAsRead(w http.ResponseWriter, r *http.Request) {
	claims := CurrentClaims(r)
	msg, err := h.events.MarkAsRead(r.Context(), chi.URLParam(r, "messageID"), claims.UserID())
	if err != nil {
		writeError(w, err)
		return
	}
	h.broadcast.ToRoom(r.Context(), msg.ChatID, "", ws.EventMessageRead,
		ws.MessageRead{MessageID: msg.ID, ReadAt: msg.ReadAt, ReadBy: claims.UserID()})
	writeJSON(w, http.StatusOK, msg)
}

func (h *handlers) deleteMessage(w http.ResponseWriter, r *http.Request) {
	claims := CurrentClaims(r)
	msg, err := h.events.DeleteMessage(r.Context(), chi.URLParam(r, "messageID"), claims.UserID())
	if err != nil {
		writeError(w, err)
		return
	}
	h.broadcast.ToRoom(r.Context(), msg.ChatID, "", ws.EventMessageDeleted,
		ws.MessageDeleted{MessageID: msg.ID, ChatID: msg.ChatID})
	writeJSON(w, http.StatusOK, msg)
}
