package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *handlers) listChats(w http.ResponseWriter, r *http.Request) {
	claims := CurrentClaims(r)
	items, err := h.events.Chats().GetUserChats(r.Context(), claims.UserID(), claims.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handlers) unreadTotal(w http.ResponseWriter, r *http.Request) {
	claims := CurrentClaims(r)
	total, err := h.events.Chats().GetUnreadTotal(r.Context(), claims.UserID(), claims.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": total})
}

func (h *handlers) getOrCreateChat(w http.ResponseWriter, r *http.Request) {
	claims := CurrentClaims(r)
	details, err := h.events.Chats().GetOrCreateChatFor(r.Context(), chi.URLParam(r, "connectionID"), claims.UserID())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *handlers) chatDetails(w http.ResponseWriter, r *http.Request) {
	claims := CurrentClaims(r)
	details, err := h.events.Chats().GetChatDetails(r.Context(), chi.URLParam(r, "chatID"), claims.UserID())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (h *handlers) chatAccess(w http.ResponseWriter, r *http.Request) {
	claims := CurrentClaims(r)
	ok, err := h.events.Chats().VerifyUserAccess(r.Context(), chi.URLParam(r, "chatID"), claims.UserID())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hasAccess": ok})
}

func (h *handlers) readAll(w http.ResponseWriter, r *http.Request) {
	claims := CurrentClaims(r)
	n, err := h.events.ReadAll(r.Context(), chi.URLParam(r, "chatID"), claims.UserID())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"marked": n})
}

func (h *handlers) chatUnread(w http.ResponseWriter, r *http.Request) {
	claims := CurrentClaims(r)
	n, err := h.events.Messages().GetUnreadCount(r.Context(), chi.URLParam(r, "chatID"), claims.UserID())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unreadCount": n})
}
