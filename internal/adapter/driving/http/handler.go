package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stayconnect/stayconnect/internal/adapter/driven/gateway/ws"
	"github.com/stayconnect/stayconnect/internal/core/domain"
	"github.com/stayconnect/stayconnect/internal/core/port"
	"github.com/stayconnect/stayconnect/internal/core/service"
)

type Handler struct {
	ChatService   *service.ChatService
	CallService   *service.CallService
	FriendService *service.FriendService
	Calls         port.CallStore
	Users         port.UserStore
	Media         port.MediaCapture
	Hub           *ws.Hub
	JWT           *JWT
}

func NewHandler(chat *service.ChatService, calls *service.CallService, friends *service.FriendService, callStore port.CallStore, users port.UserStore, media port.MediaCapture, hub *ws.Hub, jwt *JWT) *Handler {
	return &Handler{
		ChatService:   chat,
		CallService:   calls,
		FriendService: friends,
		Calls:         callStore,
		Users:         users,
		Media:         media,
		Hub:           hub,
		JWT:           jwt,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Post("/api/register", h.HandleRegister)
	r.Post("/api/login", h.HandleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.Authorize)

		r.Get("/ws", h.ServeWS)

		r.Get("/api/calls", h.HandleCallHistory)
		r.Get("/api/messages/{uid}", h.HandleConversation)

		r.Get("/api/friends", h.HandleListFriends)
		r.Delete("/api/friends/{uid}", h.HandleRemoveFriend)
		r.Get("/api/friends/requests", h.HandleListRequests)
		r.Post("/api/friends/requests", h.HandleSendRequest)
		r.Post("/api/friends/requests/{uid}/accept", h.HandleAcceptRequest)
		r.Delete("/api/friends/requests/{uid}", h.HandleDeclineRequest)
	})

	fs := http.FileServer(http.Dir("./static"))
	r.Handle("/*", fs)

	return r
}

func (h *Handler) HandleCallHistory(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r)
	entries, err := h.CallService.History(r.Context(), me.UID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, entries)
}

func (h *Handler) HandleConversation(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r)
	other := domain.UserID(chi.URLParam(r, "uid"))
	msgs, err := h.ChatService.Conversation(r.Context(), me.UID, other)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, msgs)
}

func (h *Handler) HandleListFriends(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r)
	friends, err := h.FriendService.Friends(r.Context(), me.UID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, friends)
}

func (h *Handler) HandleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r)
	if err := h.FriendService.RemoveFriend(r.Context(), me.UID, domain.UserID(chi.URLParam(r, "uid"))); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r)
	reqs, err := h.FriendService.Requests(r.Context(), me.UID)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, reqs)
}

func (h *Handler) HandleSendRequest(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r)
	var req struct {
		PublicID string `json:"public_id"`
	}
	if err := readJSON(r, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	err := h.FriendService.SendRequest(r.Context(), me, req.PublicID)
	switch {
	case errors.Is(err, service.ErrUnknownPublicID):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrSelfFriending),
		errors.Is(err, service.ErrAlreadyFriends),
		errors.Is(err, service.ErrDuplicateRequest):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) HandleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r)
	err := h.FriendService.AcceptRequest(r.Context(), me, domain.UserID(chi.URLParam(r, "uid")))
	switch {
	case errors.Is(err, service.ErrRequestNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, "internal error", http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) HandleDeclineRequest(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r)
	if err := h.FriendService.DeclineRequest(r.Context(), me.UID, domain.UserID(chi.URLParam(r, "uid"))); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
