package api

import (
	"net/http"

	"github.com/example/pharmacy-storefront/internal/chat"
)

type SendMessageRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the conversation as rendered by the chat panel.
type ChatResponse struct {
	State   chat.State `json:"state"`
	Offline bool       `json:"offline"`
	Days    []chat.Day `json:"days"`
	Queued  int        `json:"queued"`
}

func (h *Handlers) chatResponse() ChatResponse {
	days := h.chat.Days()
	if days == nil {
		days = []chat.Day{}
	}
	return ChatResponse{
		State:   h.chat.State(),
		Offline: h.chat.Offline(),
		Days:    days,
		Queued:  len(h.chat.Queue()),
	}
}

func (h *Handlers) OpenChat(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.Open(r.Context()); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.chatResponse())
}

func (h *Handlers) CloseChat(w http.ResponseWriter, r *http.Request) {
	h.chat.Close()
	respondJSON(w, http.StatusOK, h.chatResponse())
}

func (h *Handlers) RetryChat(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.Retry(r.Context()); err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, h.chatResponse())
}

func (h *Handlers) GetMessages(w http.ResponseWriter, r *http.Request) {
	h.chat.Load(r.Context())
	respondJSON(w, http.StatusOK, h.chatResponse())
}

func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.chat.Send(r.Context(), req.Message)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}
