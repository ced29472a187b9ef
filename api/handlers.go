package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"rendezvous/auth"
	"rendezvous/domain"
	"rendezvous/domain/event"
	"rendezvous/errors"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type createConversationRequest struct {
	OtherUserID domain.UserID `json:"otherUserId" validate:"required,gt=0"`
}

type conversationResponse struct {
	ID           domain.ConversationID `json:"id"`
	Participants [2]domain.UserID      `json:"participants"`
	CreatedAt    time.Time             `json:"createdAt"`
}

type messagesResponse struct {
	Messages   []event.MessageNew `json:"messages"`
	NextCursor *string            `json:"nextCursor"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// createConversation opens a conversation between the caller and another user.
// It answers 201 for a new conversation and 200 when the pair already has one.
func (h handlers) createConversation(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserID(r.Context())
	var body createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.CodeInvalidInput)
		return
	}
	if err := h.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, errors.CodeInvalidInput)
		return
	}

	conversation, created, err := h.conversations.CreateConversation(r.Context(), caller, body.OtherUserID)
	switch {
	case stderrors.Is(err, errors.ErrInvalidConversation):
		writeError(w, http.StatusBadRequest, errors.CodeInvalidInput)
		return
	case err != nil:
		h.log.Error("Creating conversation failed", "user_id", caller, "other_user_id", body.OtherUserID, "error", err)
		writeError(w, http.StatusInternalServerError, errors.CodeInternal)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.log.Info("Conversation created", "conversation_id", conversation.ID, "user_id", caller)
	}
	writeJSON(w, status, conversationResponse{
		ID:           conversation.ID,
		Participants: conversation.Participants,
		CreatedAt:    conversation.CreatedAt,
	})
}

// listMessages is the pull path for history, including what a user missed while offline.
func (h handlers) listMessages(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.UserID(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, errors.CodeInvalidInput)
		return
	}
	conversationID := domain.ConversationID(id)

	ok, err := h.conversations.IsParticipant(r.Context(), caller, conversationID)
	if err != nil {
		h.log.Error("Participation check failed", "user_id", caller, "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, errors.CodeInternal)
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, errors.CodeForbidden)
		return
	}

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	messages, next, err := h.history.GetMessages(conversationID, cursor)
	if err != nil {
		h.log.Error("Reading history failed", "conversation_id", conversationID, "error", err)
		writeError(w, http.StatusInternalServerError, errors.CodeInternal)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{
		Messages:   lo.Map(messages, func(m domain.Message, _ int) event.MessageNew { return event.NewMessage(m) }),
		NextCursor: next,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errorResponse{Error: code})
}
