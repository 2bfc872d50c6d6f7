package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/alecci-media/boardroom/internal/chat"
	"github.com/alecci-media/boardroom/internal/conversation"
	"github.com/alecci-media/boardroom/internal/persona"
	"github.com/alecci-media/boardroom/internal/protocol"
)

const maxPageSize = 100

func (a *api) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 20
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPageSize)
	}
	page, err := a.deps.Store.ListConversations(r.Context(), userID(r), limit, q.Get("ending_before"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// owned loads a conversation and checks it belongs to the caller.
func (a *api) owned(ctx context.Context, r *http.Request, id string) (conversation.Conversation, error) {
	conv, err := a.deps.Store.GetConversation(ctx, id)
	if err != nil {
		return conv, err
	}
	if conv.UserID != userID(r) {
		return conv, chat.ErrForbidden
	}
	return conv, nil
}

func (a *api) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.owned(r.Context(), r, id); err != nil {
		a.fail(w, r, err)
		return
	}
	msgs, err := a.deps.Store.ListMessages(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (a *api) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.owned(r.Context(), r, id); err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.deps.Chat.Cancel(r.Context(), userID(r), id); err != nil && !errors.Is(err, chat.ErrNoActiveStream) {
		a.fail(w, r, err)
		return
	}
	if err := a.deps.Store.DeleteConversation(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (a *api) handleVotes(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("chatId")
	if id == "" {
		writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, "chatId is required")
		return
	}
	if _, err := a.owned(r.Context(), r, id); err != nil {
		a.fail(w, r, err)
		return
	}
	votes, err := a.deps.Store.ListVotes(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, votes)
}

func (a *api) handleVote(w http.ResponseWriter, r *http.Request) {
	var req protocol.VoteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, "invalid request body")
		return
	}
	if req.ConversationID == "" || req.MessageID == "" || (req.Type != "up" && req.Type != "down") {
		writeError(w, http.StatusBadRequest, protocol.CodeBadRequest, "chatId, messageId and type (up|down) are required")
		return
	}
	if _, err := a.owned(r.Context(), r, req.ConversationID); err != nil {
		a.fail(w, r, err)
		return
	}
	vote := conversation.Vote{ConversationID: req.ConversationID, MessageID: req.MessageID, Up: req.Type == "up"}
	if err := a.deps.Store.RecordVote(r.Context(), vote); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vote)
}

type personaView struct {
	ID          persona.ID   `json:"id"`
	Name        string       `json:"name"`
	Role        string       `json:"role"`
	Description string       `json:"description"`
	Expertise   []string     `json:"expertise"`
	Composite   bool         `json:"composite"`
	Default     bool         `json:"default"`
	Members     []persona.ID `json:"members,omitempty"`
}

func (a *api) handlePersonas(w http.ResponseWriter, _ *http.Request) {
	def := a.deps.Registry.Default()
	list := a.deps.Registry.List()
	out := make([]personaView, 0, len(list))
	for _, p := range list {
		out = append(out, personaView{
			ID:          p.ID,
			Name:        p.DisplayName,
			Role:        p.Role,
			Description: p.Description,
			Expertise:   p.Expertise,
			Composite:   p.Composite(),
			Default:     p.ID == def,
			Members:     p.Constituents,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
