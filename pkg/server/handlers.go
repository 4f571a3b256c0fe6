package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nstogner/dispatch/pkg/domain"
	"github.com/nstogner/dispatch/pkg/engine"
)

// StartRequest is the body of POST /api/conversations.
type StartRequest struct {
	Goal             string   `json:"goal"`
	Instructions     string   `json:"instructions,omitempty"`
	Model            string   `json:"model"`
	MaxTurns         int      `json:"maxTurns"`
	ToolIDs          []string `json:"toolIds,omitempty"`
	AllowUnsafeTools bool     `json:"allowUnsafeTools,omitempty"`
	Caller           string   `json:"caller,omitempty"`
	Title            string   `json:"title,omitempty"`
}

// ConversationDetail pairs a conversation with its history.
type ConversationDetail struct {
	Conversation domain.Conversation   `json:"conversation"`
	History      []domain.HistoryEntry `json:"history"`
}

// --- Conversations ---

func (s *Server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}

	if req.Model == "" {
		req.Model = s.Defaults.Model
	}
	if req.MaxTurns == 0 {
		req.MaxTurns = s.Defaults.MaxTurns
	}

	id, err := s.engine.Start(context.Background(), engine.Request{
		Goal:             req.Goal,
		Instructions:     req.Instructions,
		Model:            req.Model,
		MaxTurns:         req.MaxTurns,
		ToolIDs:          req.ToolIDs,
		AllowUnsafeTools: req.AllowUnsafeTools && s.Defaults.AllowUnsafeTools,
		Caller:           req.Caller,
		Title:            req.Title,
	}, s.archiveResult)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}

	conv, _ := s.registry.Get(id)
	s.jsonResponse(w, http.StatusAccepted, conv)
}

// archiveResult persists a finished conversation. Runs on the conversation
// goroutine after the loop terminates.
func (s *Server) archiveResult(res *engine.Result) {
	if s.archive == nil {
		return
	}
	conv, ok := s.registry.Get(res.ConversationID)
	if !ok {
		return
	}
	if err := s.archive.Save(context.Background(), &conv, res.History); err != nil {
		slog.Error("Failed to archive conversation", "id", res.ConversationID, "error", err)
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if conv, ok := s.registry.Get(id); ok {
		s.jsonResponse(w, http.StatusOK, ConversationDetail{
			Conversation: conv,
			History:      s.registry.History(id),
		})
		return
	}

	if s.archive != nil {
		conv, history, err := s.archive.Get(r.Context(), id)
		if err == nil {
			s.jsonResponse(w, http.StatusOK, ConversationDetail{
				Conversation: *conv,
				History:      history,
			})
			return
		}
	}

	s.errorResponse(w, http.StatusNotFound, fmt.Errorf("conversation not found: %s", id))
}

func (s *Server) handleCancelConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.MarkCancelled(id); err != nil {
		s.errorResponse(w, http.StatusNotFound, err)
		return
	}
	conv, _ := s.registry.Get(id)
	s.jsonResponse(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if conv, ok := s.registry.Get(id); ok {
		if !conv.Status.Terminal() {
			s.errorResponse(w, http.StatusConflict,
				fmt.Errorf("conversation %s is still %s, cancel it first", id, conv.Status))
			return
		}
		if err := s.registry.Delete(id); err != nil {
			s.errorResponse(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.errorResponse(w, http.StatusNotFound, fmt.Errorf("conversation not found: %s", id))
}

// --- Archive ---

func (s *Server) handleListArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query().Get("q")
	var (
		convs []domain.Conversation
		err   error
	)
	if query != "" {
		convs, err = s.archive.Search(r.Context(), query)
	} else {
		convs, err = s.archive.List(r.Context())
	}
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, convs)
}

func (s *Server) handleGetArchived(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.NotFound(w, r)
		return
	}

	id := r.PathValue("id")
	conv, history, err := s.archive.Get(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ConversationDetail{
		Conversation: *conv,
		History:      history,
	})
}

func (s *Server) handleDeleteArchived(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.NotFound(w, r)
		return
	}

	id := r.PathValue("id")
	if err := s.archive.Delete(r.Context(), id); err != nil {
		s.errorResponse(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Models ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.provider.List(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, models)
}

// --- Tools ---

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.gateway.Specs(nil, true))
}
