// Package stream relays knowledge-base answers to the browser over
// Server-Sent Events.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/leomaro7/kb-chat/internal/config"
	chatService "github.com/leomaro7/kb-chat/internal/service/chat"
	"github.com/leomaro7/kb-chat/internal/service/kb"
	"github.com/leomaro7/kb-chat/pkg/utils"
)

// genericError is the only failure text shown to users; the real cause
// goes to the server log.
const genericError = "failed to generate an answer"

// Querier produces an answer stream for one knowledge-base query.
type Querier interface {
	Query(ctx context.Context, in kb.QueryInput) (*kb.Stream, error)
}

// Handler streams knowledge-base answers for chat sessions.
type Handler struct {
	querier Querier
	chatSvc *chatService.Service
	cfg     config.KBConfig
}

// New creates a stream handler.
func New(querier Querier, chatSvc *chatService.Service, cfg config.KBConfig) *Handler {
	return &Handler{
		querier: querier,
		chatSvc: chatSvc,
		cfg:     cfg,
	}
}

// StreamResponse is one SSE payload.
type StreamResponse struct {
	Event     string `json:"event"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Finished  bool   `json:"finished,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HandleStream validates the request and relays the answer stream. The
// exchange is committed to the transcript only after the stream completes,
// so a failed request leaves the transcript unmodified.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")
	query := r.URL.Query()

	message := strings.TrimSpace(query.Get("message"))
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	ver := query.Get("ver")
	if ver == "" {
		ver = h.cfg.DefaultVersion()
	}
	if !h.cfg.KnownVersion(ver) {
		utils.RespondError(w, http.StatusBadRequest, fmt.Sprintf("unknown document version %q", ver))
		return
	}

	temperature, err := samplingParam(query, "temperature", h.cfg.Temperature)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	topP, err := samplingParam(query, "top_p", h.cfg.TopP)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.chatSvc.GetSession(ctx, sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	history, err := h.chatSvc.Transcript(ctx, session.ID)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	h.sendSSE(w, flusher, StreamResponse{Event: "start", SessionID: session.ID})

	answer, err := h.relayAnswer(ctx, w, flusher, session.ID, kb.QueryInput{
		SessionID:   session.ID,
		Question:    message,
		History:     history,
		DocVersion:  ver,
		Temperature: temperature,
		TopP:        topP,
	})
	if err != nil {
		log.Printf("[stream] generation failed for session=%s: %v", session.ID, err)
		h.sendSSE(w, flusher, StreamResponse{Event: "error", SessionID: session.ID, Error: genericError})
		return
	}

	if err := h.chatSvc.AppendExchange(ctx, session.ID, message, answer); err != nil {
		log.Printf("[stream] failed to store exchange for session=%s: %v", session.ID, err)
	}

	h.sendSSE(w, flusher, StreamResponse{Event: "end", SessionID: session.ID, Finished: true})
	log.Printf("[stream] completed response for session=%s length=%d", session.ID, len(answer))
}

// relayAnswer consumes the answer stream to completion, forwarding each
// fragment as a delta event, and returns the concatenated answer.
func (h *Handler) relayAnswer(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, sessionID string, in kb.QueryInput) (string, error) {
	answerStream, err := h.querier.Query(ctx, in)
	if err != nil {
		return "", err
	}
	defer answerStream.Close()

	var answer strings.Builder
	for {
		chunk, recvErr := answerStream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", recvErr
		}
		if chunk == "" {
			continue
		}

		answer.WriteString(chunk)
		h.sendSSE(w, flusher, StreamResponse{
			Event:     "delta",
			SessionID: sessionID,
			Content:   chunk,
		})
	}

	if answer.Len() == 0 {
		return "", errors.New("stream produced no output")
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:     "message",
		SessionID: sessionID,
		Content:   answer.String(),
	})
	return answer.String(), nil
}

func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}

// samplingParam parses an optional [0,1] query parameter, falling back to
// the configured default.
func samplingParam(query url.Values, key string, defaultValue float32) (float32, error) {
	raw := strings.TrimSpace(query.Get(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseFloat(raw, 32)
	if err != nil || math.IsNaN(val) || val < 0 || val > 1 {
		return 0, fmt.Errorf("%s must be a number between 0 and 1", key)
	}
	return float32(val), nil
}
