package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/leomaro7/kb-chat/internal/config"
	chatHandler "github.com/leomaro7/kb-chat/internal/handler/chat"
	streamHandler "github.com/leomaro7/kb-chat/internal/handler/stream"
	"github.com/leomaro7/kb-chat/internal/handler/web"
	middlewarePkg "github.com/leomaro7/kb-chat/internal/middleware"
	chatService "github.com/leomaro7/kb-chat/internal/service/chat"
	"github.com/leomaro7/kb-chat/pkg/utils"
)

// NewRouter wires HTTP routes to core services. querier is nil when no
// knowledge base is configured; the stream endpoint then reports 503.
func NewRouter(chatSvc *chatService.Service, querier streamHandler.Querier, kbCfg config.KBConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	sessions := chatHandler.New(chatSvc)

	var answers *streamHandler.Handler
	if querier != nil {
		answers = streamHandler.New(querier, chatSvc, kbCfg)
	}

	r.Route("/api", func(api chi.Router) {
		sessions.RegisterRoutes(api)

		api.Get("/config", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]interface{}{
				"docVersions": kbCfg.DocVersions,
				"temperature": kbCfg.Temperature,
				"topP":        kbCfg.TopP,
			})
		})

		api.Get("/stream/{sessionID}", func(w http.ResponseWriter, r *http.Request) {
			if answers == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "knowledge base streaming unavailable")
				return
			}
			answers.HandleStream(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/*", web.Handler())

	return r
}
