package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ewanfisher/voxmail/backend/internal/handler/turn"
	"github.com/ewanfisher/voxmail/backend/internal/handler/voice"
	middlewarePkg "github.com/ewanfisher/voxmail/backend/internal/middleware"
	agentService "github.com/ewanfisher/voxmail/backend/internal/service/agent"
	speechService "github.com/ewanfisher/voxmail/backend/internal/service/speech"
	"github.com/ewanfisher/voxmail/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the session engine.
func NewRouter(engine *agentService.Service, speechSvc *speechService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	turnHandler := turn.New(engine)

	r.Route("/api", func(api chi.Router) {
		turnHandler.RegisterRoutes(api)

		// Voice turns need the transcription collaborator.
		if speechSvc != nil {
			voiceHandler := voice.New(engine, speechSvc)
			voiceHandler.RegisterRoutes(api)
		} else {
			api.Get("/voice/{userID}", func(w http.ResponseWriter, _ *http.Request) {
				utils.RespondError(w, http.StatusNotImplemented, "voice turns unavailable: speech service not configured")
			})
		}

		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
