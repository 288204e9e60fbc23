package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/spatial-agent/backend/internal/handler/speech"
	middlewarePkg "github.com/zhouzirui/spatial-agent/backend/internal/middleware"
	"github.com/zhouzirui/spatial-agent/backend/pkg/utils"
)

// ReadyMessage is the body of the readiness endpoint.
const ReadyMessage = "Spatial Agent backend is running."

// NewRouter wires HTTP routes to the session and speech handlers.
// speechHandler may be nil, which leaves /api/speech unregistered.
func NewRouter(ws *speech.WebSocketHandler, speechHandler *speech.Handler, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"message": ReadyMessage})
	})

	ws.RegisterWebSocketRoutes(r)

	if speechHandler != nil {
		r.Route("/api", func(api chi.Router) {
			speechHandler.RegisterRoutes(api)
		})
	}

	return r
}
