package http

import (
	"net/http"
	"time"

	"github.com/cwrk-planet/board-service/pkg/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	LogBodies      bool
	Timeout        time.Duration
}

func NewRouter(h *Handler, wsHandler http.HandlerFunc, cfg RouterConfig) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(httputil.MiddlewareRequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httputil.WithRequestLoggerCtx)
	r.Use(httputil.RequestLogger)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", httputil.HeaderRequestID},
		ExposedHeaders:   []string{httputil.HeaderRequestID},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// WS endpoint: без таймаута
	r.Get("/ws", wsHandler)

	r.Group(func(pr chi.Router) {
		pr.Use(middlewareChi.Timeout(cfg.Timeout))
		if cfg.LogBodies {
			pr.Use(httputil.MiddlewareLogging)
		}

		rooms := func(rm chi.Router) {
			rm.Get("/", h.ListRooms)
			rm.Post("/join", h.JoinRoom)
			rm.Get("/active", h.ActiveRooms)

			rm.Route("/{roomId}", func(rr chi.Router) {
				rr.Get("/", h.GetRoom)
				rr.Get("/export.pdf", h.ExportPDF)
			})
		}
		pr.Route("/rooms", rooms)
		// совместимость с веб-клиентом
		pr.Route("/api/rooms", rooms)

		pr.Get("/readyz", h.Readyz)
	})

	// health
	r.Get("/healthz", h.Healthz)

	return r
}
