package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/heydoc/booking-platform/internal/conversation"
	"github.com/heydoc/booking-platform/internal/http/handlers"
	"github.com/heydoc/booking-platform/internal/http/middleware"
	"github.com/heydoc/booking-platform/internal/messaging"
	"github.com/heydoc/booking-platform/internal/webchat"
	"github.com/heydoc/booking-platform/pkg/logging"
)

// Config wires the HTTP surface together.
type Config struct {
	Logger *logging.Logger

	Bot      *conversation.Handler
	Twilio   *messaging.Handler
	Admin    *handlers.AdminHandler
	WebChat  *webchat.Handler
	Metrics  http.Handler

	AllowedOrigins []string
	AdminJWTSecret string

	// BotRatePerSecond limits bot endpoints per client IP. Zero disables
	// rate limiting.
	BotRatePerSecond float64
	BotRateBurst     int
}

// New builds the router with all public and admin routes.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	if cfg.Twilio != nil {
		r.Post("/webhooks/twilio", cfg.Twilio.TwilioWebhook)
	}

	if cfg.Bot != nil {
		r.Group(func(r chi.Router) {
			if cfg.BotRatePerSecond > 0 {
				burst := cfg.BotRateBurst
				if burst <= 0 {
					burst = int(cfg.BotRatePerSecond) + 1
				}
				r.Use(middleware.RateLimit(cfg.BotRatePerSecond, burst))
			}
			r.Post("/bot/start", cfg.Bot.Start)
			r.Post("/bot/message", cfg.Bot.Message)
			r.Post("/bot/audio", cfg.Bot.Audio)
		})
	}

	if cfg.WebChat != nil {
		r.Route("/webchat", func(r chi.Router) {
			r.Get("/ws", cfg.WebChat.HandleWebSocket)
			r.Post("/message", cfg.WebChat.HandleMessage)
			r.Get("/history", cfg.WebChat.HandleHistory)
			r.Get("/widget.js", cfg.WebChat.HandleWidgetJS)
		})
	}

	if cfg.Admin != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminJWT(cfg.AdminJWTSecret))
			r.Get("/users/{userID}/sessions", cfg.Admin.ListSessions)
			r.Get("/users/{userID}/appointments", cfg.Admin.ListAppointments)
			r.Get("/appointments/{appointmentID}", cfg.Admin.GetAppointment)
			r.Post("/appointments/{appointmentID}/cancel", cfg.Admin.CancelAppointment)
		})
	}

	return r
}
