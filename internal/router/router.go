package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kusina-pos/api/internal/config"
	"github.com/kusina-pos/api/internal/enum"
	"github.com/kusina-pos/api/internal/handler"
	mw "github.com/kusina-pos/api/internal/middleware"
	"github.com/kusina-pos/api/internal/service"
	"github.com/kusina-pos/api/internal/ws"
	"github.com/sirupsen/logrus"
)

// Services bundles what the handlers need.
type Services struct {
	Orders    *service.OrderService
	Payments  *service.PaymentService
	Webhooks  *service.WebhookService
	Discounts *service.DiscountService
	Users     handler.AuthStore
	Hub       *ws.Hub
}

// New creates a Chi router with all application routes wired up.
func New(cfg *config.Config, svc Services, log logrus.FieldLogger) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger(log))
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     cfg.AllowedOrigins,
		AllowedMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials:   true,
		MaxAge:             300, // 5 minutes
		OptionsPassthrough: true,
	}))
	r.Use(mw.Preflight)

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	authHandler := handler.NewAuthHandler(svc.Users, cfg.JWTSecret, log)
	authHandler.RegisterRoutes(r)

	discountHandler := handler.NewDiscountHandler(svc.Discounts, log)
	discountHandler.RegisterRoutes(r)

	paymentHandler := handler.NewPaymentHandler(svc.Payments, log)
	paymentHandler.RegisterRoutes(r)

	// WebSocket routes (staff room checks its own token)
	realtimeHandler := handler.NewRealtimeHandler(svc.Hub, svc.Orders, cfg.JWTSecret, log)
	realtimeHandler.RegisterRoutes(r)

	// Provider webhook, rate limited per IP
	webhookHandler := handler.NewWebhookHandler(svc.Webhooks, cfg.PayMongoWebhookSecret, log)
	r.Group(func(r chi.Router) {
		if cfg.WebhookRateLimit > 0 {
			r.Use(mw.NewRateLimiter(cfg.WebhookRateLimit, cfg.WebhookRateBurst).Handler)
		}
		webhookHandler.RegisterRoutes(r)
	})

	orderHandler := handler.NewOrderHandler(svc.Orders, svc.Payments, log)

	// Order routes that accept either a bearer token or a userId in the body
	r.Group(func(r chi.Router) {
		r.Use(mw.OptionalAuthenticate(cfg.JWTSecret))
		orderHandler.RegisterPublicRoutes(r)
	})

	// Staff routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireStaff)
		orderHandler.RegisterStaffRoutes(r)
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireRole(enum.UserRoleAdmin))
		handler.NewSettingsHandler(svc.Payments, log).RegisterRoutes(r)
	})

	log.Info("router initialized with all handlers")
	return r
}
