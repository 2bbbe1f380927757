package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/guidgatekeeper/ggk/app"
	"github.com/guidgatekeeper/ggk/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	ruleHandler := handlers.NewRuleHandler(deps.RuleService, deps.Logger)
	checkHandler := handlers.NewCheckHandler(deps.RuleService, deps.Logger)
	accountHandler := handlers.NewAccountHandler(deps.AccountService, deps.Logger)
	healthHandler := handlers.NewHealthHandler(deps.Store, deps.Logger)

	r.Get("/healthcheck", healthHandler.HandleHealthCheck)

	r.Route("/rules", func(r chi.Router) {
		// The check endpoint is public: holding a rule id is the
		// capability, no identity header is required.
		r.Post("/{ruleId}/isAllowed", checkHandler.HandleIsAllowed)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAPIKey)
			r.Post("/", ruleHandler.HandleCreateRule)
			r.Get("/", ruleHandler.HandleListRules)
			r.Get("/{ruleId}", ruleHandler.HandleGetRule)
			r.Put("/{ruleId}", ruleHandler.HandleUpdateRule)
			r.Delete("/{ruleId}", ruleHandler.HandleDeleteRule)
		})
	})

	// Account management (admin only)
	r.Route("/users", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAPIKey)
		r.Use(deps.AuthMiddleware.RequireAdmin)
		r.Get("/{apiKey}", accountHandler.HandleGetAccount)
		r.Put("/{apiKey}", accountHandler.HandleUpdateAccount)
		r.Delete("/{apiKey}", accountHandler.HandleDeleteAccount)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
