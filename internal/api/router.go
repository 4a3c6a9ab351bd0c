package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/relaycore/core/internal/auth"
	"github.com/relaycore/core/internal/boardsync"
	"github.com/relaycore/core/internal/governor"
	"github.com/relaycore/core/internal/relay"
	"github.com/relaycore/core/internal/repositories"
	"github.com/relaycore/core/internal/repository"
	"github.com/relaycore/core/internal/suggestion"
)

// RouterConfig carries every dependency the HTTP surface needs: the
// resource repositories backing REST CRUD, the auth service backing
// login/refresh/logout, the rule/suggestion layer, and the three
// WebSocket handlers (user chat relay, gateway relay, board sync) mounted
// alongside the REST routes.
type RouterConfig struct {
	AuthService *auth.AuthService

	Organizations  repositories.OrganizationRepository
	Gateways       repositories.GatewayRepository
	Agents         repositories.AgentRepository
	SystemEvents   repositories.SystemEventRepository
	Boards         repository.BoardRepository
	EndUsers       repository.EndUserRepository
	ProactiveRules repository.ProactiveRuleRepository

	Suggestions *suggestion.Service
	Governor    *governor.Governor

	UserRelay    *relay.UserHandler
	GatewayRelay *relay.GatewayHandler
	BoardSync    *boardsync.Handler

	Logger *zap.Logger
	Secure bool
}

// NewRouter builds the complete Chi router: public auth routes, the
// JWT-gated REST API under /api/v1, and the three WebSocket upgrade
// endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger(cfg.Logger))

	authHandler := NewAuthHandler(cfg.AuthService, cfg.Logger, cfg.Secure)
	orgHandler := NewOrganizationHandler(cfg.Organizations, cfg.Logger)
	boardHandler := NewBoardHandler(cfg.Boards, cfg.Logger)
	agentHandler := NewAgentHandler(cfg.Agents, cfg.Logger)
	gatewayHandler := NewGatewayHandler(cfg.Gateways, cfg.Logger)
	endUserHandler := NewEndUserHandler(cfg.EndUsers, cfg.Logger)
	ruleHandler := NewRuleHandler(cfg.ProactiveRules, cfg.Logger)
	suggestionHandler := NewSuggestionHandler(cfg.Suggestions, cfg.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		Ok(w, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/login/end-user", authHandler.LoginEndUser)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
		})

		// The SSE suggestions stream holds its request context open for the
		// life of the subscription, so it's authenticated in its own group
		// that never gets the Timeout middleware below — Timeout cancels
		// r.Context() at the deadline, which would silently kill the stream.
		r.Group(func(r chi.Router) {
			r.Use(Authenticate(cfg.AuthService.JWTManager()))
			r.Use(RequireOperatorKind)

			r.Get("/organizations/{org_id}/suggestions/stream", suggestionHandler.Stream)
		})

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(cfg.AuthService.JWTManager()))
			r.Use(RequireOperatorKind)
			r.Use(chimw.Timeout(30 * time.Second))

			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", orgHandler.List)
				r.Post("/", orgHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", orgHandler.GetByID)
					r.Patch("/", orgHandler.Update)
				})

				r.Route("/{org_id}/boards", func(r chi.Router) {
					r.Get("/", boardHandler.List)
					r.Post("/", boardHandler.Create)
				})
				r.Route("/{org_id}/agents", func(r chi.Router) {
					r.Get("/", agentHandler.List)
					r.Post("/", agentHandler.Create)
				})
				r.Route("/{org_id}/gateways", func(r chi.Router) {
					r.Get("/", gatewayHandler.List)
					r.Post("/", gatewayHandler.Create)
				})
				r.Route("/{org_id}/end-users", func(r chi.Router) {
					r.Get("/", endUserHandler.List)
					r.Post("/", endUserHandler.Create)
				})
				r.Route("/{org_id}/rules", func(r chi.Router) {
					r.Get("/", ruleHandler.List)
					r.Post("/", ruleHandler.Create)
				})
				r.Route("/{org_id}/suggestions", func(r chi.Router) {
					r.Get("/", suggestionHandler.List)
				})
			})

			r.Route("/boards/{id}", func(r chi.Router) {
				r.Get("/", boardHandler.GetByID)
				r.Patch("/", boardHandler.Update)
				r.Delete("/", boardHandler.Delete)
			})
			r.Route("/agents/{id}", func(r chi.Router) {
				r.Get("/", agentHandler.GetByID)
				r.Patch("/", agentHandler.Update)
				r.Delete("/", agentHandler.Delete)
			})
			r.Route("/gateways/{id}", func(r chi.Router) {
				r.Get("/", gatewayHandler.GetByID)
				r.Patch("/", gatewayHandler.Update)
				r.Delete("/", gatewayHandler.Delete)
			})
			r.Route("/end-users/{id}", func(r chi.Router) {
				r.Get("/", endUserHandler.GetByID)
				r.Patch("/", endUserHandler.Update)
				r.Delete("/", endUserHandler.Delete)
			})
			r.Route("/rules/{id}", func(r chi.Router) {
				r.Get("/", ruleHandler.GetByID)
				r.Patch("/", ruleHandler.Update)
				r.Delete("/", ruleHandler.Delete)
			})
			r.Route("/suggestions/{id}", func(r chi.Router) {
				r.Post("/accept", suggestionHandler.Accept)
				r.Post("/dismiss", suggestionHandler.Dismiss)
			})

			if cfg.Governor != nil {
				r.Post("/governor/tick", func(w http.ResponseWriter, r *http.Request) {
					if err := cfg.Governor.Tick(r.Context()); err != nil {
						cfg.Logger.Error("manual governor tick failed", zap.Error(err))
						ErrInternal(w)
						return
					}
					NoContent(w)
				})
			}
		})
	})

	r.Handle("/ws/user/chat", cfg.UserRelay)
	r.Handle("/ws/gateway/{gateway_id}/relay", cfg.GatewayRelay)
	r.Handle("/ws/board/{board_id}/sync", cfg.BoardSync)

	return r
}
