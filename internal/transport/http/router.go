// Package httptransport is the thin HTTP layer. Handlers delegate to domain
// services without embedding business logic so transport concerns remain
// isolated.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	authModels "outpost/internal/auth/models"
	gatewayModels "outpost/internal/gateway/models"
	"outpost/internal/platform/middleware"
	"outpost/internal/transport/http/json"
	"outpost/pkg/requestcontext"
)

// GatewayService runs the request pipeline for proxied calls.
type GatewayService interface {
	Process(ctx context.Context, req *gatewayModels.ClientRequest) (*gatewayModels.Result, error)
}

// AuthService drives the login flows the gateway orchestrates itself.
type AuthService interface {
	StartSMSLogin(ctx context.Context, phoneNumber string) (*authModels.OTPHandle, error)
	CompleteSMSLogin(ctx context.Context, phoneNumber, otpCode string) (*authModels.LoginResult, error)
	LoginSocial(ctx context.Context, providerToken string) (*authModels.SocialLoginResult, error)
	Logout(ctx context.Context, userID string) error
}

// Handler holds the services the HTTP layer dispatches into.
type Handler struct {
	gateway GatewayService
	auth    AuthService
	logger  *slog.Logger
}

func NewHandler(gateway GatewayService, auth AuthService, logger *slog.Logger) *Handler {
	return &Handler{
		gateway: gateway,
		auth:    auth,
		logger:  logger,
	}
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(h *Handler, logger *slog.Logger, maxBodyBytes int64) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.BodyLimit(maxBodyBytes))
	r.Use(requestcontext.Middleware)

	// Login flows the gateway orchestrates itself.
	r.Post("/auth/sms/start", h.handleSMSStart)
	r.Post("/auth/sms/complete", h.handleSMSComplete)
	r.Post("/auth/social", h.handleSocialLogin)
	r.Post("/auth/logout", h.handleLogout)

	// Everything else is proxied through the pipeline.
	r.Handle("/proxy/*", http.HandlerFunc(h.handleProxy))

	r.Get("/healthz", h.handleHealth)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
