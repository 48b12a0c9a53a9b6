// Package server exposes the signup flow over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	httpmiddleware "github.com/adminphysiotech/physiotech/internal/http"
	"github.com/adminphysiotech/physiotech/internal/logger"
	"github.com/adminphysiotech/physiotech/internal/signup"
)

// SignupService is the orchestrator surface the HTTP layer depends on.
type SignupService interface {
	Init(ctx context.Context, req *signup.InitRequest) (*signup.InitResult, error)
	Verify(ctx context.Context, req *signup.VerifyRequest) (*signup.VerifyResult, error)
}

// Server holds the HTTP handlers for the signup API.
type Server struct {
	signup SignupService
}

// New creates a new signup API server.
func New(service SignupService) *Server {
	return &Server{signup: service}
}

// Handler wires the routes with CORS, client IP and request logging
// middleware.
func (s *Server) Handler(log zerolog.Logger, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/signup/init", s.handleSignupInit)
	mux.HandleFunc("POST /auth/signup/verify", s.handleSignupVerify)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})

	handler := httpmiddleware.ClientIPMiddleware()(mux)
	handler = c.Handler(handler)
	return logger.Requests(log)(handler)
}

type signupInitRequest struct {
	OrganizationName string `json:"organization_name"`
	ContactEmail     string `json:"contact_email"`
	ContactPhone     string `json:"contact_phone"`
	Address          string `json:"address"`
	SubscriptionPlan string `json:"subscription_plan"`
	BillingCycle     string `json:"billing_cycle"`

	AdminFirstName     string `json:"admin_first_name"`
	AdminLastName      string `json:"admin_last_name"`
	AdminPersonalEmail string `json:"admin_personal_email"`
	AdminMobilePhone   string `json:"admin_mobile_phone"`
}

func (r *signupInitRequest) validate() string {
	switch {
	case r.OrganizationName == "":
		return "organization_name is required"
	case r.ContactEmail == "":
		return "contact_email is required"
	case r.ContactPhone == "":
		return "contact_phone is required"
	case r.Address == "":
		return "address is required"
	case r.AdminFirstName == "":
		return "admin_first_name is required"
	case r.AdminLastName == "":
		return "admin_last_name is required"
	case r.AdminPersonalEmail == "":
		return "admin_personal_email is required"
	case r.AdminMobilePhone == "":
		return "admin_mobile_phone is required"
	}
	return ""
}

type signupInitResponse struct {
	OrganizationID string    `json:"organization_id"`
	VerificationID string    `json:"verification_id"`
	TOTPSecret     string    `json:"totp_secret"`
	TOTPURI        string    `json:"totp_uri"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (s *Server) handleSignupInit(w http.ResponseWriter, r *http.Request) {
	var req signupInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(r.Context(), w, http.StatusBadRequest, msg)
		return
	}

	result, err := s.signup.Init(r.Context(), &signup.InitRequest{
		OrganizationName:   req.OrganizationName,
		ContactEmail:       req.ContactEmail,
		ContactPhone:       req.ContactPhone,
		Address:            req.Address,
		SubscriptionPlan:   req.SubscriptionPlan,
		BillingCycle:       req.BillingCycle,
		AdminFirstName:     req.AdminFirstName,
		AdminLastName:      req.AdminLastName,
		AdminPersonalEmail: req.AdminPersonalEmail,
		AdminMobilePhone:   req.AdminMobilePhone,
	})
	if err != nil {
		writeSignupError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusCreated, signupInitResponse{
		OrganizationID: result.OrganizationID.String(),
		VerificationID: result.VerificationID.String(),
		TOTPSecret:     result.TOTPSecret,
		TOTPURI:        result.TOTPURI,
		ExpiresAt:      result.ExpiresAt,
	})
}

type signupVerifyRequest struct {
	VerificationID string `json:"verification_id"`
	EmailCode      string `json:"email_code"`
	SMSCode        string `json:"sms_code"`
	TOTPCode       string `json:"totp_code"`
}

type signupVerifyResponse struct {
	OrganizationID        string `json:"organization_id"`
	WorkspaceEmail        string `json:"workspace_email"`
	TempWorkspacePassword string `json:"temp_workspace_password"`
	DatabaseName          string `json:"database_name"`
	DatabaseUser          string `json:"database_user"`
	DatabasePassword      string `json:"database_password"`
}

func (s *Server) handleSignupVerify(w http.ResponseWriter, r *http.Request) {
	var req signupVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid request body")
		return
	}

	verificationID, err := uuid.Parse(req.VerificationID)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "verification_id must be a valid UUID")
		return
	}
	if req.EmailCode == "" || req.SMSCode == "" || req.TOTPCode == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "email_code, sms_code and totp_code are required")
		return
	}

	result, err := s.signup.Verify(r.Context(), &signup.VerifyRequest{
		VerificationID: verificationID,
		EmailCode:      req.EmailCode,
		SMSCode:        req.SMSCode,
		TOTPCode:       req.TOTPCode,
	})
	if err != nil {
		writeSignupError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, signupVerifyResponse{
		OrganizationID:        result.OrganizationID.String(),
		WorkspaceEmail:        result.WorkspaceEmail,
		TempWorkspacePassword: result.TempWorkspacePassword,
		DatabaseName:          result.DatabaseName,
		DatabaseUser:          result.DatabaseUser,
		DatabasePassword:      result.DatabasePassword,
	})
}

// handleLogin is reserved; the login flow is not implemented.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	writeError(r.Context(), w, http.StatusNotImplemented, "login is not implemented")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeSignupError maps the signup error taxonomy onto HTTP statuses.
// Internal details are logged, never returned to the client.
func writeSignupError(ctx context.Context, w http.ResponseWriter, err error) {
	var validationErr *signup.ValidationError
	var factorErr *signup.FactorError

	switch {
	case errors.As(err, &validationErr):
		writeError(ctx, w, http.StatusBadRequest, validationErr.Reason)
	case errors.As(err, &factorErr):
		writeError(ctx, w, http.StatusBadRequest, factorErr.Error())
	case errors.Is(err, signup.ErrDuplicate):
		writeError(ctx, w, http.StatusConflict, err.Error())
	case errors.Is(err, signup.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, err.Error())
	case errors.Is(err, signup.ErrExpired):
		writeError(ctx, w, http.StatusGone, err.Error())
	case errors.Is(err, signup.ErrRateLimited):
		writeError(ctx, w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, signup.ErrUpstream):
		zerolog.Ctx(ctx).Error().Err(err).Msg("Upstream provider failure")
		writeError(ctx, w, http.StatusBadGateway, "an upstream provider is unavailable, please try again later")
	case errors.Is(err, signup.ErrProvisioning):
		zerolog.Ctx(ctx).Error().Err(err).Msg("Tenant database provisioning failure")
		writeError(ctx, w, http.StatusInternalServerError, "tenant provisioning failed")
	default:
		zerolog.Ctx(ctx).Error().Err(err).Msg("Signup call failed")
		writeError(ctx, w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	writeJSON(ctx, w, status, map[string]string{"error": message})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Failed to encode response")
	}
}
