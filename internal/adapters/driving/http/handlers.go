package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/publica-labs/publica-core/internal/core/domain"
	"github.com/publica-labs/publica-core/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Returns the readiness status of the API (checks database and cache connections)
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  ErrorResponse  "A backing store is unreachable"
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "cache unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Auth endpoints

// registerRequest holds new account details
// @Description New account details
type registerRequest struct {
	Email    string `json:"email" example:"author@example.com"`
	Name     string `json:"name" example:"Jane Author"`
	Password string `json:"password" example:"hunter2"`
}

// handleRegister godoc
// @Summary      Register account
// @Description  Create a new user account
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body      registerRequest  true  "Account details"
// @Success      201      {object}  domain.UserSummary
// @Failure      400      {object}  ErrorResponse  "Invalid input"
// @Failure      409      {object}  ErrorResponse  "Email already registered"
// @Failure      500      {object}  ErrorResponse  "Internal server error"
// @Router       /auth/register [post]
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := s.authService.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyExists):
			writeError(w, http.StatusConflict, "email already registered")
		default:
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// handleLogin godoc
// @Summary      User login
// @Description  Authenticate with email and password to receive a JWT token
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body      domain.LoginRequest  true  "Login credentials"
// @Success      200      {object}  domain.LoginResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      401      {object}  ErrorResponse  "Invalid credentials"
// @Failure      500      {object}  ErrorResponse  "Internal server error"
// @Router       /auth/login [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.authService.Authenticate(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			writeError(w, http.StatusInternalServerError, "authentication failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Connection endpoints

// handleListConnections godoc
// @Summary      List connections
// @Description  Get the connection status of every supported provider for the current user
// @Tags         Connections
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   domain.ConnectionStatus
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      500  {object}  ErrorResponse  "Internal server error"
// @Router       /connections [get]
func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	statuses, err := s.connectionService.List(r.Context(), authCtx.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list connections")
		return
	}

	writeJSON(w, http.StatusOK, statuses)
}

// handleGetConnection godoc
// @Summary      Get connection status
// @Description  Get the connection status of one provider for the current user
// @Tags         Connections
// @Produce      json
// @Security     BearerAuth
// @Param        provider  path      string  true  "Provider key"  Enums(wix, wordpress, gsc, bing)
// @Success      200       {object}  domain.ConnectionStatus
// @Failure      400       {object}  ErrorResponse  "Unsupported provider"
// @Failure      401       {object}  ErrorResponse  "Unauthorized"
// @Failure      500       {object}  ErrorResponse  "Internal server error"
// @Router       /connections/{provider} [get]
func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	provider, ok := providerFromPath(w, r)
	if !ok {
		return
	}

	status, err := s.connectionService.Status(r.Context(), authCtx.UserID, provider)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load connection")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleDisconnect godoc
// @Summary      Disconnect provider
// @Description  Disconnect a provider and clear its stored credentials. Idempotent.
// @Tags         Connections
// @Produce      json
// @Security     BearerAuth
// @Param        provider  path      string  true  "Provider key"  Enums(wix, wordpress, gsc, bing)
// @Success      200       {object}  StatusResponse
// @Failure      400       {object}  ErrorResponse  "Unsupported provider"
// @Failure      401       {object}  ErrorResponse  "Unauthorized"
// @Failure      500       {object}  ErrorResponse  "Internal server error"
// @Router       /connections/{provider} [delete]
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	provider, ok := providerFromPath(w, r)
	if !ok {
		return
	}

	if err := s.connectionService.Disconnect(r.Context(), authCtx.UserID, provider); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to disconnect")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// handleAuthorize godoc
// @Summary      Start authorization
// @Description  Start (or restart) the OAuth flow for a provider. Restarting invalidates any earlier pending flow.
// @Tags         Connections
// @Produce      json
// @Security     BearerAuth
// @Param        provider  path      string  true  "Provider key"  Enums(wix, wordpress, gsc, bing)
// @Success      200       {object}  driving.BeginAuthorizationResponse
// @Failure      400       {object}  ErrorResponse  "Unsupported provider"
// @Failure      401       {object}  ErrorResponse  "Unauthorized"
// @Failure      500       {object}  ErrorResponse  "Internal server error"
// @Router       /connections/{provider}/authorize [post]
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	provider, ok := providerFromPath(w, r)
	if !ok {
		return
	}

	resp, err := s.connectionService.BeginAuthorization(r.Context(), driving.BeginAuthorizationRequest{
		UserID:   authCtx.UserID,
		Provider: provider,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedProvider) {
			writeError(w, http.StatusBadRequest, "unsupported provider")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to start authorization")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// callbackResponse reports the completed authorization plus any resumed publish
// @Description Result of the provider callback
type callbackResponse struct {
	Connection *domain.ConnectionStatus `json:"connection"`
	Message    string                   `json:"message"`

	// Resumed is the outcome of the publish that was parked while the
	// connection was broken, if one existed.
	Resumed *domain.PublishResult `json:"resumed,omitempty"`
}

// handleCallback godoc
// @Summary      Authorization callback
// @Description  Completes the OAuth flow. The provider redirects here with code and state; the single-use state identifies the user. A parked publish for the pair resumes automatically.
// @Tags         Connections
// @Produce      json
// @Param        provider           path      string  true   "Provider key"  Enums(wix, wordpress, gsc, bing)
// @Param        code               query     string  false  "Authorization code"
// @Param        state              query     string  true   "State token"
// @Param        error              query     string  false  "Provider error code"
// @Param        error_description  query     string  false  "Provider error description"
// @Success      200  {object}  callbackResponse
// @Failure      400  {object}  ErrorResponse  "Invalid state or provider error"
// @Failure      502  {object}  ErrorResponse  "Code exchange failed"
// @Router       /connections/{provider}/callback [get]
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := providerFromPath(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	resp, err := s.connectionService.CompleteAuthorization(r.Context(), driving.CompleteAuthorizationRequest{
		Provider:         provider,
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	})
	if err != nil {
		var connectErr *domain.ConnectError
		switch {
		case errors.As(err, &connectErr):
			writeError(w, http.StatusBadRequest, connectErr.Error())
		case errors.Is(err, domain.ErrInvalidState):
			writeError(w, http.StatusBadRequest, "invalid or expired state token")
		case errors.Is(err, domain.ErrExchangeFailed):
			writeError(w, http.StatusBadGateway, "code exchange failed")
		default:
			writeError(w, http.StatusInternalServerError, "authorization failed")
		}
		return
	}

	out := &callbackResponse{Connection: resp.Connection, Message: resp.Message}

	// Resume whatever was parked while the connection was broken. The retry
	// outcome is informational; the reconnection itself already succeeded.
	if resumed, resumeErr := s.publishService.OnReconnected(r.Context(), resp.UserID, provider); resumeErr == nil {
		out.Resumed = resumed
	}

	writeJSON(w, http.StatusOK, out)
}

// handleReconnected godoc
// @Summary      Resume parked publish
// @Description  Re-run the publish parked for this provider, if any. No-op when nothing is parked.
// @Tags         Publish
// @Produce      json
// @Security     BearerAuth
// @Param        provider  path      string  true  "Provider key"  Enums(wix, wordpress, gsc, bing)
// @Success      200       {object}  domain.PublishResult
// @Failure      400       {object}  ErrorResponse  "Unsupported provider"
// @Failure      401       {object}  ErrorResponse  "Unauthorized"
// @Failure      500       {object}  ErrorResponse  "Internal server error"
// @Router       /connections/{provider}/reconnected [post]
func (s *Server) handleReconnected(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	provider, ok := providerFromPath(w, r)
	if !ok {
		return
	}

	result, err := s.publishService.OnReconnected(r.Context(), authCtx.UserID, provider)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resume publish")
		return
	}
	if result == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "nothing_parked"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Publish endpoints

// handlePublish godoc
// @Summary      Publish content
// @Description  Publish the request body to a provider. On authorization failure the payload is parked and resumes after reconnection.
// @Tags         Publish
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        provider  path      string  true  "Provider key"  Enums(wix, wordpress, gsc, bing)
// @Param        payload   body      object  true  "Provider-specific payload"
// @Success      200       {object}  domain.PublishResult
// @Failure      400       {object}  ErrorResponse  "Unsupported provider or invalid payload"
// @Failure      401       {object}  ErrorResponse  "Unauthorized"
// @Failure      500       {object}  ErrorResponse  "Internal server error"
// @Router       /publish/{provider} [post]
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	provider, ok := providerFromPath(w, r)
	if !ok {
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil || len(payload) == 0 || !json.Valid(payload) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.publishService.Publish(r.Context(), driving.PublishRequest{
		UserID:   authCtx.UserID,
		Provider: provider,
		Payload:  payload,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnsupportedProvider):
			writeError(w, http.StatusBadRequest, "unsupported provider")
		default:
			writeError(w, http.StatusInternalServerError, "publish failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDiscardParked godoc
// @Summary      Discard parked publish
// @Description  Drop the publish parked for this provider so it is not resumed on reconnection. No-op when nothing is parked.
// @Tags         Publish
// @Produce      json
// @Security     BearerAuth
// @Param        provider  path      string  true  "Provider key"  Enums(wix, wordpress, gsc, bing)
// @Success      200       {object}  StatusResponse
// @Failure      400       {object}  ErrorResponse  "Unsupported provider"
// @Failure      401       {object}  ErrorResponse  "Unauthorized"
// @Failure      500       {object}  ErrorResponse  "Internal server error"
// @Router       /publish/{provider}/parked [delete]
func (s *Server) handleDiscardParked(w http.ResponseWriter, r *http.Request) {
	authCtx := GetAuthContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	provider, ok := providerFromPath(w, r)
	if !ok {
		return
	}

	if err := s.publishService.DiscardParked(r.Context(), authCtx.UserID, provider); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to discard parked publish")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{Status: "discarded"})
}

// Helper functions

// providerFromPath parses the {provider} path value, writing a 400 on failure.
func providerFromPath(w http.ResponseWriter, r *http.Request) (domain.ProviderType, bool) {
	provider, err := domain.ParseProviderType(r.PathValue("provider"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported provider")
		return "", false
	}
	return provider, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
