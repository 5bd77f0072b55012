package handler

import (
	"encoding/json"
	"net/http"

	"bidhub-api/internal/model"
	"bidhub-api/internal/repository"
	"bidhub-api/internal/service"
	"bidhub-api/pkg/apierror"
	"bidhub-api/pkg/response"
)

// AuthHandler handles session token HTTP requests.
type AuthHandler struct {
	tokenService *service.TokenService
	users        repository.UserRepository
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(tokenService *service.TokenService, users repository.UserRepository) *AuthHandler {
	return &AuthHandler{
		tokenService: tokenService,
		users:        users,
	}
}

// TokenRequest is the request body for token generation.
type TokenRequest struct {
	UserID string `json:"user_id"`
	Secret string `json:"secret"`
}

// TokenResponse is the response for token generation.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// GenerateToken handles POST /api/v1/auth/token
func (h *AuthHandler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.UserID == "" || req.Secret == "" {
		response.Error(w, apierror.BadRequest("user_id and secret are required"))
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.UserID, req.Secret)
	if err != nil {
		response.Error(w, apierror.Unauthorized("invalid credentials"))
		return
	}

	token, err := h.tokenService.GenerateToken(r.Context(), model.TokenData{
		UserID:   user.ID,
		UserName: user.DisplayName,
		Email:    user.Email,
	})
	if err != nil {
		response.Error(w, apierror.InternalError("failed to generate token"))
		return
	}

	response.OK(w, TokenResponse{
		Token:     token,
		ExpiresIn: int(service.TokenTTL.Seconds()),
	})
}

// RevokeToken handles POST /api/v1/auth/revoke
func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Token")
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header is required"))
		return
	}

	if err := h.tokenService.RevokeToken(r.Context(), token); err != nil {
		response.Error(w, apierror.InternalError("failed to revoke token"))
		return
	}

	response.OK(w, map[string]interface{}{"revoked": true})
}
