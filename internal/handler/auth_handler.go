package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"evernote-syncd/internal/config"
	"evernote-syncd/pkg/hash"
	"evernote-syncd/pkg/jwt"
	"evernote-syncd/pkg/response"

	"github.com/go-playground/validator/v10"
)

// operatorID is the subject of every issued API token. The daemon has a
// single operator; there are no user accounts.
const operatorID = "operator"

type LoginRequest struct {
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type AuthHandler struct {
	api       config.APIConfig
	validator *validator.Validate
}

func NewAuthHandler(api config.APIConfig) *AuthHandler {
	return &AuthHandler{
		api:       api,
		validator: validator.New(),
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := hash.Compare(h.api.PasswordHash, req.Password); err != nil {
		response.Unauthorized(w, "Invalid password")
		return
	}

	token, err := jwt.GenerateToken(operatorID, h.api.JWTExpiration, h.api.JWTSecret)
	if err != nil {
		response.InternalError(w, "Could not issue token")
		return
	}

	refresh, err := jwt.GenerateRefreshToken(operatorID, 7*24*time.Hour, h.api.JWTSecret)
	if err != nil {
		response.InternalError(w, "Could not issue refresh token")
		return
	}

	response.Success(w, LoginResponse{
		Token:        token,
		RefreshToken: refresh,
		ExpiresIn:    int64(h.api.JWTExpiration.Seconds()),
	})
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	claims, err := jwt.ValidateToken(req.RefreshToken, h.api.JWTSecret)
	if err != nil {
		response.Unauthorized(w, "Invalid or expired refresh token")
		return
	}

	token, err := jwt.GenerateToken(claims.UserID, h.api.JWTExpiration, h.api.JWTSecret)
	if err != nil {
		response.InternalError(w, "Could not issue token")
		return
	}

	response.Success(w, LoginResponse{
		Token:        token,
		RefreshToken: req.RefreshToken,
		ExpiresIn:    int64(h.api.JWTExpiration.Seconds()),
	})
}
