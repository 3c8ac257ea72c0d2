package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"sanuda/internal/core/domain"
	"sanuda/internal/core/services"
	"sanuda/internal/platform/logger"
)

type AuthHandler struct {
	userSvc  *services.UserService
	tokenSvc *services.TokenService
}

func NewAuthHandler(u *services.UserService, t *services.TokenService) *AuthHandler {
	return &AuthHandler{userSvc: u, tokenSvc: t}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	user, err := h.userSvc.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		log.ErrorContext(r.Context(), "auth handler - register failed", "username", req.Username, "err", err)
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrUserExists) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	h.respondWithToken(w, r, log, user.ID, user.Username)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	user, err := h.userSvc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		log.WarnContext(r.Context(), "auth handler - login failed", "username", req.Username)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	h.respondWithToken(w, r, log, user.ID, user.Username)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, log *slog.Logger, userID, username string) {
	token, err := h.tokenSvc.GenerateToken(userID)
	if err != nil {
		log.ErrorContext(r.Context(), "auth handler - generate token failed", "user_id", userID, "err", err)
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token":    token,
		"user_id":  userID,
		"username": username,
	})
	log.InfoContext(r.Context(), "auth handler - token issued", "user_id", userID)
}
