package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/auth"
	"classroom-backend/internal/logger"
	"classroom-backend/internal/model"
)

// UserStore 인증 핸들러가 쓰는 사용자 저장소
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// AuthHandler 인증 핸들러
type AuthHandler struct {
	users        UserStore
	jwtManager   *auth.JWTManager
	google       auth.GoogleVerifier
	secureCookie bool
	log          *logger.Logger
}

// NewAuthHandler AuthHandler 생성
func NewAuthHandler(users UserStore, jwtManager *auth.JWTManager, google auth.GoogleVerifier, secureCookie bool, log *logger.Logger) *AuthHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthHandler{
		users:        users,
		jwtManager:   jwtManager,
		google:       google,
		secureCookie: secureCookie,
		log:          log.With("component", "auth"),
	}
}

// RegisterRequest 회원가입 요청
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

// LoginRequest 로그인 요청
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// GoogleLoginRequest Google 로그인 요청
type GoogleLoginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// AuthResponse 인증 응답
type AuthResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"access_token"`
	ExpiresIn   int64        `json:"expires_in"`
}

// UserResponse 사용자 응답
type UserResponse struct {
	ID        string             `json:"id"`
	Email     string             `json:"email"`
	FirstName string             `json:"first_name"`
	LastName  string             `json:"last_name"`
	Provider  model.AuthProvider `json:"provider"`
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Provider:  u.Provider,
	}
}

// Register 이메일/비밀번호 가입
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return badRequest(c, err.Error())
	}

	user := &model.User{
		Email:        req.Email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: hash,
		Provider:     model.ProviderPassword,
	}
	if err := h.users.CreateUser(c.UserContext(), user); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return fail(c, apperr.Conflict("email already registered"))
		}
		return fail(c, err)
	}

	h.log.Info("user registered", "user_id", user.ID)
	return h.issue(c, fiber.StatusCreated, user)
}

// Login 이메일/비밀번호 로그인
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}

	invalid := apperr.New(apperr.KindInvalidCredential, "invalid email or password", nil)
	user, err := h.users.GetUserByEmail(c.UserContext(), req.Email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return fail(c, invalid)
		}
		return fail(c, err)
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		h.log.Debug("login rejected", "user_id", user.ID)
		return fail(c, invalid)
	}
	return h.issue(c, fiber.StatusOK, user)
}

// GoogleLogin Google OAuth 로그인
func (h *AuthHandler) GoogleLogin(c *fiber.Ctx) error {
	var req GoogleLoginRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	if h.google == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": auth.ErrGoogleDisabled.Error(),
		})
	}

	// Google ID Token 검증
	ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
	defer cancel()

	googleUser, err := h.google.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		if errors.Is(err, auth.ErrGoogleDisabled) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid google token",
			"code":  string(apperr.KindUnauthorized),
		})
	}

	// 사용자 조회 또는 생성
	user, err := h.users.GetUserByEmail(c.UserContext(), googleUser.Email)
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		providerID := googleUser.ID
		user = &model.User{
			Email:      googleUser.Email,
			FirstName:  googleUser.GivenName,
			LastName:   googleUser.FamilyName,
			Provider:   model.ProviderGoogle,
			ProviderID: &providerID,
		}
		if user.FirstName == "" && user.LastName == "" {
			user.FirstName = googleUser.Name
		}
		if err := h.users.CreateUser(c.UserContext(), user); err != nil {
			return fail(c, err)
		}
		h.log.Info("user registered", "user_id", user.ID, "provider", model.ProviderGoogle)
	case err != nil:
		return fail(c, err)
	}

	return h.issue(c, fiber.StatusOK, user)
}

// issue 액세스 토큰 응답 + 리프레시 토큰 쿠키
func (h *AuthHandler) issue(c *fiber.Ctx, status int, user *model.User) error {
	accessToken, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email, user.DisplayName())
	if err != nil {
		return fail(c, apperr.Backend("failed to generate token", err))
	}
	refreshToken, err := h.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return fail(c, apperr.Backend("failed to generate refresh token", err))
	}

	// HTTP-Only 쿠키로 리프레시 토큰 설정
	c.Cookie(&fiber.Cookie{
		Name:     auth.RefreshCookie,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(h.jwtManager.RefreshExpiry().Seconds()),
		Secure:   h.secureCookie,
		HTTPOnly: true,
		SameSite: "Lax",
	})

	return c.Status(status).JSON(AuthResponse{
		User:        toUserResponse(user),
		AccessToken: accessToken,
		ExpiresIn:   int64(h.jwtManager.AccessExpiry().Seconds()),
	})
}

func (h *AuthHandler) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     auth.RefreshCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   h.secureCookie,
		HTTPOnly: true,
	})
}

// RefreshToken 토큰 갱신
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	refreshToken := c.Cookies(auth.RefreshCookie)
	if refreshToken == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "refresh token not found",
			"code":  string(apperr.KindUnauthorized),
		})
	}

	userID, err := h.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		h.clearRefreshCookie(c)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid or expired refresh token",
			"code":  string(apperr.KindUnauthorized),
		})
	}

	user, err := h.users.GetUserByID(c.UserContext(), userID)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "user not found",
			"code":  string(apperr.KindUnauthorized),
		})
	}

	accessToken, err := h.jwtManager.GenerateAccessToken(user.ID, user.Email, user.DisplayName())
	if err != nil {
		return fail(c, apperr.Backend("failed to generate token", err))
	}
	return c.JSON(fiber.Map{
		"access_token": accessToken,
		"expires_in":   int64(h.jwtManager.AccessExpiry().Seconds()),
	})
}

// Logout 로그아웃
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.clearRefreshCookie(c)
	return c.JSON(fiber.Map{
		"message": "logged out successfully",
	})
}

// GetMe 현재 사용자 정보
func (h *AuthHandler) GetMe(c *fiber.Ctx) error {
	user, err := h.users.GetUserByID(c.UserContext(), auth.UserID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(toUserResponse(user))
}
