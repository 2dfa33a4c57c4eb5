package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	localsUserID = "userID"
	localsClaims = "claims"

	// AccessCookie 액세스 토큰 쿠키 이름
	AccessCookie = "access_token"
	// RefreshCookie 리프레시 토큰 쿠키 이름
	RefreshCookie = "refresh_token"
)

func unauthorized(c *fiber.Ctx, msg, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": msg,
		"code":  code,
	})
}

// bearerToken Authorization 헤더 또는 쿠키
func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Cookies(AccessCookie), nil
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

func authenticate(c *fiber.Ctx, jwtManager *JWTManager, token string) error {
	if token == "" {
		return unauthorized(c, "missing authorization token", "UNAUTHORIZED")
	}
	claims, err := jwtManager.ValidateAccessToken(token)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return unauthorized(c, "token expired", "TOKEN_EXPIRED")
		}
		return unauthorized(c, "invalid token", "UNAUTHORIZED")
	}

	// 사용자 정보를 컨텍스트에 저장
	c.Locals(localsUserID, claims.UserID)
	c.Locals(localsClaims, claims)
	return c.Next()
}

// AuthMiddleware JWT 인증 미들웨어
func AuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := bearerToken(c)
		if err != nil {
			return unauthorized(c, err.Error(), "UNAUTHORIZED")
		}
		return authenticate(c, jwtManager, token)
	}
}

// WSAuthMiddleware WebSocket 업그레이드용. 브라우저는 헤더를 못 붙이므로 ?access_token= 도 받는다.
func WSAuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := bearerToken(c)
		if err != nil {
			return unauthorized(c, err.Error(), "UNAUTHORIZED")
		}
		if token == "" {
			token = c.Query("access_token")
		}
		return authenticate(c, jwtManager, token)
	}
}

// UserID 인증된 사용자 ID ("" 이면 미인증)
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localsUserID).(string)
	return id
}

// ClaimsFrom 인증 클레임
func ClaimsFrom(c *fiber.Ctx) *Claims {
	claims, _ := c.Locals(localsClaims).(*Claims)
	return claims
}
