package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/groupchat-api/internal/utils"
)

// Locals keys populated by JWTProtected.
const (
	LocalUserID   = "user_id"
	LocalUserName = "user_name"
)

// JWTProtected returns a middleware that validates JWT bearer tokens. Browsers
// cannot set headers on websocket upgrades, so the token may also arrive in
// the access_token query parameter.
func JWTProtected(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		if userID := extractUserIDFromClaims(claims); userID != "" {
			c.Locals(LocalUserID, userID)
		}
		if name := extractNameFromClaims(claims); name != "" {
			c.Locals(LocalUserName, name)
		}

		return c.Next()
	}
}

// UserID returns the authenticated user id, or an empty string.
func UserID(c *fiber.Ctx) string {
	if value, ok := c.Locals(LocalUserID).(string); ok {
		return value
	}
	return ""
}

// UserName returns the display name carried by the token, or an empty string.
func UserName(c *fiber.Ctx) string {
	if value, ok := c.Locals(LocalUserName).(string); ok {
		return value
	}
	return ""
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authorization := c.Get("Authorization")
	if authorization == "" {
		if token := strings.TrimSpace(c.Query("access_token")); token != "" {
			return token, nil
		}
		return "", fmt.Errorf("authorization header missing")
	}

	const bearer = "Bearer "
	if !strings.HasPrefix(strings.ToLower(authorization), strings.ToLower(bearer)) {
		return "", fmt.Errorf("invalid authorization header")
	}

	tokenString := strings.TrimSpace(authorization[len(bearer):])
	if tokenString == "" {
		return "", fmt.Errorf("invalid token")
	}
	return tokenString, nil
}

func extractUserIDFromClaims(claims jwt.MapClaims) string {
	keys := []string{"sub", "user_id", "uid"}
	for _, key := range keys {
		if value, ok := claims[key]; ok {
			if normalized, err := normalizeUserID(value); err == nil && normalized != "" {
				return normalized
			}
		}
	}

	return ""
}

func normalizeUserID(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		if v < 0 {
			return "", fmt.Errorf("invalid subject")
		}
		return strconv.FormatUint(uint64(v), 10), nil
	case int:
		if v < 0 {
			return "", fmt.Errorf("invalid subject")
		}
		return strconv.Itoa(v), nil
	default:
		return "", fmt.Errorf("unsupported subject type")
	}
}

func extractNameFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"name", "display_name", "username"} {
		if value, ok := claims[key].(string); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}
