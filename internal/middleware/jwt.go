package middleware

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	jwt.RegisteredClaims
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
}

type JWTVerifier struct {
	secretKey []byte
}

func NewJWTVerifier(jwtSecret string) *JWTVerifier {
	return &JWTVerifier{
		secretKey: []byte(jwtSecret),
	}
}

func (v *JWTVerifier) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.secretKey, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	return claims, nil
}

// Authenticate accepts requests either pre-authenticated by the
// gateway (identity headers already set) or carrying a bearer token,
// which it verifies and translates into the same headers.
func (v *JWTVerifier) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Get("X-User-ID") != "" {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		claims, err := v.VerifyToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Request().Header.Set("X-User-ID", claims.Username)
		c.Request().Header.Set("X-User-Permissions", strings.Join(claims.Permissions, ","))

		return c.Next()
	}
}
