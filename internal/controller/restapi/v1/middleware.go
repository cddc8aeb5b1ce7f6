package v1

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const _callerIDKey = "caller_user_id"

// AuthMiddleware resolves the caller through the identity provider's signed
// token: the JWT subject is the caller's user id.
func AuthMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		header := ctx.Get(fiber.HeaderAuthorization)

		tokenStr, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenStr == "" {
			return errorResponse(ctx, http.StatusUnauthorized, "missing bearer token")
		}

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			return errorResponse(ctx, http.StatusUnauthorized, "invalid token")
		}

		sub, err := token.Claims.GetSubject()
		if err != nil {
			return errorResponse(ctx, http.StatusUnauthorized, "invalid token subject")
		}

		userID, err := uuid.Parse(sub)
		if err != nil {
			return errorResponse(ctx, http.StatusUnauthorized, "invalid token subject")
		}

		ctx.Locals(_callerIDKey, userID)

		return ctx.Next()
	}
}

func callerID(ctx *fiber.Ctx) (uuid.UUID, bool) {
	id, ok := ctx.Locals(_callerIDKey).(uuid.UUID)
	return id, ok
}
