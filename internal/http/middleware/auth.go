package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	"docconvert/internal/domain"
	"docconvert/internal/tokens"
)

// ContextKey is the fiber local holding the authenticated API key.
const ContextKey = "api_key"

// TokenStore answers token lookups.
type TokenStore interface {
	Ready() bool
	Lookup(token string) (tokens.Entry, bool)
}

// APIKey authenticates X-API-Key. Without required, requests carrying no key
// pass through anonymously.
func APIKey(store TokenStore, required bool) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: ContextKey,
		Validator: func(_ *fiber.Ctx, key string) (bool, error) {
			if store == nil || !store.Ready() {
				return false, domain.ErrTokenStoreNotReady
			}
			if _, ok := store.Lookup(key); !ok {
				return false, domain.ErrInvalidAPIKey
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			if c.Method() == fiber.MethodOptions {
				return true
			}
			return !required && c.Get("X-API-Key") == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Keyauth can call ErrorHandler with a nil error.
			status := fiber.StatusUnauthorized
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			if errors.Is(err, domain.ErrTokenStoreNotReady) {
				status = fiber.StatusServiceUnavailable
			}
			return JSONError(c, status, err.Error())
		},
	})
}

// RequireScope rejects authenticated keys whose scope excludes scope.
// Anonymous requests are left to APIKey.
func RequireScope(store TokenStore, scope string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, ok := c.Locals(ContextKey).(string)
		if !ok || key == "" || store == nil {
			return c.Next()
		}
		entry, _ := store.Lookup(key)
		if !entry.Allows(scope) {
			return JSONError(c, fiber.StatusForbidden, "api key is not allowed to use "+scope+" routes")
		}
		return c.Next()
	}
}
