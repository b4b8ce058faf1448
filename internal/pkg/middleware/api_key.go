package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/CertLedger/internal/pkg/usercontext"
)

// AdminKey is a named bcrypt hash of an admin API key.
type AdminKey struct {
	Name string
	Hash []byte
}

// ParseAdminKeys parses "name:bcrypt-hash" entries, e.g. from ADMIN_API_KEYS.
func ParseAdminKeys(entries []string) ([]AdminKey, error) {
	keys := make([]AdminKey, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, hash, ok := strings.Cut(entry, ":")
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("admin key entry %q must be name:bcrypt-hash", name)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("admin key %q: %w", name, err)
		}
		keys = append(keys, AdminKey{Name: name, Hash: []byte(hash)})
	}
	return keys, nil
}

// HashAdminKey returns the bcrypt hash to store for a new admin key.
func HashAdminKey(plain string) (string, error) {
	if len(plain) < 16 {
		return "", errors.New("admin keys must be at least 16 characters")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// AdminAPIKeyMiddleware authenticates requests carrying an admin API key
// header.
func AdminAPIKeyMiddleware(keys []AdminKey) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		for _, k := range keys {
			if bcrypt.CompareHashAndPassword(k.Hash, []byte(apiKey)) == nil {
				id := usercontext.Get(c)
				id.AdminName = k.Name
				id.IsAdmin = true
				usercontext.Set(c, id)
				return c.Next()
			}
		}

		log.Warnf("[Auth] Rejected admin API key from %s on %s", c.IP(), c.Path())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
