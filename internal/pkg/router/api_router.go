package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/CertLedger/app/controllers"
	"github.com/ManuelReschke/CertLedger/internal/pkg/cache"
	"github.com/ManuelReschke/CertLedger/internal/pkg/env"
	"github.com/ManuelReschke/CertLedger/internal/pkg/middleware"
)

// RateLimit bounds requests per client IP on the public verification routes.
type RateLimit struct {
	Max    int
	Window time.Duration
	// Storage shares counters between instances. Nil keeps them in memory.
	Storage fiber.Storage
}

// ProxyConfig returns the fiber settings that let c.IP resolve the client
// address from ProxyHeader, but only for requests from TRUSTED_PROXIES.
func ProxyConfig() (header string, trusted []string) {
	trusted = env.GetEnvList("TRUSTED_PROXIES")
	if len(trusted) == 0 {
		return "", nil
	}
	return env.GetEnv("PROXY_HEADER", fiber.HeaderXForwardedFor), trusted
}

// LoadRateLimit reads RATE_LIMIT_* and stores counters in Redis database 1
// when a cache server is configured.
func LoadRateLimit(cacheCfg cache.Config) RateLimit {
	rl := RateLimit{
		Max:    env.GetEnvInt("RATE_LIMIT_MAX", 60),
		Window: env.GetEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}
	if cacheCfg.Enabled() {
		port, err := strconv.Atoi(cacheCfg.Port)
		if err != nil {
			port = 6379
		}
		rl.Storage = redis.New(redis.Config{
			Host:     cacheCfg.Host,
			Port:     port,
			Password: cacheCfg.Password,
			Database: 1, // Separate database for rate limit counters
			Reset:    false,
		})
	}
	return rl
}

type ApiRouter struct {
	handlers  *controllers.Handlers
	adminKeys []middleware.AdminKey
	rateLimit RateLimit
}

func NewApiRouter(h *controllers.Handlers, adminKeys []middleware.AdminKey, rl RateLimit) *ApiRouter {
	return &ApiRouter{handlers: h, adminKeys: adminKeys, rateLimit: rl}
}

func (r *ApiRouter) limiter() fiber.Handler {
	max := r.rateLimit.Max
	if max <= 0 {
		max = 60
	}
	window := r.rateLimit.Window
	if window <= 0 {
		window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		Storage:    r.rateLimit.Storage,
		// c.IP only honours a proxy header for TrustedProxies.
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests, please slow down",
			})
		},
	})
}

func (r *ApiRouter) InstallRouter(app *fiber.App) {
	h := r.handlers

	api := app.Group("/api", middleware.IdentityMiddleware)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// public credential endpoints
	limited := r.limiter()
	v1.Get("/credentials/verify", limited, h.HandleVerifyCredential)
	v1.Get("/credentials/verify/:id", limited, h.HandleVerifyCredential)
	v1.Post("/credentials/verify/:id/compare", limited, h.HandleCompareCredential)
	v1.Post("/credentials/scan", limited, h.HandleScanCredential)
	v1.Get("/credentials/:id/qr.png", limited, h.HandleCredentialQR)

	v1.Post("/promo-codes/validate", h.HandleValidatePromoCode)

	// payments
	v1.Post("/payments/gateway/begin", middleware.RequireStudent, h.HandleBeginGatewayPayment)
	v1.Post("/payments/gateway/callback", h.HandleGatewayCallback)
	v1.Post("/payments/proofs", middleware.RequireStudent, h.HandleSubmitPaymentProof)

	// admin
	admin := v1.Group("/admin", middleware.AdminAPIKeyMiddleware(r.adminKeys))
	admin.Post("/credentials/custom", h.HandleIssueCustomCredential)
	admin.Post("/credentials/completion", h.HandleIssueCompletionCredential)
	admin.Get("/credentials/:id/document.pdf", h.HandleCredentialDocument)
	admin.Post("/enrollments/:id/progress", h.HandleRecordProgress)
	admin.Post("/promo-codes", h.HandleCreatePromoCode)
	admin.Get("/promo-codes", h.HandleListPromoCodes)
	admin.Get("/payments/proofs", h.HandleListPaymentProofs)
	admin.Get("/payments/proofs/export.xlsx", h.HandleExportPaymentProofs)
	admin.Post("/payments/proofs/:id/decision", h.HandleDecidePaymentProof)
}
