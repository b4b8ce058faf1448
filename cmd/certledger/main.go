package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/CertLedger/app/controllers"
	"github.com/ManuelReschke/CertLedger/app/repository"
	"github.com/ManuelReschke/CertLedger/app/repository/inmem"
	"github.com/ManuelReschke/CertLedger/internal/pkg/cache"
	"github.com/ManuelReschke/CertLedger/internal/pkg/certificate"
	"github.com/ManuelReschke/CertLedger/internal/pkg/credential"
	"github.com/ManuelReschke/CertLedger/internal/pkg/database"
	"github.com/ManuelReschke/CertLedger/internal/pkg/enrollment"
	"github.com/ManuelReschke/CertLedger/internal/pkg/env"
	"github.com/ManuelReschke/CertLedger/internal/pkg/events"
	"github.com/ManuelReschke/CertLedger/internal/pkg/evidence"
	"github.com/ManuelReschke/CertLedger/internal/pkg/middleware"
	"github.com/ManuelReschke/CertLedger/internal/pkg/payment"
	"github.com/ManuelReschke/CertLedger/internal/pkg/payu"
	"github.com/ManuelReschke/CertLedger/internal/pkg/promo"
	"github.com/ManuelReschke/CertLedger/internal/pkg/router"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-key" {
		hashKey(os.Args[2:])
		return
	}

	env.SetupEnvFile()

	app, closeFn, err := NewApplication()
	if err != nil {
		log.Fatalf("[Main] Startup failed: %v", err)
	}

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	go func() {
		log.Infof("[Main] Listening on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("[Main] Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)
	closeFn()
}

// hashKey prints the bcrypt hash of an admin key for ADMIN_API_KEYS.
func hashKey(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: certledger hash-key <plain-key>")
		os.Exit(1)
	}
	h, err := middleware.HashAdminKey(args[0])
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Println(h)
}

// NewApplication wires storage, domain services and routes. The returned
// func releases connections.
func NewApplication() (*fiber.App, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, err := openStore(database.LoadConfig())
	if err != nil {
		return nil, nil, err
	}

	cacheCfg := cache.LoadConfig()
	var verifyCache cache.Cache = cache.NewMemory()
	if cacheCfg.Enabled() {
		client := cache.NewClient(cacheCfg)
		closers = append(closers, func() { _ = client.Close() })
		verifyCache = cache.NewRedis(client, "certledger:")
	}

	publisher := events.NewPublisher(events.LoadConfig())
	closers = append(closers, func() { _ = publisher.Close() })

	codec, err := credential.NewCodec(credential.LoadConfig())
	if err != nil {
		return nil, nil, err
	}

	evidenceCfg, err := evidence.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	checker, err := evidence.NewChecker(evidenceCfg)
	if err != nil {
		return nil, nil, err
	}

	adminKeys, err := middleware.ParseAdminKeys(env.GetEnvList("ADMIN_API_KEYS"))
	if err != nil {
		return nil, nil, err
	}
	if len(adminKeys) == 0 {
		log.Warn("[Main] ADMIN_API_KEYS is empty, admin routes will reject every request")
	}

	promos := promo.NewEngine(store.PromoCodes())
	pricer := payment.NewPricer(store.Catalog(), promos)
	activator := enrollment.NewActivator(store, publisher)
	gateway, err := payment.NewGatewayService(store, payu.LoadConfig(), pricer, activator, publisher)
	if err != nil {
		return nil, nil, err
	}

	handlers := &controllers.Handlers{
		Issuer:    certificate.NewIssuer(store, publisher),
		Verifier:  certificate.NewVerifier(store.Credentials(), verifyCache, env.GetEnvDuration("VERIFY_CACHE_TTL", certificate.DefaultCacheTTL)),
		Renderer:  certificate.NewRenderer(store.Credentials(), codec, env.GetEnv("CERT_FONT_PATH", "")),
		Codec:     codec,
		Scanner:   credential.NewScanner(int64(env.GetEnvInt("SCAN_MAX_BYTES", 0)), env.GetEnvInt("SCAN_MAX_DIMENSION", 0)),
		Activator: activator,
		Promos:    promos,
		Pricer:    pricer,
		Gateway:   gateway,
		Proofs:    payment.NewProofLedger(store, pricer, activator, checker, publisher),
		Redirects: controllers.RedirectConfig{
			SuccessURL: env.GetEnv("PAYMENT_SUCCESS_URL", "http://localhost:3000/payment/success"),
			FailureURL: env.GetEnv("PAYMENT_FAILURE_URL", "http://localhost:3000/payment/failure"),
		},
	}

	proxyHeader, trustedProxies := router.ProxyConfig()
	app := fiber.New(fiber.Config{
		AppName:                 "CertLedger",
		BodyLimit:               12 * 1024 * 1024, // scan uploads plus multipart overhead
		ReadTimeout:             15 * time.Second,
		WriteTimeout:            30 * time.Second,
		IdleTimeout:             90 * time.Second,
		ProxyHeader:             proxyHeader,
		EnableTrustedProxyCheck: len(trustedProxies) > 0,
		TrustedProxies:          trustedProxies,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New(monitor.Config{Title: "CertLedger Metrics"}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	// SWAGGER / OPENAPI
	if path := findFile("public/docs/v1/openapi.yml"); path != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: path,
			Path:     "v1",
		}))
	}

	// ROUTER
	router.InstallRouter(app, router.NewApiRouter(handlers, adminKeys, router.LoadRateLimit(cacheCfg)))

	return app, closeAll, nil
}

func openStore(cfg database.Config) (repository.Store, error) {
	if cfg.Driver == database.DriverMemory {
		db := inmem.New()
		if path := env.GetEnv("SEED_FILE", ""); path != "" {
			if err := loadSeed(db, path); err != nil {
				return nil, err
			}
		}
		log.Info("[Main] Using in-memory store")
		return db.Store(), nil
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	return repository.NewFactory(db).GetStore(), nil
}

func loadSeed(db *inmem.DB, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed inmem.Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}
	db.Load(seed)
	log.Infof("[Main] Seeded %d students, %d courses, %d internships, %d promo codes",
		len(seed.Students), len(seed.Courses), len(seed.Internships), len(seed.PromoCodes))
	return nil
}

// findFile resolves rel from the working directory or the project root.
func findFile(rel string) string {
	for _, base := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(base + rel); err == nil {
			return base + rel
		}
	}
	return ""
}
