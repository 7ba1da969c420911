package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/jhoicas/cfdi-api/internal/application/auth"
	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
	infracfdi "github.com/jhoicas/cfdi-api/internal/infrastructure/cfdi"
	"github.com/jhoicas/cfdi-api/internal/infrastructure/pac"
	"github.com/jhoicas/cfdi-api/internal/infrastructure/postgres"
	infrasat "github.com/jhoicas/cfdi-api/internal/infrastructure/sat"
	httpRouter "github.com/jhoicas/cfdi-api/internal/interfaces/http"
	"github.com/jhoicas/cfdi-api/pkg/config"
	"github.com/jhoicas/cfdi-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: "api",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Msg("iniciando aplicación")

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	companyRepo := postgres.NewCompanyRepository(pool)
	partnerRepo := postgres.NewPartnerRepository(pool)
	certRepo := postgres.NewCertificateRepository(pool)
	docRepo := postgres.NewDocumentRepository(pool)
	folioRepo := postgres.NewFolioRepository(pool)
	userRepo := postgres.NewUserRepository(pool)

	certGateway := infracfdi.NewCertificateGateway(certRepo)
	assembler := invoicing.NewAssembler(companyRepo, certGateway, invoicing.PrecomputedTaxes{})

	invoicingSvc := invoicing.NewService(invoicing.ServiceDeps{
		Assembler:  assembler,
		Renderer:   infracfdi.NewRenderer(),
		Decoder:    infracfdi.NewDecoder(),
		Documents:  docRepo,
		Folios:     folioRepo,
		Companies:  companyRepo,
		Certs:      certGateway,
		Pacs:       []invoicing.PacProvider{pac.NewFinkok(), pac.NewSolfact(), pac.NewSW()},
		SatClient:  infrasat.NewClient(),
		Checkpoint: postgres.NewCheckpoint(pool),
		Logger:     log.Zerolog(),
	})

	authUC := auth.NewAuthUseCase(userRepo, companyRepo, auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		ExpMinutes: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: time.Second * 30,
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "CFDI API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})

	httpRouter.Router(app, httpRouter.RouterDeps{
		AuthUC:    authUC,
		Invoicing: invoicingSvc,
		Documents: docRepo,
		Partners:  partnerRepo,
		Companies: companyRepo,
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}

	log.Info().Msg("aplicación detenida")
}
