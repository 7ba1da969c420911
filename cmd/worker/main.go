package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
	infracfdi "github.com/jhoicas/cfdi-api/internal/infrastructure/cfdi"
	"github.com/jhoicas/cfdi-api/internal/infrastructure/pac"
	"github.com/jhoicas/cfdi-api/internal/infrastructure/postgres"
	infrasat "github.com/jhoicas/cfdi-api/internal/infrastructure/sat"
	"github.com/jhoicas/cfdi-api/pkg/config"
	"github.com/jhoicas/cfdi-api/pkg/logger"
)

// Worker de barrido: recorre periódicamente los CFDI pendientes de
// confirmación y consulta su estado en el servicio público del SAT.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		Service: "worker",
	})
	log.Info().
		Str("env", cfg.App.Env).
		Dur("interval", cfg.Sat.SweepInterval).
		Msg("iniciando worker de barrido SAT")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	companyRepo := postgres.NewCompanyRepository(pool)
	certGateway := infracfdi.NewCertificateGateway(postgres.NewCertificateRepository(pool))

	svc := invoicing.NewService(invoicing.ServiceDeps{
		Assembler:  invoicing.NewAssembler(companyRepo, certGateway, invoicing.PrecomputedTaxes{}),
		Renderer:   infracfdi.NewRenderer(),
		Decoder:    infracfdi.NewDecoder(),
		Documents:  postgres.NewDocumentRepository(pool),
		Folios:     postgres.NewFolioRepository(pool),
		Companies:  companyRepo,
		Certs:      certGateway,
		Pacs:       []invoicing.PacProvider{pac.NewFinkok(), pac.NewSolfact(), pac.NewSW()},
		SatClient:  infrasat.NewClient(),
		Checkpoint: postgres.NewCheckpoint(pool),
		Logger:     log.Zerolog(),
	})

	ticker := time.NewTicker(cfg.Sat.SweepInterval)
	defer ticker.Stop()

	for {
		sweep(ctx, log, svc)

		select {
		case <-ctx.Done():
			log.Info().Msg("worker detenido")
			return
		case <-ticker.C:
		}
	}
}

// sweep consume lotes hasta agotar los pendientes del ciclo.
func sweep(ctx context.Context, log *logger.Logger, svc *invoicing.Service) {
	for {
		processed, more, err := svc.SweepSatStatus(ctx)
		if err != nil {
			log.Error().Err(err).Msg("barrido SAT")
			return
		}
		if processed > 0 {
			log.Info().Int("processed", processed).Msg("lote de barrido SAT completado")
		}
		if !more {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
