package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/cfdi-api/internal/application/auth"
	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
	"github.com/jhoicas/cfdi-api/internal/domain/repository"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	AuthUC    *auth.AuthUseCase
	Invoicing *invoicing.Service
	Documents repository.DocumentRepository
	Partners  repository.PartnerRepository
	Companies repository.CompanyRepository
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Auth (público)
	authGroup := api.Group("/auth")
	authHandler := NewAuthHandler(deps.AuthUC)
	authGroup.Post("/register", authHandler.Register)
	authGroup.Post("/login", authHandler.Login)

	// Rutas protegidas (requieren Bearer Token)
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Companies (protegido, lectura)
	companies := protected.Group("/companies")
	companyHandler := NewCompanyHandler(deps.Companies)
	companies.Get("/:id", companyHandler.GetByID)
	companies.Get("/:id/root", companyHandler.Root)

	// Documents (protegido): ciclo de vida CFDI. Las mutaciones exigen el rol
	// de facturación; el historial y la descarga admiten consulta.
	docs := protected.Group("/documents")
	docHandler := NewDocumentHandler(deps.Invoicing, deps.Documents, deps.Partners)
	docs.Get("/", docHandler.List)
	docs.Get("/:id/xml", docHandler.Download)

	mutate := RequireRole(entity.RoleFacturacion)
	docs.Post("/sign", mutate, docHandler.Sign)
	docs.Post("/receive", mutate, docHandler.Receive)
	docs.Post("/payment-pue", mutate, docHandler.RegisterPUEPayment)
	docs.Post("/:id/cancel", mutate, docHandler.Cancel)
	docs.Post("/:id/retry", mutate, docHandler.Retry)
	docs.Post("/:id/sat-status", mutate, docHandler.SatStatus)
}
