package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/cfdi-api/internal/application/dto"
	"github.com/jhoicas/cfdi-api/internal/domain/repository"
)

// CompanyHandler lectura de empresas emisoras.
type CompanyHandler struct {
	companies repository.CompanyRepository
}

// NewCompanyHandler construye el handler.
func NewCompanyHandler(companies repository.CompanyRepository) *CompanyHandler {
	return &CompanyHandler{companies: companies}
}

// GetByID godoc
// @Summary      Obtener empresa emisora
// @Tags         companies
// @Produce      json
// @Param        id  path  string  true  "id de la empresa"
// @Success      200  {object}  dto.CompanyResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/companies/{id} [get]
func (h *CompanyHandler) GetByID(c *fiber.Ctx) error {
	company, err := h.companies.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if company == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "empresa no encontrada"})
	}
	return c.JSON(dto.ToCompanyResponse(company))
}

// Root devuelve la empresa raíz (la más cercana con RFC) de la dada.
// GET /api/companies/:id/root
func (h *CompanyHandler) Root(c *fiber.Ctx) error {
	company, err := h.companies.Root(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if company == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "empresa no encontrada"})
	}
	return c.JSON(dto.ToCompanyResponse(company))
}
