package http

import (
	"encoding/base64"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/cfdi-api/internal/application/dto"
	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
	"github.com/jhoicas/cfdi-api/internal/domain"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
	"github.com/jhoicas/cfdi-api/internal/domain/repository"
)

// DocumentHandler expone el ciclo de vida CFDI: firmar, cancelar, reintentar,
// consultar el estado SAT y listar el historial de un registro origen.
type DocumentHandler struct {
	svc      *invoicing.Service
	docs     repository.DocumentRepository
	partners repository.PartnerRepository
}

// NewDocumentHandler construye el handler.
func NewDocumentHandler(svc *invoicing.Service, docs repository.DocumentRepository, partners repository.PartnerRepository) *DocumentHandler {
	return &DocumentHandler{svc: svc, docs: docs, partners: partners}
}

// Sign godoc
// @Summary      Timbrar un documento (factura, pago o global)
// @Tags         documents
// @Accept       json
// @Produce      json
// @Param        body  body  dto.SignRequest  true  "documento de negocio con líneas e impuestos"
// @Success      201   {object}  dto.DocumentResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/documents/sign [post]
func (h *DocumentHandler) Sign(c *fiber.Ctx) error {
	doc, errResp := h.parseSource(c)
	if doc == nil {
		return errResp
	}
	row, err := h.svc.Sign(c.Context(), doc)
	return h.respondRow(c, row, err, fiber.StatusCreated)
}

// RegisterPUEPayment registra el complemento omitido de un pago PUE: deja la
// fila payment_sent_pue sin tocar al PAC.
// POST /api/documents/payment-pue
func (h *DocumentHandler) RegisterPUEPayment(c *fiber.Ctx) error {
	doc, errResp := h.parseSource(c)
	if doc == nil {
		return errResp
	}
	row, err := h.svc.RegisterPUEPayment(c.Context(), doc)
	return h.respondRow(c, row, err, fiber.StatusCreated)
}

// Receive godoc
// @Summary      Registrar un CFDI recibido de un tercero
// @Tags         documents
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ReceiveRequest  true  "id del registro origen y XML timbrado en base64"
// @Success      201   {object}  dto.DocumentResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Router       /api/documents/receive [post]
func (h *DocumentHandler) Receive(c *fiber.Ctx) error {
	var in dto.ReceiveRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.SourceID == "" || in.Xml == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "source_id y xml son requeridos"})
	}
	xml, err := base64.StdEncoding.DecodeString(in.Xml)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "xml debe ser base64 válido"})
	}
	row, err := h.svc.Receive(c.Context(), in.SourceID, xml)
	return h.respondRow(c, row, err, fiber.StatusCreated)
}

// Cancel godoc
// @Summary      Solicitar la cancelación de una fila timbrada
// @Tags         documents
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "id de la fila"
// @Param        body  body  dto.CancelRequest  true  "motivo 01..04 y sustituto"
// @Success      200   {object}  dto.DocumentResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/documents/{id}/cancel [post]
func (h *DocumentHandler) Cancel(c *fiber.Ctx) error {
	var in dto.CancelRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	row, err := h.svc.Cancel(c.Context(), invoicing.CancelCommand{
		DocumentID:     c.Params("id"),
		CompanyID:      in.CompanyID,
		Reason:         in.Reason,
		SubstituteUUID: in.SubstituteUUID,
	})
	return h.respondRow(c, row, err, fiber.StatusOK)
}

// Retry reintenta una fila fallida.
// POST /api/documents/:id/retry — cuerpo opcional con el documento origen;
// la global fallida con XML almacenado lo reenvía tal cual.
func (h *DocumentHandler) Retry(c *fiber.Ctx) error {
	var doc *invoicing.SourceDocument
	if len(c.Body()) > 0 {
		var errResp error
		doc, errResp = h.parseSource(c)
		if doc == nil {
			return errResp
		}
	}
	row, err := h.svc.Retry(c.Context(), c.Params("id"), doc)
	return h.respondRow(c, row, err, fiber.StatusOK)
}

// SatStatus consulta el estado de la fila en el SAT y aplica la transición.
// POST /api/documents/:id/sat-status
func (h *DocumentHandler) SatStatus(c *fiber.Ctx) error {
	row, err := h.svc.UpdateSatStatus(c.Context(), c.Params("id"))
	return h.respondRow(c, row, err, fiber.StatusOK)
}

// List godoc
// @Summary      Historial de filas CFDI de un registro origen
// @Tags         documents
// @Produce      json
// @Param        source_model  query  string  true  "invoice | payment | ginvoice"
// @Param        source_id     query  string  true  "id del registro origen"
// @Success      200  {array}  dto.DocumentResponse
// @Router       /api/documents [get]
func (h *DocumentHandler) List(c *fiber.Ctx) error {
	model, sourceID := c.Query("source_model"), c.Query("source_id")
	if model == "" || sourceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "source_model y source_id son requeridos"})
	}
	rows, err := h.docs.ListBySource(c.Context(), model, sourceID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	out := make([]dto.DocumentResponse, 0, len(rows))
	for i := range rows {
		out = append(out, dto.ToDocumentResponse(&rows[i], rows))
	}
	return c.JSON(out)
}

// Download entrega el XML timbrado de una fila.
// GET /api/documents/:id/xml
func (h *DocumentHandler) Download(c *fiber.Ctx) error {
	row, err := h.docs.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if row == nil || len(row.Attachment) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "la fila no tiene XML"})
	}
	c.Set(fiber.HeaderContentType, "application/xml")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+row.ID+`.xml"`)
	return c.Send(row.Attachment)
}

// parseSource parsea y valida el documento origen del cuerpo. Devuelve nil y
// la respuesta de error ya escrita cuando el cuerpo no sirve.
func (h *DocumentHandler) parseSource(c *fiber.Ctx) (*invoicing.SourceDocument, error) {
	var in dto.SignRequest
	if err := c.BodyParser(&in); err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.Model == "" || in.ID == "" || in.CompanyID == "" {
		return nil, c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "model, id y company_id son requeridos"})
	}
	date, err := time.Parse("2006-01-02", in.Date)
	if err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "date debe ser YYYY-MM-DD"})
	}
	var partner *entity.Partner
	if in.PartnerID != "" {
		partner, err = h.partners.GetByID(c.Context(), in.PartnerID)
		if err != nil {
			return nil, c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
		}
		if partner == nil {
			return nil, c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "receptor no encontrado"})
		}
	}
	return in.ToSourceDocument(date, partner), nil
}

// respondRow mapea el resultado del motor a la respuesta HTTP. Una fila no nil
// con error es un fallo de negocio ya persistido (*_failed): se devuelve la
// fila con 422 para que el cliente muestre el mensaje y el botón de reintento.
func (h *DocumentHandler) respondRow(c *fiber.Ctx, row *entity.Document, err error, okStatus int) error {
	if err != nil {
		if row != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ToDocumentResponse(row, nil))
		}
		switch {
		case errors.Is(err, domain.ErrNoPac), errors.Is(err, domain.ErrNoPacCreds),
			errors.Is(err, domain.ErrNoCertificate), errors.Is(err, domain.ErrNoSubstitute),
			errors.Is(err, domain.ErrInvalidInput):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
		case errors.Is(err, domain.ErrConflict):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
		case errors.Is(err, domain.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: err.Error()})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if row == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "fila no encontrada"})
	}
	if row.IsFailed() {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ToDocumentResponse(row, nil))
	}
	return c.Status(okStatus).JSON(dto.ToDocumentResponse(row, nil))
}
