package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

// TaxDetailRequest desglose de un impuesto por línea, tal como lo entrega el
// motor de impuestos del framework contable.
type TaxDetailRequest struct {
	TaxID         string          `json:"tax_id"`
	TaxCode       string          `json:"tax_code"`
	FactorType    string          `json:"factor_type"`
	TaxType       string          `json:"tax_type"`
	GroupName     string          `json:"group_name"`
	Rate          decimal.Decimal `json:"rate"`
	BaseAmount    decimal.Decimal `json:"base_amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	RawBaseAmount decimal.Decimal `json:"raw_base_amount"`
	RawTaxAmount  decimal.Decimal `json:"raw_tax_amount"`
}

// LineRequest línea base del documento a timbrar.
type LineRequest struct {
	RecordID       string             `json:"record_id"`
	DocumentID     string             `json:"document_id"`
	DocumentName   string             `json:"document_name"`
	PriorRecordIDs []string           `json:"prior_record_ids,omitempty"`
	ProductCode    string             `json:"product_code"`
	ProductName    string             `json:"product_name"`
	UnitCode       string             `json:"unit_code"`
	UnitName       string             `json:"unit_name"`
	Quantity       decimal.Decimal    `json:"quantity"`
	PriceUnit      decimal.Decimal    `json:"price_unit"`
	Discount       decimal.Decimal    `json:"discount"`
	PriceSubtotal  decimal.Decimal    `json:"price_subtotal"`
	TaxDetails     []TaxDetailRequest `json:"tax_details"`
	ObjetoImp      string             `json:"objeto_imp,omitempty"`
	CurrencyCode   string             `json:"currency_code,omitempty"`
	Rate           decimal.Decimal    `json:"rate"`
}

// SignRequest documento de negocio a timbrar: lo que el framework contable
// entrega (factura, pago o global) con las líneas e impuestos ya calculados.
type SignRequest struct {
	Model string `json:"model" validate:"required,oneof=invoice payment ginvoice"`
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name"`

	Date      string `json:"date" validate:"required"` // YYYY-MM-DD
	CompanyID string `json:"company_id" validate:"required,uuid"`
	PartnerID string `json:"partner_id"`

	CurrencyCode      string `json:"currency_code"`
	CurrencyPrecision int32  `json:"currency_precision"`

	PaymentPolicy     string `json:"payment_policy"`
	PaymentMethodCode string `json:"payment_method_code"`
	UsoCfdi           string `json:"uso_cfdi"`

	ToPublic       bool   `json:"to_public"`
	RefundOfGlobal bool   `json:"refund_of_global"`
	Origin         string `json:"origin"`

	TimezoneOverride string `json:"timezone_override"`

	Lines []LineRequest `json:"lines"`

	// Solo factura global:
	Periodicity string                     `json:"periodicity,omitempty"`
	InvoiceIDs  []string                   `json:"invoice_ids,omitempty"`
	SourceRates map[string]decimal.Decimal `json:"source_rates,omitempty"`
}

// ReceiveRequest registro de un CFDI timbrado por un tercero (factura de
// proveedor). El XML viaja en base64.
type ReceiveRequest struct {
	SourceID string `json:"source_id" validate:"required"`
	Xml      string `json:"xml" validate:"required,base64"`
}

// CancelRequest solicitud de cancelación de una fila timbrada.
type CancelRequest struct {
	CompanyID      string `json:"company_id" validate:"required,uuid"`
	Reason         string `json:"reason" validate:"required,oneof=01 02 03 04"`
	SubstituteUUID string `json:"substitute_uuid,omitempty"`
}

// DocumentResponse fila del store de documentos con los contratos de
// visibilidad de botones ya resueltos.
type DocumentResponse struct {
	ID                 string    `json:"id"`
	SourceModel        string    `json:"source_model"`
	SourceID           string    `json:"source_id"`
	Datetime           time.Time `json:"datetime"`
	State              string    `json:"state"`
	SatState           string    `json:"sat_state,omitempty"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	Message            string    `json:"message,omitempty"`
	UUID               string    `json:"uuid,omitempty"`
	HasAttachment      bool      `json:"has_attachment"`
	CancelButtonNeeded bool      `json:"cancel_button_needed"`
	RetryButtonNeeded  bool      `json:"retry_button_needed"`
	ShowButtonNeeded   bool      `json:"show_button_needed"`
}

// ToDocumentResponse arma la respuesta de una fila. siblings son las demás
// filas del mismo registro origen: una cancelación previa con el mismo UUID
// apaga el botón de cancelar.
func ToDocumentResponse(d *entity.Document, siblings []entity.Document) DocumentResponse {
	cancelable := d.CancelButtonNeeded()
	if cancelable {
		for _, s := range siblings {
			if s.ID != d.ID && s.AttachmentUUID == d.AttachmentUUID && (s.IsCancel() || s.State == entity.StateInvoiceCancelRequested) {
				cancelable = false
				break
			}
		}
	}
	return DocumentResponse{
		ID:                 d.ID,
		SourceModel:        d.SourceModel,
		SourceID:           d.SourceID,
		Datetime:           d.Datetime,
		State:              d.State,
		SatState:           d.SatState,
		CancellationReason: d.CancellationReason,
		Message:            d.Message,
		UUID:               d.AttachmentUUID,
		HasAttachment:      len(d.Attachment) > 0,
		CancelButtonNeeded: cancelable,
		RetryButtonNeeded:  d.RetryButtonNeeded(),
		ShowButtonNeeded:   d.ShowButtonNeeded(),
	}
}

// ToSourceDocument convierte la petición al documento de entrada del motor.
func (in *SignRequest) ToSourceDocument(date time.Time, partner *entity.Partner) *invoicing.SourceDocument {
	doc := &invoicing.SourceDocument{
		Model:             in.Model,
		ID:                in.ID,
		Name:              in.Name,
		Date:              date,
		CompanyID:         in.CompanyID,
		Partner:           partner,
		CurrencyCode:      in.CurrencyCode,
		CurrencyPrecision: in.CurrencyPrecision,
		PaymentPolicy:     in.PaymentPolicy,
		PaymentMethodCode: in.PaymentMethodCode,
		UsoCfdi:           in.UsoCfdi,
		ToPublic:          in.ToPublic,
		RefundOfGlobal:    in.RefundOfGlobal,
		Origin:            in.Origin,
		TimezoneOverride:  in.TimezoneOverride,
		Periodicity:       in.Periodicity,
		InvoiceIDs:        in.InvoiceIDs,
		SourceRates:       in.SourceRates,
	}
	for _, l := range in.Lines {
		line := entity.BaseLine{
			RecordID:       l.RecordID,
			DocumentID:     l.DocumentID,
			DocumentName:   l.DocumentName,
			PriorRecordIDs: l.PriorRecordIDs,
			ProductCode:    l.ProductCode,
			ProductName:    l.ProductName,
			UnitCode:       l.UnitCode,
			UnitName:       l.UnitName,
			Quantity:       l.Quantity,
			PriceUnit:      l.PriceUnit,
			Discount:       l.Discount,
			PriceSubtotal:  l.PriceSubtotal,
			ObjetoImp:      l.ObjetoImp,
			CurrencyCode:   l.CurrencyCode,
			Rate:           l.Rate,
		}
		for _, td := range l.TaxDetails {
			line.TaxDetails = append(line.TaxDetails, entity.TaxDetail{
				TaxID:         td.TaxID,
				TaxCode:       td.TaxCode,
				FactorType:    td.FactorType,
				TaxType:       td.TaxType,
				GroupName:     td.GroupName,
				Rate:          td.Rate,
				BaseAmount:    td.BaseAmount,
				TaxAmount:     td.TaxAmount,
				RawBaseAmount: td.RawBaseAmount,
				RawTaxAmount:  td.RawTaxAmount,
			})
		}
		doc.Lines = append(doc.Lines, line)
	}
	return doc
}
