package entity

import "time"

// Estados del ciclo de vida de un documento CFDI (un renglón por evento de
// transmisión: firma, cancelación o recepción).
const (
	StateInvoiceSent                  = "invoice_sent"
	StateInvoiceSentFailed            = "invoice_sent_failed"
	StateInvoiceCancelRequested       = "invoice_cancel_requested"
	StateInvoiceCancelRequestedFailed = "invoice_cancel_requested_failed"
	StateInvoiceCancel                = "invoice_cancel"
	StateInvoiceCancelFailed          = "invoice_cancel_failed"
	StateInvoiceReceived              = "invoice_received"
	StateGInvoiceSent                 = "ginvoice_sent"
	StateGInvoiceSentFailed           = "ginvoice_sent_failed"
	StateGInvoiceCancel               = "ginvoice_cancel"
	StateGInvoiceCancelFailed         = "ginvoice_cancel_failed"
	StatePaymentSentPUE               = "payment_sent_pue"
	StatePaymentSent                  = "payment_sent"
	StatePaymentSentFailed            = "payment_sent_failed"
	StatePaymentCancel                = "payment_cancel"
	StatePaymentCancelFailed          = "payment_cancel_failed"
)

// Estado reportado por el servicio de consulta del SAT. Vacío = aún no consultado.
const (
	SatStateSkip       = "skip"
	SatStateValid      = "valid"
	SatStateCancelled  = "cancelled"
	SatStateNotFound   = "not_found"
	SatStateNotDefined = "not_defined"
	SatStateError      = "error"
)

// Document es un evento de transmisión CFDI persistido. Las filas validadas
// (sat_state valid/cancelled/skip) son inmutables salvo sat_state y message.
type Document struct {
	ID                 string
	SourceModel        string // modelo del registro origen: "invoice" | "payment" | "ginvoice"
	SourceID           string
	Datetime           time.Time
	State              string
	SatState           string
	CancellationReason string // 01..04, solo en eventos de cancelación
	Message            string
	Attachment         []byte // CFDI firmado (XML timbrado); nil en fallos sin XML
	AttachmentUUID     string // folio fiscal del attachment
	AttachmentOrigin   string // "<código>|uuid,uuid" — relación/sustitución
	InvoiceIDs         []string // facturas agrupadas (solo global)
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsSent indica si el estado es un *_sent exitoso.
func (d *Document) IsSent() bool {
	switch d.State {
	case StateInvoiceSent, StateGInvoiceSent, StatePaymentSent, StatePaymentSentPUE:
		return true
	}
	return false
}

// IsFailed indica si el estado es un *_failed.
func (d *Document) IsFailed() bool {
	switch d.State {
	case StateInvoiceSentFailed, StateInvoiceCancelRequestedFailed,
		StateInvoiceCancelFailed, StateGInvoiceSentFailed,
		StateGInvoiceCancelFailed, StatePaymentSentFailed,
		StatePaymentCancelFailed:
		return true
	}
	return false
}

// IsCancel indica si el estado es un *_cancel exitoso.
func (d *Document) IsCancel() bool {
	switch d.State {
	case StateInvoiceCancel, StateGInvoiceCancel, StatePaymentCancel:
		return true
	}
	return false
}

// CancelButtonNeeded expone el contrato de visibilidad del botón de cancelar:
// estado *_sent, sat_state fuera de {cancelled, skip} y sin cancelación previa
// para el mismo UUID (esa última condición la resuelve el caller con el store).
func (d *Document) CancelButtonNeeded() bool {
	switch d.State {
	case StateInvoiceSent, StateGInvoiceSent, StatePaymentSent:
	default:
		return false
	}
	return d.SatState != SatStateCancelled && d.SatState != SatStateSkip
}

// RetryButtonNeeded indica si la fila expone reintento. Para la global fallida
// se exige que ya exista un attachment (el XML generado en el intento anterior).
func (d *Document) RetryButtonNeeded() bool {
	if !d.IsFailed() {
		return false
	}
	if d.State == StateGInvoiceSentFailed {
		return len(d.Attachment) > 0
	}
	return true
}

// ShowButtonNeeded indica si la fila expone el botón de ver documento.
func (d *Document) ShowButtonNeeded() bool {
	return hasPrefix(d.State, "payment_") || hasPrefix(d.State, "ginvoice_")
}

func hasPrefix(s, p string) bool {
	return len(s) >= len(p) && s[:len(p)] == p
}
