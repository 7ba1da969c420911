package cfdi

import "github.com/jhoicas/cfdi-api/internal/domain/entity"

// failedForm forma fallida de cada estado exitoso. El merge del store reutiliza
// la fila fallida previa en lugar de apilar una nueva (reintentos idempotentes).
var failedForm = map[string]string{
	entity.StateInvoiceSent:            entity.StateInvoiceSentFailed,
	entity.StateInvoiceCancelRequested: entity.StateInvoiceCancelRequestedFailed,
	entity.StateInvoiceCancel:          entity.StateInvoiceCancelFailed,
	entity.StateGInvoiceSent:           entity.StateGInvoiceSentFailed,
	entity.StateGInvoiceCancel:         entity.StateGInvoiceCancelFailed,
	entity.StatePaymentSent:            entity.StatePaymentSentFailed,
	entity.StatePaymentSentPUE:         entity.StatePaymentSentFailed,
	entity.StatePaymentCancel:          entity.StatePaymentCancelFailed,
}

// pruneStates estados fallidos que se limpian tras una escritura exitosa.
var pruneStates = map[string]bool{
	entity.StateInvoiceSentFailed:            true,
	entity.StateInvoiceCancelRequestedFailed: true,
	entity.StateInvoiceCancelFailed:          true,
	entity.StateGInvoiceSentFailed:           true,
	entity.StateGInvoiceCancelFailed:         true,
	entity.StatePaymentSentFailed:            true,
	entity.StatePaymentCancelFailed:          true,
}

// FailedStateFor devuelve la forma *_failed del estado dado; si ya es fallido
// se devuelve tal cual.
func FailedStateFor(state string) string {
	if f, ok := failedForm[state]; ok {
		return f
	}
	return state
}

// CancelStateFor estado de cancelación que corresponde a una fila *_sent.
// needsAcceptance aplica solo a facturas: cancelación que espera la aceptación
// del receptor.
func CancelStateFor(sentState string, needsAcceptance bool) string {
	switch sentState {
	case entity.StateInvoiceSent:
		if needsAcceptance {
			return entity.StateInvoiceCancelRequested
		}
		return entity.StateInvoiceCancel
	case entity.StateGInvoiceSent:
		return entity.StateGInvoiceCancel
	case entity.StatePaymentSent, entity.StatePaymentSentPUE:
		return entity.StatePaymentCancel
	}
	return ""
}

// WritePlan resultado de la política de merge del store para un nuevo evento.
type WritePlan struct {
	UpdateID string   // fila a sobreescribir; vacío = insertar nueva
	PruneIDs []string // filas fallidas obsoletas a eliminar
	SkipIDs  []string // filas que pasan a sat_state=skip (mismo UUID)
}

// PlanWrite aplica la política de merge sobre las filas existentes del mismo
// registro origen (ordenadas datetime DESC, id DESC) para un evento entrante.
//
//  1. Nunca se toca una fila con sat_state en {valid, cancelled, skip}; la única
//     excepción es invoice_cancel_requested cuando el SAT reporta cancelado
//     (el evento entrante es invoice_cancel con el mismo UUID).
//  2. La primera fila cuyo estado sea la forma fallida del entrante se reutiliza.
//  3. Tras una escritura exitosa se podan las filas *_failed hermanas (nunca la
//     actual) y, si el entrante es una cancelación plena, también las
//     invoice_cancel_requested.
//  4. Tras un *_sent o *_cancel exitoso, toda otra fila con el mismo
//     attachment_uuid pasa a sat_state=skip para que el poller la ignore.
func PlanWrite(existing []entity.Document, incoming entity.Document) WritePlan {
	var plan WritePlan

	frozen := func(d entity.Document) bool {
		switch d.SatState {
		case entity.SatStateValid, entity.SatStateCancelled, entity.SatStateSkip:
			return true
		}
		return false
	}

	// Excepción de la regla 1: promover la solicitud de cancelación aceptada.
	if incoming.State == entity.StateInvoiceCancel {
		for _, d := range existing {
			if d.State == entity.StateInvoiceCancelRequested &&
				d.AttachmentUUID == incoming.AttachmentUUID {
				plan.UpdateID = d.ID
				break
			}
		}
	}

	if plan.UpdateID == "" {
		target := FailedStateFor(incoming.State)
		for _, d := range existing {
			if frozen(d) {
				continue
			}
			if d.State == target {
				plan.UpdateID = d.ID
				break
			}
		}
	}

	incomingFailed := pruneStates[incoming.State]
	if !incomingFailed {
		for _, d := range existing {
			if d.ID == plan.UpdateID {
				continue
			}
			if pruneStates[d.State] {
				plan.PruneIDs = append(plan.PruneIDs, d.ID)
				continue
			}
			// Cancelación plena: la solicitud intermedia ya no aporta nada.
			if incoming.State == entity.StateInvoiceCancel &&
				d.State == entity.StateInvoiceCancelRequested {
				plan.PruneIDs = append(plan.PruneIDs, d.ID)
			}
		}
		if incoming.AttachmentUUID != "" && (isSentState(incoming.State) || isCancelState(incoming.State)) {
			pruned := make(map[string]bool, len(plan.PruneIDs))
			for _, id := range plan.PruneIDs {
				pruned[id] = true
			}
			for _, d := range existing {
				if d.ID == plan.UpdateID || pruned[d.ID] {
					continue
				}
				if d.AttachmentUUID == incoming.AttachmentUUID && d.SatState != entity.SatStateSkip {
					plan.SkipIDs = append(plan.SkipIDs, d.ID)
				}
			}
		}
	}
	return plan
}

func isSentState(s string) bool {
	switch s {
	case entity.StateInvoiceSent, entity.StateGInvoiceSent,
		entity.StatePaymentSent, entity.StatePaymentSentPUE:
		return true
	}
	return false
}

func isCancelState(s string) bool {
	switch s {
	case entity.StateInvoiceCancel, entity.StateGInvoiceCancel,
		entity.StatePaymentCancel:
		return true
	}
	return false
}

// NextStateOnSatPoll transición de ciclo de vida disparada por la consulta SAT.
// Hoy la única es invoice_cancel_requested + Cancelado → invoice_cancel; para
// cualquier otro par devuelve el estado actual sin cambio.
func NextStateOnSatPoll(state, satState string) string {
	if state == entity.StateInvoiceCancelRequested && satState == entity.SatStateCancelled {
		return entity.StateInvoiceCancel
	}
	return state
}

// SatStateAllowed valida que sat_state=cancelled solo conviva con estados de
// cancelación, con la solicitud pendiente o con un CFDI recibido (el emisor
// puede cancelarlo fuera de nuestro flujo).
func SatStateAllowed(state, satState string) bool {
	if satState != entity.SatStateCancelled {
		return true
	}
	switch state {
	case entity.StateInvoiceCancel, entity.StateGInvoiceCancel,
		entity.StatePaymentCancel, entity.StateInvoiceCancelRequested,
		entity.StateInvoiceReceived:
		return true
	}
	return false
}
