package cfdi_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cfdi-api/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

func doc(id, state, satState, uuid string, age time.Duration) entity.Document {
	return entity.Document{
		ID:             id,
		State:          state,
		SatState:       satState,
		AttachmentUUID: uuid,
		Datetime:       time.Now().Add(-age),
	}
}

// Reintento idempotente: un invoice_sent entrante reutiliza la fila
// invoice_sent_failed previa en lugar de insertar otra.
func TestPlanWrite_ReusaFilaFallida(t *testing.T) {
	existing := []entity.Document{
		doc("d1", entity.StateInvoiceSentFailed, "", "", time.Hour),
	}
	plan := cfdi.PlanWrite(existing, entity.Document{
		State:          entity.StateInvoiceSent,
		AttachmentUUID: "uuid-1",
	})
	assert.Equal(t, "d1", plan.UpdateID)
	assert.Empty(t, plan.PruneIDs, "la fila actual no se poda a sí misma")
}

// Una fila con sat_state validado jamás se reutiliza aunque su estado coincida.
func TestPlanWrite_NoTocaFilasValidadas(t *testing.T) {
	existing := []entity.Document{
		doc("d1", entity.StateInvoiceSentFailed, entity.SatStateSkip, "", time.Hour),
	}
	plan := cfdi.PlanWrite(existing, entity.Document{State: entity.StateInvoiceSent})
	assert.Empty(t, plan.UpdateID, "debe insertar fila nueva")
}

// Tras una escritura exitosa se podan las hermanas *_failed.
func TestPlanWrite_PodaFallidasHermanas(t *testing.T) {
	existing := []entity.Document{
		doc("d2", entity.StateInvoiceCancelFailed, "", "uuid-1", time.Minute),
		doc("d1", entity.StateInvoiceSent, entity.SatStateValid, "uuid-1", time.Hour),
	}
	plan := cfdi.PlanWrite(existing, entity.Document{
		State:          entity.StateInvoiceCancel,
		AttachmentUUID: "uuid-1",
	})
	assert.Equal(t, "d2", plan.UpdateID)
	assert.Empty(t, plan.PruneIDs)
}

// Un evento fallido entrante no dispara poda ni skip.
func TestPlanWrite_FallidoNoPoda(t *testing.T) {
	existing := []entity.Document{
		doc("d1", entity.StateInvoiceSent, entity.SatStateValid, "uuid-1", time.Hour),
	}
	plan := cfdi.PlanWrite(existing, entity.Document{
		State: entity.StateInvoiceCancelFailed,
	})
	assert.Empty(t, plan.UpdateID)
	assert.Empty(t, plan.PruneIDs)
	assert.Empty(t, plan.SkipIDs)
}

// Tras un *_sent exitoso, toda otra fila con el mismo UUID pasa a
// sat_state=skip.
func TestPlanWrite_MarcaSkipMismoUUID(t *testing.T) {
	existing := []entity.Document{
		doc("d1", entity.StateInvoiceSent, entity.SatStateValid, "uuid-1", time.Hour),
	}
	plan := cfdi.PlanWrite(existing, entity.Document{
		State:          entity.StateInvoiceSent,
		AttachmentUUID: "uuid-1",
	})
	assert.Contains(t, plan.SkipIDs, "d1")
}

// Escenario S6: la solicitud de cancelación se promueve a invoice_cancel
// cuando el SAT reporta el comprobante como cancelado; la fila de la solicitud
// se reutiliza (no queda fila invoice_cancel_requested residual).
func TestPlanWrite_PromueveSolicitudCancelacion(t *testing.T) {
	existing := []entity.Document{
		doc("d2", entity.StateInvoiceCancelRequested, entity.SatStateCancelled, "uuid-1", time.Minute),
		doc("d1", entity.StateInvoiceSent, entity.SatStateValid, "uuid-1", time.Hour),
	}
	plan := cfdi.PlanWrite(existing, entity.Document{
		State:          entity.StateInvoiceCancel,
		AttachmentUUID: "uuid-1",
	})
	assert.Equal(t, "d2", plan.UpdateID)
	assert.NotContains(t, plan.PruneIDs, "d2")
	assert.Contains(t, plan.SkipIDs, "d1")
}

func TestNextStateOnSatPoll(t *testing.T) {
	got := cfdi.NextStateOnSatPoll(entity.StateInvoiceCancelRequested, entity.SatStateCancelled)
	assert.Equal(t, entity.StateInvoiceCancel, got)

	got = cfdi.NextStateOnSatPoll(entity.StateInvoiceSent, entity.SatStateValid)
	assert.Equal(t, entity.StateInvoiceSent, got, "sin transición para el resto de pares")
}

func TestSatStateAllowed(t *testing.T) {
	assert.True(t, cfdi.SatStateAllowed(entity.StateInvoiceCancel, entity.SatStateCancelled))
	assert.True(t, cfdi.SatStateAllowed(entity.StateInvoiceCancelRequested, entity.SatStateCancelled))
	assert.True(t, cfdi.SatStateAllowed(entity.StateInvoiceReceived, entity.SatStateCancelled),
		"el emisor de un CFDI recibido puede cancelarlo fuera de nuestro flujo")
	assert.False(t, cfdi.SatStateAllowed(entity.StateInvoiceSent, entity.SatStateCancelled))
	assert.True(t, cfdi.SatStateAllowed(entity.StateInvoiceSent, entity.SatStateValid))
}

func TestCancelStateFor(t *testing.T) {
	assert.Equal(t, entity.StateInvoiceCancelRequested,
		cfdi.CancelStateFor(entity.StateInvoiceSent, true))
	assert.Equal(t, entity.StateInvoiceCancel,
		cfdi.CancelStateFor(entity.StateInvoiceSent, false))
	assert.Equal(t, entity.StateGInvoiceCancel,
		cfdi.CancelStateFor(entity.StateGInvoiceSent, false))
	assert.Equal(t, entity.StatePaymentCancel,
		cfdi.CancelStateFor(entity.StatePaymentSentPUE, false))
}

func TestPlanWrite_OrdenImporta(t *testing.T) {
	// Dos fallidas: se reutiliza la primera en el orden dado (datetime DESC).
	existing := []entity.Document{
		doc("nuevo", entity.StateInvoiceSentFailed, "", "", time.Minute),
		doc("viejo", entity.StateInvoiceSentFailed, "", "", time.Hour),
	}
	plan := cfdi.PlanWrite(existing, entity.Document{State: entity.StateInvoiceSent})
	require.Equal(t, "nuevo", plan.UpdateID)
	assert.Contains(t, plan.PruneIDs, "viejo")
}
