package invoicing_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
	"github.com/jhoicas/cfdi-api/internal/domain"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
	"github.com/jhoicas/cfdi-api/pkg/sat"
)

type harness struct {
	svc    *invoicing.Service
	docs   *fakeDocs
	pac    *fakePac
	folios *fakeFolios
	sat    *fakeSat
}

func newHarness() *harness {
	docs := newFakeDocs()
	pac := &fakePac{name: "finkok"}
	folios := newFakeFolios()
	satc := &fakeSat{state: entity.SatStateValid}
	companies := newFakeCompanies()
	svc := invoicing.NewService(invoicing.ServiceDeps{
		Assembler:  invoicing.NewAssembler(companies, fakeCertGateway{}, fakeTaxes{}),
		Renderer:   fakeRenderer{},
		Decoder:    fakeDecoder{uuid: "AAAA1111-2222-3333-4444-555566667777"},
		Documents:  docs,
		Folios:     folios,
		Companies:  companies,
		Certs:      fakeCertGateway{},
		Pacs:       []invoicing.PacProvider{pac},
		SatClient:  satc,
		Checkpoint: nopCheckpoint{},
		Logger:     zerolog.Nop(),
	})
	return &harness{svc: svc, docs: docs, pac: pac, folios: folios, sat: satc}
}

// Timbrado exitoso: fila invoice_sent con UUID y XML timbrado.
func TestSign_Exitoso(t *testing.T) {
	h := newHarness()
	event, err := h.svc.Sign(context.Background(), facturaSimple())
	require.NoError(t, err)

	assert.Equal(t, entity.StateInvoiceSent, event.State)
	assert.Equal(t, "AAAA1111-2222-3333-4444-555566667777", event.AttachmentUUID)
	assert.NotEmpty(t, event.Attachment)

	rows := h.docs.bySource("invoice", "inv-1")
	require.Len(t, rows, 1)
	assert.Equal(t, entity.StateInvoiceSent, rows[0].State)
}

// Rechazo del PAC: fila invoice_sent_failed con el mensaje y el XML generado.
func TestSign_RechazoPAC(t *testing.T) {
	h := newHarness()
	h.pac.signErrs = []string{"301 - XML mal formado"}

	event, err := h.svc.Sign(context.Background(), facturaSimple())
	require.NoError(t, err, "el rechazo del PAC se persiste, no se propaga")
	assert.Equal(t, entity.StateInvoiceSentFailed, event.State)
	assert.Contains(t, event.Message, "301")
	assert.NotEmpty(t, event.Attachment, "el XML generado se conserva para el reintento")
}

// Idempotencia del reintento: el segundo firmado reemplaza la fila fallida en
// lugar de apilar otra.
func TestSign_ReintentoReemplazaFallida(t *testing.T) {
	h := newHarness()
	h.pac.signErrs = []string{"timeout"}
	failed, err := h.svc.Sign(context.Background(), facturaSimple())
	require.NoError(t, err)

	h.pac.signErrs = nil
	sent, err := h.svc.Sign(context.Background(), facturaSimple())
	require.NoError(t, err)

	assert.Equal(t, failed.ID, sent.ID, "misma fila, no una nueva")
	rows := h.docs.bySource("invoice", "inv-1")
	require.Len(t, rows, 1)
	assert.Equal(t, entity.StateInvoiceSent, rows[0].State)
}

// Error de ensamblado: fila fallida sin tocar el PAC.
func TestSign_ErrorDeEnsamblado(t *testing.T) {
	h := newHarness()
	doc := facturaSimple()
	doc.CurrencyCode = ""

	event, err := h.svc.Sign(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, entity.StateInvoiceSentFailed, event.State)
	assert.NotEmpty(t, event.Message)
	assert.Empty(t, h.pac.signed, "sin llamada de red ante error local")
}

// Empresa sin PAC configurado: error de configuración sin dejar fila.
func TestSign_SinPAC(t *testing.T) {
	h := newHarness()
	companies := newFakeCompanies()
	companies.companies["co-root"].PacName = ""
	companies.roots["co-root"].PacName = ""
	svc := invoicing.NewService(invoicing.ServiceDeps{
		Assembler:  invoicing.NewAssembler(companies, fakeCertGateway{}, fakeTaxes{}),
		Renderer:   fakeRenderer{},
		Decoder:    fakeDecoder{uuid: "X"},
		Documents:  h.docs,
		Folios:     h.folios,
		Companies:  companies,
		Certs:      fakeCertGateway{},
		Pacs:       []invoicing.PacProvider{h.pac},
		SatClient:  h.sat,
		Checkpoint: nopCheckpoint{},
		Logger:     zerolog.Nop(),
	})

	_, err := svc.Sign(context.Background(), facturaSimple())
	require.ErrorIs(t, err, domain.ErrNoPac)
	assert.Empty(t, h.docs.bySource("invoice", "inv-1"), "los errores de configuración no dejan fila")
}

// Global sin nombre: toma serie y folio de la secuencia y confirma el consumo
// tras el timbrado.
func TestSign_GlobalConsumeFolio(t *testing.T) {
	h := newHarness()
	doc := &invoicing.SourceDocument{
		Model: "ginvoice", ID: "gi-1",
		Date:              time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		CompanyID:         "co-root",
		CurrencyCode:      "MXN",
		CurrencyPrecision: 2,
		Periodicity:       sat.PeriodicidadMensual,
		InvoiceIDs:        []string{"inv-1"},
		Lines:             []entity.BaseLine{lineaSimple("l1", "TICKET/001")},
	}
	event, err := h.svc.Sign(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "GI/2024/00007", doc.Name)
	assert.Equal(t, entity.StateGInvoiceSent, event.State)
	assert.Equal(t, []int64{7}, h.folios.committed, "se confirma el folio reservado, no el cursor")
}

// Dos globales seguidas consumen folios contiguos: confirmar el cursor de la
// secuencia en lugar del folio reservado saltaría un número por firmado.
func TestSign_GlobalFoliosContiguos(t *testing.T) {
	h := newHarness()
	globalDoc := func(id string) *invoicing.SourceDocument {
		return &invoicing.SourceDocument{
			Model: "ginvoice", ID: id,
			Date:              time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			CompanyID:         "co-root",
			CurrencyCode:      "MXN",
			CurrencyPrecision: 2,
			Periodicity:       sat.PeriodicidadMensual,
			InvoiceIDs:        []string{"inv-1"},
			Lines:             []entity.BaseLine{lineaSimple("l1", "TICKET/001")},
		}
	}

	first := globalDoc("gi-1")
	_, err := h.svc.Sign(context.Background(), first)
	require.NoError(t, err)

	second := globalDoc("gi-2")
	_, err = h.svc.Sign(context.Background(), second)
	require.NoError(t, err)

	assert.Equal(t, "GI/2024/00007", first.Name)
	assert.Equal(t, "GI/2024/00008", second.Name)
	assert.Equal(t, []int64{7, 8}, h.folios.committed)
	assert.Equal(t, int64(9), h.folios.seq.NumberNext)
}

func seedSent(h *harness) *entity.Document {
	row := &entity.Document{
		ID:             "d-sent",
		SourceModel:    "invoice",
		SourceID:       "inv-1",
		Datetime:       time.Now().Add(-time.Hour),
		State:          entity.StateInvoiceSent,
		Attachment:     []byte("<cfdi/>"),
		AttachmentUUID: "UUID-SENT-1",
	}
	_ = h.docs.Insert(context.Background(), row)
	return row
}

// Cancelación con motivo 01 sin sustituto: fila invoice_cancel_failed y la
// fila invoice_sent original intacta.
func TestCancel_Motivo01SinSustituto(t *testing.T) {
	h := newHarness()
	seedSent(h)

	event, err := h.svc.Cancel(context.Background(), invoicing.CancelCommand{
		DocumentID: "d-sent",
		CompanyID:  "co-root",
		Reason:     sat.CancelConErroresConSustituto,
	})
	require.ErrorIs(t, err, domain.ErrNoSubstitute)
	require.NotNil(t, event)
	assert.Equal(t, entity.StateInvoiceCancelFailed, event.State)
	assert.Empty(t, h.pac.cancelled, "sin llamada al PAC")

	original, gerr := h.docs.GetByID(context.Background(), "d-sent")
	require.NoError(t, gerr)
	assert.Equal(t, entity.StateInvoiceSent, original.State)
}

// Cancelación plena aceptada por el PAC: fila invoice_cancel con el motivo.
func TestCancel_Plena(t *testing.T) {
	h := newHarness()
	seedSent(h)

	event, err := h.svc.Cancel(context.Background(), invoicing.CancelCommand{
		DocumentID: "d-sent",
		CompanyID:  "co-root",
		Reason:     sat.CancelOperacionNoRealizada,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StateInvoiceCancel, event.State)
	assert.Equal(t, sat.CancelOperacionNoRealizada, event.CancellationReason)
	assert.Equal(t, "UUID-SENT-1", event.AttachmentUUID)
	require.Len(t, h.pac.cancelled, 1)
	assert.Equal(t, "EKU9003173C9", h.pac.cancelled[0].RFC)
}

// Cancelación que requiere aceptación del receptor: invoice_cancel_requested.
func TestCancel_EsperaAceptacion(t *testing.T) {
	h := newHarness()
	seedSent(h)
	h.pac.needsAccept = true

	event, err := h.svc.Cancel(context.Background(), invoicing.CancelCommand{
		DocumentID: "d-sent",
		CompanyID:  "co-root",
		Reason:     sat.CancelConErroresSinSustituto,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StateInvoiceCancelRequested, event.State)
}

// Motivo 01 con sustituto: el sustituto debe existir como envío timbrado.
func TestCancel_SustitutoInexistente(t *testing.T) {
	h := newHarness()
	seedSent(h)

	_, err := h.svc.Cancel(context.Background(), invoicing.CancelCommand{
		DocumentID:     "d-sent",
		CompanyID:      "co-root",
		Reason:         sat.CancelConErroresConSustituto,
		SubstituteUUID: "UUID-NO-EXISTE",
	})
	require.ErrorIs(t, err, domain.ErrNoSubstitute)
}

// Consulta SAT sobre una solicitud de cancelación aceptada: la fila se
// promueve a invoice_cancel con sat_state=cancelled.
func TestUpdateSatStatus_PromueveSolicitud(t *testing.T) {
	h := newHarness()
	h.sat.state = entity.SatStateCancelled
	row := &entity.Document{
		ID:             "d-req",
		SourceModel:    "invoice",
		SourceID:       "inv-1",
		Datetime:       time.Now().Add(-time.Hour),
		State:          entity.StateInvoiceCancelRequested,
		Attachment:     []byte("<cfdi/>"),
		AttachmentUUID: "UUID-REQ-1",
	}
	_ = h.docs.Insert(context.Background(), row)

	updated, err := h.svc.UpdateSatStatus(context.Background(), "d-req")
	require.NoError(t, err)
	assert.Equal(t, entity.StateInvoiceCancel, updated.State)
	assert.Equal(t, entity.SatStateCancelled, updated.SatState)

	rows := h.docs.bySource("invoice", "inv-1")
	require.Len(t, rows, 1, "la solicitud promovida no deja fila duplicada")
}

// Consulta SAT normal: solo sat_state y message cambian.
func TestUpdateSatStatus_Vigente(t *testing.T) {
	h := newHarness()
	h.sat.state = entity.SatStateValid
	seedSent(h)

	updated, err := h.svc.UpdateSatStatus(context.Background(), "d-sent")
	require.NoError(t, err)
	assert.Equal(t, entity.StateInvoiceSent, updated.State)
	assert.Equal(t, entity.SatStateValid, updated.SatState)
}

// El barrido procesa el lote y reporta si quedó lleno.
func TestSweepSatStatus(t *testing.T) {
	h := newHarness()
	h.sat.state = entity.SatStateValid
	seedSent(h)

	processed, more, err := h.svc.SweepSatStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.False(t, more)
	assert.Equal(t, 1, h.sat.calls)
}

// Recepción de un CFDI de proveedor: fila invoice_received con el UUID
// decodificado, sin llamada al PAC, y entra al dominio del barrido SAT.
func TestReceive_Registrado(t *testing.T) {
	h := newHarness()
	event, err := h.svc.Receive(context.Background(), "bill-1", []byte("<cfdi timbrado/>"))
	require.NoError(t, err)

	assert.Equal(t, entity.StateInvoiceReceived, event.State)
	assert.Equal(t, "AAAA1111-2222-3333-4444-555566667777", event.AttachmentUUID)
	assert.Equal(t, []byte("<cfdi timbrado/>"), event.Attachment)
	assert.Empty(t, h.pac.signed)

	processed, _, err := h.svc.SweepSatStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, processed, "la fila recibida entra al barrido")
	assert.Equal(t, 1, h.sat.calls)
}

// Reenviar el mismo XML recibido reutiliza la fila en lugar de apilar otra.
func TestReceive_ReenvioReutilizaFila(t *testing.T) {
	h := newHarness()
	first, err := h.svc.Receive(context.Background(), "bill-1", []byte("<cfdi/>"))
	require.NoError(t, err)

	second, err := h.svc.Receive(context.Background(), "bill-1", []byte("<cfdi/>"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, h.docs.bySource("invoice", "bill-1"), 1)
}

// XML ilegible: error de entrada sin dejar fila.
func TestReceive_CfdiIlegible(t *testing.T) {
	h := newHarness()
	companies := newFakeCompanies()
	svc := invoicing.NewService(invoicing.ServiceDeps{
		Assembler:  invoicing.NewAssembler(companies, fakeCertGateway{}, fakeTaxes{}),
		Renderer:   fakeRenderer{},
		Decoder:    fakeDecoder{err: fmt.Errorf("sin nodo Comprobante")},
		Documents:  h.docs,
		Folios:     h.folios,
		Companies:  companies,
		Certs:      fakeCertGateway{},
		Pacs:       []invoicing.PacProvider{h.pac},
		SatClient:  h.sat,
		Checkpoint: nopCheckpoint{},
		Logger:     zerolog.Nop(),
	})

	_, err := svc.Receive(context.Background(), "bill-1", []byte("basura"))
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, h.docs.bySource("invoice", "bill-1"))
}

// Pago PUE: se registra sin XML ni PAC.
func TestRegisterPUEPayment(t *testing.T) {
	h := newHarness()
	event, err := h.svc.RegisterPUEPayment(context.Background(), &invoicing.SourceDocument{
		Model: "payment", ID: "pay-1",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatePaymentSentPUE, event.State)
	assert.Empty(t, h.pac.signed)
}
