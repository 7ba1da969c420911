package invoicing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/cfdi-api/internal/domain"
	"github.com/jhoicas/cfdi-api/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
	"github.com/jhoicas/cfdi-api/internal/domain/repository"
	"github.com/jhoicas/cfdi-api/pkg/sat"
)

// Service orquesta el ciclo completo de un CFDI: ensamblar → renderizar y
// sellar → timbrar con el PAC → persistir el evento con la política de merge →
// consultar el SAT. Toda llamada de red va precedida de validación local y
// seguida de un checkpoint para que una caída no pierda un timbrado.
type Service struct {
	assembler  *Assembler
	renderer   Renderer
	decoder    Decoder
	docs       repository.DocumentRepository
	folios     repository.FolioRepository
	companies  repository.CompanyRepository
	certs      CertificateGateway
	pacs       map[string]PacProvider
	satClient  SatStatusClient
	checkpoint Checkpointer
	log        zerolog.Logger
	now        func() time.Time
}

// ServiceDeps dependencias del orquestador.
type ServiceDeps struct {
	Assembler  *Assembler
	Renderer   Renderer
	Decoder    Decoder
	Documents  repository.DocumentRepository
	Folios     repository.FolioRepository
	Companies  repository.CompanyRepository
	Certs      CertificateGateway
	Pacs       []PacProvider
	SatClient  SatStatusClient
	Checkpoint Checkpointer
	Logger     zerolog.Logger
}

// NewService construye el orquestador indexando los PAC por nombre.
func NewService(deps ServiceDeps) *Service {
	pacs := make(map[string]PacProvider, len(deps.Pacs))
	for _, p := range deps.Pacs {
		pacs[p.Name()] = p
	}
	return &Service{
		assembler:  deps.Assembler,
		renderer:   deps.Renderer,
		decoder:    deps.Decoder,
		docs:       deps.Documents,
		folios:     deps.Folios,
		companies:  deps.Companies,
		certs:      deps.Certs,
		pacs:       pacs,
		satClient:  deps.SatClient,
		checkpoint: deps.Checkpoint,
		log:        deps.Logger,
		now:        time.Now,
	}
}

// sentStateFor estado *_sent que corresponde al modelo origen.
func sentStateFor(model string) string {
	switch model {
	case "ginvoice":
		return entity.StateGInvoiceSent
	case "payment":
		return entity.StatePaymentSent
	default:
		return entity.StateInvoiceSent
	}
}

// pacFor resuelve el adapter y las credenciales de la empresa.
func (s *Service) pacFor(company *entity.Company) (PacProvider, PacCredentials, error) {
	if company == nil || company.PacName == "" {
		return nil, PacCredentials{}, domain.ErrNoPac
	}
	pac, ok := s.pacs[company.PacName]
	if !ok {
		return nil, PacCredentials{}, fmt.Errorf("pac: %w: %q", domain.ErrNoPac, company.PacName)
	}
	creds, err := pac.Credentials(company)
	if err != nil {
		return nil, PacCredentials{}, err
	}
	return pac, creds, nil
}

// Sign ensambla, sella y timbra el documento, y persiste el evento resultante.
// Los errores de ensamblado o del PAC quedan como fila *_failed con el mensaje
// acumulado; solo los fallos de configuración (sin PAC, sin credenciales)
// regresan error sin dejar fila.
func (s *Service) Sign(ctx context.Context, doc *SourceDocument) (*entity.Document, error) {
	sentState := sentStateFor(doc.Model)

	if doc.Model == "ginvoice" && doc.Name == "" {
		if err := s.assignGlobalFolio(ctx, doc); err != nil {
			return nil, err
		}
	}

	values := s.assembler.Assemble(ctx, doc)
	if values.HasErrors() {
		return s.writeFailure(ctx, doc, sentState, strings.Join(values.Errors, "\n"), nil)
	}

	pac, creds, err := s.pacFor(values.Company)
	if err != nil {
		return nil, err
	}
	cert, err := s.certs.PickActive(ctx, values.RootCompany)
	if err != nil {
		return nil, err
	}

	xml, err := s.renderer.Render(ctx, values, cert)
	if err != nil {
		return s.writeFailure(ctx, doc, sentState, err.Error(), nil)
	}

	res := pac.Sign(ctx, creds, xml)
	if err := s.checkpoint.Checkpoint(ctx); err != nil {
		s.log.Error().Err(err).Str("source_id", doc.ID).Msg("checkpoint tras timbrado")
	}
	if len(res.Errors) > 0 {
		s.log.Warn().Str("pac", pac.Name()).Str("source_id", doc.ID).
			Strs("errors", res.Errors).Msg("el PAC rechazó el comprobante")
		// El XML generado se conserva: el reintento de la global lo reenvía tal cual.
		return s.writeFailure(ctx, doc, sentState, strings.Join(res.Errors, "\n"), xml)
	}

	decoded, err := s.decoder.Decode(res.Cfdi)
	if err != nil {
		return s.writeFailure(ctx, doc, sentState, fmt.Sprintf("CFDI timbrado ilegible: %v", err), res.Cfdi)
	}

	event := &entity.Document{
		SourceModel:      doc.Model,
		SourceID:         doc.ID,
		Datetime:         s.now(),
		State:            sentState,
		Attachment:       res.Cfdi,
		AttachmentUUID:   decoded.UUID,
		AttachmentOrigin: doc.Origin,
		InvoiceIDs:       doc.InvoiceIDs,
	}
	if err := s.writeEvent(ctx, event); err != nil {
		return nil, err
	}

	if doc.Model == "ginvoice" {
		if err := s.commitGlobalFolio(ctx, doc); err != nil {
			s.log.Error().Err(err).Str("source_id", doc.ID).Msg("no se pudo confirmar el folio global")
		}
	}

	s.log.Info().Str("pac", pac.Name()).Str("source_id", doc.ID).
		Str("uuid", decoded.UUID).Msg("CFDI timbrado")
	return event, nil
}

// RegisterPUEPayment registra un pago de factura PUE que no requiere
// complemento: fila payment_sent_pue sin XML ni llamada al PAC.
func (s *Service) RegisterPUEPayment(ctx context.Context, doc *SourceDocument) (*entity.Document, error) {
	event := &entity.Document{
		SourceModel: "payment",
		SourceID:    doc.ID,
		Datetime:    s.now(),
		State:       entity.StatePaymentSentPUE,
	}
	if err := s.writeEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Receive registra un CFDI timbrado por un tercero (factura de proveedor):
// fila invoice_received con el UUID decodificado, sin tocar al PAC. El merge
// del store reutiliza una fila invoice_received previa del mismo registro
// mientras el SAT no la haya validado, así que reenviar el XML es idempotente.
func (s *Service) Receive(ctx context.Context, sourceID string, xml []byte) (*entity.Document, error) {
	decoded, err := s.decoder.Decode(xml)
	if err != nil {
		return nil, fmt.Errorf("receive: %w: CFDI ilegible: %v", domain.ErrInvalidInput, err)
	}
	if decoded.UUID == "" {
		return nil, fmt.Errorf("receive: %w: el CFDI no trae TimbreFiscalDigital", domain.ErrInvalidInput)
	}

	event := &entity.Document{
		SourceModel:    "invoice",
		SourceID:       sourceID,
		Datetime:       s.now(),
		State:          entity.StateInvoiceReceived,
		Attachment:     xml,
		AttachmentUUID: decoded.UUID,
	}
	if err := s.writeEvent(ctx, event); err != nil {
		return nil, err
	}
	s.log.Info().Str("source_id", sourceID).Str("uuid", decoded.UUID).
		Str("emisor", decoded.EmisorRFC).Msg("CFDI recibido registrado")
	return event, nil
}

// CancelCommand parámetros de una cancelación ante el PAC.
type CancelCommand struct {
	DocumentID     string
	CompanyID      string
	Reason         string // c_MotivoCancelacion 01..04
	SubstituteUUID string // obligatorio con motivo 01
}

// Cancel solicita al PAC la cancelación del CFDI de la fila *_sent dada y
// persiste el resultado: *_cancel, invoice_cancel_requested (en espera de
// aceptación) o la forma fallida.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*entity.Document, error) {
	row, err := s.docs.GetByID(ctx, cmd.DocumentID)
	if err != nil {
		return nil, err
	}
	if row == nil || !row.IsSent() || row.AttachmentUUID == "" {
		return nil, fmt.Errorf("cancel: %w: la fila no es un envío timbrado", domain.ErrConflict)
	}

	if !sat.ValidCancellationReasons[cmd.Reason] {
		return nil, fmt.Errorf("cancel: %w: motivo %q", domain.ErrInvalidInput, cmd.Reason)
	}
	if cmd.Reason == sat.CancelConErroresConSustituto && cmd.SubstituteUUID == "" {
		// El error de configuración deja fila fallida sin tocar la red.
		event := &entity.Document{
			SourceModel:        row.SourceModel,
			SourceID:           row.SourceID,
			Datetime:           s.now(),
			State:              cfdi.FailedStateFor(cfdi.CancelStateFor(row.State, false)),
			CancellationReason: cmd.Reason,
			Message:            domain.ErrNoSubstitute.Error(),
			AttachmentUUID:     row.AttachmentUUID,
		}
		if werr := s.writeEvent(ctx, event); werr != nil {
			return nil, werr
		}
		return event, domain.ErrNoSubstitute
	}
	if cmd.Reason == sat.CancelConErroresConSustituto {
		// El sustituto debe existir como envío timbrado al momento de cancelar.
		sub, serr := s.docs.FindSentByUUID(ctx, cmd.SubstituteUUID)
		if serr != nil {
			return nil, serr
		}
		if sub == nil {
			return nil, fmt.Errorf("cancel: %w: el sustituto %s no está timbrado", domain.ErrNoSubstitute, cmd.SubstituteUUID)
		}
	}

	company, err := s.companies.GetByID(ctx, cmd.CompanyID)
	if err != nil {
		return nil, err
	}
	root, err := s.companies.Root(ctx, cmd.CompanyID)
	if err != nil {
		return nil, err
	}
	pac, creds, err := s.pacFor(company)
	if err != nil {
		return nil, err
	}
	cert, err := s.certs.PickActive(ctx, root)
	if err != nil {
		return nil, err
	}

	res := pac.Cancel(ctx, creds, CancelRequest{
		UUID:           row.AttachmentUUID,
		Reason:         cmd.Reason,
		SubstituteUUID: cmd.SubstituteUUID,
		RFC:            sat.NormalizeRFC(root.RFC),
		CerPEM:         cert.CerPEM(),
		KeyPEM:         cert.KeyPEM(),
		KeyPassword:    cert.Password(),
	})
	if err := s.checkpoint.Checkpoint(ctx); err != nil {
		s.log.Error().Err(err).Str("uuid", row.AttachmentUUID).Msg("checkpoint tras cancelación")
	}

	cancelState := cfdi.CancelStateFor(row.State, res.NeedsAcceptance)
	if cancelState == "" {
		return nil, fmt.Errorf("cancel: %w: estado %q", domain.ErrConflict, row.State)
	}

	event := &entity.Document{
		SourceModel:        row.SourceModel,
		SourceID:           row.SourceID,
		Datetime:           s.now(),
		State:              cancelState,
		CancellationReason: cmd.Reason,
		Attachment:         row.Attachment,
		AttachmentUUID:     row.AttachmentUUID,
		AttachmentOrigin:   row.AttachmentOrigin,
	}
	if len(res.Errors) > 0 {
		event.State = cfdi.FailedStateFor(cancelState)
		event.Message = strings.Join(res.Errors, "\n")
		s.log.Warn().Str("pac", pac.Name()).Str("uuid", row.AttachmentUUID).
			Strs("errors", res.Errors).Msg("el PAC rechazó la cancelación")
	} else {
		s.log.Info().Str("pac", pac.Name()).Str("uuid", row.AttachmentUUID).
			Str("state", event.State).Msg("cancelación registrada")
	}
	if err := s.writeEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// Retry reintenta una fila fallida. La global fallida con XML reenvía el
// attachment almacenado tal cual (el folio ya fue consumido); el resto vuelve
// a ensamblar desde el documento origen.
func (s *Service) Retry(ctx context.Context, documentID string, doc *SourceDocument) (*entity.Document, error) {
	row, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if row == nil || !row.RetryButtonNeeded() {
		return nil, fmt.Errorf("retry: %w: la fila no admite reintento", domain.ErrConflict)
	}
	if row.State == entity.StateGInvoiceSentFailed && len(row.Attachment) > 0 {
		return s.resendStored(ctx, row, doc.CompanyID)
	}
	return s.Sign(ctx, doc)
}

// resendStored reenvía al PAC un XML ya generado sin reensamblar.
func (s *Service) resendStored(ctx context.Context, row *entity.Document, companyID string) (*entity.Document, error) {
	company, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	pac, creds, err := s.pacFor(company)
	if err != nil {
		return nil, err
	}

	res := pac.Sign(ctx, creds, row.Attachment)
	if err := s.checkpoint.Checkpoint(ctx); err != nil {
		s.log.Error().Err(err).Str("source_id", row.SourceID).Msg("checkpoint tras reintento")
	}

	event := &entity.Document{
		SourceModel:      row.SourceModel,
		SourceID:         row.SourceID,
		Datetime:         s.now(),
		State:            entity.StateGInvoiceSent,
		AttachmentOrigin: row.AttachmentOrigin,
		InvoiceIDs:       row.InvoiceIDs,
	}
	if len(res.Errors) > 0 {
		event.State = entity.StateGInvoiceSentFailed
		event.Message = strings.Join(res.Errors, "\n")
		event.Attachment = row.Attachment
	} else {
		decoded, derr := s.decoder.Decode(res.Cfdi)
		if derr != nil {
			return nil, fmt.Errorf("retry: CFDI timbrado ilegible: %w", derr)
		}
		event.Attachment = res.Cfdi
		event.AttachmentUUID = decoded.UUID
	}
	if err := s.writeEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// writeFailure persiste la forma fallida del estado con el mensaje dado.
func (s *Service) writeFailure(ctx context.Context, doc *SourceDocument, sentState, message string, attachment []byte) (*entity.Document, error) {
	event := &entity.Document{
		SourceModel:      doc.Model,
		SourceID:         doc.ID,
		Datetime:         s.now(),
		State:            cfdi.FailedStateFor(sentState),
		Message:          message,
		Attachment:       attachment,
		AttachmentOrigin: doc.Origin,
		InvoiceIDs:       doc.InvoiceIDs,
	}
	if err := s.writeEvent(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

// writeEvent aplica la política de merge del store y materializa el plan:
// reutilizar fila fallida, podar hermanas obsoletas y marcar skip las filas
// con el mismo UUID.
func (s *Service) writeEvent(ctx context.Context, event *entity.Document) error {
	existing, err := s.docs.ListBySource(ctx, event.SourceModel, event.SourceID)
	if err != nil {
		return err
	}
	plan := cfdi.PlanWrite(existing, *event)

	if plan.UpdateID != "" {
		event.ID = plan.UpdateID
		if err := s.docs.Update(ctx, event); err != nil {
			return err
		}
	} else {
		event.ID = uuid.NewString()
		if err := s.docs.Insert(ctx, event); err != nil {
			return err
		}
	}
	if len(plan.PruneIDs) > 0 {
		if err := s.docs.Delete(ctx, plan.PruneIDs); err != nil {
			return err
		}
	}
	if len(plan.SkipIDs) > 0 {
		if err := s.docs.SetSatState(ctx, plan.SkipIDs, entity.SatStateSkip, ""); err != nil {
			return err
		}
	}
	return nil
}

// assignGlobalFolio reserva el siguiente folio de la secuencia global de la
// empresa raíz y arma el nombre serie+folio del comprobante.
func (s *Service) assignGlobalFolio(ctx context.Context, doc *SourceDocument) error {
	root, err := s.companies.Root(ctx, doc.CompanyID)
	if err != nil {
		return err
	}
	seq, err := s.folios.GetByCompany(ctx, root.ID)
	if err != nil {
		return err
	}
	n, err := s.folios.NextNumber(ctx, root.ID)
	if err != nil {
		return err
	}
	doc.FolioNumber = n
	doc.Name = fmt.Sprintf("%s%0*d", seq.FormatSerie(doc.Date), seq.Padding, n)
	return nil
}

// commitGlobalFolio confirma el consumo del folio reservado tras el timbrado
// exitoso. Se confirma el folio que NextNumber entregó, no el cursor de la
// secuencia: confirmar el cursor saltaría un número y rompería la contigüidad.
func (s *Service) commitGlobalFolio(ctx context.Context, doc *SourceDocument) error {
	if doc.FolioNumber == 0 {
		return nil
	}
	root, err := s.companies.Root(ctx, doc.CompanyID)
	if err != nil {
		return err
	}
	return s.folios.Commit(ctx, root.ID, doc.FolioNumber)
}
