package invoicing

import (
	"context"
	"fmt"

	"github.com/jhoicas/cfdi-api/internal/domain"
	"github.com/jhoicas/cfdi-api/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

// satSweepBatch tamaño del lote del barrido programado.
const satSweepBatch = 100

// UpdateSatStatus consulta el SAT para una fila concreta (acción del usuario).
func (s *Service) UpdateSatStatus(ctx context.Context, documentID string) (*entity.Document, error) {
	row, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrNotFound
	}
	if err := s.pollDocument(ctx, row); err != nil {
		return nil, err
	}
	return s.docs.GetByID(ctx, documentID)
}

// SweepSatStatus procesa un lote del dominio de barrido. Los fallos por fila
// se registran y no detienen el lote; more indica que el lote quedó lleno y
// conviene programar otra corrida inmediata.
func (s *Service) SweepSatStatus(ctx context.Context) (processed int, more bool, err error) {
	rows, err := s.docs.ListForSatPoll(ctx, satSweepBatch)
	if err != nil {
		return 0, false, err
	}
	for i := range rows {
		if perr := s.pollDocument(ctx, &rows[i]); perr != nil {
			s.log.Warn().Err(perr).Str("document_id", rows[i].ID).
				Str("uuid", rows[i].AttachmentUUID).Msg("fallo al consultar el SAT")
		}
	}
	return len(rows), len(rows) == satSweepBatch, nil
}

// pollDocument consulta el estado del CFDI de la fila y escribe el sat_state;
// la consulta puede además empujar el ciclo de vida (solicitud de cancelación
// aceptada, o cancelación hecha fuera del sistema).
func (s *Service) pollDocument(ctx context.Context, row *entity.Document) error {
	if row.AttachmentUUID == "" || len(row.Attachment) == 0 {
		return s.docs.SetSatState(ctx, []string{row.ID}, entity.SatStateSkip, "")
	}
	decoded, err := s.decoder.Decode(row.Attachment)
	if err != nil {
		return fmt.Errorf("satsync: attachment ilegible: %w", err)
	}

	satState, msg := s.satClient.Status(ctx, row.AttachmentUUID, decoded.EmisorRFC, decoded.ReceptorRFC, decoded.Total)
	if cerr := s.checkpoint.Checkpoint(ctx); cerr != nil {
		s.log.Error().Err(cerr).Str("uuid", row.AttachmentUUID).Msg("checkpoint tras consulta SAT")
	}

	next := cfdi.NextStateOnSatPoll(row.State, satState)
	if next != row.State {
		// Solicitud de cancelación aceptada por el receptor.
		event := &entity.Document{
			SourceModel:        row.SourceModel,
			SourceID:           row.SourceID,
			Datetime:           s.now(),
			State:              next,
			SatState:           satState,
			CancellationReason: row.CancellationReason,
			Message:            msg,
			Attachment:         row.Attachment,
			AttachmentUUID:     row.AttachmentUUID,
			AttachmentOrigin:   row.AttachmentOrigin,
		}
		return s.writeEvent(ctx, event)
	}

	if !cfdi.SatStateAllowed(row.State, satState) {
		// Cancelado desde el portal del SAT, fuera de nuestro flujo: se
		// registra el evento de cancelación correspondiente.
		cancelState := cfdi.CancelStateFor(row.State, false)
		if cancelState != "" {
			event := &entity.Document{
				SourceModel:      row.SourceModel,
				SourceID:         row.SourceID,
				Datetime:         s.now(),
				State:            cancelState,
				SatState:         satState,
				Message:          msg,
				Attachment:       row.Attachment,
				AttachmentUUID:   row.AttachmentUUID,
				AttachmentOrigin: row.AttachmentOrigin,
			}
			return s.writeEvent(ctx, event)
		}
	}

	return s.docs.SetSatState(ctx, []string{row.ID}, satState, msg)
}
