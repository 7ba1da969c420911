package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jhoicas/cfdi-api/internal/domain/entity"
	"github.com/jhoicas/cfdi-api/internal/domain/repository"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// DocumentRepo implementación del store de documentos CFDI sobre PostgreSQL.
// Usable con pool o tx (Querier).
type DocumentRepo struct {
	q Querier
}

// NewDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

const documentColumns = `id, source_model, source_id, datetime, state,
	COALESCE(sat_state, ''), COALESCE(cancellation_reason, ''), COALESCE(message, ''),
	attachment, COALESCE(attachment_uuid, ''), COALESCE(attachment_origin, ''),
	invoice_ids, created_at, updated_at`

// Insert persiste un nuevo evento de transmisión.
func (r *DocumentRepo) Insert(ctx context.Context, doc *entity.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	const q = `
		INSERT INTO cfdi_documents
			(id, source_model, source_id, datetime, state, sat_state, cancellation_reason,
			 message, attachment, attachment_uuid, attachment_origin, invoice_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())`
	_, err := r.q.Exec(ctx, q,
		doc.ID, doc.SourceModel, doc.SourceID, doc.Datetime, doc.State,
		nullIfEmpty(doc.SatState), nullIfEmpty(doc.CancellationReason), nullIfEmpty(doc.Message),
		doc.Attachment, nullIfEmpty(doc.AttachmentUUID), nullIfEmpty(doc.AttachmentOrigin),
		doc.InvoiceIDs,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("documento duplicado: %w", err)
		}
		return fmt.Errorf("insert cfdi_document: %w", err)
	}
	return nil
}

// Update sobreescribe los campos mutables de una fila existente (política de
// merge): estado, mensaje, attachment y datetime.
func (r *DocumentRepo) Update(ctx context.Context, doc *entity.Document) error {
	const q = `
		UPDATE cfdi_documents
		SET datetime            = $2,
		    state               = $3,
		    sat_state           = $4,
		    cancellation_reason = $5,
		    message             = $6,
		    attachment          = $7,
		    attachment_uuid     = $8,
		    attachment_origin   = $9,
		    invoice_ids         = $10,
		    updated_at          = now()
		WHERE id = $1`
	cmd, err := r.q.Exec(ctx, q,
		doc.ID, doc.Datetime, doc.State,
		nullIfEmpty(doc.SatState), nullIfEmpty(doc.CancellationReason), nullIfEmpty(doc.Message),
		doc.Attachment, nullIfEmpty(doc.AttachmentUUID), nullIfEmpty(doc.AttachmentOrigin),
		doc.InvoiceIDs,
	)
	if err != nil {
		return fmt.Errorf("update cfdi_document: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("update cfdi_document %s: fila inexistente", doc.ID)
	}
	return nil
}

// Delete elimina las filas indicadas (poda de fallidas por la política de merge).
func (r *DocumentRepo) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `DELETE FROM cfdi_documents WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("delete cfdi_documents: %w", err)
	}
	return nil
}

// GetByID devuelve nil, nil si la fila no existe.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM cfdi_documents WHERE id = $1`
	doc, err := scanDocument(r.q.QueryRow(ctx, q, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cfdi_document: %w", err)
	}
	return doc, nil
}

// ListBySource filas de un registro origen, orden datetime DESC, id DESC.
func (r *DocumentRepo) ListBySource(ctx context.Context, sourceModel, sourceID string) ([]entity.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM cfdi_documents
		WHERE source_model = $1 AND source_id = $2
		ORDER BY datetime DESC, id DESC`
	rows, err := r.q.Query(ctx, q, sourceModel, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list cfdi_documents: %w", err)
	}
	defer rows.Close()

	var list []entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cfdi_document: %w", err)
		}
		list = append(list, *doc)
	}
	return list, rows.Err()
}

// FindSentByUUID busca la fila *_sent validable con ese folio fiscal; las
// marcadas skip no cuentan. Devuelve nil, nil si no hay.
func (r *DocumentRepo) FindSentByUUID(ctx context.Context, uuid string) (*entity.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM cfdi_documents
		WHERE attachment_uuid = $1
		  AND state IN ('invoice_sent', 'ginvoice_sent', 'payment_sent', 'payment_sent_pue')
		  AND COALESCE(sat_state, '') <> 'skip'
		ORDER BY datetime DESC, id DESC
		LIMIT 1`
	doc, err := scanDocument(r.q.QueryRow(ctx, q, uuid))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find cfdi_document by uuid: %w", err)
	}
	return doc, nil
}

// SetSatState actualiza solo sat_state y message de las filas dadas.
func (r *DocumentRepo) SetSatState(ctx context.Context, ids []string, satState, message string) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `
		UPDATE cfdi_documents
		SET sat_state = $2, message = $3, updated_at = now()
		WHERE id = ANY($1)`
	_, err := r.q.Exec(ctx, q, ids, nullIfEmpty(satState), nullIfEmpty(message))
	if err != nil {
		return fmt.Errorf("set sat_state: %w", err)
	}
	return nil
}

// ListForSatPoll dominio del barrido: filas timbradas cuyo sat_state aún puede
// cambiar. Las más antiguas primero para que ninguna se quede sin consultar.
func (r *DocumentRepo) ListForSatPoll(ctx context.Context, limit int) ([]entity.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM cfdi_documents
		WHERE COALESCE(sat_state, '') NOT IN ('valid', 'cancelled', 'skip')
		  AND state NOT LIKE '%_failed'
		ORDER BY updated_at ASC
		LIMIT $1`
	rows, err := r.q.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list for sat poll: %w", err)
	}
	defer rows.Close()

	var list []entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cfdi_document: %w", err)
		}
		list = append(list, *doc)
	}
	return list, rows.Err()
}

func scanDocument(row pgxScanner) (*entity.Document, error) {
	var doc entity.Document
	err := row.Scan(
		&doc.ID, &doc.SourceModel, &doc.SourceID, &doc.Datetime, &doc.State,
		&doc.SatState, &doc.CancellationReason, &doc.Message,
		&doc.Attachment, &doc.AttachmentUUID, &doc.AttachmentOrigin,
		&doc.InvoiceIDs, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
