package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/cfdi-api/internal/domain/entity"
	"github.com/jhoicas/cfdi-api/internal/domain/repository"
)

var _ repository.FolioRepository = (*FolioRepo)(nil)

// FolioRepo secuencia de folios de factura global sobre PostgreSQL. Recibe el
// pool directamente: NextNumber abre su propia transacción para el bloqueo de
// fila.
type FolioRepo struct {
	pool *pgxpool.Pool
}

// NewFolioRepository construye el adaptador.
func NewFolioRepository(pool *pgxpool.Pool) *FolioRepo {
	return &FolioRepo{pool: pool}
}

// GetByCompany obtiene la secuencia de la empresa raíz; nil, nil si no hay.
func (r *FolioRepo) GetByCompany(ctx context.Context, companyID string) (*entity.FolioSequence, error) {
	const q = `
		SELECT id, company_id, COALESCE(prefix, ''), COALESCE(suffix, ''),
		       padding, number_next, updated_at
		FROM folio_sequences WHERE company_id = $1`
	var s entity.FolioSequence
	err := r.pool.QueryRow(ctx, q, companyID).Scan(
		&s.ID, &s.CompanyID, &s.Prefix, &s.Suffix,
		&s.Padding, &s.NumberNext, &s.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get folio_sequence: %w", err)
	}
	return &s, nil
}

// NextNumber reserva el siguiente folio con bloqueo de fila: dos firmados
// concurrentes nunca comparten folio. La reserva incrementa number_next de
// inmediato; un folio reservado jamás se reutiliza aunque el timbrado falle
// (el reintento de la global reenvía el XML ya generado con su folio).
func (r *FolioRepo) NextNumber(ctx context.Context, companyID string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin folio tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var n int64
	err = tx.QueryRow(ctx,
		`SELECT number_next FROM folio_sequences WHERE company_id = $1 FOR UPDATE`,
		companyID,
	).Scan(&n)
	if err != nil {
		if isNoRows(err) {
			return 0, fmt.Errorf("folio_sequence de %s: no existe", companyID)
		}
		return 0, fmt.Errorf("lock folio_sequence: %w", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE folio_sequences SET number_next = number_next + 1, updated_at = now()
		 WHERE company_id = $1`,
		companyID,
	)
	if err != nil {
		return 0, fmt.Errorf("advance folio_sequence: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit folio tx: %w", err)
	}
	return n, nil
}

// Commit confirma el consumo tras el timbrado exitoso. number_next ya avanzó
// en la reserva; aquí solo se garantiza que nunca retroceda por debajo del
// folio consumido.
func (r *FolioRepo) Commit(ctx context.Context, companyID string, consumed int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE folio_sequences
		 SET number_next = GREATEST(number_next, $2 + 1), updated_at = now()
		 WHERE company_id = $1`,
		companyID, consumed,
	)
	if err != nil {
		return fmt.Errorf("commit folio %d: %w", consumed, err)
	}
	return nil
}
