package repository

import (
	"context"

	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

// FolioRepository secuencia de folios de factura global, una por empresa raíz.
type FolioRepository interface {
	GetByCompany(ctx context.Context, companyID string) (*entity.FolioSequence, error)
	// NextNumber lee y reserva el siguiente folio con bloqueo de fila
	// (SELECT ... FOR UPDATE): dos firmados concurrentes nunca comparten folio.
	NextNumber(ctx context.Context, companyID string) (int64, error)
	// Commit confirma el consumo del folio tras un timbrado exitoso.
	Commit(ctx context.Context, companyID string, consumed int64) error
}
