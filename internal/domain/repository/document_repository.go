package repository

import (
	"context"

	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

// DocumentRepository puerto de persistencia del store de documentos CFDI.
// Las lecturas devuelven siempre las filas ordenadas datetime DESC, id DESC.
type DocumentRepository interface {
	Insert(ctx context.Context, doc *entity.Document) error
	// Update sobreescribe message, fields de estado, attachment y datetime de
	// una fila existente (política de merge).
	Update(ctx context.Context, doc *entity.Document) error
	Delete(ctx context.Context, ids []string) error
	GetByID(ctx context.Context, id string) (*entity.Document, error)
	// ListBySource filas de un registro origen, orden datetime DESC, id DESC.
	ListBySource(ctx context.Context, sourceModel, sourceID string) ([]entity.Document, error)
	// FindSentByUUID busca la fila *_sent validable con ese folio fiscal.
	FindSentByUUID(ctx context.Context, uuid string) (*entity.Document, error)
	// SetSatState actualiza solo sat_state (y message) de las filas dadas.
	SetSatState(ctx context.Context, ids []string, satState, message string) error
	// ListForSatPoll dominio del barrido: estados activos con sat_state fuera
	// de {valid, cancelled, skip}, con límite.
	ListForSatPoll(ctx context.Context, limit int) ([]entity.Document, error)
}
