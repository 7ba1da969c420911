package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/cfdi-api/internal/application/invoicing"
)

var _ invoicing.Checkpointer = (*Checkpoint)(nil)

// Checkpoint confirma el estado intermedio entre llamadas de red. Cada Exec de
// los repositorios se confirma por sentencia (autocommit del pool), de modo que
// una fila escrita antes del checkpoint ya es durable; aquí se verifica además
// que la conexión siga viva para detectar la caída antes de la siguiente
// llamada al PAC o al SAT.
type Checkpoint struct {
	pool *pgxpool.Pool
}

// NewCheckpoint construye el checkpointer con el pool.
func NewCheckpoint(pool *pgxpool.Pool) *Checkpoint {
	return &Checkpoint{pool: pool}
}

// Checkpoint implementa invoicing.Checkpointer.
func (c *Checkpoint) Checkpoint(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}
