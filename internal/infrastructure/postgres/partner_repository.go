package postgres

import (
	"context"
	"fmt"

	"github.com/jhoicas/cfdi-api/internal/domain/entity"
	"github.com/jhoicas/cfdi-api/internal/domain/repository"
)

var _ repository.PartnerRepository = (*PartnerRepo)(nil)

// PartnerRepo datos fiscales de receptores sobre PostgreSQL.
type PartnerRepo struct {
	q Querier
}

// NewPartnerRepository construye el adaptador. Pasar pool o tx (Querier).
func NewPartnerRepository(q Querier) *PartnerRepo {
	return &PartnerRepo{q: q}
}

// GetByID obtiene un receptor por ID; nil, nil si no existe.
func (r *PartnerRepo) GetByID(ctx context.Context, id string) (*entity.Partner, error) {
	const q = `
		SELECT id, name, COALESCE(vat, ''), COALESCE(country_code, ''),
		       COALESCE(sat_country_code, ''), COALESCE(fiscal_regime, ''),
		       COALESCE(zip, ''), no_tax_breakdown, created_at, updated_at
		FROM partners WHERE id = $1`
	var p entity.Partner
	err := r.q.QueryRow(ctx, q, id).Scan(
		&p.ID, &p.Name, &p.VAT, &p.CountryCode,
		&p.SatCountryCode, &p.FiscalRegime,
		&p.Zip, &p.NoTaxBreakdown, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get partner: %w", err)
	}
	return &p, nil
}
