package invoicing

import (
	"context"

	"github.com/jhoicas/cfdi-api/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

// PrecomputedTaxes implementación de TaxCalculator para el despliegue API: el
// framework contable ya entrega el desglose por línea en la petición, así que
// no hay nada que calcular. Los criterios de reparto prefieren absorber una
// negativa en una línea del mismo producto y, a igualdad, del mismo documento.
type PrecomputedTaxes struct{}

// ComputeTaxDetails devuelve las líneas tal cual llegaron.
func (PrecomputedTaxes) ComputeTaxDetails(_ context.Context, lines []entity.BaseLine, _ *entity.Company) ([]entity.BaseLine, error) {
	return lines, nil
}

// DispatchCriteria criterios de ordenación para el reparto de negativas.
func (PrecomputedTaxes) DispatchCriteria() []cfdi.MatchCriterion {
	return []cfdi.MatchCriterion{
		func(negative, candidate entity.BaseLine) bool {
			return candidate.ProductCode == negative.ProductCode
		},
		func(negative, candidate entity.BaseLine) bool {
			return candidate.DocumentID == negative.DocumentID
		},
	}
}
