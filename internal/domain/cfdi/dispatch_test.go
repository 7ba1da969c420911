package cfdi_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/cfdi-api/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

func line(record, doc string, subtotal float64) entity.BaseLine {
	return entity.BaseLine{
		RecordID:      record,
		DocumentID:    doc,
		Quantity:      decimal.NewFromInt(1),
		PriceUnit:     decimal.NewFromFloat(subtotal),
		PriceSubtotal: decimal.NewFromFloat(subtotal),
		TaxDetails: []entity.TaxDetail{{
			TaxID:      "iva16",
			FactorType: "Tasa",
			Rate:       decimal.NewFromInt(16),
			BaseAmount: decimal.NewFromFloat(subtotal),
			TaxAmount:  decimal.NewFromFloat(subtotal * 0.16),
		}},
	}
}

// Escenario: dos positivas del mismo documento (100 y 50) y una negativa de
// -30 del mismo documento. Tras el reparto quedan dos positivas que suman 120
// y cero huérfanas.
func TestDispatch_NegativaAbsorbidaMismoDocumento(t *testing.T) {
	lines := []entity.BaseLine{
		line("l1", "doc1", 100),
		line("l2", "doc1", 50),
		line("l3", "doc1", -30),
	}

	res := cfdi.DispatchNegativeLines(lines, nil)

	require.Empty(t, res.Orphans, "no deben quedar negativas huérfanas")
	require.Len(t, res.Lines, 2)
	sum := decimal.Zero
	for _, l := range res.Lines {
		assert.True(t, l.PriceSubtotal.IsPositive())
		sum = sum.Add(l.PriceSubtotal)
	}
	assert.True(t, sum.Equal(decimal.NewFromInt(120)),
		"la suma con signo debe conservarse: esperaba 120, obtuvo %s", sum)
}

// La suma con signo se conserva aunque la negativa se reparta entre varias
// anfitrionas y consuma una por completo.
func TestDispatch_NegativaRepartidaEntreVarias(t *testing.T) {
	lines := []entity.BaseLine{
		line("l1", "doc1", 40),
		line("l2", "doc1", 40),
		line("l3", "doc1", -60),
	}

	res := cfdi.DispatchNegativeLines(lines, nil)

	require.Empty(t, res.Orphans)
	require.Len(t, res.Lines, 1, "la anfitriona agotada desaparece")
	assert.True(t, res.Lines[0].PriceSubtotal.Equal(decimal.NewFromInt(20)))
}

// Prioridad 1: se prefiere una candidata del mismo documento aunque otra
// (de documento distinto) aparezca primero.
func TestDispatch_PrefiereMismoDocumento(t *testing.T) {
	lines := []entity.BaseLine{
		line("a", "docA", 100),
		line("b", "docB", 100),
		line("n", "docB", -50),
	}

	res := cfdi.DispatchNegativeLines(lines, nil)

	require.Empty(t, res.Orphans)
	byRecord := map[string]entity.BaseLine{}
	for _, l := range res.Lines {
		byRecord[l.RecordID] = l
	}
	assert.True(t, byRecord["a"].PriceSubtotal.Equal(decimal.NewFromInt(100)),
		"la línea de otro documento no debe tocarse")
	assert.True(t, byRecord["b"].PriceSubtotal.Equal(decimal.NewFromInt(50)))
}

// Prioridad 2: entre candidatas del mismo documento gana la causal previa
// (record_id en prior_record_ids de la negativa).
func TestDispatch_PrefiereCausalPrevia(t *testing.T) {
	l1 := line("a", "doc1", 100)
	l2 := line("b", "doc1", 100)
	neg := line("n", "doc1", -70)
	neg.PriorRecordIDs = []string{"b"}

	res := cfdi.DispatchNegativeLines([]entity.BaseLine{l1, l2, neg}, nil)

	require.Empty(t, res.Orphans)
	byRecord := map[string]entity.BaseLine{}
	for _, l := range res.Lines {
		byRecord[l.RecordID] = l
	}
	assert.True(t, byRecord["b"].PriceSubtotal.Equal(decimal.NewFromInt(30)))
	assert.True(t, byRecord["a"].PriceSubtotal.Equal(decimal.NewFromInt(100)))
}

// Una negativa sin anfitriona compatible (firma de impuestos distinta) queda
// huérfana con su remanente.
func TestDispatch_HuerfanaSinFirmaCompatible(t *testing.T) {
	pos := line("a", "doc1", 100)
	neg := line("n", "doc1", -30)
	neg.TaxDetails = nil // firma distinta: sin impuestos

	res := cfdi.DispatchNegativeLines([]entity.BaseLine{pos, neg}, nil)

	require.Len(t, res.Orphans, 1)
	assert.True(t, res.Orphans[0].PriceSubtotal.Equal(decimal.NewFromInt(-30)))
	require.Len(t, res.Lines, 1)
	assert.True(t, res.Lines[0].PriceSubtotal.Equal(decimal.NewFromInt(100)))
}

// Los tax_details de la anfitriona se escalan en la misma proporción que el
// subtotal absorbido.
func TestDispatch_EscalaImpuestosProporcional(t *testing.T) {
	lines := []entity.BaseLine{
		line("a", "doc1", 100),
		line("n", "doc1", -25),
	}

	res := cfdi.DispatchNegativeLines(lines, nil)

	require.Empty(t, res.Orphans)
	require.Len(t, res.Lines, 1)
	td := res.Lines[0].TaxDetails[0]
	assert.True(t, td.BaseAmount.Equal(decimal.NewFromInt(75)), "base: %s", td.BaseAmount)
	assert.True(t, td.TaxAmount.Equal(decimal.NewFromInt(12)), "importe: %s", td.TaxAmount)
}

// Criterio inyectado: desempata cuando documento y causalidad no deciden.
func TestDispatch_CriterioInyectado(t *testing.T) {
	l1 := line("a", "doc1", 100)
	l2 := line("b", "doc1", 100)
	neg := line("n", "doc1", -10)

	preferB := func(_, cand entity.BaseLine) bool { return cand.RecordID == "b" }
	res := cfdi.DispatchNegativeLines([]entity.BaseLine{l1, l2, neg},
		[]cfdi.MatchCriterion{preferB})

	require.Empty(t, res.Orphans)
	byRecord := map[string]entity.BaseLine{}
	for _, l := range res.Lines {
		byRecord[l.RecordID] = l
	}
	assert.True(t, byRecord["b"].PriceSubtotal.Equal(decimal.NewFromInt(90)))
	assert.True(t, byRecord["a"].PriceSubtotal.Equal(decimal.NewFromInt(100)))
}
