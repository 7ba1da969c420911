package cfdi

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
)

// MatchCriterion criterio adicional del motor de impuestos para ordenar las
// candidatas positivas de una negativa. Devuelve true si candidate es
// preferible según el criterio.
type MatchCriterion func(negative, candidate entity.BaseLine) bool

// DispatchResult salida del reparto: líneas positivas supervivientes (con los
// montos ya netos) y negativas huérfanas. Orphans debe quedar vacío para que
// el render pase la validación de esquema.
type DispatchResult struct {
	Lines   []entity.BaseLine
	Orphans []entity.BaseLine
}

// DispatchNegativeLines distribuye cada línea negativa sobre líneas positivas
// con la misma firma de impuestos hasta agotarla. Prioridad de candidatas:
//
//  1. mismas document_id que la negativa
//  2. record_id presente en prior_record_ids de la negativa (causal previa)
//  3. criterios inyectados por el motor de impuestos, en orden
//
// El reparto reduce price_subtotal y escala proporcionalmente los tax_details
// de la anfitriona. Una negativa que no cabe completa queda en Orphans con el
// remanente.
func DispatchNegativeLines(lines []entity.BaseLine, criteria []MatchCriterion) DispatchResult {
	var positives, negatives []entity.BaseLine
	for _, l := range lines {
		if l.PriceSubtotal.IsNegative() {
			negatives = append(negatives, l)
		} else {
			positives = append(positives, l)
		}
	}

	hosts := make([]*entity.BaseLine, len(positives))
	for i := range positives {
		hosts[i] = &positives[i]
	}

	var orphans []entity.BaseLine
	for _, neg := range negatives {
		remaining := neg.PriceSubtotal.Neg() // monto positivo a absorber
		for _, host := range rankCandidates(neg, hosts, criteria) {
			if remaining.IsZero() {
				break
			}
			avail := host.PriceSubtotal
			if !avail.IsPositive() {
				continue
			}
			take := decimal.Min(remaining, avail)
			absorb(host, take)
			remaining = remaining.Sub(take)
		}
		if remaining.IsPositive() {
			leftover := neg
			leftover.PriceSubtotal = remaining.Neg()
			orphans = append(orphans, leftover)
		}
	}

	// Las positivas reducidas a cero desaparecen del comprobante.
	var out []entity.BaseLine
	for _, p := range positives {
		if p.PriceSubtotal.IsPositive() {
			out = append(out, p)
		}
	}
	return DispatchResult{Lines: out, Orphans: orphans}
}

// rankCandidates filtra por firma de impuestos y ordena por prioridad estable.
func rankCandidates(neg entity.BaseLine, hosts []*entity.BaseLine, criteria []MatchCriterion) []*entity.BaseLine {
	sig := neg.TaxSignature()
	var cands []*entity.BaseLine
	for _, h := range hosts {
		if h.TaxSignature() == sig && h.PriceSubtotal.IsPositive() {
			cands = append(cands, h)
		}
	}
	prior := make(map[string]bool, len(neg.PriorRecordIDs))
	for _, id := range neg.PriorRecordIDs {
		prior[id] = true
	}
	score := func(c *entity.BaseLine) (s int) {
		if c.DocumentID == neg.DocumentID {
			s -= 4 << len(criteria)
		}
		if prior[c.RecordID] {
			s -= 2 << len(criteria)
		}
		for i, crit := range criteria {
			if crit(neg, *c) {
				s -= 1 << (len(criteria) - 1 - i)
			}
		}
		return s
	}
	sort.SliceStable(cands, func(i, j int) bool { return score(cands[i]) < score(cands[j]) })
	return cands
}

// absorb descuenta take del subtotal de la anfitriona y escala sus detalles
// de impuestos en la misma proporción.
func absorb(host *entity.BaseLine, take decimal.Decimal) {
	before := host.PriceSubtotal
	after := before.Sub(take)
	host.PriceSubtotal = after

	if before.IsZero() {
		return
	}
	factor := after.Div(before)
	for i := range host.TaxDetails {
		td := &host.TaxDetails[i]
		td.BaseAmount = td.BaseAmount.Mul(factor)
		td.TaxAmount = td.TaxAmount.Mul(factor)
		td.RawBaseAmount = td.RawBaseAmount.Mul(factor)
		td.RawTaxAmount = td.RawTaxAmount.Mul(factor)
	}
}
