package invoicing

import (
	"github.com/shopspring/decimal"

	"github.com/jhoicas/cfdi-api/internal/domain/cfdi"
	"github.com/jhoicas/cfdi-api/internal/domain/entity"
	"github.com/jhoicas/cfdi-api/pkg/sat"
)

var hundred = decimal.NewFromInt(100)

// tasaOCuota convierte el detalle al valor CFDI: |tasa|/100 para Tasa,
// importe/base para Cuota (0 con base cero), nil para Exento.
func tasaOCuota(td entity.TaxDetail) *decimal.Decimal {
	switch td.FactorType {
	case sat.FactorExento:
		return nil
	case sat.FactorCuota:
		if td.BaseAmount.IsZero() {
			return ptr(decimal.Zero)
		}
		return ptr(td.TaxAmount.Abs().Div(td.BaseAmount))
	default:
		return ptr(td.Rate.Abs().Div(hundred))
	}
}

// sanitizeDescription limpia la descripción del concepto al largo máximo del
// Anexo 20.
func sanitizeDescription(s string) string {
	return cfdi.SanitizeText(s, 1000)
}

// lineObjeto el objeto de impuesto efectivo de la línea (cae al del documento).
func lineObjeto(v *Values, l entity.BaseLine) string {
	if l.ObjetoImp != "" {
		return l.ObjetoImp
	}
	return v.ObjetoImp
}

// signedFederalTaxes suma con signo los impuestos no locales de la línea
// (traslados positivos, retenciones negativas).
func signedFederalTaxes(l entity.BaseLine) decimal.Decimal {
	total := decimal.Zero
	for _, td := range l.TaxDetails {
		if td.IsLocal() {
			continue
		}
		if td.FactorType == sat.FactorExento {
			continue
		}
		total = total.Add(td.TaxAmount)
	}
	return total
}

// buildConceptos transforma cada línea base en un Concepto listo para el
// render. Las líneas cuyo objeto efectivo no es 02 y aún traen impuestos los
// pliegan al precio (el desglose se suprime y el importe los absorbe).
func buildConceptos(v *Values, lines []entity.BaseLine) {
	for _, l := range lines {
		objeto := lineObjeto(v, l)
		gross := v.Round(l.GrossSubtotal())
		discount := v.Round(l.GrossSubtotal().Sub(l.PriceSubtotal))

		c := Concepto{
			ClaveProdServ: l.ProductCode,
			Cantidad:      l.Quantity,
			ClaveUnidad:   l.UnitCode,
			Unidad:        l.UnitName,
			Descripcion:   sanitizeDescription(l.ProductName),
			ValorUnitario: l.PriceUnit,
			Importe:       gross,
			ObjetoImp:     objeto,
			SourceDocName: l.DocumentName,
			TaxSignature:  l.TaxSignature(),
		}

		folded := objeto != sat.ObjetoImpSi && len(l.TaxDetails) > 0
		if folded {
			// Precio con impuesto incluido: el importe absorbe los federales.
			taxes := signedFederalTaxes(l)
			c.Importe = v.Round(l.GrossSubtotal().Add(taxes))
			if !l.Quantity.IsZero() {
				c.ValorUnitario = l.GrossSubtotal().Add(taxes).Div(l.Quantity)
			}
		}

		if discount.IsPositive() {
			c.Descuento = ptr(discount)
		}

		if objeto == sat.ObjetoImpSi {
			for _, td := range l.TaxDetails {
				if td.IsLocal() {
					continue
				}
				entry := TaxEntry{
					Base:       v.Round(td.BaseAmount),
					Impuesto:   td.TaxCode,
					TipoFactor: td.FactorType,
					TasaOCuota: tasaOCuota(td),
				}
				if td.FactorType != sat.FactorExento {
					entry.Importe = ptr(v.Round(td.TaxAmount.Abs()))
				}
				if td.IsWithholding() {
					c.Retenciones = append(c.Retenciones, entry)
				} else {
					c.Traslados = append(c.Traslados, entry)
				}
			}
		}

		v.Conceptos = append(v.Conceptos, c)
	}
}

// aggregateDocumentTaxes produce los resúmenes a nivel comprobante: traslados
// federales por (impuesto, factor, tasa), retenciones federales por impuesto y
// los locales por nombre de grupo. Solo participan líneas con objeto 02.
func aggregateDocumentTaxes(v *Values, lines []entity.BaseLine) {
	type key struct{ impuesto, factor, tasa string }
	trasladoIdx := map[key]int{}
	retencionIdx := map[string]int{}
	localTraIdx := map[string]int{}
	localRetIdx := map[string]int{}

	addImporte := func(dst *TaxEntry, amount decimal.Decimal) {
		if dst.Importe == nil {
			dst.Importe = ptr(amount)
			return
		}
		*dst.Importe = dst.Importe.Add(amount)
	}

	for _, l := range lines {
		// Los locales siempre cuentan; los federales solo con objeto 02 y
		// descuento distinto del 100%.
		federalCounts := lineObjeto(v, l) == sat.ObjetoImpSi && !l.Discount.Equal(hundred)
		for _, td := range l.TaxDetails {
			if td.IsLocal() {
				tasa := td.Rate.Abs()
				if td.IsWithholding() {
					i, ok := localRetIdx[td.GroupName]
					if !ok {
						v.LocalRetenciones = append(v.LocalRetenciones, TaxEntry{Nombre: td.GroupName, Tasade: &tasa})
						i = len(v.LocalRetenciones) - 1
						localRetIdx[td.GroupName] = i
					}
					addImporte(&v.LocalRetenciones[i], v.Round(td.TaxAmount.Abs()))
				} else {
					i, ok := localTraIdx[td.GroupName]
					if !ok {
						v.LocalTraslados = append(v.LocalTraslados, TaxEntry{Nombre: td.GroupName, Tasade: &tasa})
						i = len(v.LocalTraslados) - 1
						localTraIdx[td.GroupName] = i
					}
					addImporte(&v.LocalTraslados[i], v.Round(td.TaxAmount.Abs()))
				}
				continue
			}
			if !federalCounts {
				continue
			}

			if td.IsWithholding() {
				// El resumen de retenciones del comprobante agrupa solo por impuesto.
				i, ok := retencionIdx[td.TaxCode]
				if !ok {
					v.Retenciones = append(v.Retenciones, TaxEntry{Impuesto: td.TaxCode})
					i = len(v.Retenciones) - 1
					retencionIdx[td.TaxCode] = i
				}
				addImporte(&v.Retenciones[i], v.Round(td.TaxAmount.Abs()))
				continue
			}

			tasa := ""
			if tq := tasaOCuota(td); tq != nil {
				tasa = tq.StringFixed(6)
			}
			k := key{td.TaxCode, td.FactorType, tasa}
			i, ok := trasladoIdx[k]
			if !ok {
				v.Traslados = append(v.Traslados, TaxEntry{
					Impuesto:   td.TaxCode,
					TipoFactor: td.FactorType,
					TasaOCuota: tasaOCuota(td),
				})
				i = len(v.Traslados) - 1
				trasladoIdx[k] = i
			}
			v.Traslados[i].Base = v.Traslados[i].Base.Add(v.Round(td.BaseAmount))
			if td.FactorType != sat.FactorExento {
				addImporte(&v.Traslados[i], v.Round(td.TaxAmount.Abs()))
			}
		}
	}
}

// composeTotals calcula Subtotal, Descuento, Total y los cuatro totales de
// impuestos. El subtotal es la suma de importes de concepto; el descuento la
// de sus descuentos; el total resta el descuento y aplica federales y locales.
func composeTotals(v *Values) {
	subtotal := decimal.Zero
	descuento := decimal.Zero
	for _, c := range v.Conceptos {
		subtotal = subtotal.Add(c.Importe)
		if c.Descuento != nil {
			descuento = descuento.Add(*c.Descuento)
		}
	}

	sum := func(entries []TaxEntry) *decimal.Decimal {
		var total *decimal.Decimal
		for _, e := range entries {
			if e.Importe == nil {
				continue
			}
			if total == nil {
				total = ptr(decimal.Zero)
			}
			*total = total.Add(*e.Importe)
		}
		return total
	}

	v.TotalImpuestosTrasladados = sum(v.Traslados)
	v.TotalImpuestosRetenidos = sum(v.Retenciones)
	v.TotalLocalTrasladados = sum(v.LocalTraslados)
	v.TotalLocalRetenidos = sum(v.LocalRetenciones)

	total := subtotal.Sub(descuento)
	for _, t := range []*decimal.Decimal{v.TotalImpuestosTrasladados, v.TotalLocalTrasladados} {
		if t != nil {
			total = total.Add(*t)
		}
	}
	for _, t := range []*decimal.Decimal{v.TotalImpuestosRetenidos, v.TotalLocalRetenidos} {
		if t != nil {
			total = total.Sub(*t)
		}
	}

	v.Subtotal = v.Round(subtotal)
	if descuento.IsPositive() {
		v.Descuento = ptr(v.Round(descuento))
	}
	v.Total = v.Round(total)
}
